// Package store persists signed chains. Stores are append-only and do no
// chain validation; the verifier is the only oracle of integrity.
package store

import (
	"context"
	"errors"

	"github.com/eldtechnologies/attestlog/internal/chain"
)

var (
	// ErrConflict is returned when a Put would overwrite an existing
	// (session_id, seq) row whose digest differs. Re-putting a record with
	// the same digest is a no-op; the digest covers the signable view, so
	// the signature field is not compared.
	ErrConflict = errors.New("message conflicts with an existing record")

	// ErrUnsupportedURL is returned by Open for an unrecognized store URL.
	ErrUnsupportedURL = errors.New("unsupported store URL")
)

// SessionInfo summarizes one recorded session.
type SessionInfo struct {
	SessionID     string `json:"session_id"`
	MessageCount  int64  `json:"message_count"`
	LastTimestamp string `json:"last_timestamp,omitempty"`
}

// ChainStore is the persistence boundary the core consumes.
// Implementations: SQLiteStore (default), PostgresStore, RedisStore and
// MemoryStore (tests, demos).
type ChainStore interface {
	// Put appends one signed message. A duplicate (session_id, seq) is
	// accepted as a no-op only if its digest matches the stored record's;
	// otherwise ErrConflict.
	Put(ctx context.Context, msg *chain.Message) error

	// GetChain returns all messages of a session in ascending seq order.
	GetChain(ctx context.Context, sessionID string) ([]chain.Message, error)

	// GetMessages returns the most recent limit messages of a session in
	// ascending seq order. limit <= 0 means no limit.
	GetMessages(ctx context.Context, sessionID string, limit int) ([]chain.Message, error)

	// ListSessions lists recorded sessions. The SQLite, Postgres and Redis
	// backends order them most recently active first; MemoryStore keeps
	// the order in which sessions were first written.
	ListSessions(ctx context.Context) ([]SessionInfo, error)

	Close() error
}
