// Package chain defines the signed message record, the hash-chain
// primitives that link records within a session, and the single-writer
// append protocol.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/eldtechnologies/attestlog/internal/canon"
)

// DomainPrefix is prepended to the canonical signable view before signing
// and hashing, so signatures cannot be replayed against other protocols
// that sign raw canonical JSON.
const DomainPrefix = "attested-logs/v1\n"

// ZeroHash is the prev_hash of the first message in every session.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Message is a single signed entry in a tamper-evident conversation chain.
// Immutable once emitted: any mutation invalidates its signature and, for
// non-tail messages, the successor's prev_hash.
type Message struct {
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
	Timestamp string `json:"timestamp"`
	Role      string `json:"role"`
	AgentID   string `json:"agent_id"`
	Content   string `json:"content"`
	PrevHash  string `json:"prev_hash"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// SignableView returns the field set covered by the signature. The
// signature itself is excluded; the canonicalizer sorts the keys.
func (m *Message) SignableView() map[string]any {
	return map[string]any{
		"session_id": m.SessionID,
		"seq":        m.Seq,
		"timestamp":  m.Timestamp,
		"role":       m.Role,
		"agent_id":   m.AgentID,
		"content":    m.Content,
		"prev_hash":  m.PrevHash,
		"public_key": m.PublicKey,
	}
}

// SignedBytes returns the exact bytes that are signed and hashed:
// DomainPrefix followed by the canonical JSON of the signable view.
func (m *Message) SignedBytes() ([]byte, error) {
	cj, err := canon.Marshal(m.SignableView())
	if err != nil {
		return nil, fmt.Errorf("canonicalize message seq %d: %w", m.Seq, err)
	}
	out := make([]byte, 0, len(DomainPrefix)+len(cj))
	out = append(out, DomainPrefix...)
	out = append(out, cj...)
	return out, nil
}

// Digest returns the lowercase hex SHA-256 of SignedBytes. The next
// message in the chain carries this value as its prev_hash, so the bytes
// that link the chain and the bytes that are signed can never disagree.
func (m *Message) Digest() (string, error) {
	sb, err := m.SignedBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(sb)
	return hex.EncodeToString(sum[:]), nil
}

// IsHexDigest reports whether s is a well-formed lowercase hex SHA-256
// digest (64 hex characters).
func IsHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// NormalizeRole lowercases a role string. Roles are an open set; the
// verifier treats them as opaque text.
func NormalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
