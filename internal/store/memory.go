package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/eldtechnologies/attestlog/internal/chain"
)

// MemoryStore is a map-backed ChainStore for tests and demos. Safe for
// concurrent use; contents are lost on process exit.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[int64]memoryRecord
	order    []string
}

type memoryRecord struct {
	msg    chain.Message
	digest string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]map[int64]memoryRecord)}
}

// Put appends one signed message, tolerating only duplicates whose digest
// matches the stored record.
func (s *MemoryStore) Put(_ context.Context, msg *chain.Message) error {
	digest, err := msg.Digest()
	if err != nil {
		return fmt.Errorf("store put: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, ok := s.sessions[msg.SessionID]
	if !ok {
		msgs = make(map[int64]memoryRecord)
		s.sessions[msg.SessionID] = msgs
		s.order = append(s.order, msg.SessionID)
	}

	if existing, ok := msgs[msg.Seq]; ok {
		if existing.digest != digest {
			return fmt.Errorf("%w: session %q seq %d", ErrConflict, msg.SessionID, msg.Seq)
		}
		return nil
	}

	msgs[msg.Seq] = memoryRecord{msg: *msg, digest: digest}
	return nil
}

func (s *MemoryStore) load(sessionID string) []chain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.sessions[sessionID]
	msgs := make([]chain.Message, 0, len(recs))
	for _, r := range recs {
		msgs = append(msgs, r.msg)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })
	return msgs
}

// GetChain returns the full chain of a session in ascending seq order.
func (s *MemoryStore) GetChain(_ context.Context, sessionID string) ([]chain.Message, error) {
	return s.load(sessionID), nil
}

// GetMessages returns the most recent limit messages in ascending order.
func (s *MemoryStore) GetMessages(_ context.Context, sessionID string, limit int) ([]chain.Message, error) {
	msgs := s.load(sessionID)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// ListSessions lists sessions in the order they were first written, not
// by latest activity.
func (s *MemoryStore) ListSessions(_ context.Context) ([]SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(s.order))
	for _, id := range s.order {
		recs := s.sessions[id]
		var last string
		var maxSeq int64 = -1
		for seq, r := range recs {
			if seq > maxSeq {
				maxSeq = seq
				last = r.msg.Timestamp
			}
		}
		infos = append(infos, SessionInfo{
			SessionID:     id,
			MessageCount:  int64(len(recs)),
			LastTimestamp: last,
		})
	}
	return infos, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
