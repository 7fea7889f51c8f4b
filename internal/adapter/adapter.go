// Package adapter records framework-agnostic agent conversations into a
// signed chain. A Recorder owns one session and one signing key per agent;
// callers feed it messages as they happen and it appends, signs, and
// optionally persists each one.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eldtechnologies/attestlog/internal/chain"
	"github.com/eldtechnologies/attestlog/internal/crypto"
	"github.com/eldtechnologies/attestlog/internal/metrics"
	"github.com/eldtechnologies/attestlog/internal/store"
	"github.com/eldtechnologies/attestlog/internal/verify"
)

// Clock supplies the current time. Swap it out in tests for fixed
// timestamps.
type Clock func() time.Time

// UTCTimestamp renders t as RFC 3339 UTC with millisecond precision.
func UTCTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// AgentID returns the canonical identifier for a named agent.
func AgentID(name string) string {
	return "agent:" + name
}

// Recorder appends conversation messages to a single session, generating
// a keypair per agent on first sight. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	session *chain.Session
	keys    map[string]*crypto.KeyPair
	store   store.ChainStore
	clock   Clock
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithStore persists every appended message through st.
func WithStore(st store.ChainStore) Option {
	return func(r *Recorder) { r.store = st }
}

// WithClock overrides the timestamp source.
func WithClock(c Clock) Option {
	return func(r *Recorder) { r.clock = c }
}

// NewRecorder starts a fresh session with a generated session id.
func NewRecorder(opts ...Option) (*Recorder, error) {
	sess, err := chain.NewSession(chain.NewSessionID())
	if err != nil {
		return nil, err
	}
	r := &Recorder{
		session: sess,
		keys:    make(map[string]*crypto.KeyPair),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// SessionID returns the id of the session being recorded.
func (r *Recorder) SessionID() string {
	return r.session.ID()
}

func (r *Recorder) keyFor(agentID string) (*crypto.KeyPair, error) {
	if kp, ok := r.keys[agentID]; ok {
		return kp, nil
	}
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("adapter: generate key for %q: %w", agentID, err)
	}
	r.keys[agentID] = kp
	return kp, nil
}

// OnMessage appends one message spoken by the named agent. The agent's
// keypair is created on first use and reused for the rest of the session.
func (r *Recorder) OnMessage(ctx context.Context, role, agentName, content string) (*chain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agentID := AgentID(agentName)
	kp, err := r.keyFor(agentID)
	if err != nil {
		return nil, err
	}

	msg, err := r.session.Append(content, chain.NormalizeRole(role), kp, agentID, UTCTimestamp(r.clock()))
	if err != nil {
		return nil, err
	}

	if r.store != nil {
		if err := r.store.Put(ctx, msg); err != nil {
			if errors.Is(err, store.ErrConflict) {
				metrics.StoreConflicts.Inc()
			}
			// msg is still the chain tip under r.mu, so the rollback
			// cannot fail and the next append reuses this seq.
			_ = r.session.Rollback(msg)
			return nil, fmt.Errorf("adapter: persist seq %d: %w", msg.Seq, err)
		}
		metrics.MessagesStored.Inc()
	}
	return msg, nil
}

// TrustedKeys returns the agent-to-key bindings accumulated so far, in the
// form the verifier consumes.
func (r *Recorder) TrustedKeys() verify.TrustedKeys {
	r.mu.Lock()
	defer r.mu.Unlock()

	trusted := make(verify.TrustedKeys, len(r.keys))
	for id, kp := range r.keys {
		trusted[id] = kp.PublicKeyB64URL()
	}
	return trusted
}
