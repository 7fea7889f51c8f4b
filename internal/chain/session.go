package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/eldtechnologies/attestlog/internal/crypto"
)

var (
	ErrEmptySessionID = errors.New("session id must not be empty")
	ErrNilSigner      = errors.New("signer key pair is required")
	ErrNotChainTip    = errors.New("message is not the last appended message")
)

// Session manages the append protocol for a single conversation. It keeps
// the next sequence number and the digest of the last appended message so
// each new message links to its predecessor.
//
// Append is guarded by a mutex: a Session is a single-writer object and
// two goroutines may share one safely, but appends to the same session are
// serialized. Distinct sessions are fully independent.
type Session struct {
	mu        sync.Mutex
	sessionID string
	nextSeq   int64
	lastHash  string
}

// NewSession creates an empty session positioned before the first message.
func NewSession(sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	return &Session{sessionID: sessionID, nextSeq: 0, lastHash: ZeroHash}, nil
}

// ResumeSession positions a session after an existing chain so new
// messages continue it. The chain is trusted as loaded; run the verifier
// if the source is untrusted.
func ResumeSession(sessionID string, msgs []Message) (*Session, error) {
	s, err := NewSession(sessionID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return s, nil
	}
	last := msgs[len(msgs)-1]
	d, err := last.Digest()
	if err != nil {
		return nil, err
	}
	s.nextSeq = last.Seq + 1
	s.lastHash = d
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.sessionID
}

// NextSeq returns the sequence number the next append will use.
func (s *Session) NextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq
}

// LastHash returns the digest of the most recently appended message, or
// ZeroHash before the first append.
func (s *Session) LastHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash
}

// Append builds, signs and links a new message. On any failure the session
// state is unchanged and no partial record is observable; on success the
// sequence counter and chain tip have advanced before the message is
// returned.
//
// The timestamp is carried as a claim. Callers wanting trustworthy or
// monotone timestamps must arrange that themselves.
func (s *Session) Append(content, role string, signer *crypto.KeyPair, agentID, timestamp string) (*Message, error) {
	if signer == nil {
		return nil, ErrNilSigner
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &Message{
		SessionID: s.sessionID,
		Seq:       s.nextSeq,
		Timestamp: timestamp,
		Role:      role,
		AgentID:   agentID,
		Content:   content,
		PrevHash:  s.lastHash,
		PublicKey: signer.PublicKeyB64URL(),
	}

	sb, err := msg.SignedBytes()
	if err != nil {
		return nil, fmt.Errorf("append to session %q: %w", s.sessionID, err)
	}
	msg.Signature = crypto.EncodeSignature(signer.Sign(sb))

	d, err := msg.Digest()
	if err != nil {
		return nil, fmt.Errorf("append to session %q: %w", s.sessionID, err)
	}

	s.lastHash = d
	s.nextSeq++
	return msg, nil
}

// Rollback retracts the most recent append, restoring the sequence counter
// and chain tip to their values before msg was created. Callers use it when
// a freshly appended message could not be persisted. Only the current tip
// can be rolled back; anything else returns ErrNotChainTip.
func (s *Session) Rollback(msg *Message) error {
	if msg == nil {
		return ErrNotChainTip
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Seq != s.nextSeq-1 {
		return ErrNotChainTip
	}
	s.nextSeq = msg.Seq
	s.lastHash = msg.PrevHash
	return nil
}
