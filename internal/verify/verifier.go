// Package verify implements the offline integrity and authenticity check
// for a complete conversation chain. It needs only the chain itself and a
// caller-supplied trusted-key map; no store, no network, no clock.
package verify

import (
	"fmt"
	"time"

	"github.com/eldtechnologies/attestlog/internal/chain"
	"github.com/eldtechnologies/attestlog/internal/crypto"
)

// Kind classifies a verification failure.
type Kind string

const (
	KindSchema           Kind = "schema"
	KindChainBreak       Kind = "chain_break"
	KindUnknownAgent     Kind = "unknown_agent"
	KindKeyMismatch      Kind = "key_mismatch"
	KindSignatureInvalid Kind = "signature_invalid"
)

// Failure is a single finding against one message.
type Failure struct {
	Index  int    `json:"index"`
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
}

func (f Failure) String() string {
	return fmt.Sprintf("[%d] %s: %s", f.Index, f.Kind, f.Detail)
}

// Result is the outcome of verifying a chain. Verification is total: every
// message is inspected and all findings are reported, so a tool can surface
// every tamper point at once.
type Result struct {
	IsValid  bool      `json:"is_valid"`
	Summary  string    `json:"summary"`
	Failures []Failure `json:"failures,omitempty"`
}

// TrustedKeys maps agent_id to the unpadded base64url public key considered
// authoritative for that agent. There is no default: a message claiming an
// agent_id absent from the map fails verification.
type TrustedKeys map[string]string

// Verifier checks chains offline against a trusted-key map. The map is
// read-only for the duration of a verification.
type Verifier struct {
	trusted TrustedKeys
}

// NewVerifier creates a verifier. A nil map is treated as empty, which
// fails every signed message with an unknown-agent finding.
func NewVerifier(trusted TrustedKeys) *Verifier {
	if trusted == nil {
		trusted = TrustedKeys{}
	}
	return &Verifier{trusted: trusted}
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Verify inspects every message of the chain and returns all findings.
// An empty chain is vacuously valid.
func (v *Verifier) Verify(msgs []chain.Message) Result {
	if len(msgs) == 0 {
		return Result{IsValid: true, Summary: "empty chain is valid"}
	}

	var failures []Failure
	fail := func(i int, kind Kind, format string, args ...any) {
		failures = append(failures, Failure{Index: i, Kind: kind, Detail: fmt.Sprintf(format, args...)})
	}

	// Digests are needed both for the chain rule and the signed bytes.
	// A message whose signable view cannot be canonicalized gets a schema
	// finding and is skipped by the dependent checks.
	digests := make([]string, len(msgs))
	signable := make([][]byte, len(msgs))
	for i := range msgs {
		sb, err := msgs[i].SignedBytes()
		if err != nil {
			fail(i, KindSchema, "cannot canonicalize signable view: %v", err)
			continue
		}
		signable[i] = sb
		d, _ := msgs[i].Digest()
		digests[i] = d
	}

	sessionID := msgs[0].SessionID
	for i := range msgs {
		m := &msgs[i]

		schemaOK := v.checkSchema(i, m, sessionID, fail)

		// Chain rule.
		if i == 0 {
			if m.PrevHash != chain.ZeroHash && chain.IsHexDigest(m.PrevHash) {
				fail(i, KindChainBreak, "expected zero prev_hash %s, got %s", chain.ZeroHash, m.PrevHash)
			}
		} else if digests[i-1] != "" && chain.IsHexDigest(m.PrevHash) {
			if m.PrevHash != digests[i-1] {
				fail(i, KindChainBreak, "expected prev_hash %s, got %s", digests[i-1], m.PrevHash)
			}
		}

		if !schemaOK || signable[i] == nil {
			continue
		}

		// Trust binding: the agent must be known, and the key the log
		// embeds must be the key the caller trusts. The binding check runs
		// before the signature check, so substituting both the key and the
		// signature surfaces as a key mismatch, not a bad signature.
		trustedB64, ok := v.trusted[m.AgentID]
		if !ok {
			fail(i, KindUnknownAgent, "no trusted public key for agent %q", m.AgentID)
			continue
		}
		trustedPub, err := crypto.DecodePublicKey(trustedB64)
		if err != nil {
			fail(i, KindKeyMismatch, "trusted key for agent %q is malformed: %v", m.AgentID, err)
			continue
		}
		if m.PublicKey != trustedB64 {
			fail(i, KindKeyMismatch, "embedded public key does not match trusted key for agent %q", m.AgentID)
			continue
		}

		sig, err := crypto.DecodeSignature(m.Signature)
		if err != nil {
			fail(i, KindSchema, "signature is not valid base64url: %v", err)
			continue
		}
		if !crypto.Verify(trustedPub, signable[i], sig) {
			fail(i, KindSignatureInvalid, "Ed25519 signature verification failed")
		}
	}

	if len(failures) > 0 {
		return Result{
			IsValid:  false,
			Summary:  fmt.Sprintf("chain verification failed with %d issue(s)", len(failures)),
			Failures: failures,
		}
	}
	return Result{
		IsValid: true,
		Summary: fmt.Sprintf("chain of %d message(s) verified", len(msgs)),
	}
}

// checkSchema validates the per-message structural requirements: required
// fields present and well-formed, sequence matching the index, session id
// matching the first message's. Returns false if any finding was recorded.
func (v *Verifier) checkSchema(i int, m *chain.Message, sessionID string, fail func(int, Kind, string, ...any)) bool {
	ok := true
	bad := func(format string, args ...any) {
		fail(i, KindSchema, format, args...)
		ok = false
	}

	if m.SessionID == "" {
		bad("session_id is empty")
	} else if m.SessionID != sessionID {
		bad("session_id mismatch: expected %q, got %q", sessionID, m.SessionID)
	}
	if m.Seq != int64(i) {
		bad("sequence mismatch: expected %d, got %d", i, m.Seq)
	}
	if m.AgentID == "" {
		bad("agent_id is empty")
	}
	if m.Role == "" {
		bad("role is empty")
	}
	if _, err := time.Parse(timestampLayout, m.Timestamp); err != nil {
		bad("timestamp %q is not RFC 3339 UTC with millisecond precision", m.Timestamp)
	}
	if !chain.IsHexDigest(m.PrevHash) {
		bad("prev_hash %q is not a 64-character lowercase hex digest", m.PrevHash)
	}
	if _, err := crypto.DecodePublicKey(m.PublicKey); err != nil {
		bad("public_key is malformed: %v", err)
	}
	if m.Signature == "" {
		bad("signature is missing")
	}
	return ok
}
