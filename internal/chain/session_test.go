package chain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/eldtechnologies/attestlog/internal/crypto"
)

const fixedTimestamp = "2024-01-01T00:00:00.000Z"

func testKey(t *testing.T, b byte) *crypto.KeyPair {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = b
	}
	kp, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		t.Fatalf("KeyPairFromSeed failed: %v", err)
	}
	return kp
}

func TestNewSessionRejectsEmptyID(t *testing.T) {
	if _, err := NewSession(""); !errors.Is(err, ErrEmptySessionID) {
		t.Fatalf("want ErrEmptySessionID, got %v", err)
	}
}

func TestAppendFirstMessage(t *testing.T) {
	sess, err := NewSession("sess-demo")
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	kp := testKey(t, 0x01)

	msg, err := sess.Append("hello", "user", kp, "agent:alice", fixedTimestamp)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if msg.Seq != 0 {
		t.Fatalf("first message seq = %d, want 0", msg.Seq)
	}
	if msg.PrevHash != ZeroHash {
		t.Fatalf("first message prev_hash = %s, want zero hash", msg.PrevHash)
	}
	if msg.PublicKey != kp.PublicKeyB64URL() {
		t.Fatal("message does not embed the signer's public key")
	}
	if msg.Signature == "" {
		t.Fatal("message is unsigned")
	}

	sb, err := msg.SignedBytes()
	if err != nil {
		t.Fatalf("SignedBytes failed: %v", err)
	}
	sig, err := crypto.DecodeSignature(msg.Signature)
	if err != nil {
		t.Fatalf("DecodeSignature failed: %v", err)
	}
	if !crypto.Verify(kp.PublicKey(), sb, sig) {
		t.Fatal("signature does not verify over the signed bytes")
	}
}

func TestAppendLinksChain(t *testing.T) {
	sess, _ := NewSession("sess-demo")
	kp := testKey(t, 0x01)

	var msgs []*Message
	for i := 0; i < 5; i++ {
		msg, err := sess.Append(fmt.Sprintf("message %d", i), "assistant", kp, "agent:bot", fixedTimestamp)
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		msgs = append(msgs, msg)
	}

	for i, msg := range msgs {
		if msg.Seq != int64(i) {
			t.Fatalf("message %d has seq %d", i, msg.Seq)
		}
		if i == 0 {
			continue
		}
		prevDigest, err := msgs[i-1].Digest()
		if err != nil {
			t.Fatalf("Digest failed: %v", err)
		}
		if msg.PrevHash != prevDigest {
			t.Fatalf("message %d prev_hash does not match digest of message %d", i, i-1)
		}
	}

	if sess.NextSeq() != 5 {
		t.Fatalf("NextSeq = %d, want 5", sess.NextSeq())
	}
	lastDigest, _ := msgs[4].Digest()
	if sess.LastHash() != lastDigest {
		t.Fatal("LastHash does not match the tail digest")
	}
}

func TestAppendMultipleSigners(t *testing.T) {
	sess, _ := NewSession("sess-demo")
	alice := testKey(t, 0x01)
	bob := testKey(t, 0x02)

	m0, err := sess.Append("question", "user", alice, "agent:alice", fixedTimestamp)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	m1, err := sess.Append("answer", "assistant", bob, "agent:bob", fixedTimestamp)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if m0.PublicKey == m1.PublicKey {
		t.Fatal("different signers should embed different keys")
	}
	d0, _ := m0.Digest()
	if m1.PrevHash != d0 {
		t.Fatal("second message does not link to the first")
	}
}

func TestAppendNilSigner(t *testing.T) {
	sess, _ := NewSession("sess-demo")
	if _, err := sess.Append("hello", "user", nil, "agent:alice", fixedTimestamp); !errors.Is(err, ErrNilSigner) {
		t.Fatalf("want ErrNilSigner, got %v", err)
	}
	if sess.NextSeq() != 0 {
		t.Fatal("failed append must not advance the sequence")
	}
	if sess.LastHash() != ZeroHash {
		t.Fatal("failed append must not move the chain tip")
	}
}

func TestAppendFailureLeavesStateUnchanged(t *testing.T) {
	sess, _ := NewSession("sess-demo")
	kp := testKey(t, 0x01)

	// Invalid UTF-8 content cannot be canonicalized.
	if _, err := sess.Append(string([]byte{0xff, 0xfe}), "user", kp, "agent:alice", fixedTimestamp); err == nil {
		t.Fatal("append of non-UTF-8 content should fail")
	}
	if sess.NextSeq() != 0 || sess.LastHash() != ZeroHash {
		t.Fatal("failed append must leave the session unchanged")
	}

	// The session still works afterwards.
	msg, err := sess.Append("hello", "user", kp, "agent:alice", fixedTimestamp)
	if err != nil {
		t.Fatalf("Append after failure: %v", err)
	}
	if msg.Seq != 0 {
		t.Fatalf("seq = %d, want 0", msg.Seq)
	}
}

func TestRollbackRestoresState(t *testing.T) {
	sess, _ := NewSession("sess-demo")
	kp := testKey(t, 0x01)

	first, err := sess.Append("kept", "user", kp, "agent:alice", fixedTimestamp)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	second, err := sess.Append("retracted", "user", kp, "agent:alice", fixedTimestamp)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := sess.Rollback(second); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if sess.NextSeq() != 1 {
		t.Fatalf("NextSeq = %d, want 1", sess.NextSeq())
	}
	firstDigest, _ := first.Digest()
	if sess.LastHash() != firstDigest {
		t.Fatal("rollback did not restore the chain tip")
	}

	// The retracted slot is reused by the next append.
	replacement, err := sess.Append("replacement", "user", kp, "agent:alice", fixedTimestamp)
	if err != nil {
		t.Fatalf("Append after rollback failed: %v", err)
	}
	if replacement.Seq != 1 || replacement.PrevHash != firstDigest {
		t.Fatalf("replacement does not take the retracted slot: seq %d", replacement.Seq)
	}
}

func TestRollbackRejectsNonTip(t *testing.T) {
	sess, _ := NewSession("sess-demo")
	kp := testKey(t, 0x01)

	first, err := sess.Append("first", "user", kp, "agent:alice", fixedTimestamp)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := sess.Append("second", "user", kp, "agent:alice", fixedTimestamp); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := sess.Rollback(first); !errors.Is(err, ErrNotChainTip) {
		t.Fatalf("want ErrNotChainTip, got %v", err)
	}
	if err := sess.Rollback(nil); !errors.Is(err, ErrNotChainTip) {
		t.Fatalf("want ErrNotChainTip for nil message, got %v", err)
	}
	if sess.NextSeq() != 2 {
		t.Fatal("rejected rollback must not change the session")
	}
}

func TestResumeSession(t *testing.T) {
	sess, _ := NewSession("sess-demo")
	kp := testKey(t, 0x01)

	var msgs []Message
	for i := 0; i < 3; i++ {
		m, err := sess.Append(fmt.Sprintf("message %d", i), "user", kp, "agent:alice", fixedTimestamp)
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		msgs = append(msgs, *m)
	}

	resumed, err := ResumeSession("sess-demo", msgs)
	if err != nil {
		t.Fatalf("ResumeSession failed: %v", err)
	}
	if resumed.NextSeq() != 3 {
		t.Fatalf("resumed NextSeq = %d, want 3", resumed.NextSeq())
	}

	next, err := resumed.Append("message 3", "user", kp, "agent:alice", fixedTimestamp)
	if err != nil {
		t.Fatalf("Append after resume failed: %v", err)
	}
	tail, _ := msgs[2].Digest()
	if next.PrevHash != tail {
		t.Fatal("resumed append does not link to the loaded tail")
	}
}

func TestResumeSessionEmpty(t *testing.T) {
	resumed, err := ResumeSession("sess-demo", nil)
	if err != nil {
		t.Fatalf("ResumeSession failed: %v", err)
	}
	if resumed.NextSeq() != 0 || resumed.LastHash() != ZeroHash {
		t.Fatal("resuming an empty chain should start fresh")
	}
}

func TestNewSessionID(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	if a == b {
		t.Fatal("session ids should be unique")
	}
	if len(a) == 0 || a[:5] != "sess-" {
		t.Fatalf("unexpected session id format: %q", a)
	}
}
