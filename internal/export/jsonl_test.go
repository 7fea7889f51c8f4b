package export

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/eldtechnologies/attestlog/internal/chain"
	"github.com/eldtechnologies/attestlog/internal/crypto"
	"github.com/eldtechnologies/attestlog/internal/verify"
)

const fixedTimestamp = "2024-01-01T00:00:00.000Z"

func buildChain(t *testing.T, n int) ([]chain.Message, verify.TrustedKeys) {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = 0x01
	}
	kp, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		t.Fatalf("KeyPairFromSeed failed: %v", err)
	}

	sess, err := chain.NewSession("sess-demo")
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	var msgs []chain.Message
	for i := 0; i < n; i++ {
		m, err := sess.Append(fmt.Sprintf("message %d with \"quotes\" and <html>", i), "user", kp, "agent:alice", fixedTimestamp)
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		msgs = append(msgs, *m)
	}
	return msgs, verify.TrustedKeys{"agent:alice": kp.PublicKeyB64URL()}
}

func TestWriteReadRoundtrip(t *testing.T) {
	msgs, _ := buildChain(t, 3)

	var buf bytes.Buffer
	if err := Write(&buf, msgs); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != len(msgs) {
		t.Fatalf("got %d messages, want %d", len(got), len(msgs))
	}
	for i := range got {
		if got[i] != msgs[i] {
			t.Fatalf("message %d round-trip mismatch:\n got %+v\nwant %+v", i, got[i], msgs[i])
		}
	}
}

func TestRoundtrippedChainVerifies(t *testing.T) {
	msgs, trusted := buildChain(t, 4)

	var buf bytes.Buffer
	if err := Write(&buf, msgs); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	r := verify.NewVerifier(trusted).Verify(got)
	if !r.IsValid {
		t.Fatalf("round-tripped chain failed verification: %v", r.Failures)
	}
}

func TestReadSkipsBlankLines(t *testing.T) {
	msgs, _ := buildChain(t, 2)

	var buf bytes.Buffer
	if err := Write(&buf, msgs); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	noisy := "\n" + strings.ReplaceAll(buf.String(), "\n", "\n\n") + "  \n"

	got, err := Read(strings.NewReader(noisy))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
}

func TestReadReportsLineNumber(t *testing.T) {
	msgs, _ := buildChain(t, 1)

	var buf bytes.Buffer
	if err := Write(&buf, msgs); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	buf.WriteString("{not json}\n")

	_, err := Read(&buf)
	if err == nil {
		t.Fatal("malformed line should fail the read")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("error should name the offending line: %v", err)
	}
}

func TestWriteEmptyChain(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("empty chain should produce no output, got %q", buf.String())
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("empty input should produce no messages, got %d", len(got))
	}
}
