package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/eldtechnologies/attestlog/internal/chain"
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

func buildChain(t *testing.T, sessionID string, n int) []chain.Message {
	t.Helper()
	kp := testKey(t, 0x01)
	sess, err := chain.NewSession(sessionID)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	var msgs []chain.Message
	for i := 0; i < n; i++ {
		m, err := sess.Append(fmt.Sprintf("message %d", i), "user", kp, "agent:alice", fixedTimestamp)
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		msgs = append(msgs, *m)
	}
	return msgs
}

// backends returns each store implementation that can run without
// external services.
func backends(t *testing.T) map[string]ChainStore {
	t.Helper()
	ctx := context.Background()

	sqlite, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]ChainStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestPutAndGetChain(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msgs := buildChain(t, "sess-a", 4)

			for i := range msgs {
				if err := st.Put(ctx, &msgs[i]); err != nil {
					t.Fatalf("Put %d failed: %v", i, err)
				}
			}

			got, err := st.GetChain(ctx, "sess-a")
			if err != nil {
				t.Fatalf("GetChain failed: %v", err)
			}
			if len(got) != len(msgs) {
				t.Fatalf("got %d messages, want %d", len(got), len(msgs))
			}
			for i := range got {
				if got[i] != msgs[i] {
					t.Fatalf("message %d round-trip mismatch:\n got %+v\nwant %+v", i, got[i], msgs[i])
				}
			}
		})
	}
}

func TestPutIdempotentDuplicate(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msgs := buildChain(t, "sess-a", 1)

			if err := st.Put(ctx, &msgs[0]); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := st.Put(ctx, &msgs[0]); err != nil {
				t.Fatalf("identical re-put should succeed: %v", err)
			}

			got, _ := st.GetChain(ctx, "sess-a")
			if len(got) != 1 {
				t.Fatalf("duplicate put stored %d messages", len(got))
			}
		})
	}
}

func TestPutConflict(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msgs := buildChain(t, "sess-a", 1)

			if err := st.Put(ctx, &msgs[0]); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			conflicting := msgs[0]
			conflicting.Content = "rewritten history"
			if err := st.Put(ctx, &conflicting); !errors.Is(err, ErrConflict) {
				t.Fatalf("want ErrConflict, got %v", err)
			}

			got, _ := st.GetChain(ctx, "sess-a")
			if got[0].Content != msgs[0].Content {
				t.Fatal("conflicting put overwrote the original")
			}
		})
	}
}

func TestGetMessagesLimit(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msgs := buildChain(t, "sess-a", 5)
			for i := range msgs {
				if err := st.Put(ctx, &msgs[i]); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}

			got, err := st.GetMessages(ctx, "sess-a", 2)
			if err != nil {
				t.Fatalf("GetMessages failed: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d messages, want 2", len(got))
			}
			if got[0].Seq != 3 || got[1].Seq != 4 {
				t.Fatalf("limit should return the most recent messages ascending, got seqs %d,%d", got[0].Seq, got[1].Seq)
			}

			all, err := st.GetMessages(ctx, "sess-a", 0)
			if err != nil {
				t.Fatalf("GetMessages failed: %v", err)
			}
			if len(all) != 5 {
				t.Fatalf("limit 0 should return everything, got %d", len(all))
			}
		})
	}
}

func TestGetChainUnknownSession(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := st.GetChain(context.Background(), "sess-missing")
			if err != nil {
				t.Fatalf("GetChain failed: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("unknown session returned %d messages", len(got))
			}
		})
	}
}

func TestListSessions(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := buildChain(t, "sess-a", 2)
			b := buildChain(t, "sess-b", 3)
			for i := range a {
				if err := st.Put(ctx, &a[i]); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}
			for i := range b {
				if err := st.Put(ctx, &b[i]); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}

			infos, err := st.ListSessions(ctx)
			if err != nil {
				t.Fatalf("ListSessions failed: %v", err)
			}
			if len(infos) != 2 {
				t.Fatalf("got %d sessions, want 2", len(infos))
			}

			counts := make(map[string]int64)
			for _, info := range infos {
				counts[info.SessionID] = info.MessageCount
				if info.LastTimestamp == "" {
					t.Errorf("session %s has empty last timestamp", info.SessionID)
				}
			}
			if counts["sess-a"] != 2 || counts["sess-b"] != 3 {
				t.Fatalf("wrong message counts: %v", counts)
			}
		})
	}
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	st, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	msgs := buildChain(t, "sess-a", 2)
	for i := range msgs {
		if err := st.Put(ctx, &msgs[i]); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	st2, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer st2.Close()

	got, err := st2.GetChain(ctx, "sess-a")
	if err != nil {
		t.Fatalf("GetChain failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("reopened store has %d messages, want 2", len(got))
	}
}

func TestOpenDispatch(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, "mem://")
	if err != nil {
		t.Fatalf("Open(mem://) failed: %v", err)
	}
	if _, ok := mem.(*MemoryStore); !ok {
		t.Fatalf("Open(mem://) returned %T", mem)
	}

	sqlite, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open(path) failed: %v", err)
	}
	defer sqlite.Close()
	if _, ok := sqlite.(*SQLiteStore); !ok {
		t.Fatalf("Open(path) returned %T", sqlite)
	}

	if _, err := Open(ctx, "ftp://example.com/db"); !errors.Is(err, ErrUnsupportedURL) {
		t.Fatalf("want ErrUnsupportedURL, got %v", err)
	}
}
