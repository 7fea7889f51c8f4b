package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/eldtechnologies/attestlog/internal/chain"
	"github.com/eldtechnologies/attestlog/internal/config"
	"github.com/eldtechnologies/attestlog/internal/keyring"
	"github.com/eldtechnologies/attestlog/internal/store"
)

func main() {
	sessionID := flag.String("session", "", "Session id (empty starts a new session)")
	agentID := flag.String("agent", "", "Agent id whose key signs the message")
	role := flag.String("role", "assistant", "Message role")
	contentFile := flag.String("content", "", "File containing message content (or use stdin)")
	dbURL := flag.String("db", "", "Store URL or SQLite path (default $ATTESTLOG_DB)")
	keysDir := flag.String("keys", "", "Keyring directory (default $ATTESTLOG_KEYS)")
	passphrase := flag.String("passphrase", "", "Passphrase for an encrypted key")
	flag.Parse()

	if *agentID == "" {
		fmt.Fprintln(os.Stderr, "Usage: append -agent <agent-id> [-session <id>] [-role <role>] [-content <file>] [-db <url>] [-keys <dir>]")
		fmt.Fprintln(os.Stderr, "  Reads content from stdin if -content not specified")
		os.Exit(2)
	}

	var content []byte
	var err error
	if *contentFile != "" {
		content, err = os.ReadFile(*contentFile)
	} else {
		content, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read content: %v\n", err)
		os.Exit(3)
	}

	dir := *keysDir
	if dir == "" {
		dir = os.Getenv("ATTESTLOG_KEYS")
	}
	if dir == "" {
		dir = config.DefaultKeysDir()
	}

	kr, err := keyring.Open(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open keyring: %v\n", err)
		os.Exit(3)
	}
	kp, err := kr.Load(*agentID, *passphrase)
	if err != nil {
		if errors.Is(err, keyring.ErrNeedPassphrase) {
			fmt.Fprintf(os.Stderr, "Key for %s is encrypted, pass -passphrase\n", *agentID)
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load key: %v\n", err)
		}
		os.Exit(3)
	}

	url := *dbURL
	if url == "" {
		url = os.Getenv("ATTESTLOG_DB")
	}
	if url == "" {
		url = config.DefaultDBPath()
	}

	ctx := context.Background()
	st, err := store.Open(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(3)
	}
	defer st.Close()

	var sess *chain.Session
	if *sessionID == "" {
		sess, err = chain.NewSession(chain.NewSessionID())
	} else {
		var msgs []chain.Message
		msgs, err = st.GetChain(ctx, *sessionID)
		if err == nil {
			sess, err = chain.ResumeSession(*sessionID, msgs)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open session: %v\n", err)
		os.Exit(3)
	}

	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	msg, err := sess.Append(string(content), chain.NormalizeRole(*role), kp, *agentID, ts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to append: %v\n", err)
		os.Exit(3)
	}
	if err := st.Put(ctx, msg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to persist: %v\n", err)
		os.Exit(3)
	}

	fmt.Printf("Session: %s\n", sess.ID())
	fmt.Printf("Seq:     %d\n", msg.Seq)
	digest, _ := msg.Digest()
	fmt.Printf("Digest:  %s\n", digest)
}
