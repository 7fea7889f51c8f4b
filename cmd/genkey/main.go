package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/eldtechnologies/attestlog/internal/config"
	"github.com/eldtechnologies/attestlog/internal/crypto"
	"github.com/eldtechnologies/attestlog/internal/keyring"
)

func main() {
	agentID := flag.String("agent", "", "Agent id, e.g. agent:researcher")
	keysDir := flag.String("keys", "", "Keyring directory (default $ATTESTLOG_KEYS or ~/.attestlog/keys)")
	passphrase := flag.String("passphrase", "", "Encrypt the private key with this passphrase")
	flag.Parse()

	if *agentID == "" {
		fmt.Fprintln(os.Stderr, "Usage: genkey -agent <agent-id> [-keys <dir>] [-passphrase <phrase>]")
		os.Exit(2)
	}

	dir := *keysDir
	if dir == "" {
		dir = os.Getenv("ATTESTLOG_KEYS")
	}
	if dir == "" {
		dir = config.DefaultKeysDir()
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate key: %v\n", err)
		os.Exit(3)
	}

	kr, err := keyring.Open(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open keyring: %v\n", err)
		os.Exit(3)
	}

	kf, err := kr.Save(*agentID, kp, *passphrase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save key: %v\n", err)
		os.Exit(3)
	}

	fmt.Printf("Agent:      %s\n", kf.AgentID)
	fmt.Printf("Key id:     %s\n", kf.KID)
	fmt.Printf("Public key: %s\n", kf.PublicKey)
	fmt.Printf("Stored in:  %s\n", kr.Dir())
	if kf.Encrypted {
		fmt.Println("Private key is encrypted at rest.")
	}
}
