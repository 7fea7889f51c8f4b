// Command attestlog inspects and verifies stored conversation chains.
//
//	attestlog sessions              list recorded sessions
//	attestlog messages <session>    print a session's messages
//	attestlog verify <session>      verify a session's chain
//	attestlog export <session>      write a session as JSON Lines
//	attestlog import                read JSON Lines into the store
//
// Exit codes: 0 success, 1 verification failed, 2 usage error, 3 I/O or
// store error.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/eldtechnologies/attestlog/internal/config"
	"github.com/eldtechnologies/attestlog/internal/export"
	"github.com/eldtechnologies/attestlog/internal/keyring"
	"github.com/eldtechnologies/attestlog/internal/store"
	"github.com/eldtechnologies/attestlog/internal/verify"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
	exitIO     = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUsage
	}

	switch args[0] {
	case "sessions":
		return cmdSessions(args[1:])
	case "messages":
		return cmdMessages(args[1:])
	case "verify":
		return cmdVerify(args[1:])
	case "export":
		return cmdExport(args[1:])
	case "import":
		return cmdImport(args[1:])
	case "-h", "-help", "--help", "help":
		usage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		return exitUsage
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: attestlog <command> [flags]

Commands:
  sessions              list recorded sessions
  messages <session>    print a session's messages
  verify <session>      verify a session's chain
  export <session>      write a session as JSON Lines to stdout
  import                read JSON Lines from stdin into the store

Common flags:
  -db <url>     store URL or SQLite path (default $ATTESTLOG_DB, then ~/.attestlog/attestlog.db)`)
}

// resolveDB applies the flag, then the environment, then the default.
func resolveDB(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("ATTESTLOG_DB"); env != "" {
		return env
	}
	return config.DefaultDBPath()
}

func openStore(ctx context.Context, url string) (store.ChainStore, int) {
	st, err := store.Open(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store %s: %v\n", url, err)
		return nil, exitIO
	}
	return st, exitOK
}

func cmdSessions(args []string) int {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	dbURL := fs.String("db", "", "store URL or SQLite path")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	ctx := context.Background()
	st, code := openStore(ctx, resolveDB(*dbURL))
	if code != exitOK {
		return code
	}
	defer st.Close()

	infos, err := st.ListSessions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list sessions: %v\n", err)
		return exitIO
	}

	if len(infos) == 0 {
		fmt.Println("no sessions recorded")
		return exitOK
	}
	for _, info := range infos {
		fmt.Printf("%s  %d message(s)  last %s\n", info.SessionID, info.MessageCount, info.LastTimestamp)
	}
	return exitOK
}

func cmdMessages(args []string) int {
	fs := flag.NewFlagSet("messages", flag.ContinueOnError)
	dbURL := fs.String("db", "", "store URL or SQLite path")
	limit := fs.Int("limit", 0, "show only the most recent N messages")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: attestlog messages [flags] <session>")
		return exitUsage
	}
	sessionID := fs.Arg(0)

	ctx := context.Background()
	st, code := openStore(ctx, resolveDB(*dbURL))
	if code != exitOK {
		return code
	}
	defer st.Close()

	msgs, err := st.GetMessages(ctx, sessionID, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load messages: %v\n", err)
		return exitIO
	}
	if len(msgs) == 0 {
		fmt.Fprintf(os.Stderr, "session %q not found\n", sessionID)
		return exitIO
	}

	for _, m := range msgs {
		fmt.Printf("[%d] %s %s (%s)\n%s\n\n", m.Seq, m.Timestamp, m.AgentID, m.Role, m.Content)
	}
	return exitOK
}

func cmdVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	dbURL := fs.String("db", "", "store URL or SQLite path")
	trustFile := fs.String("trust", "", "trust map file (JSON agent_id -> public key)")
	keysDir := fs.String("keys", "", "build the trust map from this keyring directory")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: attestlog verify [flags] <session>")
		return exitUsage
	}
	sessionID := fs.Arg(0)

	trusted, code := loadTrust(*trustFile, *keysDir)
	if code != exitOK {
		return code
	}

	ctx := context.Background()
	st, code := openStore(ctx, resolveDB(*dbURL))
	if code != exitOK {
		return code
	}
	defer st.Close()

	msgs, err := st.GetChain(ctx, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load chain: %v\n", err)
		return exitIO
	}

	result := verify.NewVerifier(trusted).Verify(msgs)
	fmt.Println(result.Summary)
	for _, f := range result.Failures {
		fmt.Println("  " + f.String())
	}
	if !result.IsValid {
		return exitFailed
	}
	return exitOK
}

// loadTrust resolves the trust map: an explicit file wins, then a keyring
// directory, then the default keyring.
func loadTrust(trustFile, keysDir string) (verify.TrustedKeys, int) {
	if trustFile != "" {
		trusted, err := keyring.LoadTrust(trustFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load trust map: %v\n", err)
			return nil, exitIO
		}
		return trusted, exitOK
	}

	dir := keysDir
	if dir == "" {
		dir = os.Getenv("ATTESTLOG_KEYS")
	}
	if dir == "" {
		dir = config.DefaultKeysDir()
	}
	kr, err := keyring.Open(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open keyring: %v\n", err)
		return nil, exitIO
	}
	trusted, err := keyring.TrustFromKeyring(kr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build trust map: %v\n", err)
		return nil, exitIO
	}
	return trusted, exitOK
}

func cmdExport(args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dbURL := fs.String("db", "", "store URL or SQLite path")
	outFile := fs.String("output", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: attestlog export [flags] <session>")
		return exitUsage
	}
	sessionID := fs.Arg(0)

	ctx := context.Background()
	st, code := openStore(ctx, resolveDB(*dbURL))
	if code != exitOK {
		return code
	}
	defer st.Close()

	msgs, err := st.GetChain(ctx, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load chain: %v\n", err)
		return exitIO
	}
	if len(msgs) == 0 {
		fmt.Fprintf(os.Stderr, "session %q not found\n", sessionID)
		return exitIO
	}

	var w io.Writer = os.Stdout
	if *outFile != "" {
		f, err := os.Create(*outFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", *outFile, err)
			return exitIO
		}
		defer f.Close()
		w = f
	}

	if err := export.Write(w, msgs); err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		return exitIO
	}
	return exitOK
}

func cmdImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	dbURL := fs.String("db", "", "store URL or SQLite path")
	inFile := fs.String("input", "", "input file (default stdin)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	var r io.Reader = os.Stdin
	if *inFile != "" {
		f, err := os.Open(*inFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *inFile, err)
			return exitIO
		}
		defer f.Close()
		r = f
	}

	msgs, err := export.Read(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		return exitIO
	}
	if len(msgs) == 0 {
		fmt.Fprintln(os.Stderr, "no messages to import")
		return exitIO
	}

	ctx := context.Background()
	st, code := openStore(ctx, resolveDB(*dbURL))
	if code != exitOK {
		return code
	}
	defer st.Close()

	for i := range msgs {
		if err := st.Put(ctx, &msgs[i]); err != nil {
			fmt.Fprintf(os.Stderr, "import: message %d rejected: %v\n", i, err)
			return exitIO
		}
	}

	fmt.Printf("imported %d message(s) into session %s\n", len(msgs), msgs[0].SessionID)
	return exitOK
}
