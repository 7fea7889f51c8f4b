// Package export reads and writes chains as JSON Lines, one message per
// line. The encoding round-trips byte-for-byte relevant fields so an
// exported chain verifies identically after import.
package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/eldtechnologies/attestlog/internal/chain"
)

// Write streams msgs to w, one JSON object per line in the order given.
func Write(w io.Writer, msgs []chain.Message) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i := range msgs {
		if err := enc.Encode(&msgs[i]); err != nil {
			return fmt.Errorf("export line %d: %w", i+1, err)
		}
	}
	return bw.Flush()
}

// Read parses a JSONL stream produced by Write. Blank lines are skipped;
// a malformed line fails the whole read with its line number.
func Read(r io.Reader) ([]chain.Message, error) {
	var msgs []chain.Message

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		data := sc.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		var m chain.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("import line %d: %w", line, err)
		}
		msgs = append(msgs, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	return msgs, nil
}
