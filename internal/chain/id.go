package chain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewSessionID generates a sortable session identifier of the form
// "sess-01h…". ULIDs keep session listings in creation order without a
// central counter.
func NewSessionID() string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	return "sess-" + strings.ToLower(id.String())
}
