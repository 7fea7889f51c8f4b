package crypto

import (
	"github.com/google/uuid"
)

// NewKeyID generates a time-ordered UUID v7 used as the key id (kid) of a
// freshly generated key file.
func NewKeyID() string {
	return uuid.Must(uuid.NewV7()).String()
}
