package service

import (
	"crypto/rand"
	"encoding/base32"
	"strings"

	"github.com/oklog/ulid/v2"
)

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewToken returns an opaque invitation token: a ULID, which keeps tokens
// roughly ordered by creation time, followed by 80 random bits.
func NewToken() (string, error) {
	suffix := make([]byte, 10)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	return strings.ToLower(ulid.Make().String() + tokenEncoding.EncodeToString(suffix)), nil
}
