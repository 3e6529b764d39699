package ws

import (
	"crypto/rand"
	"encoding/hex"
)

// newConnID returns a random 32-hex-char connection id, empty on entropy failure.
func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
