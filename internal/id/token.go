package id

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// MinTokenBytes keeps tokens at 256 bits of entropy or more.
const MinTokenBytes = 32

// RandomToken returns n cryptographically random bytes encoded as unpadded
// URL-safe base64. n below MinTokenBytes is raised to it.
func RandomToken(n int) (string, error) {
	if n < MinTokenBytes {
		n = MinTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
