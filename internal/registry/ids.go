package registry

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// sessionIDBytes is the number of CSPRNG bytes backing a session ID:
// 128 bits of randomness.
const sessionIDBytes = 16

// newSessionID generates a session identifier: 16 bytes from a CSPRNG,
// base64url-encoded without padding (22 characters). Collision across a
// single process's lifetime is treated as impossible and unhandled.
func newSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
