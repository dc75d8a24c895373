package hub

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// connectionHandleBytes is the number of CSPRNG bytes backing a
// connection handle. Handles share the session ID's shape but are a
// distinct namespace: a handle identifies one hub channel, not a session.
const connectionHandleBytes = 16

// newConnectionHandle mints a connection handle: a CSPRNG-derived,
// base64url token with no padding, matching the registry's session ID
// shape.
func newConnectionHandle() (string, error) {
	buf := make([]byte, connectionHandleBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate connection handle: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
