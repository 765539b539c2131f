package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// SessionTokenBytes is the entropy of a session token before encoding.
const SessionTokenBytes = 32

// GenerateSessionToken returns an unguessable opaque token, base64url encoded.
func GenerateSessionToken() (string, error) {
	buf := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
