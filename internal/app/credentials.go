package app

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// joinCodeAlphabet avoids characters that read ambiguously when typed from
// a projected screen (0/O, 1/I/L).
const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewJoinCode generates a short human-typeable session code.
func NewJoinCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf), nil
}

// NewAccessCode generates the opaque bearer secret a participant stores to
// resume a session. 128 bits from crypto/rand; treated as a secret and
// never logged.
func NewAccessCode() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// credentialEqual compares access codes in constant time.
func credentialEqual(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
