// Package security implements the manager's two optional protections
// over a worker connection (spec §4.1, §4.10, §1 Non-goals): a
// shared-password challenge that never puts the password on the wire,
// and an optional TLS wrap applied immediately after accept.
//
// Grounded on the challenge contract described in
// _examples/original_source/dttools/src/link_auth.h
// ("authenticate a link based on the contents of a shared password,
// without sending it in the clear") — only the header survived
// retrieval, so the wire shape here (random nonce, HMAC-SHA256 over
// it) is this port's own construction of that contract rather than a
// transcription of the original bytes.
package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// NonceSize is the length of the random challenge the manager sends.
const NonceSize = 32

// NewNonce generates a fresh random challenge.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// Respond computes a worker's answer to a manager-issued nonce: an
// HMAC-SHA256 of the nonce keyed by the shared password, hex-encoded
// for transmission as a single wire line.
func Respond(password string, nonce []byte) string {
	mac := hmac.New(sha256.New, []byte(password))
	mac.Write(nonce)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a worker's response against what the manager expects
// for the nonce it issued, in constant time.
func Verify(password string, nonce []byte, response string) bool {
	want := Respond(password, nonce)
	return subtle.ConstantTimeCompare([]byte(want), []byte(response)) == 1
}
