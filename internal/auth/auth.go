// Package auth provides payload signing for the wire protocol.
//
// Signatures are HMAC-SHA256 over the exact encoded payload bytes,
// keyed by a shared secret. Envelope metadata is never covered, so
// sign and verify stay symmetric on both sides of the wire.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
)

var ErrUnauthorized = errors.New("auth: signature missing or invalid")

// Sign computes the MAC for payload under secret.
func Sign(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Verify recomputes the MAC and compares in constant time.
func Verify(payload, sig []byte, secret string) error {
	if len(sig) == 0 {
		return ErrUnauthorized
	}
	if !hmac.Equal(sig, Sign(payload, secret)) {
		return ErrUnauthorized
	}
	return nil
}

// Required reports whether a local secret mandates verification.
func Required(secret string) bool {
	return secret != ""
}
