package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives the opaque device identifier from request metadata.
// It is a pure function: identical inputs always hash to the same value,
// which lets the lifecycle manager compare a token's embedded fingerprint
// against a freshly computed one without any stored per-device secret.
func Fingerprint(userAgent, clientIP string) string {
	sum := sha256.Sum256([]byte(userAgent + "|" + clientIP))
	return hex.EncodeToString(sum[:])
}
