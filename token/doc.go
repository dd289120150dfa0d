// Package token implements the signed token codec: claims in, compact JWT
// out, and back. Decode distinguishes expired, tampered, and malformed
// tokens as separate error kinds so callers never have to string-match.
package token
