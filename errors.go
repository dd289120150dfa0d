package tokenguard

import (
	"errors"

	"github.com/deckfolio/tokenguard/storage"
	"github.com/deckfolio/tokenguard/token"
)

var (
	// ErrExpiredToken is returned when a token's exp claim has passed.
	ErrExpiredToken = token.ErrExpired
	// ErrInvalidSignature is returned when a token's signature does not verify.
	ErrInvalidSignature = token.ErrSignature
	// ErrMalformedToken is returned for tokens that are structurally invalid
	// or missing required claims.
	ErrMalformedToken = token.ErrMalformed
	// ErrEncodingFailed is returned when claims cannot be serialized and signed.
	ErrEncodingFailed = token.ErrEncoding
	// ErrStorageUnavailable is returned when the storage backend cannot be reached.
	ErrStorageUnavailable = storage.ErrUnavailable
	// ErrNotSupportedByBackend is returned when the configured backend does not
	// implement the requested storage operation.
	ErrNotSupportedByBackend = storage.ErrNotSupported

	// ErrTypeMismatch is returned when a token's type claim does not match the
	// type the caller expected.
	ErrTypeMismatch = errors.New("unexpected token type")
	// ErrRevoked is returned when a token's jti is blacklisted, or when the
	// blacklist cannot be checked (fail closed).
	ErrRevoked = errors.New("token has been revoked")
	// ErrRefreshNoLongerValid is returned when an access token references a
	// refresh token that has been revoked or expired.
	ErrRefreshNoLongerValid = errors.New("refresh token no longer valid")
	// ErrDeviceAuthorizationChanged is returned when the request fingerprint
	// matches neither the token's fingerprint nor any authorized device.
	ErrDeviceAuthorizationChanged = errors.New("device authorization changed")
	// ErrNotInitialized is returned when Manager operations are invoked before
	// Builder.Build has produced a usable instance.
	ErrNotInitialized = errors.New("token manager not initialized")
)
