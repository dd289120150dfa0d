package storage

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend transport failures. Callers performing
// blacklist checks must treat it as "revoked" (fail closed).
var ErrUnavailable = errors.New("token storage unavailable")

// ErrNotSupported is returned by backends that do not implement an
// operation, instead of silently succeeding.
var ErrNotSupported = errors.New("operation not supported by storage backend")

// RefreshTokenMetadata travels with each refresh-token record.
type RefreshTokenMetadata struct {
	CreatedAt time.Time
	ExpiresAt time.Time
	Valid     bool
}

// RefreshTokenRecord is one row in the refresh-token registry: one record
// per issued refresh token, keyed by jti.
type RefreshTokenRecord struct {
	JTI       string
	UserID    string
	DeviceFP  string
	ExpiresAt time.Time
	Metadata  RefreshTokenMetadata
}

// DeviceMetadata is the request context captured when a device was last seen.
type DeviceMetadata struct {
	IP        string
	UserAgent string
}

// DeviceRecord is an authorized device, unique per (UserID, DeviceFP),
// upserted on every issuance from that device.
type DeviceRecord struct {
	UserID    string
	DeviceFP  string
	ExpiresAt time.Time
	LastSeen  time.Time
	Metadata  DeviceMetadata
}

// Store is the token persistence contract. All operations are idempotent or
// safely retryable; implementations must be safe for concurrent use across
// goroutines and across service instances sharing the same backend.
//
// Exclusivity guarantees (jti uniqueness, the per-user refresh cap) live in
// the backend's atomic upsert/constraint semantics, not in process locks.
// For a given jti the backend must provide read-after-write: a blacklist
// write completed by one process is visible to IsBlacklisted everywhere.
type Store interface {
	// Blacklist records jti as revoked until ttl elapses.
	Blacklist(ctx context.Context, jti, userID string, ttl time.Duration) error

	// IsBlacklisted reports whether jti is revoked. On backend failure it
	// must return true alongside the error — never "not blacklisted".
	IsBlacklisted(ctx context.Context, jti string) (bool, error)

	// StoreRefreshToken persists a refresh token and, in the same logical
	// operation, prunes the user's oldest records beyond the configured cap.
	StoreRefreshToken(ctx context.Context, jti, userID, deviceFP string, ttl time.Duration, meta RefreshTokenMetadata) error

	// GetRefreshToken returns the live record for jti, or nil when no
	// unexpired record exists.
	GetRefreshToken(ctx context.Context, jti string) (*RefreshTokenRecord, error)

	// RevokeUserTokens blacklists all of the user's active refresh tokens and
	// deletes their refresh and device records.
	RevokeUserTokens(ctx context.Context, userID string) error

	// RevokeDevice is RevokeUserTokens scoped to one device fingerprint.
	RevokeDevice(ctx context.Context, userID, deviceFP string) error

	// GetUserDevices lists the user's unexpired authorized devices, most
	// recently seen first.
	GetUserDevices(ctx context.Context, userID string) ([]DeviceRecord, error)

	// TrackDevice upserts a device record, refreshing last_seen and
	// expires_at when the device already exists.
	TrackDevice(ctx context.Context, userID, deviceFP string, ttl time.Duration, meta DeviceMetadata) error

	// CleanupExpired deletes expired blacklist, refresh, and device rows.
	// Best effort: failures are reported but non-fatal to the host.
	CleanupExpired(ctx context.Context) error
}
