package tokenguard

import (
	"github.com/deckfolio/tokenguard/storage"
	"github.com/deckfolio/tokenguard/token"
)

// UserData carries the identity attributes embedded into issued tokens.
// The caller authenticates the user; tokenguard only encodes what it is
// given.
type UserData struct {
	ID    string
	Email string
	Role  string
}

// TokenPair is returned by [Manager.IssueTokenPair]. The access token's
// refresh_jti claim references RefreshJTI, binding the pair for
// verification-time liveness checks.
type TokenPair struct {
	AccessToken  string
	AccessJTI    string
	RefreshToken string
	RefreshJTI   string
}

// Claims is the decoded payload of a verified token.
type Claims = token.Claims

// Store is the persistence contract the Manager operates against.
//
// Implementations must honor the fail-closed blacklist contract: see
// [storage.Store].
type Store = storage.Store

// RefreshTokenRecord is a stored refresh token row.
type RefreshTokenRecord = storage.RefreshTokenRecord

// RefreshTokenMetadata is an exported type alias used by tokenguard APIs.
type RefreshTokenMetadata = storage.RefreshTokenMetadata

// DeviceRecord is a tracked device row.
type DeviceRecord = storage.DeviceRecord

// DeviceMetadata is an exported type alias used by tokenguard APIs.
type DeviceMetadata = storage.DeviceMetadata
