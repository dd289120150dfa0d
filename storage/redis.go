package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the key-value [Store] backend. The blacklist is TTL-native
// and fully implemented; this backend is optional and does not support the
// refresh-token registry or device registry, whose count-capped eviction
// does not map onto its semantics. Those operations return
// [ErrNotSupported] rather than silently succeeding.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore wraps client as a partial token store. prefix namespaces
// the blacklist keys; empty defaults to "tg".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tg"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) blacklistKey(jti string) string {
	return s.prefix + ":bl:" + jti
}

// Blacklist stores the revocation with a native TTL; Redis expires the
// entry once the token would have died anyway.
func (s *RedisStore) Blacklist(ctx context.Context, jti, userID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.blacklistKey(jti), userID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: blacklist: %v", ErrUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether jti is revoked, failing closed when Redis
// is unreachable.
func (s *RedisStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.blacklistKey(jti)).Result()
	if err != nil {
		return true, fmt.Errorf("%w: blacklist check: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// StoreRefreshToken is not supported by the key-value backend.
func (s *RedisStore) StoreRefreshToken(ctx context.Context, jti, userID, deviceFP string, ttl time.Duration, meta RefreshTokenMetadata) error {
	return fmt.Errorf("%w: StoreRefreshToken", ErrNotSupported)
}

// GetRefreshToken is not supported by the key-value backend.
func (s *RedisStore) GetRefreshToken(ctx context.Context, jti string) (*RefreshTokenRecord, error) {
	return nil, fmt.Errorf("%w: GetRefreshToken", ErrNotSupported)
}

// RevokeUserTokens is not supported by the key-value backend.
func (s *RedisStore) RevokeUserTokens(ctx context.Context, userID string) error {
	return fmt.Errorf("%w: RevokeUserTokens", ErrNotSupported)
}

// RevokeDevice is not supported by the key-value backend.
func (s *RedisStore) RevokeDevice(ctx context.Context, userID, deviceFP string) error {
	return fmt.Errorf("%w: RevokeDevice", ErrNotSupported)
}

// GetUserDevices is not supported by the key-value backend.
func (s *RedisStore) GetUserDevices(ctx context.Context, userID string) ([]DeviceRecord, error) {
	return nil, fmt.Errorf("%w: GetUserDevices", ErrNotSupported)
}

// TrackDevice is not supported by the key-value backend.
func (s *RedisStore) TrackDevice(ctx context.Context, userID, deviceFP string, ttl time.Duration, meta DeviceMetadata) error {
	return fmt.Errorf("%w: TrackDevice", ErrNotSupported)
}

// CleanupExpired is a no-op for Redis: entries expire via their TTL.
func (s *RedisStore) CleanupExpired(ctx context.Context) error {
	return nil
}
