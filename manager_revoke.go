package tokenguard

import (
	"context"
	"fmt"
	"time"
)

// BlacklistToken revokes a single token by jti until its natural expiry at
// expiresAt. Idempotent: blacklisting an already-revoked jti succeeds.
func (m *Manager) BlacklistToken(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	if err := m.ready(); err != nil {
		return err
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already expired. Nothing to revoke.
		return nil
	}

	err := m.withRetry(ctx, func(ctx context.Context) error {
		return m.store.Blacklist(ctx, jti, userID, ttl)
	})
	if err != nil {
		m.emitAudit(ctx, AuditEvent{
			EventType: "token.revoke.blacklist",
			UserID:    userID,
			JTI:       jti,
			Success:   false,
			Error:     err.Error(),
		})
		return fmt.Errorf("blacklist token: %w", err)
	}

	m.metricInc(MetricTokenBlacklisted)
	m.emitAudit(ctx, AuditEvent{
		EventType: "token.revoke.blacklist",
		UserID:    userID,
		JTI:       jti,
		Success:   true,
	})
	return nil
}

// RevokeUserTokens blacklists every active refresh token the user holds and
// clears their refresh and device registrations. Outstanding access tokens
// linked to those refresh tokens fail verification immediately.
func (m *Manager) RevokeUserTokens(ctx context.Context, userID string) error {
	if err := m.ready(); err != nil {
		return err
	}

	err := m.withRetry(ctx, func(ctx context.Context) error {
		return m.store.RevokeUserTokens(ctx, userID)
	})
	if err != nil {
		m.emitAudit(ctx, AuditEvent{
			EventType: "token.revoke.user",
			UserID:    userID,
			Success:   false,
			Error:     err.Error(),
		})
		return fmt.Errorf("revoke user tokens: %w", err)
	}

	m.metricInc(MetricUserRevoked)
	m.emitAudit(ctx, AuditEvent{
		EventType: "token.revoke.user",
		UserID:    userID,
		Success:   true,
	})
	return nil
}

// RevokeDevice is [Manager.RevokeUserTokens] scoped to one device
// fingerprint: only tokens issued from that device are blacklisted, and
// only that device registration is removed.
func (m *Manager) RevokeDevice(ctx context.Context, userID, deviceFP string) error {
	if err := m.ready(); err != nil {
		return err
	}

	err := m.withRetry(ctx, func(ctx context.Context) error {
		return m.store.RevokeDevice(ctx, userID, deviceFP)
	})
	if err != nil {
		m.emitAudit(ctx, AuditEvent{
			EventType: "token.revoke.device",
			UserID:    userID,
			DeviceFP:  deviceFP,
			Success:   false,
			Error:     err.Error(),
		})
		return fmt.Errorf("revoke device: %w", err)
	}

	m.metricInc(MetricDeviceRevoked)
	m.emitAudit(ctx, AuditEvent{
		EventType: "token.revoke.device",
		UserID:    userID,
		DeviceFP:  deviceFP,
		Success:   true,
	})
	return nil
}

// GetUserDevices lists the user's authorized devices, most recently seen
// first.
func (m *Manager) GetUserDevices(ctx context.Context, userID string) ([]DeviceRecord, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}

	var devices []DeviceRecord
	err := m.withRetry(ctx, func(ctx context.Context) error {
		var opErr error
		devices, opErr = m.store.GetUserDevices(ctx, userID)
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("get user devices: %w", err)
	}
	return devices, nil
}

// CleanupExpiredTokens removes expired blacklist entries, refresh tokens,
// and device registrations. Intended to run on a periodic schedule; the
// system stays correct without it because every read filters on expiry.
func (m *Manager) CleanupExpiredTokens(ctx context.Context) error {
	if err := m.ready(); err != nil {
		return err
	}

	err := m.withRetry(ctx, func(ctx context.Context) error {
		return m.store.CleanupExpired(ctx)
	})
	if err != nil {
		m.metricInc(MetricCleanupFailure)
		return fmt.Errorf("cleanup expired tokens: %w", err)
	}

	m.metricInc(MetricCleanupSuccess)
	return nil
}
