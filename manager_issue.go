package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deckfolio/tokenguard/internal"
	"github.com/deckfolio/tokenguard/storage"
	"github.com/deckfolio/tokenguard/token"
)

// requestDevice captures the caller's device identity from ctx. A missing
// client IP is recorded as "unknown" so the fingerprint is still stable for
// callers that never supply one.
func requestDevice(ctx context.Context) (fp, ip, userAgent string) {
	ip = clientIPFromContext(ctx)
	if ip == "" {
		ip = "unknown"
	}
	userAgent = userAgentFromContext(ctx)
	return internal.Fingerprint(userAgent, ip), ip, userAgent
}

// CreateAccessToken issues a signed access token for user, bound to the
// device fingerprint computed from the context's client IP and User-Agent.
// refreshJTI links the token to the refresh token it was derived from; pass
// "" for a standalone access token.
//
// The device registry write happens before the token is returned. If it
// fails after retries, no token is issued.
func (m *Manager) CreateAccessToken(ctx context.Context, user UserData, refreshJTI string) (string, string, error) {
	if err := m.ready(); err != nil {
		return "", "", err
	}

	fp, ip, userAgent := requestDevice(ctx)
	jti := uuid.NewString()

	claims := m.codec.NewClaims(token.ClaimsParams{
		JTI:        jti,
		Type:       token.TypeAccess,
		UserID:     user.ID,
		Email:      user.Email,
		Role:       user.Role,
		DeviceFP:   fp,
		ClientIP:   ip,
		RefreshJTI: refreshJTI,
		TTL:        m.config.JWT.AccessTTL,
	})

	signed, err := m.codec.Encode(claims)
	if err != nil {
		m.metricInc(MetricIssueFailure)
		return "", "", err
	}

	err = m.withRetry(ctx, func(ctx context.Context) error {
		return m.store.TrackDevice(ctx, user.ID, fp, m.config.JWT.RefreshTTL, storage.DeviceMetadata{
			IP:        ip,
			UserAgent: userAgent,
		})
	})
	if errors.Is(err, storage.ErrNotSupported) {
		// Backend has no device registry. Issue without one.
		err = nil
	}
	if err != nil {
		m.metricInc(MetricIssueFailure)
		m.emitAudit(ctx, AuditEvent{
			EventType: "token.issue.access",
			UserID:    user.ID,
			JTI:       jti,
			DeviceFP:  fp,
			Success:   false,
			Error:     err.Error(),
		})
		return "", "", fmt.Errorf("track device: %w", err)
	}

	m.metricInc(MetricAccessIssued)
	m.emitAudit(ctx, AuditEvent{
		EventType: "token.issue.access",
		UserID:    user.ID,
		JTI:       jti,
		DeviceFP:  fp,
		Success:   true,
	})

	return signed, jti, nil
}

// CreateRefreshToken issues a signed refresh token for user and registers it
// in the refresh-token registry. Registration failure means no token.
func (m *Manager) CreateRefreshToken(ctx context.Context, user UserData) (string, string, error) {
	if err := m.ready(); err != nil {
		return "", "", err
	}

	fp, ip, _ := requestDevice(ctx)
	jti := uuid.NewString()
	now := time.Now()

	claims := m.codec.NewClaims(token.ClaimsParams{
		JTI:      jti,
		Type:     token.TypeRefresh,
		UserID:   user.ID,
		Email:    user.Email,
		Role:     user.Role,
		DeviceFP: fp,
		ClientIP: ip,
		TTL:      m.config.JWT.RefreshTTL,
	})

	signed, err := m.codec.Encode(claims)
	if err != nil {
		m.metricInc(MetricIssueFailure)
		return "", "", err
	}

	err = m.withRetry(ctx, func(ctx context.Context) error {
		return m.store.StoreRefreshToken(ctx, jti, user.ID, fp, m.config.JWT.RefreshTTL, storage.RefreshTokenMetadata{
			CreatedAt: now,
			ExpiresAt: now.Add(m.config.JWT.RefreshTTL),
			Valid:     true,
		})
	})
	if errors.Is(err, storage.ErrNotSupported) {
		// Backend has no refresh registry. The token still carries its
		// own expiry and remains individually revocable via the blacklist.
		err = nil
	}
	if err != nil {
		m.metricInc(MetricIssueFailure)
		m.emitAudit(ctx, AuditEvent{
			EventType: "token.issue.refresh",
			UserID:    user.ID,
			JTI:       jti,
			DeviceFP:  fp,
			Success:   false,
			Error:     err.Error(),
		})
		return "", "", fmt.Errorf("store refresh token: %w", err)
	}

	m.metricInc(MetricRefreshIssued)
	m.emitAudit(ctx, AuditEvent{
		EventType: "token.issue.refresh",
		UserID:    user.ID,
		JTI:       jti,
		DeviceFP:  fp,
		Success:   true,
	})

	return signed, jti, nil
}

// IssueTokenPair issues a refresh token and an access token linked to it via
// the refresh_jti claim. All-or-nothing: any storage failure means neither
// token reaches the caller.
func (m *Manager) IssueTokenPair(ctx context.Context, user UserData) (*TokenPair, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}

	refreshToken, refreshJTI, err := m.CreateRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}

	accessToken, accessJTI, err := m.CreateAccessToken(ctx, user, refreshJTI)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		AccessJTI:    accessJTI,
		RefreshToken: refreshToken,
		RefreshJTI:   refreshJTI,
	}, nil
}
