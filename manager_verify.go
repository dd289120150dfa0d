package tokenguard

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/deckfolio/tokenguard/internal"
	"github.com/deckfolio/tokenguard/storage"
	"github.com/deckfolio/tokenguard/token"
)

// VerifyToken decodes and fully validates tokenStr: signature, validity
// window, issuer/audience, expected type, revocation, refresh liveness for
// linked access tokens, and device binding. It returns the decoded claims
// only when every check passes.
//
// Revocation is fail-closed: when the blacklist cannot be consulted, the
// token is treated as revoked.
func (m *Manager) VerifyToken(ctx context.Context, tokenStr, expectedType string) (*Claims, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	claims, err := m.verifyToken(ctx, tokenStr, expectedType)
	if m.metrics.LatencyEnabled() {
		m.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}
	return claims, err
}

func (m *Manager) verifyToken(ctx context.Context, tokenStr, expectedType string) (*Claims, error) {
	claims, err := m.codec.Decode(tokenStr)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			m.metricInc(MetricVerifyExpired)
		default:
			m.metricInc(MetricVerifyInvalid)
		}
		return nil, err
	}

	if expectedType != "" && claims.Type != expectedType {
		m.metricInc(MetricVerifyTypeMismatch)
		return nil, ErrTypeMismatch
	}

	var revoked bool
	err = m.withRetry(ctx, func(ctx context.Context) error {
		var checkErr error
		revoked, checkErr = m.store.IsBlacklisted(ctx, claims.ID)
		return checkErr
	})
	if err != nil {
		// Backend down. The contract says revoked wins over available.
		m.metricInc(MetricBlacklistFailClosed)
		m.metricInc(MetricVerifyRevoked)
		m.emitAudit(ctx, AuditEvent{
			EventType: "token.verify.fail_closed",
			UserID:    claims.UserID,
			JTI:       claims.ID,
			DeviceFP:  claims.DeviceFP,
			Success:   false,
			Error:     err.Error(),
		})
		return nil, ErrRevoked
	}
	if revoked {
		m.metricInc(MetricVerifyRevoked)
		m.emitAudit(ctx, AuditEvent{
			EventType: "token.verify.revoked",
			UserID:    claims.UserID,
			JTI:       claims.ID,
			Success:   false,
			Error:     ErrRevoked.Error(),
		})
		return nil, ErrRevoked
	}

	if claims.Type == token.TypeAccess && claims.RefreshJTI != "" {
		var record *storage.RefreshTokenRecord
		err := m.withRetry(ctx, func(ctx context.Context) error {
			var getErr error
			record, getErr = m.store.GetRefreshToken(ctx, claims.RefreshJTI)
			return getErr
		})
		switch {
		case errors.Is(err, storage.ErrNotSupported):
			// Backend has no refresh registry to consult.
		case err != nil, record == nil:
			m.metricInc(MetricRefreshLinkInvalid)
			return nil, ErrRefreshNoLongerValid
		}
	}

	if err := m.checkDeviceBinding(ctx, claims); err != nil {
		return nil, err
	}

	m.metricInc(MetricVerifySuccess)
	return claims, nil
}

// checkDeviceBinding compares the current request fingerprint against the
// token's. On mismatch the request is still allowed when the current
// fingerprint belongs to one of the user's authorized devices; otherwise
// the token is rejected.
func (m *Manager) checkDeviceBinding(ctx context.Context, claims *Claims) error {
	ip := clientIPFromContext(ctx)
	userAgent := userAgentFromContext(ctx)
	if ip == "" && userAgent == "" {
		// No request context: nothing to bind against. Server-to-server
		// verification paths land here.
		return nil
	}
	if ip == "" {
		ip = "unknown"
	}

	currentFP := internal.Fingerprint(userAgent, ip)
	if currentFP == claims.DeviceFP {
		return nil
	}

	m.metricInc(MetricDeviceMismatch)

	var devices []storage.DeviceRecord
	err := m.withRetry(ctx, func(ctx context.Context) error {
		var listErr error
		devices, listErr = m.store.GetUserDevices(ctx, claims.UserID)
		return listErr
	})
	if err == nil {
		for _, d := range devices {
			if d.DeviceFP == currentFP {
				m.emitAudit(ctx, AuditEvent{
					EventType: "token.verify.device_switch",
					UserID:    claims.UserID,
					JTI:       claims.ID,
					DeviceFP:  currentFP,
					Success:   true,
				})
				// The device switched, so the address necessarily did too.
				// Record how far it moved.
				m.checkIPDrift(ctx, claims, ip)
				return nil
			}
		}
	}

	m.metricInc(MetricDeviceRejected)
	m.emitAudit(ctx, AuditEvent{
		EventType: "token.verify.device_rejected",
		UserID:    claims.UserID,
		JTI:       claims.ID,
		DeviceFP:  currentFP,
		Success:   false,
		Error:     ErrDeviceAuthorizationChanged.Error(),
	})
	return ErrDeviceAuthorizationChanged
}

// checkIPDrift reports IP changes outside the tolerated subnet. Observation
// only: a drifted IP is audited, never rejected, because mobile and NAT'd
// clients change addresses constantly.
func (m *Manager) checkIPDrift(ctx context.Context, claims *Claims, currentIP string) {
	if !m.config.Device.IPValidationEnabled {
		return
	}
	if claims.ClientIP == "" || currentIP == claims.ClientIP {
		return
	}
	if ipChangeAllowed(claims.ClientIP, currentIP) {
		return
	}

	m.emitAudit(ctx, AuditEvent{
		EventType: "token.verify.ip_drift",
		UserID:    claims.UserID,
		JTI:       claims.ID,
		IP:        currentIP,
		Success:   true,
		Metadata:  map[string]string{"token_ip": claims.ClientIP},
	})
}

// ipChangeAllowed reports whether two addresses fall in the same tolerated
// subnet: /24 for IPv4, /64 for IPv6.
func ipChangeAllowed(oldIP, newIP string) bool {
	a, errA := netip.ParseAddr(oldIP)
	b, errB := netip.ParseAddr(newIP)
	if errA != nil || errB != nil {
		return false
	}
	if a.Is4() != b.Is4() {
		return false
	}

	bits := 64
	if a.Is4() {
		bits = 24
	}

	prefixA, err := a.Prefix(bits)
	if err != nil {
		return false
	}
	return prefixA.Contains(b)
}
