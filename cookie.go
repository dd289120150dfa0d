package tokenguard

import (
	"net/http"
	"time"
)

// RefreshCookie returns the hardened cookie that transports a refresh token
// to the browser: HttpOnly, scoped to the refresh path, with Secure and
// SameSite taken from the security configuration.
func (m *Manager) RefreshCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     "refresh_token",
		Value:    value,
		Path:     m.config.Security.RefreshCookiePath,
		MaxAge:   int(m.config.JWT.RefreshTTL / time.Second),
		HttpOnly: true,
		Secure:   m.config.Security.RequireSecureCookies,
		SameSite: m.config.Security.SameSitePolicy,
	}
}

// ClearRefreshCookie returns a cookie that deletes the refresh token on the
// client. Attributes must match the issuing cookie or browsers ignore it.
func (m *Manager) ClearRefreshCookie() *http.Cookie {
	return &http.Cookie{
		Name:     "refresh_token",
		Value:    "",
		Path:     m.config.Security.RefreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.config.Security.RequireSecureCookies,
		SameSite: m.config.Security.SameSitePolicy,
	}
}
