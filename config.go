package tokenguard

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config defines a public type used by tokenguard APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT      JWTConfig
	Storage  StorageConfig
	Device   DeviceConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Security SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by tokenguard APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default), "hs384", "hs512"
	Secret        []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageBackend selects which Store implementation the Builder constructs
// when no explicit store is supplied.
type StorageBackend string

const (
	// BackendPostgres is an exported constant or variable used by the token lifecycle manager.
	BackendPostgres StorageBackend = "postgresql"
	// BackendRedis is an exported constant or variable used by the token lifecycle manager.
	BackendRedis StorageBackend = "redis"
)

// StorageConfig defines a public type used by tokenguard APIs.
//
// StorageConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StorageConfig struct {
	Backend                 StorageBackend
	RedisPrefix             string
	MaxRefreshTokensPerUser int
	OpTimeout               time.Duration
	MaxRetries              int
}

// DeviceConfig defines a public type used by tokenguard APIs.
//
// DeviceConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type DeviceConfig struct {
	IPValidationEnabled bool
}

// AuditConfig defines a public type used by tokenguard APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by tokenguard APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines a public type used by tokenguard APIs.
//
// SecurityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	ProductionMode       bool
	RefreshCookiePath    string
	RequireSecureCookies bool
	SameSitePolicy       http.SameSite
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "deckfolio",
			Audience:      "deckfolio-api",
		},
		Storage: StorageConfig{
			Backend:                 BackendPostgres,
			RedisPrefix:             "tg",
			MaxRefreshTokensPerUser: 5,
			OpTimeout:               3 * time.Second,
			MaxRetries:              3,
		},
		Device: DeviceConfig{
			IPValidationEnabled: false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode:       false,
			RefreshCookiePath:    "/auth-api/refresh",
			RequireSecureCookies: true,
			SameSitePolicy:       http.SameSiteStrictMode,
		},
	}
}

// ConfigFromEnv returns the default configuration overridden by the
// recognized environment variables: JWT_SECRET_KEY, JWT_ALGORITHM,
// JWT_ACCESS_TTL, JWT_REFRESH_TTL (seconds), JWT_ISSUER, JWT_AUDIENCE,
// TOKEN_STORAGE_BACKEND, MAX_REFRESH_TOKENS, ENABLE_IP_VALIDATION.
func ConfigFromEnv() Config {
	cfg := defaultConfig()

	if v := os.Getenv("JWT_SECRET_KEY"); v != "" {
		cfg.JWT.Secret = []byte(v)
	}
	if v := os.Getenv("JWT_ALGORITHM"); v != "" {
		cfg.JWT.SigningMethod = strings.ToLower(v)
	}
	if v := envSeconds("JWT_ACCESS_TTL"); v > 0 {
		cfg.JWT.AccessTTL = v
	}
	if v := envSeconds("JWT_REFRESH_TTL"); v > 0 {
		cfg.JWT.RefreshTTL = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWT.Issuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWT.Audience = v
	}
	if v := os.Getenv("TOKEN_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = StorageBackend(strings.ToLower(v))
	}
	if v, err := strconv.Atoi(os.Getenv("MAX_REFRESH_TOKENS")); err == nil && v > 0 {
		cfg.Storage.MaxRefreshTokensPerUser = v
	}
	if strings.EqualFold(os.Getenv("ENABLE_IP_VALIDATION"), "true") {
		cfg.Device.IPValidationEnabled = true
	}

	return cfg
}

func envSeconds(name string) time.Duration {
	v, err := strconv.Atoi(os.Getenv(name))
	if err != nil || v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Second
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256", "hs384", "hs512":
		// valid
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Issuer == "" {
		return errors.New("JWT Issuer is required")
	}
	if c.JWT.Audience == "" {
		return errors.New("JWT Audience is required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Storage
	switch c.Storage.Backend {
	case BackendPostgres, BackendRedis:
		// valid
	default:
		return errors.New("unsupported storage backend")
	}
	if c.Storage.MaxRefreshTokensPerUser <= 0 {
		return errors.New("Storage MaxRefreshTokensPerUser must be > 0")
	}
	if c.Storage.OpTimeout <= 0 {
		return errors.New("Storage OpTimeout must be > 0")
	}
	if c.Storage.MaxRetries <= 0 {
		return errors.New("Storage MaxRetries must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Security
	if c.Security.RefreshCookiePath == "" {
		return errors.New("RefreshCookiePath is required")
	}
	if c.Security.ProductionMode {
		if len(c.JWT.Secret) == 0 {
			return errors.New("ProductionMode requires JWT Secret")
		}
		if len(c.JWT.Secret) < 32 {
			return errors.New("ProductionMode requires JWT Secret length >= 256 bits")
		}
		if c.JWT.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires JWT AccessTTL <= 15m")
		}
		if c.JWT.RefreshTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires JWT RefreshTTL <= 30d")
		}
		if !c.Security.RequireSecureCookies {
			return errors.New("ProductionMode requires secure cookies")
		}
	}

	return nil
}
