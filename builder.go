package tokenguard

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/deckfolio/tokenguard/storage"
	"github.com/deckfolio/tokenguard/token"
)

// Builder defines a public type used by tokenguard APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	store Store
	db    *sql.DB
	redis redis.UniversalClient

	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore describes the withstore operation and its observable behavior.
//
// WithStore may return an error when input validation, dependency calls, or security checks fail.
// WithStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

// WithPostgres describes the withpostgres operation and its observable behavior.
//
// WithPostgres may return an error when input validation, dependency calls, or security checks fail.
// WithPostgres does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithPostgres(db *sql.DB) *Builder {
	b.db = db
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	// A supplied sink turns auditing on no matter when WithConfig was
	// called relative to WithAuditSink.
	if b.auditSink != nil {
		cfg.Audit.Enabled = true
	}

	if len(cfg.JWT.Secret) == 0 && !cfg.Security.ProductionMode {
		// Ephemeral secret for dev setups. Tokens do not survive restarts.
		secret := make([]byte, 64)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate ephemeral secret: %w", err)
		}
		cfg.JWT.Secret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		switch cfg.Storage.Backend {
		case BackendPostgres:
			if b.db == nil {
				return nil, errors.New("postgresql backend requires a database handle")
			}
			ps, err := storage.NewPostgresStore(b.db, cfg.Storage.MaxRefreshTokensPerUser)
			if err != nil {
				return nil, err
			}
			store = ps
		case BackendRedis:
			if b.redis == nil {
				return nil, errors.New("redis backend requires a redis client")
			}
			store = storage.NewRedisStore(b.redis, cfg.Storage.RedisPrefix)
		default:
			return nil, errors.New("unsupported storage backend")
		}
	}

	codec, err := token.NewCodec(token.Config{
		Secret:   cfg.JWT.Secret,
		Method:   token.Method(cfg.JWT.SigningMethod),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Leeway:   cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	b.built = true

	return &Manager{
		config:  cfg,
		store:   store,
		codec:   codec,
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}, nil
}
