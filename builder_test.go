package tokenguard

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuildWithExplicitStore(t *testing.T) {
	manager, err := New().
		WithConfig(testConfig()).
		WithStore(newFakeStore()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer manager.Close()

	if err := manager.ready(); err != nil {
		t.Fatalf("built manager should be ready: %v", err)
	}
}

func TestBuildRejectsSecondUse(t *testing.T) {
	builder := New().
		WithConfig(testConfig()).
		WithStore(newFakeStore())

	manager, err := builder.Build()
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	defer manager.Close()

	if _, err := builder.Build(); err == nil {
		t.Fatal("second Build must fail")
	}
}

func TestBuildPostgresBackendRequiresDB(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = BackendPostgres

	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected error without database handle")
	}
}

func TestBuildRedisBackendRequiresClient(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = BackendRedis

	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected error without redis client")
	}
}

func TestBuildRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()

	cfg := testConfig()
	cfg.Storage.Backend = BackendRedis

	manager, err := New().
		WithConfig(cfg).
		WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()})).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer manager.Close()

	pair, err := manager.IssueTokenPair(requestContext("203.0.113.10", "Mozilla/5.0"), testUser)
	if err != nil {
		t.Fatalf("redis-backed issuance failed: %v", err)
	}
	if pair.AccessToken == "" {
		t.Fatal("expected access token")
	}
}

func TestBuildAuditSinkSurvivesLaterConfig(t *testing.T) {
	sink := NewChannelSink(16)

	// WithConfig after WithAuditSink must not disable auditing.
	manager, err := New().
		WithAuditSink(sink).
		WithConfig(testConfig()).
		WithStore(newFakeStore()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer manager.Close()

	if _, err := manager.IssueTokenPair(requestContext("203.0.113.10", "Mozilla/5.0"), testUser); err != nil {
		t.Fatalf("IssueTokenPair failed: %v", err)
	}

	select {
	case <-sink.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit events despite sink being set before config")
	}
}

func TestBuildGeneratesEphemeralSecretOutsideProduction(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Secret = nil

	manager, err := New().
		WithConfig(cfg).
		WithStore(newFakeStore()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer manager.Close()

	// Tokens issue and verify against the generated secret.
	ctx := requestContext("203.0.113.10", "Mozilla/5.0")
	pair, err := manager.IssueTokenPair(ctx, testUser)
	if err != nil {
		t.Fatalf("IssueTokenPair failed: %v", err)
	}
	if _, err := manager.VerifyToken(ctx, pair.AccessToken, "access"); err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
}

func TestBuildRequiresSecretInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Secret = nil
	cfg.Security.ProductionMode = true

	if _, err := New().WithConfig(cfg).WithStore(newFakeStore()).Build(); err == nil {
		t.Fatal("production build without secret must fail")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.SigningMethod = "none"

	if _, err := New().WithConfig(cfg).WithStore(newFakeStore()).Build(); err == nil {
		t.Fatal("expected validation error")
	}
}
