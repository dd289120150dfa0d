package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New err: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewPostgresStore(db, 5)
	if err != nil {
		t.Fatalf("NewPostgresStore err: %v", err)
	}
	return store, mock
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNewPostgresStoreRejectsNilDB(t *testing.T) {
	if _, err := NewPostgresStore(nil, 5); err == nil {
		t.Fatal("expected error for nil database handle")
	}
}

func TestPostgresBlacklist(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT INTO token_blacklist`).
		WithArgs("jti-1", "user-1", int64(3600)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Blacklist(context.Background(), "jti-1", "user-1", time.Hour); err != nil {
		t.Fatalf("Blacklist error: %v", err)
	}
	expectMet(t, mock)
}

func TestPostgresBlacklistUnavailable(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT INTO token_blacklist`).
		WithArgs("jti-1", "user-1", int64(3600)).
		WillReturnError(errors.New("connection refused"))

	err := store.Blacklist(context.Background(), "jti-1", "user-1", time.Hour)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	expectMet(t, mock)
}

func TestPostgresIsBlacklisted(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`SELECT 1 FROM token_blacklist`).
		WithArgs("jti-hit").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	revoked, err := store.IsBlacklisted(context.Background(), "jti-hit")
	if err != nil {
		t.Fatalf("IsBlacklisted error: %v", err)
	}
	if !revoked {
		t.Fatal("expected revoked for matching row")
	}
	expectMet(t, mock)
}

func TestPostgresIsBlacklistedMiss(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`SELECT 1 FROM token_blacklist`).
		WithArgs("jti-miss").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	revoked, err := store.IsBlacklisted(context.Background(), "jti-miss")
	if err != nil {
		t.Fatalf("IsBlacklisted error: %v", err)
	}
	if revoked {
		t.Fatal("no row should mean not revoked")
	}
	expectMet(t, mock)
}

func TestPostgresIsBlacklistedFailsClosed(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`SELECT 1 FROM token_blacklist`).
		WithArgs("jti-down").
		WillReturnError(errors.New("connection refused"))

	revoked, err := store.IsBlacklisted(context.Background(), "jti-down")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !revoked {
		t.Fatal("backend failure must report revoked")
	}
	expectMet(t, mock)
}

func TestPostgresStoreRefreshToken(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs("jti-1", "user-1", "fp-1", int64(86400), sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM refresh_tokens`).
		WithArgs("user-1", 5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	meta := RefreshTokenMetadata{CreatedAt: time.Now(), Valid: true}
	if err := store.StoreRefreshToken(context.Background(), "jti-1", "user-1", "fp-1", 24*time.Hour, meta); err != nil {
		t.Fatalf("StoreRefreshToken error: %v", err)
	}
	expectMet(t, mock)
}

func TestPostgresStoreRefreshTokenRollsBackOnPruneFailure(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs("jti-1", "user-1", "fp-1", int64(86400), sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM refresh_tokens`).
		WithArgs("user-1", 5).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	meta := RefreshTokenMetadata{CreatedAt: time.Now(), Valid: true}
	err := store.StoreRefreshToken(context.Background(), "jti-1", "user-1", "fp-1", 24*time.Hour, meta)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	expectMet(t, mock)
}

func TestPostgresGetRefreshToken(t *testing.T) {
	store, mock := newStoreWithMock(t)

	created := time.Now().Add(-time.Hour)
	expires := time.Now().Add(23 * time.Hour)
	rows := sqlmock.NewRows([]string{"jti", "user_id", "device_fp", "expires_at", "created_at", "valid"}).
		AddRow("jti-1", "user-1", "fp-1", expires, created, true)

	mock.ExpectQuery(`SELECT jti, user_id, device_fp, expires_at, created_at, valid`).
		WithArgs("jti-1").
		WillReturnRows(rows)

	rec, err := store.GetRefreshToken(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("GetRefreshToken error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record")
	}
	if rec.JTI != "jti-1" || rec.UserID != "user-1" || rec.DeviceFP != "fp-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.Metadata.Valid {
		t.Fatal("expected valid metadata")
	}
	if !rec.Metadata.ExpiresAt.Equal(rec.ExpiresAt) {
		t.Fatal("metadata expiry should mirror record expiry")
	}
	expectMet(t, mock)
}

func TestPostgresGetRefreshTokenAbsent(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`SELECT jti, user_id, device_fp, expires_at, created_at, valid`).
		WithArgs("jti-gone").
		WillReturnRows(sqlmock.NewRows([]string{"jti", "user_id", "device_fp", "expires_at", "created_at", "valid"}))

	rec, err := store.GetRefreshToken(context.Background(), "jti-gone")
	if err != nil {
		t.Fatalf("GetRefreshToken error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
	expectMet(t, mock)
}

func TestPostgresRevokeUserTokens(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO token_blacklist`).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE user_id`).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM user_devices WHERE user_id`).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := store.RevokeUserTokens(context.Background(), "user-1"); err != nil {
		t.Fatalf("RevokeUserTokens error: %v", err)
	}
	expectMet(t, mock)
}

func TestPostgresRevokeUserTokensRollsBack(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO token_blacklist`).
		WithArgs("user-1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.RevokeUserTokens(context.Background(), "user-1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	expectMet(t, mock)
}

func TestPostgresRevokeDevice(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO token_blacklist`).
		WithArgs("user-1", "fp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE user_id`).
		WithArgs("user-1", "fp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM user_devices WHERE user_id`).
		WithArgs("user-1", "fp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.RevokeDevice(context.Background(), "user-1", "fp-1"); err != nil {
		t.Fatalf("RevokeDevice error: %v", err)
	}
	expectMet(t, mock)
}

func TestPostgresGetUserDevices(t *testing.T) {
	store, mock := newStoreWithMock(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"user_id", "device_fp", "expires_at", "last_seen", "ip", "user_agent"}).
		AddRow("user-1", "fp-new", now.Add(time.Hour), now, "203.0.113.10", "Mozilla/5.0").
		AddRow("user-1", "fp-old", now.Add(time.Hour), now.Add(-time.Hour), "203.0.113.11", "curl/8.0")

	mock.ExpectQuery(`SELECT user_id, device_fp, expires_at, last_seen, ip, user_agent`).
		WithArgs("user-1").
		WillReturnRows(rows)

	devices, err := store.GetUserDevices(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetUserDevices error: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	if devices[0].DeviceFP != "fp-new" {
		t.Fatalf("expected most recent device first, got %q", devices[0].DeviceFP)
	}
	if devices[0].Metadata.IP != "203.0.113.10" || devices[0].Metadata.UserAgent != "Mozilla/5.0" {
		t.Fatalf("unexpected metadata: %+v", devices[0].Metadata)
	}
	expectMet(t, mock)
}

func TestPostgresTrackDevice(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT INTO user_devices`).
		WithArgs("user-1", "fp-1", int64(86400), "203.0.113.10", "Mozilla/5.0").
		WillReturnResult(sqlmock.NewResult(0, 1))

	meta := DeviceMetadata{IP: "203.0.113.10", UserAgent: "Mozilla/5.0"}
	if err := store.TrackDevice(context.Background(), "user-1", "fp-1", 24*time.Hour, meta); err != nil {
		t.Fatalf("TrackDevice error: %v", err)
	}
	expectMet(t, mock)
}

func TestPostgresCleanupExpired(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`DELETE FROM token_blacklist`).WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec(`DELETE FROM refresh_tokens`).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM user_devices`).WillReturnResult(sqlmock.NewResult(0, 2))

	if err := store.CleanupExpired(context.Background()); err != nil {
		t.Fatalf("CleanupExpired error: %v", err)
	}
	expectMet(t, mock)
}

func TestPostgresCleanupExpiredPropagatesFailure(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`DELETE FROM token_blacklist`).WillReturnError(errors.New("timeout"))

	err := store.CleanupExpired(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	expectMet(t, mock)
}
