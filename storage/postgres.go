package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/deckfolio/tokenguard/storage/migrations"
)

// PostgresStore is the relational [Store] backend. Upserts rely on
// ON CONFLICT clauses so concurrent writers from any process converge, and
// the per-user refresh cap is enforced by an explicit upsert-then-prune pair
// inside one transaction. Under concurrent issuance for the same user the
// cap is approximately N, not a hard real-time bound.
type PostgresStore struct {
	db         *sql.DB
	maxPerUser int
}

// OpenPostgres opens a pgx-driven database handle for dsn. The caller owns
// the handle's lifecycle (pool sizing, Close at shutdown).
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return db, nil
}

// NewPostgresStore wraps db as a token store. maxRefreshPerUser bounds the
// refresh-token registry per user; values <= 0 fall back to 5.
func NewPostgresStore(db *sql.DB, maxRefreshPerUser int) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("nil database handle")
	}
	if maxRefreshPerUser <= 0 {
		maxRefreshPerUser = 5
	}
	return &PostgresStore{db: db, maxPerUser: maxRefreshPerUser}, nil
}

// RunMigrations applies the embedded schema migrations.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)

	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// Blacklist inserts jti into the blacklist. Re-blacklisting an already
// revoked jti is a no-op.
func (s *PostgresStore) Blacklist(ctx context.Context, jti, userID string, ttl time.Duration) error {
	query := `
		INSERT INTO token_blacklist (jti, user_id, expires_at)
		VALUES ($1, $2, NOW() + ($3 * INTERVAL '1 second'))
		ON CONFLICT (jti) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, jti, userID, int64(ttl/time.Second)); err != nil {
		return fmt.Errorf("%w: blacklist: %v", ErrUnavailable, err)
	}
	return nil
}

// IsBlacklisted checks jti against unexpired blacklist rows. A backend
// failure reports true so callers deny rather than accept an unknown token.
func (s *PostgresStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	query := `SELECT 1 FROM token_blacklist WHERE jti = $1 AND expires_at > NOW()`

	var one int
	err := s.db.QueryRowContext(ctx, query, jti).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return true, fmt.Errorf("%w: blacklist check: %v", ErrUnavailable, err)
	}
	return true, nil
}

// StoreRefreshToken upserts the record and prunes the user's oldest tokens
// beyond the cap in the same transaction.
func (s *PostgresStore) StoreRefreshToken(ctx context.Context, jti, userID, deviceFP string, ttl time.Duration, meta RefreshTokenMetadata) error {
	upsert := `
		INSERT INTO refresh_tokens (jti, user_id, device_fp, expires_at, created_at, valid)
		VALUES ($1, $2, $3, NOW() + ($4 * INTERVAL '1 second'), $5, $6)
		ON CONFLICT (jti) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			valid = EXCLUDED.valid
	`
	prune := `
		DELETE FROM refresh_tokens
		WHERE user_id = $1
		  AND jti NOT IN (
			SELECT jti FROM refresh_tokens
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		  )
	`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: store refresh token: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := tx.ExecContext(ctx, upsert, jti, userID, deviceFP, int64(ttl/time.Second), createdAt, meta.Valid); err != nil {
		return fmt.Errorf("%w: store refresh token: %v", ErrUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, prune, userID, s.maxPerUser); err != nil {
		return fmt.Errorf("%w: prune refresh tokens: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: store refresh token: %v", ErrUnavailable, err)
	}
	return nil
}

// GetRefreshToken returns the live record for jti, or nil when the token
// was never stored, was evicted, or has expired.
func (s *PostgresStore) GetRefreshToken(ctx context.Context, jti string) (*RefreshTokenRecord, error) {
	query := `
		SELECT jti, user_id, device_fp, expires_at, created_at, valid
		FROM refresh_tokens
		WHERE jti = $1 AND expires_at > NOW()
	`

	rec := &RefreshTokenRecord{}
	err := s.db.QueryRowContext(ctx, query, jti).Scan(
		&rec.JTI, &rec.UserID, &rec.DeviceFP, &rec.ExpiresAt,
		&rec.Metadata.CreatedAt, &rec.Metadata.Valid,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get refresh token: %v", ErrUnavailable, err)
	}
	rec.Metadata.ExpiresAt = rec.ExpiresAt

	return rec, nil
}

// RevokeUserTokens blacklists every active refresh token of the user, then
// deletes the user's refresh and device rows, all in one transaction.
func (s *PostgresStore) RevokeUserTokens(ctx context.Context, userID string) error {
	blacklist := `
		INSERT INTO token_blacklist (jti, user_id, expires_at)
		SELECT jti, user_id, expires_at
		FROM refresh_tokens
		WHERE user_id = $1 AND expires_at > NOW()
		ON CONFLICT (jti) DO NOTHING
	`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: revoke user tokens: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, blacklist, userID); err != nil {
		return fmt.Errorf("%w: revoke user tokens: %v", ErrUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("%w: revoke user tokens: %v", ErrUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_devices WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("%w: revoke user tokens: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: revoke user tokens: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeDevice blacklists the refresh tokens bound to one device and
// removes the device registration.
func (s *PostgresStore) RevokeDevice(ctx context.Context, userID, deviceFP string) error {
	blacklist := `
		INSERT INTO token_blacklist (jti, user_id, expires_at)
		SELECT jti, user_id, expires_at
		FROM refresh_tokens
		WHERE user_id = $1 AND device_fp = $2 AND expires_at > NOW()
		ON CONFLICT (jti) DO NOTHING
	`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: revoke device: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, blacklist, userID, deviceFP); err != nil {
		return fmt.Errorf("%w: revoke device: %v", ErrUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1 AND device_fp = $2`, userID, deviceFP); err != nil {
		return fmt.Errorf("%w: revoke device: %v", ErrUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_devices WHERE user_id = $1 AND device_fp = $2`, userID, deviceFP); err != nil {
		return fmt.Errorf("%w: revoke device: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: revoke device: %v", ErrUnavailable, err)
	}
	return nil
}

// GetUserDevices lists unexpired devices for the user, most recent first.
func (s *PostgresStore) GetUserDevices(ctx context.Context, userID string) ([]DeviceRecord, error) {
	query := `
		SELECT user_id, device_fp, expires_at, last_seen, ip, user_agent
		FROM user_devices
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY last_seen DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: get user devices: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	devices := []DeviceRecord{}
	for rows.Next() {
		var d DeviceRecord
		if err := rows.Scan(&d.UserID, &d.DeviceFP, &d.ExpiresAt, &d.LastSeen, &d.Metadata.IP, &d.Metadata.UserAgent); err != nil {
			return nil, fmt.Errorf("%w: get user devices: %v", ErrUnavailable, err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: get user devices: %v", ErrUnavailable, err)
	}

	return devices, nil
}

// TrackDevice upserts the (user, fingerprint) registration, refreshing
// expiry, request metadata, and last_seen on conflict.
func (s *PostgresStore) TrackDevice(ctx context.Context, userID, deviceFP string, ttl time.Duration, meta DeviceMetadata) error {
	query := `
		INSERT INTO user_devices (user_id, device_fp, expires_at, ip, user_agent, last_seen)
		VALUES ($1, $2, NOW() + ($3 * INTERVAL '1 second'), $4, $5, NOW())
		ON CONFLICT (user_id, device_fp) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			ip = EXCLUDED.ip,
			user_agent = EXCLUDED.user_agent,
			last_seen = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, userID, deviceFP, int64(ttl/time.Second), meta.IP, meta.UserAgent); err != nil {
		return fmt.Errorf("%w: track device: %v", ErrUnavailable, err)
	}
	return nil
}

// CleanupExpired deletes rows whose expiry has passed in all three tables.
func (s *PostgresStore) CleanupExpired(ctx context.Context) error {
	statements := []string{
		`DELETE FROM token_blacklist WHERE expires_at <= NOW()`,
		`DELETE FROM refresh_tokens WHERE expires_at <= NOW()`,
		`DELETE FROM user_devices WHERE expires_at <= NOW()`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: cleanup expired: %v", ErrUnavailable, err)
		}
	}
	return nil
}
