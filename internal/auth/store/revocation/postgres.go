package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"fleetops/internal/auth/models"
	"fleetops/pkg/platform/sentinel"
)

// PostgresStore persists revoked credential hashes in PostgreSQL.
type PostgresStore struct {
	db    *sql.DB
	clock Clock // injected clock for testability (defaults to time.Now)
}

// PostgresOption configures a PostgresStore instance.
type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock Clock) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgresStore constructs a PostgreSQL-backed revocation store.
func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:    db,
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Record inserts a revocation entry. An existing live row is left untouched;
// a stale row for the same hash is replaced.
func (s *PostgresStore) Record(ctx context.Context, hash string, expiresAt time.Time) error {
	_, err := s.Claim(ctx, hash, expiresAt)
	return err
}

// Claim inserts the entry and reports whether a row was written. A live row
// for the same hash blocks the upsert, so RowsAffected is zero for the loser
// of a concurrent claim.
func (s *PostgresStore) Claim(ctx context.Context, hash string, expiresAt time.Time) (bool, error) {
	if err := validateHash(hash); err != nil {
		return false, err
	}
	now := s.clock()
	if _, ok := ttlUntil(now, expiresAt); !ok {
		return false, nil
	}
	query := `
		INSERT INTO token_revocations (token_hash, expires_at, revoked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			revoked_at = EXCLUDED.revoked_at
		WHERE token_revocations.expires_at <= EXCLUDED.revoked_at
	`
	res, err := s.db.ExecContext(ctx, query, hash, expiresAt.UTC(), now.UTC())
	if err != nil {
		return false, fmt.Errorf("record revocation: %w: %w", sentinel.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record revocation: %w", err)
	}
	return n == 1, nil
}

// IsRevoked reports whether a live row exists for hash.
func (s *PostgresStore) IsRevoked(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM token_revocations WHERE token_hash = $1`, hash).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check revocation: %w: %w", sentinel.ErrUnavailable, err)
	}
	if !s.clock().Before(expiresAt) {
		return false, nil
	}
	return true, nil
}

// RecordMany revokes several credentials, each with its own expiry, in one
// statement. Expiries travel as RFC 3339 text and are cast server-side.
func (s *PostgresStore) RecordMany(ctx context.Context, entries []models.RevocationEntry) error {
	now := s.clock()
	hashes := make([]string, 0, len(entries))
	expiries := make([]string, 0, len(entries))
	for _, e := range entries {
		if validateHash(e.Hash) != nil {
			continue
		}
		if _, ok := ttlUntil(now, e.ExpiresAt); !ok {
			continue
		}
		hashes = append(hashes, e.Hash)
		expiries = append(expiries, e.ExpiresAt.UTC().Format(time.RFC3339Nano))
	}
	if len(hashes) == 0 {
		return nil
	}

	query := `
		INSERT INTO token_revocations (token_hash, expires_at, revoked_at)
		SELECT t.token_hash, t.expires_at, $3::timestamptz
		FROM unnest($1::text[], $2::timestamptz[]) AS t(token_hash, expires_at)
		ON CONFLICT (token_hash) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			revoked_at = EXCLUDED.revoked_at
		WHERE token_revocations.expires_at <= EXCLUDED.revoked_at
	`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(hashes), pq.Array(expiries), now.UTC()); err != nil {
		return fmt.Errorf("record revocations batch: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// DeleteExpired purges rows that are inert as of now.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM token_revocations WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired revocations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired revocations: %w", err)
	}
	return int(n), nil
}
