package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleetops/internal/auth/models"
	"fleetops/pkg/domain"
	"fleetops/pkg/platform/sentinel"
)

// PostgresStore reads accounts and their role assignments from PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgreSQL-backed account store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const selectAccount = `
	SELECT u.id, u.email, u.first_name, u.last_name, u.password_hash, u.active,
	       COALESCE(u.location_id, ''), u.created_at,
	       COALESCE(array_agg(ur.role_name) FILTER (WHERE ur.role_name IS NOT NULL), '{}')
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id
`

// FindByID returns the account with its current roles.
func (s *PostgresStore) FindByID(ctx context.Context, id domain.AccountID) (*models.Account, error) {
	row := s.pool.QueryRow(ctx, selectAccount+` WHERE u.id = $1 GROUP BY u.id`, int64(id))
	acc, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("find account %s: %w", id, err)
	}
	return acc, nil
}

// FindByEmail returns the account registered under email, case-insensitively.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.pool.QueryRow(ctx, selectAccount+` WHERE lower(u.email) = lower($1) GROUP BY u.id`, normalizeEmail(email))
	acc, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return acc, nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		id        int64
		location  string
		createdAt time.Time
		roles     []string
		acc       models.Account
	)
	err := row.Scan(&id, &acc.Email, &acc.FirstName, &acc.LastName, &acc.PasswordHash,
		&acc.Active, &location, &createdAt, &roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	acc.ID = domain.AccountID(id)
	acc.LocationID = domain.LocationID(location)
	acc.CreatedAt = createdAt
	acc.Roles = make([]domain.Role, 0, len(roles))
	for _, r := range roles {
		acc.Roles = append(acc.Roles, domain.Role(r))
	}
	return &acc, nil
}
