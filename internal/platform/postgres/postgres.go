// Package postgres opens the database handles used by the stores.
//
// The revocation store and migrations run on database/sql with lib/pq;
// the account store uses a pgx pool. Both point at the same DSN.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq" // registers the "postgres" driver

	"fleetops/internal/platform/config"
	"fleetops/migrations"
)

// Handles bundles the two connections to the same database.
type Handles struct {
	DB   *sql.DB
	Pool *pgxpool.Pool
}

// Open connects both handles, pings them and applies pending migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Handles, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create pool: %w", err)
	}

	return &Handles{DB: db, Pool: pool}, nil
}

// Health pings both handles.
func (h *Handles) Health(ctx context.Context) error {
	if err := h.DB.PingContext(ctx); err != nil {
		return err
	}
	return h.Pool.Ping(ctx)
}

// Close releases both handles.
func (h *Handles) Close() error {
	h.Pool.Close()
	return h.DB.Close()
}
