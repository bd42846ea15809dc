package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fleetops/internal/auth/models"
	"fleetops/internal/auth/service"
	"fleetops/internal/auth/store/account"
	"fleetops/internal/auth/store/revocation"
	"fleetops/internal/platform/config"
	"fleetops/internal/platform/postgres"
	"fleetops/internal/platform/redis"
	httptransport "fleetops/internal/transport/http"
	"fleetops/pkg/domain"
	"fleetops/pkg/platform/audit"
	"fleetops/pkg/platform/audit/publishers/buffered"
	"fleetops/pkg/platform/audit/publishers/kafka"
	auditpg "fleetops/pkg/platform/audit/store/postgres"
	"fleetops/pkg/platform/sentinel"
)

// infra holds the stores and connections chosen by configuration.
type infra struct {
	accounts    service.AccountStore
	seedable    *account.InMemoryStore
	revocations service.RevocationStore
	sweeper     *revocation.Sweeper
	health      map[string]httptransport.HealthFunc
	kafka       *kafka.Publisher
	auditStore  audit.Emitter
	auditLog    httptransport.AuditLog
	closers     []func() error
}

func openInfra(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{health: map[string]httptransport.HealthFunc{}}

	var db *postgres.Handles
	if cfg.Database.DSN != "" {
		h, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		db = h
		in.closers = append(in.closers, h.Close)
		in.health["postgres"] = h.Health
		in.accounts = account.NewPostgresStore(h.Pool)
		store := auditpg.New(h.DB)
		in.auditStore = store
		in.auditLog = store
	} else {
		mem := account.NewInMemoryStore()
		in.accounts = mem
		in.seedable = mem
	}

	switch cfg.Revocation.Backend {
	case config.BackendRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			in.close(log)
			return nil, err
		}
		in.closers = append(in.closers, client.Close)
		in.health["redis"] = client.Health
		in.revocations = revocation.NewRedisStore(client.Client)
	case config.BackendPostgres:
		if db == nil {
			in.close(log)
			return nil, errors.New("postgres revocation backend requires database.dsn")
		}
		store := revocation.NewPostgresStore(db.DB)
		in.revocations = store
		in.sweeper = revocation.NewSweeper(store, cfg.Revocation.SweepInterval, log)
	default:
		store := revocation.NewInMemoryStore()
		in.revocations = store
		in.sweeper = revocation.NewSweeper(store, cfg.Revocation.SweepInterval, log)
	}

	if len(cfg.Audit.KafkaBrokers) > 0 {
		p, err := kafka.New(kafka.Config{
			Brokers:  cfg.Audit.KafkaBrokers,
			Topic:    cfg.Audit.Topic,
			ClientID: "fleetops",
		})
		if err != nil {
			in.close(log)
			return nil, fmt.Errorf("create kafka publisher: %w", err)
		}
		in.kafka = p
	}
	return in, nil
}

func (in *infra) close(log *slog.Logger) {
	if in.kafka != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := in.kafka.Close(ctx); err != nil {
			log.Error("failed to close kafka publisher", "error", err)
		}
		cancel()
	}
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			log.Error("failed to close resource", "error", err)
		}
	}
}

// buildAudit always logs events and persists them when a database is
// configured. With kafka configured, events are also buffered and shipped to
// the topic in batches.
func buildAudit(ctx context.Context, cfg *config.Config, log *slog.Logger, in *infra) (*audit.Publisher, *buffered.Publisher) {
	sinks := []audit.Emitter{audit.NewLogSink(log), in.auditStore}
	if in.kafka == nil {
		return audit.NewPublisher(sinks...), nil
	}
	if err := in.kafka.EnsureTopic(ctx, 3, 1); err != nil {
		log.Warn("could not ensure audit topic", "topic", cfg.Audit.Topic, "error", err)
	}
	buf := buffered.New(in.kafka, log,
		buffered.WithCapacity(cfg.Audit.BufferSize),
		buffered.WithBatchSize(cfg.Audit.BatchSize),
		buffered.WithFlushInterval(cfg.Audit.FlushInterval),
	)
	return audit.NewPublisher(append(sinks, buf)...), buf
}

// seedAdmin creates the development admin on the in-memory account store.
func seedAdmin(ctx context.Context, cfg *config.Config, in *infra) error {
	if in.seedable == nil || cfg.Auth.SeedAdminEmail == "" || cfg.Auth.SeedAdminPassword == "" {
		return nil
	}
	if _, err := in.seedable.FindByEmail(ctx, cfg.Auth.SeedAdminEmail); err == nil {
		return nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	hash, err := service.HashPassword(cfg.Auth.SeedAdminPassword)
	if err != nil {
		return fmt.Errorf("hash seed admin password: %w", err)
	}
	return in.seedable.Save(ctx, &models.Account{
		Email:        cfg.Auth.SeedAdminEmail,
		FirstName:    "Admin",
		PasswordHash: hash,
		Active:       true,
		Roles:        []domain.Role{domain.RoleAdmin},
	})
}

// bucketIdleTimeout keeps a client's bucket until it would be full again.
func bucketIdleTimeout(cfg *config.Config) time.Duration {
	refill := time.Duration(float64(cfg.RateLimit.Burst) / cfg.RateLimit.PerSecond * float64(time.Second))
	return max(refill, time.Minute)
}
