package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"fleetops/internal/auth/handler"
	"fleetops/internal/auth/service"
	jwttoken "fleetops/internal/jwt_token"
	"fleetops/internal/platform/config"
	"fleetops/internal/platform/httpserver"
	"fleetops/internal/platform/logger"
	"fleetops/internal/platform/metrics"
	ratelimit "fleetops/internal/ratelimit/middleware"
	"fleetops/internal/ratelimit/store/bucket"
	httptransport "fleetops/internal/transport/http"
	authmw "fleetops/pkg/platform/middleware/auth"
	"fleetops/pkg/platform/middleware/authz"
)

// version is set at build time.
var version = "dev"

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Logging, version)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.close(log)

	m := metrics.New(prometheus.DefaultRegisterer)
	publisher, bufferedAudit := buildAudit(ctx, cfg, log, infra)
	if bufferedAudit != nil {
		m.ObserveAuditBuffer(bufferedAudit)
	}

	tokens := jwttoken.NewJWTService(jwttoken.Config{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	})
	svc := service.New(infra.accounts, infra.revocations, tokens,
		service.WithAuditPublisher(publisher),
		service.WithLogger(log),
	)
	if err := seedAdmin(ctx, cfg, infra); err != nil {
		return err
	}

	limiter := bucket.NewInMemoryBucketStore(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger: log,
		Authenticator: authmw.New(jwttoken.NewJWTServiceAdapter(tokens), svc, svc, log,
			authmw.WithCookieName(cfg.Auth.AccessCookieName),
			authmw.WithObserver(m),
			authmw.WithAuditor(publisher),
		),
		Authorizer: authz.New(log,
			authz.WithObserver(m),
			authz.WithAuditor(publisher),
		),
		Auth: handler.New(svc, handler.CookieConfig{
			AccessName:  cfg.Auth.AccessCookieName,
			RefreshName: cfg.Auth.RefreshCookieName,
			Secure:      cfg.Auth.SecureCookies,
		}, log),
		RateLimit: ratelimit.New(limiter, log,
			ratelimit.WithObserver(m),
			ratelimit.WithAuditor(publisher),
			ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		),
		Metrics:  m,
		Health:   infra.health,
		AuditLog: infra.auditLog,
	})
	srv := httpserver.New(cfg.Server, router)

	log.Info("starting fleetops",
		"addr", cfg.Server.Addr,
		"revocation_backend", cfg.Revocation.Backend,
		"audit_kafka", len(cfg.Audit.KafkaBrokers) > 0,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	if infra.sweeper != nil {
		g.Go(func() error { return infra.sweeper.Run(gctx) })
	}
	if !cfg.RateLimit.Disabled {
		g.Go(func() error {
			return limiter.RunJanitor(gctx, cfg.Revocation.SweepInterval, bucketIdleTimeout(cfg))
		})
	}
	if bufferedAudit != nil {
		g.Go(func() error { return bufferedAudit.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
