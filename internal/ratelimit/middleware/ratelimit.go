package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"fleetops/internal/ratelimit/models"
	"fleetops/pkg/platform/audit"
	"fleetops/pkg/platform/httputil"
	metadata "fleetops/pkg/platform/middleware/metadata"
	request "fleetops/pkg/platform/middleware/request"
	"fleetops/pkg/requestcontext"
)

// Limiter admits or rejects one request for a key.
type Limiter interface {
	Allow(ctx context.Context, key string) (*models.RateLimitResult, error)
}

// Observer counts throttled requests.
type Observer interface {
	IncRateLimited(route string)
}

type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	observer Observer
	auditor  audit.Emitter
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithObserver records throttled requests.
func WithObserver(o Observer) Option {
	return func(m *Middleware) {
		m.observer = o
	}
}

// WithAuditor emits rate_limit_exceeded events.
func WithAuditor(a audit.Emitter) Option {
	return func(m *Middleware) {
		m.auditor = a
	}
}

func New(limiter Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit throttles requests per client IP. route labels the limiter key
// so each credential-minting endpoint has its own budget.
func (m *Middleware) RateLimit(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			if ip == "" {
				ip = metadata.ClientIPFromRequest(r)
			}

			result, err := m.limiter.Allow(ctx, route+"|"+ip)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"route", route,
					"request_id", request.GetRequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

			if !result.Allowed {
				m.reject(ctx, w, route, ip, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) reject(ctx context.Context, w http.ResponseWriter, route, ip string, result *models.RateLimitResult) {
	m.logger.WarnContext(ctx, "rate limit exceeded",
		"route", route,
		"client_ip", ip,
		"request_id", request.GetRequestID(ctx),
	)
	if m.observer != nil {
		m.observer.IncRateLimited(route)
	}
	if m.auditor != nil {
		err := m.auditor.Emit(ctx, audit.Event{
			Action: audit.EventRateLimitExceeded,
			Detail: map[string]string{"route": route},
		})
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to emit audit event", "error", err)
		}
	}

	retryAfter := result.RetryAfterSeconds()
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests from this IP address. Please try again later.",
		RetryAfter: retryAfter,
	})
}
