package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetops/internal/auth/handler"
	"fleetops/internal/platform/metrics"
	ratelimit "fleetops/internal/ratelimit/middleware"
	"fleetops/pkg/domain"
	"fleetops/pkg/platform/httputil"
	authmw "fleetops/pkg/platform/middleware/auth"
	"fleetops/pkg/platform/middleware/authz"
	metadata "fleetops/pkg/platform/middleware/metadata"
	request "fleetops/pkg/platform/middleware/request"
	"fleetops/pkg/platform/middleware/requesttime"
)

// LocationParam is the URL parameter naming the targeted location.
const LocationParam = "locationID"

// HealthFunc reports whether a backing dependency is reachable.
type HealthFunc func(ctx context.Context) error

// Deps are the collaborators the router wires together.
type Deps struct {
	Logger         *slog.Logger
	Authenticator  *authmw.Authenticator
	Authorizer     *authz.Authorizer
	Auth           *handler.Handler
	RateLimit      *ratelimit.Middleware
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	Health         map[string]HealthFunc
	Clock          func() time.Time
	// AuditLog backs the admin audit listing; the route is not mounted when nil.
	AuditLog AuditLog
}

// NewRouter wires all public endpoints. Every protected route passes the
// authentication gate first and then its authorization gates.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(metadata.ClientMetadata)
	if d.Clock != nil {
		r.Use(requesttime.MiddlewareWithClock(d.Clock))
	} else {
		r.Use(requesttime.Middleware)
	}
	r.Use(request.AccessLog(d.Logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	r.Get("/healthz", healthHandler(d.Health))
	metricsHandler := d.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/auth", func(r chi.Router) {
		r.With(d.RateLimit.RateLimit("login")).Post("/login", d.Auth.HandleLogin)
		r.With(d.RateLimit.RateLimit("refresh")).Post("/refresh", d.Auth.HandleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(d.Authenticator.RequireAuth)
			r.Post("/logout", d.Auth.HandleLogout)
			r.Get("/me", d.Auth.HandleMe)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(d.Authenticator.RequireAuth)
		r.Use(d.Authorizer.RequireAnyRole(domain.RoleAdmin))
		r.Post("/credentials/revoke", d.Auth.HandleAdminRevoke)
		if d.AuditLog != nil {
			r.Get("/accounts/{"+AccountParam+"}/audit", handleAccountAudit(d.AuditLog))
		}
	})

	r.Route("/locations/{"+LocationParam+"}", func(r chi.Router) {
		r.Use(d.Authenticator.RequireAuth)
		r.With(d.Authorizer.RequireLocation(LocationParam)).Get("/access", handleLocationAccess)
		r.With(d.Authorizer.Require(
			authz.Or(authz.AnyOf(domain.RoleFinance, domain.RoleAudit), authz.InLocation()),
			authz.LocationFromRequest(LocationParam),
		)).Get("/ledger", handleLocationLedger)
	})

	r.Route("/sales", func(r chi.Router) {
		r.Use(d.Authenticator.RequireAuth)
		r.Use(d.Authorizer.RequireAnyRole(domain.RoleSales))
		r.Get("/desk", handleSalesDesk)
	})

	r.With(d.Authenticator.OptionalAuth).Get("/catalog/greeting", handleGreeting)

	return r
}

func healthHandler(checks map[string]HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}
