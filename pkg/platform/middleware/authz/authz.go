package authz

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fleetops/pkg/domain"
	"fleetops/pkg/platform/audit"
	"fleetops/pkg/platform/httputil"
	request "fleetops/pkg/platform/middleware/request"
	"fleetops/pkg/requestcontext"
)

// TargetFunc extracts the location a request targets. Empty means unscoped.
// An error rejects the request before any predicate runs.
type TargetFunc func(*http.Request) (domain.LocationID, error)

// Observer receives denial counts, e.g. for metrics.
type Observer interface {
	IncAuthzDenial(reason string)
}

// Authorizer builds gates sharing logging, metrics and auditing.
type Authorizer struct {
	logger   *slog.Logger
	observer Observer
	auditor  audit.Emitter
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithObserver reports denials to o.
func WithObserver(o Observer) Option {
	return func(a *Authorizer) { a.observer = o }
}

// WithAuditor emits an access_denied event for every denial.
func WithAuditor(e audit.Emitter) Option {
	return func(a *Authorizer) { a.auditor = e }
}

// New builds an Authorizer.
func New(logger *slog.Logger, opts ...Option) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authorizer{logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireAnyRole passes callers holding at least one of roles.
func (a *Authorizer) RequireAnyRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return a.Require(AnyOf(roles...), nil)
}

// RequireAllRoles passes callers holding every one of roles.
func (a *Authorizer) RequireAllRoles(roles ...domain.Role) func(http.Handler) http.Handler {
	return a.Require(AllOf(roles...), nil)
}

// RequireLocation scopes the route to the caller's home location, reading the
// target from the named URL parameter or, failing that, the query string.
func (a *Authorizer) RequireLocation(param string) func(http.Handler) http.Handler {
	return a.Require(InLocation(), LocationFromRequest(param))
}

// Require builds a gate from an arbitrary predicate. target may be nil for
// predicates that ignore location.
func (a *Authorizer) Require(p Predicate, target TargetFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, ok := requestcontext.Identity(ctx)
			if !ok {
				a.logger.WarnContext(ctx, "authorization without identity",
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteJSON(w, http.StatusUnauthorized, map[string]any{
					"error":  "unauthorized",
					"reason": "no_credential",
				})
				return
			}

			subject := Subject{Identity: identity}
			if target != nil {
				loc, err := target(r)
				if err != nil {
					httputil.WriteError(w, err)
					return
				}
				subject.TargetLocation = loc
			}
			if denial := Evaluate(p, subject); denial != nil {
				a.deny(w, r, identity, denial)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LocationFromRequest reads param from the chi route, then the query string.
// Values failing domain.ParseLocationID are rejected as invalid input.
func LocationFromRequest(param string) TargetFunc {
	return func(r *http.Request) (domain.LocationID, error) {
		v := chi.URLParam(r, param)
		if strings.TrimSpace(v) == "" {
			v = r.URL.Query().Get(param)
		}
		return domain.ParseLocationID(v)
	}
}

func (a *Authorizer) deny(w http.ResponseWriter, r *http.Request, identity domain.Identity, d *Denial) {
	ctx := r.Context()
	a.logger.WarnContext(ctx, "access denied",
		"reason", d.Reason,
		"account_id", identity.AccountID.String(),
		"path", r.URL.Path,
		"request_id", request.GetRequestID(ctx),
	)
	if a.observer != nil {
		a.observer.IncAuthzDenial(d.Reason)
	}
	if a.auditor != nil {
		event := audit.Event{
			Action:    audit.EventAccessDenied,
			AccountID: identity.AccountID,
			Reason:    d.Reason,
			Detail:    map[string]string{"path": r.URL.Path},
		}
		if err := a.auditor.Emit(ctx, event); err != nil {
			a.logger.ErrorContext(ctx, "failed to emit audit event", "error", err)
		}
	}
	httputil.WriteJSON(w, http.StatusForbidden, denialBody(d))
}

func denialBody(d *Denial) map[string]any {
	body := map[string]any{
		"error":  "forbidden",
		"reason": d.Reason,
	}
	switch d.Reason {
	case ReasonMissingRole:
		body["required_roles"] = d.RequiredRoles
		body["actual_roles"] = d.ActualRoles
	case ReasonLocationMismatch:
		body["expected_location"] = d.ExpectedLocation.String()
		body["actual_location"] = d.ActualLocation.String()
	}
	return body
}
