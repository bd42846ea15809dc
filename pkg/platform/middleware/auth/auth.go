// Package auth is the authentication gate. It turns a presented bearer
// credential into a freshly resolved identity on the request context, or
// rejects the request with a reason code.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fleetops/pkg/domain"
	"fleetops/pkg/platform/audit"
	"fleetops/pkg/platform/httputil"
	request "fleetops/pkg/platform/middleware/request"
	"fleetops/pkg/requestcontext"
)

// DefaultCookieName carries the access credential for browser clients.
const DefaultCookieName = "fleetops_access"

// Reason is the client-facing rejection code.
type Reason string

const (
	ReasonNoCredential       Reason = "no_credential"
	ReasonInvalidOrExpired   Reason = "invalid_or_expired"
	ReasonRevoked            Reason = "revoked"
	ReasonAccountUnavailable Reason = "account_unavailable"
	// ReasonInternal is never sent to clients as a 401; it labels 500s in
	// logs and metrics.
	ReasonInternal Reason = "internal_error"
)

// CredentialVerifier validates an access credential.
type CredentialVerifier interface {
	VerifyAccess(token string) (*Claims, error)
}

// RevocationChecker reports whether a raw credential has been revoked.
type RevocationChecker interface {
	IsCredentialRevoked(ctx context.Context, token string) (bool, error)
}

// IdentityResolver loads the current identity for an account.
// It returns domain.ErrAccountNotFound or domain.ErrAccountInactive when the
// account can no longer act.
type IdentityResolver interface {
	Resolve(ctx context.Context, accountID domain.AccountID) (*domain.Identity, error)
}

// Observer receives rejection counts, e.g. for metrics.
type Observer interface {
	IncAuthRejection(reason string)
}

// Claims represents the verified claims the gate needs.
type Claims struct {
	AccountID domain.AccountID
	JTI       string
	ExpiresAt time.Time
}

// Failure describes why a request could not be authenticated.
type Failure struct {
	Reason Reason
	Status int
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return string(f.Reason) + ": " + f.Err.Error()
	}
	return string(f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

var tracer = otel.Tracer("fleetops/middleware/auth")

// Authenticator implements the gate.
type Authenticator struct {
	verifier    CredentialVerifier
	revocations RevocationChecker
	resolver    IdentityResolver
	logger      *slog.Logger
	cookieName  string
	observer    Observer
	auditor     audit.Emitter
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithCookieName overrides the access credential cookie name.
func WithCookieName(name string) Option {
	return func(a *Authenticator) {
		if name != "" {
			a.cookieName = name
		}
	}
}

// WithObserver reports rejections to o.
func WithObserver(o Observer) Option {
	return func(a *Authenticator) { a.observer = o }
}

// WithAuditor emits an auth_failed event for every rejection.
func WithAuditor(e audit.Emitter) Option {
	return func(a *Authenticator) { a.auditor = e }
}

// New builds an Authenticator.
func New(verifier CredentialVerifier, revocations RevocationChecker, resolver IdentityResolver, logger *slog.Logger, opts ...Option) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{
		verifier:    verifier,
		revocations: revocations,
		resolver:    resolver,
		logger:      logger,
		cookieName:  DefaultCookieName,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Authenticate runs the full decision for r. On success it returns a context
// carrying the identity and the presented credential.
//
// Revocation is checked before verification. A revoked credential that also
// fails verification is reported as invalid_or_expired.
func (a *Authenticator) Authenticate(r *http.Request) (context.Context, *Failure) {
	ctx, span := tracer.Start(r.Context(), "auth.authenticate")
	defer span.End()

	raw := a.extract(r)
	if raw == "" {
		return a.fail(ctx, span, &Failure{Reason: ReasonNoCredential, Status: http.StatusUnauthorized})
	}

	revoked, err := a.revocations.IsCredentialRevoked(ctx, raw)
	if err != nil {
		return a.fail(ctx, span, &Failure{Reason: ReasonInternal, Status: http.StatusInternalServerError, Err: err})
	}

	claims, verr := a.verifier.VerifyAccess(raw)
	switch {
	case verr != nil:
		return a.fail(ctx, span, &Failure{Reason: ReasonInvalidOrExpired, Status: http.StatusUnauthorized, Err: verr})
	case revoked:
		return a.fail(ctx, span, &Failure{Reason: ReasonRevoked, Status: http.StatusUnauthorized})
	}
	span.SetAttributes(
		attribute.Int64("account.id", int64(claims.AccountID)),
		attribute.String("auth.jti", claims.JTI),
	)

	identity, err := a.resolver.Resolve(ctx, claims.AccountID)
	if err != nil {
		if domain.IsAccountUnavailable(err) {
			return a.fail(ctx, span, &Failure{Reason: ReasonAccountUnavailable, Status: http.StatusUnauthorized, Err: err})
		}
		return a.fail(ctx, span, &Failure{Reason: ReasonInternal, Status: http.StatusInternalServerError, Err: err})
	}

	ctx = requestcontext.WithIdentity(ctx, *identity)
	ctx = requestcontext.WithCredential(ctx, requestcontext.Credential{Raw: raw, ExpiresAt: claims.ExpiresAt})
	return ctx, nil
}

// RequireAuth rejects unauthenticated requests.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, failure := a.Authenticate(r)
		if failure != nil {
			a.reject(r.Context(), w, failure)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth attaches an identity when one can be established and never
// rejects. Handlers behind it must cope with an anonymous caller.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, failure := a.Authenticate(r)
		if failure != nil {
			if failure.Status >= http.StatusInternalServerError {
				a.logger.ErrorContext(r.Context(), "optional auth failed, continuing anonymously",
					"error", failure.Err,
					"request_id", request.GetRequestID(r.Context()),
				)
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extract prefers the cookie and falls back to the Authorization header.
func (a *Authenticator) extract(r *http.Request) string {
	if c, err := r.Cookie(a.cookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	}
	return BearerToken(r.Header.Get("Authorization"))
}

// BearerToken returns the credential of a "Bearer <token>" header value.
// The scheme is matched case-insensitively.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (a *Authenticator) fail(ctx context.Context, span trace.Span, f *Failure) (context.Context, *Failure) {
	span.SetAttributes(attribute.String("auth.reason", string(f.Reason)))
	if f.Status >= http.StatusInternalServerError {
		span.RecordError(f.Err)
		span.SetStatus(codes.Error, string(f.Reason))
	}
	return ctx, f
}

// reject answers a RequireAuth failure. Only rejected requests are counted;
// OptionalAuth falling back to anonymous is not a rejection.
func (a *Authenticator) reject(ctx context.Context, w http.ResponseWriter, f *Failure) {
	requestID := request.GetRequestID(ctx)
	if a.observer != nil {
		a.observer.IncAuthRejection(string(f.Reason))
	}
	if f.Status >= http.StatusInternalServerError {
		a.logger.ErrorContext(ctx, "authentication failed",
			"error", f.Err,
			"request_id", requestID,
		)
		httputil.WriteJSON(w, f.Status, map[string]string{
			"error":             "internal_error",
			"error_description": "failed to authenticate request",
		})
		return
	}

	attrs := []any{
		"reason", string(f.Reason),
		"request_id", requestID,
		"client_ip", requestcontext.ClientIP(ctx),
		"user_agent", requestcontext.UserAgent(ctx),
	}
	if f.Err != nil {
		attrs = append(attrs, "kind", failureKind(f.Err))
	}
	a.logger.WarnContext(ctx, "unauthorized access", attrs...)

	if a.auditor != nil {
		if err := a.auditor.Emit(ctx, audit.Event{Action: audit.EventAuthFailed, Reason: string(f.Reason)}); err != nil {
			a.logger.ErrorContext(ctx, "failed to emit audit event", "error", err, "request_id", requestID)
		}
	}

	httputil.WriteJSON(w, f.Status, map[string]string{
		"error":  "unauthorized",
		"reason": string(f.Reason),
	})
}

// failureKind names the internal cause without echoing credential content.
func failureKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, domain.ErrAccountInactive):
		return "account_inactive"
	default:
		return err.Error()
	}
}
