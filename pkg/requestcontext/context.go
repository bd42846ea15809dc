// Package requestcontext carries per-request values (identity, presented
// credential, client metadata, request id, request time) through context.
//
// Middleware sets these values; services and handlers read them.
//
//	identity, ok := requestcontext.Identity(ctx)
//	ctx = requestcontext.WithTime(ctx, fixedTime) // tests
package requestcontext

import (
	"context"
	"time"

	"fleetops/pkg/domain"
)

type (
	identityKey    struct{}
	credentialKey  struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// -----------------------------------------------------------------------------
// Authenticated identity
// -----------------------------------------------------------------------------

// Identity returns the authenticated identity attached by the auth middleware.
// The returned value is a copy; handlers cannot mutate the request's identity.
func Identity(ctx context.Context) (domain.Identity, bool) {
	v, ok := ctx.Value(identityKey{}).(*domain.Identity)
	if !ok || v == nil {
		return domain.Identity{}, false
	}
	out := *v
	out.Roles = make(domain.RoleSet, len(v.Roles))
	for r := range v.Roles {
		out.Roles[r] = struct{}{}
	}
	return out, true
}

// WithIdentity attaches an authenticated identity.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, &identity)
}

// AccountID returns the authenticated account id, or zero when unauthenticated.
func AccountID(ctx context.Context) domain.AccountID {
	if v, ok := ctx.Value(identityKey{}).(*domain.Identity); ok && v != nil {
		return v.AccountID
	}
	return 0
}

// Credential is the raw bearer credential that authenticated the request,
// kept so logout can revoke exactly what was presented.
type Credential struct {
	Raw       string
	ExpiresAt time.Time
}

// PresentedCredential returns the credential attached by the auth middleware.
func PresentedCredential(ctx context.Context) (Credential, bool) {
	v, ok := ctx.Value(credentialKey{}).(Credential)
	if !ok || v.Raw == "" {
		return Credential{}, false
	}
	return v, true
}

// WithCredential attaches the presented credential.
func WithCredential(ctx context.Context, cred Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, cred)
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// ClientIP is the resolved caller address, empty when unknown.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent is the summarized browser/OS string set by the metadata middleware.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request
// -----------------------------------------------------------------------------

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now is the time pinned by the requesttime middleware, or the wall clock
// outside a request.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
