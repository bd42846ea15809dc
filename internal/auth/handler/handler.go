// Package handler exposes credential issuance, rotation and revocation
// over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"fleetops/internal/auth/models"
	"fleetops/pkg/domain"
	dErrors "fleetops/pkg/domain-errors"
	"fleetops/pkg/platform/httputil"
	request "fleetops/pkg/platform/middleware/request"
	"fleetops/pkg/requestcontext"
)

// Service is the credential lifecycle consumed by the handlers.
type Service interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	RevokeCredential(ctx context.Context, raw string, reason models.RevocationReason) error
}

// CookieConfig names the credential cookies.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Secure      bool
}

// Handler handles the /auth and credential admin endpoints.
type Handler struct {
	auth    Service
	cookies CookieConfig
	logger  *slog.Logger
}

// New creates a Handler.
func New(auth Service, cookies CookieConfig, logger *slog.Logger) *Handler {
	return &Handler{auth: auth, cookies: cookies, logger: logger}
}

// IdentityResponse is the body of GET /auth/me.
type IdentityResponse struct {
	AccountID   string   `json:"account_id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
	LocationID  string   `json:"location_id,omitempty"`
}

// HandleLogin exchanges email and password for a credential pair.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.LoginRequest
	if err := httputil.DecodeJSON(w, r, &req, false); err != nil {
		h.logger.WarnContext(ctx, "invalid login request",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	pair, err := h.auth.Login(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, "login failed", err)
		return
	}
	h.setCookies(w, pair)
	httputil.WriteJSON(w, http.StatusOK, pair)
}

// HandleRefresh rotates the refresh credential from the cookie or body.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.RefreshRequest
	if err := httputil.DecodeJSON(w, r, &req, true); err != nil {
		httputil.WriteError(w, err)
		return
	}
	token := req.RefreshToken
	if token == "" {
		token = h.cookieValue(r, h.cookies.RefreshName)
	}

	pair, err := h.auth.Refresh(ctx, token)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			h.clearCookies(w)
		}
		h.writeServiceError(ctx, w, "refresh failed", err)
		return
	}
	h.setCookies(w, pair)
	httputil.WriteJSON(w, http.StatusOK, pair)
}

// HandleLogout revokes the presented credentials and clears the cookies.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.RefreshRequest
	if err := httputil.DecodeJSON(w, r, &req, true); err != nil {
		httputil.WriteError(w, err)
		return
	}
	token := req.RefreshToken
	if token == "" {
		token = h.cookieValue(r, h.cookies.RefreshName)
	}

	if err := h.auth.Logout(ctx, token); err != nil {
		h.writeServiceError(ctx, w, "logout failed", err)
		return
	}
	h.clearCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe returns the identity resolved for this request.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requestcontext.Identity(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "identity missing from context despite auth middleware",
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, NewIdentityResponse(identity))
}

// HandleAdminRevoke force-revokes any signed credential.
func (h *Handler) HandleAdminRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.RevokeRequest
	if err := httputil.DecodeJSON(w, r, &req, false); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.auth.RevokeCredential(ctx, req.Token, models.RevocationReasonAdmin); err != nil {
		h.writeServiceError(ctx, w, "admin revoke failed", err)
		return
	}
	h.logger.InfoContext(ctx, "credential revoked by admin",
		"actor_id", requestcontext.AccountID(ctx).String(),
		"request_id", request.GetRequestID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{"request_id", request.GetRequestID(ctx), "error", err.Error()}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) setCookies(w http.ResponseWriter, pair *models.TokenPair) {
	http.SetCookie(w, h.cookie(h.cookies.AccessName, pair.AccessToken, pair.AccessExpiresAt))
	http.SetCookie(w, h.cookie(h.cookies.RefreshName, pair.RefreshToken, pair.RefreshExpiresAt))
}

func (h *Handler) clearCookies(w http.ResponseWriter) {
	for _, name := range []string{h.cookies.AccessName, h.cookies.RefreshName} {
		c := h.cookie(name, "", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (h *Handler) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// NewIdentityResponse renders an identity for clients.
func NewIdentityResponse(identity domain.Identity) IdentityResponse {
	return IdentityResponse{
		AccountID:   identity.AccountID.String(),
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Roles:       identity.Roles.Names(),
		LocationID:  identity.LocationID.String(),
	}
}
