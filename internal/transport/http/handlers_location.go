package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fleetops/pkg/domain"
	"fleetops/pkg/platform/httputil"
	"fleetops/pkg/requestcontext"
)

// LocationAccessResponse tells a front end which location scope the caller
// was admitted to.
type LocationAccessResponse struct {
	AccountID    string   `json:"account_id"`
	LocationID   string   `json:"location_id"`
	HomeLocation string   `json:"home_location,omitempty"`
	Roles        []string `json:"roles"`
}

func handleLocationAccess(w http.ResponseWriter, r *http.Request) {
	identity, _ := requestcontext.Identity(r.Context())
	httputil.WriteJSON(w, http.StatusOK, LocationAccessResponse{
		AccountID:    identity.AccountID.String(),
		LocationID:   chi.URLParam(r, LocationParam),
		HomeLocation: identity.LocationID.String(),
		Roles:        identity.Roles.Names(),
	})
}

// LedgerScopeResponse tells the caller how widely it may read the ledger of
// the targeted location.
type LedgerScopeResponse struct {
	LocationID string `json:"location_id"`
	Scope      string `json:"scope"`
}

// Finance and audit read every ledger; location staff read their own.
func handleLocationLedger(w http.ResponseWriter, r *http.Request) {
	identity, _ := requestcontext.Identity(r.Context())
	scope := "location"
	if identity.Roles.IsAdmin() || identity.Roles.HasAny(domain.RoleFinance, domain.RoleAudit) {
		scope = "organization"
	}
	httputil.WriteJSON(w, http.StatusOK, LedgerScopeResponse{
		LocationID: chi.URLParam(r, LocationParam),
		Scope:      scope,
	})
}

// SalesDeskResponse is the body of GET /sales/desk.
type SalesDeskResponse struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	LocationID  string `json:"location_id,omitempty"`
}

func handleSalesDesk(w http.ResponseWriter, r *http.Request) {
	identity, _ := requestcontext.Identity(r.Context())
	httputil.WriteJSON(w, http.StatusOK, SalesDeskResponse{
		AccountID:   identity.AccountID.String(),
		DisplayName: identity.DisplayName,
		LocationID:  identity.LocationID.String(),
	})
}

// GreetingResponse is the body of GET /catalog/greeting.
type GreetingResponse struct {
	Message       string `json:"message"`
	Authenticated bool   `json:"authenticated"`
}

func handleGreeting(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestcontext.Identity(r.Context())
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, GreetingResponse{Message: "Welcome to FleetOps"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, GreetingResponse{
		Message:       "Welcome back, " + identity.DisplayName,
		Authenticated: true,
	})
}
