package testutil

import (
	"net/http"

	"fleetops/pkg/domain"
	"fleetops/pkg/requestcontext"
)

// WithIdentity attaches an authenticated identity to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithIdentity(req *http.Request, identity domain.Identity) *http.Request {
	return req.WithContext(requestcontext.WithIdentity(req.Context(), identity))
}

// WithRoles attaches an identity holding the given roles and home location.
func WithRoles(req *http.Request, accountID domain.AccountID, location string, roles ...domain.Role) *http.Request {
	return WithIdentity(req, domain.Identity{
		AccountID:  accountID,
		Email:      "user@example.com",
		Roles:      domain.NewRoleSet(roles...),
		LocationID: domain.LocationID(location),
	})
}
