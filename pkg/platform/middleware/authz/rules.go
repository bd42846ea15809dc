// Package authz holds the authorization gates that run after authentication.
//
// Gates are built from Predicate values so role and location checks are
// data passed to one evaluator rather than per-route conditionals. The
// universal admin passes every gate; the organization-wide role passes
// location gates.
package authz

import (
	"fleetops/pkg/domain"
)

// Denial reasons.
const (
	ReasonMissingRole      = "missing_role"
	ReasonLocationMismatch = "location_mismatch"
)

// Subject is what a predicate evaluates: the resolved identity and, for
// location-scoped routes, the location the request targets.
type Subject struct {
	Identity       domain.Identity
	TargetLocation domain.LocationID
}

// Denial explains a failed predicate with required-versus-actual detail.
type Denial struct {
	Reason           string
	RequiredRoles    []string
	ActualRoles      []string
	ExpectedLocation domain.LocationID
	ActualLocation   domain.LocationID
}

// Predicate returns nil when the subject passes.
type Predicate func(Subject) *Denial

// OrganizationWideRoles bypass location scoping.
var OrganizationWideRoles = []domain.Role{domain.RoleGeneralManager}

// AnyOf passes when the identity holds at least one of roles.
func AnyOf(roles ...domain.Role) Predicate {
	required, wanted := normalize(roles)
	return func(s Subject) *Denial {
		if s.Identity.Roles.HasAny(wanted...) {
			return nil
		}
		return missingRole(required, s.Identity)
	}
}

// AllOf passes when the identity holds every one of roles.
func AllOf(roles ...domain.Role) Predicate {
	required, wanted := normalize(roles)
	return func(s Subject) *Denial {
		if s.Identity.Roles.HasAll(wanted...) {
			return nil
		}
		return missingRole(required, s.Identity)
	}
}

// InLocation passes when no target is present, when the identity holds an
// organization-wide role, or when the target equals the home location.
func InLocation() Predicate {
	return func(s Subject) *Denial {
		if s.TargetLocation.IsZero() {
			return nil
		}
		if s.Identity.Roles.HasAny(OrganizationWideRoles...) {
			return nil
		}
		if s.Identity.LocationID == s.TargetLocation {
			return nil
		}
		return &Denial{
			Reason:           ReasonLocationMismatch,
			ExpectedLocation: s.TargetLocation,
			ActualLocation:   s.Identity.LocationID,
		}
	}
}

// Or passes when any predicate passes. The last denial is reported otherwise;
// with no predicates it denies for a missing role.
func Or(predicates ...Predicate) Predicate {
	return func(s Subject) *Denial {
		last := missingRole([]string{}, s.Identity)
		for _, p := range predicates {
			d := p(s)
			if d == nil {
				return nil
			}
			last = d
		}
		return last
	}
}

// Evaluate applies the admin bypass and then p.
func Evaluate(p Predicate, s Subject) *Denial {
	if s.Identity.Roles.IsAdmin() {
		return nil
	}
	return p(s)
}

func missingRole(required []string, identity domain.Identity) *Denial {
	actual := identity.Roles.Names()
	return &Denial{
		Reason:        ReasonMissingRole,
		RequiredRoles: required,
		ActualRoles:   actual,
	}
}

// normalize collapses roles into sorted names and the matching role values.
func normalize(roles []domain.Role) ([]string, []domain.Role) {
	names := domain.NewRoleSet(roles...).Names()
	wanted := make([]domain.Role, len(names))
	for i, n := range names {
		wanted[i] = domain.Role(n)
	}
	return names, wanted
}
