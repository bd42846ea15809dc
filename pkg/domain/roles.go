package domain

import (
	"slices"
	"strings"
)

// Role is a named permission label held by an account.
type Role string

// Role catalog.
const (
	// RoleAdmin passes every role and location gate.
	RoleAdmin Role = "admin"

	// RoleGeneralManager is organization-wide: it is not confined to a
	// home location, but it is still subject to role gates.
	RoleGeneralManager Role = "general_manager"

	RoleLocationManager Role = "location_manager"
	RoleFinance         Role = "finance"
	RoleAudit           Role = "audit"
	RoleSales           Role = "sales"
	RoleFleet           Role = "fleet"
	RoleMechanic        Role = "mechanic"
	RoleCustomerService Role = "customer_service"
)

// NormalizeRole trims and lower-cases a role name.
func NormalizeRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// RoleSet is an order-irrelevant set of roles with duplicates collapsed.
type RoleSet map[Role]struct{}

// NewRoleSet normalizes names and collapses duplicates. Blank names are dropped.
func NewRoleSet[T ~string](names ...T) RoleSet {
	set := make(RoleSet, len(names))
	for _, n := range names {
		r := NormalizeRole(string(n))
		if r == "" {
			continue
		}
		set[r] = struct{}{}
	}
	return set
}

// Has reports whether the role is present.
func (s RoleSet) Has(role Role) bool {
	_, ok := s[role]
	return ok
}

// HasAny reports whether at least one of roles is present.
func (s RoleSet) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// HasAll reports whether every one of roles is present. An empty list is
// trivially satisfied.
func (s RoleSet) HasAll(roles ...Role) bool {
	for _, r := range roles {
		if !s.Has(r) {
			return false
		}
	}
	return true
}

// IsAdmin reports whether the set holds the universal admin role.
func (s RoleSet) IsAdmin() bool {
	return s.Has(RoleAdmin)
}

// Names returns the roles sorted, for stable output in responses and logs.
func (s RoleSet) Names() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, string(r))
	}
	slices.Sort(out)
	return out
}
