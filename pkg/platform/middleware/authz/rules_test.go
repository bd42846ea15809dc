package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/pkg/domain"
)

func identityWith(location string, roles ...domain.Role) domain.Identity {
	return domain.Identity{
		AccountID:  1,
		Roles:      domain.NewRoleSet(roles...),
		LocationID: domain.LocationID(location),
	}
}

func TestAnyOf(t *testing.T) {
	finance := AnyOf(domain.RoleFinance)

	tests := []struct {
		name  string
		roles []domain.Role
		pass  bool
	}{
		{"holder passes", []domain.Role{domain.RoleFinance}, true},
		{"admin passes", []domain.Role{domain.RoleAdmin}, true},
		{"other role rejected", []domain.Role{domain.RoleSales}, false},
		{"no roles rejected", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(finance, Subject{Identity: identityWith("", tt.roles...)})
			assert.Equal(t, tt.pass, d == nil)
		})
	}
}

func TestAnyOf_DenialCarriesRequiredAndActual(t *testing.T) {
	d := Evaluate(AnyOf(domain.RoleFinance, domain.RoleAudit), Subject{
		Identity: identityWith("", domain.RoleSales, domain.RoleFleet),
	})
	require.NotNil(t, d)
	assert.Equal(t, ReasonMissingRole, d.Reason)
	assert.Equal(t, []string{"audit", "finance"}, d.RequiredRoles)
	assert.Equal(t, []string{"fleet", "sales"}, d.ActualRoles)
}

func TestAllOf(t *testing.T) {
	both := AllOf(domain.RoleFinance, domain.RoleAudit)

	tests := []struct {
		name  string
		roles []domain.Role
		pass  bool
	}{
		{"both held", []domain.Role{domain.RoleAudit, domain.RoleFinance}, true},
		{"superset held", []domain.Role{domain.RoleAudit, domain.RoleFinance, domain.RoleSales}, true},
		{"admin", []domain.Role{domain.RoleAdmin}, true},
		{"finance only", []domain.Role{domain.RoleFinance}, false},
		{"audit only", []domain.Role{domain.RoleAudit}, false},
		{"none", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(both, Subject{Identity: identityWith("", tt.roles...)})
			assert.Equal(t, tt.pass, d == nil)
		})
	}
}

func TestAllOf_EmptyRequirementPasses(t *testing.T) {
	assert.Nil(t, Evaluate(AllOf(), Subject{Identity: identityWith("")}))
}

func TestInLocation(t *testing.T) {
	scoped := InLocation()
	target := domain.LocationID("warehouse-3")

	tests := []struct {
		name     string
		identity domain.Identity
		target   domain.LocationID
		pass     bool
	}{
		{"admin elsewhere", identityWith("A", domain.RoleAdmin), target, true},
		{"general manager elsewhere", identityWith("A", domain.RoleGeneralManager), target, true},
		{"home location matches", identityWith("warehouse-3", domain.RoleLocationManager), target, true},
		{"home location differs", identityWith("A", domain.RoleLocationManager), target, false},
		{"no home location", identityWith("", domain.RoleSales), target, false},
		{"no target is unscoped", identityWith("A", domain.RoleSales), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(scoped, Subject{Identity: tt.identity, TargetLocation: tt.target})
			assert.Equal(t, tt.pass, d == nil)
		})
	}
}

func TestInLocation_DenialCarriesLocations(t *testing.T) {
	d := Evaluate(InLocation(), Subject{Identity: identityWith("A", domain.RoleSales), TargetLocation: "B"})
	require.NotNil(t, d)
	assert.Equal(t, ReasonLocationMismatch, d.Reason)
	assert.Equal(t, domain.LocationID("B"), d.ExpectedLocation)
	assert.Equal(t, domain.LocationID("A"), d.ActualLocation)
}

func TestOr(t *testing.T) {
	financeOrAudit := Or(AnyOf(domain.RoleFinance), AllOf(domain.RoleAudit, domain.RoleSales))

	assert.Nil(t, financeOrAudit(Subject{Identity: identityWith("", domain.RoleFinance)}))
	assert.Nil(t, financeOrAudit(Subject{Identity: identityWith("", domain.RoleAudit, domain.RoleSales)}))

	d := financeOrAudit(Subject{Identity: identityWith("", domain.RoleAudit)})
	require.NotNil(t, d)
	assert.Equal(t, []string{"audit", "sales"}, d.RequiredRoles)
}

func TestOr_WithoutPredicatesDenies(t *testing.T) {
	empty := Or()

	d := empty(Subject{Identity: identityWith("A", domain.RoleSales)})
	require.NotNil(t, d)
	assert.Equal(t, ReasonMissingRole, d.Reason)
	assert.Empty(t, d.RequiredRoles)
	assert.Equal(t, []string{"sales"}, d.ActualRoles)

	assert.Nil(t, Evaluate(empty, Subject{Identity: identityWith("", domain.RoleAdmin)}), "admin still bypasses")
}

func TestAnyOf_EmptyRequirementDenies(t *testing.T) {
	assert.NotNil(t, AnyOf()(Subject{Identity: identityWith("", domain.RoleSales)}))
}

func TestOr_LocationOrRole(t *testing.T) {
	rule := Or(AnyOf(domain.RoleFinance), InLocation())

	tests := []struct {
		name     string
		identity domain.Identity
		target   domain.LocationID
		pass     bool
	}{
		{"finance anywhere", identityWith("A", domain.RoleFinance), "B", true},
		{"local manager", identityWith("B", domain.RoleLocationManager), "B", true},
		{"remote manager", identityWith("A", domain.RoleLocationManager), "B", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(rule, Subject{Identity: tt.identity, TargetLocation: tt.target})
			assert.Equal(t, tt.pass, d == nil)
		})
	}
}
