package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"fleetops/internal/auth/models"
	"fleetops/pkg/domain"
	"fleetops/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) seed(email string, roles ...domain.Role) *models.Account {
	acc := &models.Account{Email: email, FirstName: "Ana", LastName: "Silva", Active: true, Roles: roles}
	s.Require().NoError(s.store.Save(s.ctx, acc))
	return acc
}

func (s *InMemoryStoreSuite) TestSaveAssignsIDs() {
	a := s.seed("a@example.com")
	b := s.seed("b@example.com")
	s.Equal(domain.AccountID(1), a.ID)
	s.Equal(domain.AccountID(2), b.ID)
}

func (s *InMemoryStoreSuite) TestSaveKeepsExplicitID() {
	acc := &models.Account{ID: 42, Email: "sales@example.com", Active: true}
	s.Require().NoError(s.store.Save(s.ctx, acc))

	found, err := s.store.FindByID(s.ctx, 42)
	s.Require().NoError(err)
	s.Equal("sales@example.com", found.Email)
}

func (s *InMemoryStoreSuite) TestSaveRejectsDuplicateEmail() {
	s.seed("dup@example.com")
	err := s.store.Save(s.ctx, &models.Account{Email: "DUP@example.com"})
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *InMemoryStoreSuite) TestRejectedSaveLeavesAccountUntouched() {
	s.seed("dup@example.com")

	dup := &models.Account{Email: "dup@example.com"}
	s.Require().ErrorIs(s.store.Save(s.ctx, dup), sentinel.ErrInvalidState)
	s.True(dup.ID.IsZero(), "no id is assigned on conflict")

	next := s.seed("next@example.com")
	s.Equal(domain.AccountID(2), next.ID)
}

func (s *InMemoryStoreSuite) TestFindByEmailIsCaseInsensitive() {
	acc := s.seed("Mixed@Example.com", domain.RoleSales)

	found, err := s.store.FindByEmail(s.ctx, "  mixed@example.COM ")
	s.Require().NoError(err)
	s.Equal(acc.ID, found.ID)
	s.Equal([]domain.Role{domain.RoleSales}, found.Roles)
}

func (s *InMemoryStoreSuite) TestFindMissing() {
	_, err := s.store.FindByID(s.ctx, 999)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByEmail(s.ctx, "nobody@example.com")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestReturnedAccountIsACopy() {
	acc := s.seed("copy@example.com", domain.RoleSales)

	found, err := s.store.FindByID(s.ctx, acc.ID)
	s.Require().NoError(err)
	found.Roles[0] = domain.RoleAdmin
	found.Active = false

	again, err := s.store.FindByID(s.ctx, acc.ID)
	s.Require().NoError(err)
	s.Equal(domain.RoleSales, again.Roles[0])
	s.True(again.Active)
}

func (s *InMemoryStoreSuite) TestSetActiveAndRoles() {
	acc := s.seed("m@example.com", domain.RoleSales)

	s.Require().NoError(s.store.SetActive(s.ctx, acc.ID, false))
	s.Require().NoError(s.store.SetRoles(s.ctx, acc.ID, domain.RoleFinance, domain.RoleAudit))

	found, err := s.store.FindByID(s.ctx, acc.ID)
	s.Require().NoError(err)
	s.False(found.Active)
	s.ElementsMatch([]domain.Role{domain.RoleFinance, domain.RoleAudit}, found.Roles)

	s.ErrorIs(s.store.SetActive(s.ctx, 999, true), sentinel.ErrNotFound)
	s.ErrorIs(s.store.SetRoles(s.ctx, 999), sentinel.ErrNotFound)
}
