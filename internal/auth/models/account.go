package models

import (
	"time"

	"fleetops/pkg/domain"
)

// Account is the identity record owned by identity management. The auth
// core only reads it.
type Account struct {
	ID           domain.AccountID
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Active       bool
	LocationID   domain.LocationID
	Roles        []domain.Role
	CreatedAt    time.Time
}

// RoleSet returns the account's roles normalized and deduplicated.
func (a *Account) RoleSet() domain.RoleSet {
	return domain.NewRoleSet(a.Roles...)
}

// Identity builds the request identity from the current account state.
func (a *Account) Identity() domain.Identity {
	return domain.Identity{
		AccountID:   a.ID,
		Email:       a.Email,
		DisplayName: domain.DisplayName(a.FirstName, a.LastName, a.Email),
		Roles:       a.RoleSet(),
		LocationID:  a.LocationID,
	}
}
