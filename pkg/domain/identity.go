package domain

import (
	"errors"
	"strings"
)

// Identity is the authenticated caller for one request. It is resolved
// fresh from the account store on every request and never persisted.
type Identity struct {
	AccountID   AccountID
	Email       string
	DisplayName string
	Roles       RoleSet
	LocationID  LocationID
}

// DisplayName joins first and last name, falling back to the email.
func DisplayName(first, last, email string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		return email
	}
	return name
}

// Account state errors returned by identity resolution. Both mean the
// credential refers to an account that can no longer act.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountInactive = errors.New("account is inactive")
)

// IsAccountUnavailable reports whether err means the account is gone or deactivated.
func IsAccountUnavailable(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrAccountInactive)
}
