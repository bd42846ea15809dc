package domain

import (
	"strconv"
	"strings"

	dErrors "fleetops/pkg/domain-errors"
)

// AccountID identifies an operator account. Accounts use database sequence ids.
type AccountID int64

// LocationID identifies a branch, depot or warehouse. Empty means "no location".
type LocationID string

const maxIDLength = 64

// ParseAccountID parses a positive decimal account id.
func ParseAccountID(s string) (AccountID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "account id is required")
	}
	if len(s) > maxIDLength {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "account id is too long")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "account id must be a positive integer")
	}
	return AccountID(n), nil
}

func (id AccountID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// IsZero reports whether the id is unset.
func (id AccountID) IsZero() bool {
	return id <= 0
}

// ParseLocationID normalizes a location identifier taken from a request.
func ParseLocationID(s string) (LocationID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if len(s) > maxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "location id is too long")
	}
	return LocationID(s), nil
}

func (l LocationID) String() string {
	return string(l)
}

// IsZero reports whether no location is set.
func (l LocationID) IsZero() bool {
	return l == ""
}
