package models

import "time"

// RevocationEntry marks a credential invalid ahead of its natural expiry.
// Entries are keyed by credential hash and are meaningless once ExpiresAt
// passes, since the credential itself no longer verifies.
type RevocationEntry struct {
	Hash      string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// IsExpired reports whether the entry is inert at now.
func (e RevocationEntry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// RevocationReason records why a credential was revoked, for audit only.
type RevocationReason string

const (
	RevocationReasonLogout  RevocationReason = "user_logout"
	RevocationReasonRotated RevocationReason = "refresh_rotated"
	RevocationReasonAdmin   RevocationReason = "admin_revoked"
)

func (r RevocationReason) String() string {
	return string(r)
}
