package revocation

import (
	"fmt"
	"strings"
	"time"

	"fleetops/pkg/platform/sentinel"
)

// Clock returns the current time. Stores take one so tests can move time.
type Clock func() time.Time

// ttlUntil returns how long an entry expiring at expiresAt must be kept.
// ok is false when the entry would already be inert.
func ttlUntil(now, expiresAt time.Time) (ttl time.Duration, ok bool) {
	ttl = expiresAt.Sub(now)
	if ttl <= 0 {
		return 0, false
	}
	return ttl, true
}

func validateHash(hash string) error {
	if strings.TrimSpace(hash) == "" {
		return fmt.Errorf("token hash is required: %w", sentinel.ErrInvalidState)
	}
	return nil
}
