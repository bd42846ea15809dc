package audit

import (
	"time"

	"fleetops/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategorySecurity covers events relevant to security monitoring and forensics.
	// Examples: auth failures, revocations, access violations.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine events useful for operational visibility.
	// Examples: credential issuance and refresh.
	CategoryOperations EventCategory = "operations"
)

// Severity levels for SIEM routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type AuditEvent string

const (
	EventTokenIssued       AuditEvent = "token_issued"
	EventTokenRefreshed    AuditEvent = "token_refreshed"
	EventCredentialRevoked AuditEvent = "credential_revoked"
	EventAuthFailed        AuditEvent = "auth_failed"
	EventLoginFailed       AuditEvent = "login_failed"
	EventAccessDenied      AuditEvent = "access_denied"
	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCredentialRevoked: CategorySecurity,
	EventAuthFailed:        CategorySecurity,
	EventLoginFailed:       CategorySecurity,
	EventAccessDenied:      CategorySecurity,
	EventRateLimitExceeded: CategorySecurity,

	EventTokenIssued:    CategoryOperations,
	EventTokenRefreshed: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from auth flows to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	ID        string           `json:"id"`
	Category  EventCategory    `json:"category"`
	Action    AuditEvent       `json:"action"`
	Severity  Severity         `json:"severity,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	AccountID domain.AccountID `json:"account_id,omitempty"`
	// ActorID is set when someone other than the account owner acted,
	// e.g. an admin forcing a revocation.
	ActorID   domain.AccountID  `json:"actor_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}
