// Package service implements credential issuance, rotation and revocation,
// and resolves authenticated identities from current account state.
package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fleetops/internal/auth/models"
	jwttoken "fleetops/internal/jwt_token"
	"fleetops/pkg/domain"
	"fleetops/pkg/platform/audit"
)

// AccountStore is the read side of identity management.
type AccountStore interface {
	FindByID(ctx context.Context, id domain.AccountID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
}

// RevocationStore records and looks up revoked credential hashes. Claim is
// the atomic form of Record: it reports whether this caller wrote the entry.
type RevocationStore interface {
	Record(ctx context.Context, hash string, expiresAt time.Time) error
	RecordMany(ctx context.Context, entries []models.RevocationEntry) error
	Claim(ctx context.Context, hash string, expiresAt time.Time) (bool, error)
	IsRevoked(ctx context.Context, hash string) (bool, error)
}

// TokenService issues and verifies signed credentials.
type TokenService interface {
	Issue(payload jwttoken.Payload, kind jwttoken.Kind) (string, time.Time, error)
	Verify(signed string, kind jwttoken.Kind) (*jwttoken.Claims, error)
	Inspect(signed string) (*jwttoken.Claims, error)
}

// AuditPublisher receives security and operations events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service ties the account store, revocation store and token service together.
type Service struct {
	accounts    AccountStore
	revocations RevocationStore
	tokens      TokenService
	auditor     AuditPublisher
	logger      *slog.Logger
	// dummyHash is compared against when the email is unknown so that
	// unknown and wrong-password logins cost the same.
	dummyHash []byte
}

// Option configures a Service.
type Option func(*Service)

// WithAuditPublisher sets the audit sink.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs the service.
func New(accounts AccountStore, revocations RevocationStore, tokens TokenService, opts ...Option) *Service {
	s := &Service{
		accounts:    accounts,
		revocations: revocations,
		tokens:      tokens,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("fleetops-dummy-password"), bcrypt.MinCost)
	return s
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"action", string(event.Action),
		)
	}
}
