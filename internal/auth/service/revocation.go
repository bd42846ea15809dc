package service

import (
	"context"
	"fmt"

	"fleetops/internal/auth/models"
	"fleetops/internal/auth/tokenhash"
	jwttoken "fleetops/internal/jwt_token"
	"fleetops/pkg/domain"
	dErrors "fleetops/pkg/domain-errors"
	"fleetops/pkg/platform/audit"
	"fleetops/pkg/requestcontext"
)

// IsCredentialRevoked hashes the raw credential and consults the store.
func (s *Service) IsCredentialRevoked(ctx context.Context, raw string) (bool, error) {
	revoked, err := s.revocations.IsRevoked(ctx, tokenhash.Hash(raw))
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return revoked, nil
}

// RevokeCredential invalidates a credential of either kind until its natural
// expiry. Only credentials carrying a valid signature can be revoked.
// Revoking an already expired credential succeeds without storing anything.
func (s *Service) RevokeCredential(ctx context.Context, raw string, reason models.RevocationReason) error {
	if raw == "" {
		return dErrors.New(dErrors.CodeBadRequest, "token is required")
	}
	claims, err := s.tokens.Inspect(raw)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid token")
	}
	return s.record(ctx, raw, claims, reason)
}

// record stores the revocation entry and emits the audit event. A
// credential without a usable subject is rejected before anything is stored.
func (s *Service) record(ctx context.Context, raw string, claims *jwttoken.Claims, reason models.RevocationReason) error {
	owner, err := claims.AccountID()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid token")
	}
	if err := s.revocations.Record(ctx, tokenhash.Hash(raw), claims.ExpiresAt.Time); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	s.emitRevoked(ctx, owner, claims.Kind, reason)
	return nil
}

func (s *Service) emitRevoked(ctx context.Context, owner domain.AccountID, kind jwttoken.Kind, reason models.RevocationReason) {
	s.emit(ctx, audit.Event{
		Action:    audit.EventCredentialRevoked,
		AccountID: owner,
		ActorID:   requestcontext.AccountID(ctx),
		Reason:    reason.String(),
		Detail:    map[string]string{"kind": string(kind)},
	})
}
