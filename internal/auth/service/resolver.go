package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"fleetops/pkg/domain"
	"fleetops/pkg/platform/sentinel"
)

var tracer = otel.Tracer("fleetops/auth/service")

// Resolve loads the account behind a verified credential and builds the
// request identity from its current roles and location. Nothing is cached:
// role changes and deactivation apply to the very next request.
func (s *Service) Resolve(ctx context.Context, accountID domain.AccountID) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "auth.resolve_identity")
	defer span.End()
	span.SetAttributes(attribute.Int64("account.id", int64(accountID)))

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrAccountNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "account lookup failed")
		return nil, fmt.Errorf("resolve account %s: %w", accountID, err)
	}
	if !account.Active {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrAccountInactive)
	}

	identity := account.Identity()
	return &identity, nil
}
