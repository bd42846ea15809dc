package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"fleetops/internal/auth/models"
	"fleetops/internal/auth/tokenhash"
	jwttoken "fleetops/internal/jwt_token"
	"fleetops/pkg/domain"
	dErrors "fleetops/pkg/domain-errors"
	"fleetops/pkg/platform/audit"
	"fleetops/pkg/platform/sentinel"
	"fleetops/pkg/requestcontext"
)

const tokenTypeBearer = "Bearer"

var errInvalidLogin = dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")

// Login checks the password and issues an access and refresh credential.
// Unknown emails, wrong passwords and inactive accounts are indistinguishable
// to the caller.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.TokenPair, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "email and password are required")
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
		s.emit(ctx, audit.Event{Action: audit.EventLoginFailed, Reason: "unknown_email"})
		return nil, errInvalidLogin
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		s.emit(ctx, audit.Event{Action: audit.EventLoginFailed, AccountID: account.ID, Reason: "wrong_password"})
		return nil, errInvalidLogin
	}
	if !account.Active {
		s.emit(ctx, audit.Event{Action: audit.EventLoginFailed, AccountID: account.ID, Reason: "account_inactive"})
		return nil, errInvalidLogin
	}

	pair, err := s.issuePair(account)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.Event{Action: audit.EventTokenIssued, AccountID: account.ID})
	return pair, nil
}

// Refresh exchanges a refresh credential for a new pair and revokes the
// presented one. The account is re-resolved so deactivation stops refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if refreshToken == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "refresh token is required")
	}

	revoked, err := s.IsCredentialRevoked(ctx, refreshToken)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check revocation")
	}
	claims, err := s.tokens.Verify(refreshToken, jwttoken.KindRefresh)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid or expired refresh token")
	}
	if revoked {
		s.emit(ctx, audit.Event{Action: audit.EventAuthFailed, Reason: "refresh_revoked"})
		return nil, dErrors.New(dErrors.CodeUnauthorized, "refresh token has been revoked")
	}

	accountID, err := claims.AccountID()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid or expired refresh token")
	}
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(domain.ErrAccountNotFound, dErrors.CodeUnauthorized, "account unavailable")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if !account.Active {
		return nil, dErrors.Wrap(domain.ErrAccountInactive, dErrors.CodeUnauthorized, "account unavailable")
	}

	// Only the caller that writes the revocation entry may mint a new pair.
	claimed, err := s.revocations.Claim(ctx, tokenhash.Hash(refreshToken), claims.ExpiresAt.Time)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to rotate refresh token")
	}
	if !claimed {
		s.emit(ctx, audit.Event{Action: audit.EventAuthFailed, AccountID: account.ID, Reason: "refresh_reused"})
		return nil, dErrors.New(dErrors.CodeUnauthorized, "refresh token has been revoked")
	}
	s.emitRevoked(ctx, account.ID, claims.Kind, models.RevocationReasonRotated)

	pair, err := s.issuePair(account)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.Event{Action: audit.EventTokenRefreshed, AccountID: account.ID})
	return pair, nil
}

// Logout revokes the credential that authenticated the request and, when
// supplied, the caller's refresh credential, in one batch. A refresh
// credential that does not belong to the caller is ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	identity, ok := requestcontext.Identity(ctx)
	if !ok {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	var (
		entries []models.RevocationEntry
		kinds   []jwttoken.Kind
	)
	if cred, ok := requestcontext.PresentedCredential(ctx); ok && cred.Raw != "" {
		entries = append(entries, models.RevocationEntry{Hash: tokenhash.Hash(cred.Raw), ExpiresAt: cred.ExpiresAt})
		kinds = append(kinds, jwttoken.KindAccess)
	}
	if claims := s.ownRefreshClaims(ctx, identity.AccountID, refreshToken); claims != nil {
		entries = append(entries, models.RevocationEntry{Hash: tokenhash.Hash(refreshToken), ExpiresAt: claims.ExpiresAt.Time})
		kinds = append(kinds, jwttoken.KindRefresh)
	}
	if len(entries) == 0 {
		return nil
	}

	if err := s.revocations.RecordMany(ctx, entries); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke credentials")
	}
	for _, kind := range kinds {
		s.emitRevoked(ctx, identity.AccountID, kind, models.RevocationReasonLogout)
	}
	return nil
}

// ownRefreshClaims returns the claims of refreshToken when it is a signed
// refresh credential issued to owner, and nil otherwise.
func (s *Service) ownRefreshClaims(ctx context.Context, owner domain.AccountID, refreshToken string) *jwttoken.Claims {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.Inspect(refreshToken)
	if err != nil {
		s.logger.WarnContext(ctx, "logout with unusable refresh token",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil
	}
	subject, err := claims.AccountID()
	if err != nil || subject != owner || claims.Kind != jwttoken.KindRefresh {
		s.logger.WarnContext(ctx, "logout refresh token does not belong to caller",
			"account_id", owner.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil
	}
	return claims
}

func (s *Service) issuePair(account *models.Account) (*models.TokenPair, error) {
	payload := jwttoken.Payload{
		AccountID:  account.ID,
		Email:      account.Email,
		FirstName:  account.FirstName,
		LastName:   account.LastName,
		Roles:      account.Roles,
		LocationID: account.LocationID,
	}
	access, accessExp, err := s.tokens.Issue(payload, jwttoken.KindAccess)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}
	refresh, refreshExp, err := s.tokens.Issue(payload, jwttoken.KindRefresh)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue refresh token")
	}
	return &models.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		TokenType:        tokenTypeBearer,
	}, nil
}
