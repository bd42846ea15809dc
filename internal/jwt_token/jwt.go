// Package jwttoken issues and verifies the signed session credentials
// handed to clients after login.
package jwttoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"fleetops/pkg/domain"
	dErrors "fleetops/pkg/domain-errors"
)

// Kind separates short-lived access credentials from refresh credentials.
// A credential of one kind never verifies as the other.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Verification failures. Callers map all three to the same client-facing
// reason; they stay distinct for logs and metrics.
var (
	ErrTokenMalformed = dErrors.New(dErrors.CodeUnauthorized, "malformed token")
	ErrTokenExpired   = dErrors.New(dErrors.CodeUnauthorized, "token has expired")
	ErrTokenInvalid   = dErrors.New(dErrors.CodeUnauthorized, "invalid token")
)

// Config is the immutable issuer configuration.
type Config struct {
	SigningKey string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Payload is the account snapshot embedded in a credential at issue time.
// Authorization never trusts it; identities are re-resolved per request.
type Payload struct {
	AccountID  domain.AccountID
	Email      string
	FirstName  string
	LastName   string
	Roles      []domain.Role
	LocationID domain.LocationID
}

// Claims represents the JWT claims of both credential kinds.
// The account id travels in the standard subject claim.
type Claims struct {
	Email      string   `json:"email"`
	FirstName  string   `json:"first_name,omitempty"`
	LastName   string   `json:"last_name,omitempty"`
	Roles      []string `json:"roles"`
	LocationID string   `json:"location_id,omitempty"`
	Kind       Kind     `json:"kind"`
	jwt.RegisteredClaims
}

// AccountID parses the subject claim.
func (c *Claims) AccountID() (domain.AccountID, error) {
	id, err := domain.ParseAccountID(c.Subject)
	if err != nil {
		return 0, ErrTokenInvalid
	}
	return id, nil
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      func() time.Time
}

// Option configures a JWTService.
type Option func(*JWTService)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(clock func() time.Time) Option {
	return func(s *JWTService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewJWTService builds a service from cfg. Zero lifetimes fall back to the defaults.
func NewJWTService(cfg Config, opts ...Option) *JWTService {
	s := &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		clock:      time.Now,
	}
	if s.accessTTL <= 0 {
		s.accessTTL = DefaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTTL
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// TTL returns the lifetime of credentials of the given kind.
func (s *JWTService) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return s.refreshTTL
	}
	return s.accessTTL
}

// Issue signs a credential of the given kind for payload and returns it with its expiry.
func (s *JWTService) Issue(payload Payload, kind Kind) (string, time.Time, error) {
	if payload.AccountID.IsZero() {
		return "", time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "account id is required")
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "unknown credential kind")
	}

	now := s.clock().Truncate(time.Second)
	expiresAt := now.Add(s.TTL(kind))

	roles := make([]string, 0, len(payload.Roles))
	for _, r := range payload.Roles {
		roles = append(roles, string(r))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:      payload.Email,
		FirstName:  payload.FirstName,
		LastName:   payload.LastName,
		Roles:      roles,
		LocationID: payload.LocationID.String(),
		Kind:       kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.AccountID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, expiry, issuer, audience and kind, in that order of
// precedence for the returned error.
func (s *JWTService) Verify(signed string, kind Kind) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.clock),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(signed, claims, s.keyFunc)
	if err != nil {
		return nil, classify(err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Kind != kind {
		return nil, ErrTokenInvalid
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// Inspect returns the claims of a credential whose signature is valid,
// ignoring expiry and other time-based claims. Used when revoking.
func (s *JWTService) Inspect(signed string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(signed, claims, s.keyFunc); err != nil {
		return nil, classify(err)
	}
	if claims.ExpiresAt == nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *JWTService) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrTokenUnverifiable
	}
	return s.signingKey, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}
