package jwttoken

import (
	authmw "fleetops/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims converts verified claims to what the auth gate needs.
func ToMiddlewareClaims(claims *Claims) (*authmw.Claims, error) {
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, err
	}
	out := &authmw.Claims{
		AccountID: accountID,
		JTI:       claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// JWTServiceAdapter lets the auth gate verify access credentials without
// depending on this package.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

// VerifyAccess accepts only access credentials; refresh credentials fail.
func (a *JWTServiceAdapter) VerifyAccess(token string) (*authmw.Claims, error) {
	claims, err := a.service.Verify(token, KindAccess)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}
