package jwttoken

import (
	"lexlink/internal/platform/middleware"
	dErrors "lexlink/pkg/domain-errors"
)

// CallerValidator narrows validated tokens to the caller identity the auth
// middleware needs.
type CallerValidator struct {
	service *JWTService
}

var _ middleware.JWTValidator = (*CallerValidator)(nil)

func NewCallerValidator(service *JWTService) *CallerValidator {
	return &CallerValidator{service: service}
}

// ValidateToken rejects tokens that carry no identity or role, leaving
// format checks of both to the middleware.
func (v *CallerValidator) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := v.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.Role == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token missing caller claims")
	}
	return &middleware.JWTClaims{UserID: claims.UserID, Role: claims.Role}, nil
}
