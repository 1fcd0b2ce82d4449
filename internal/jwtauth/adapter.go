package jwtauth

import (
	"cratekeeper/internal/platform/middleware"
	id "cratekeeper/pkg/domain"
	dErrors "cratekeeper/pkg/domain-errors"
)

// MiddlewareAdapter bridges the JWT service to the auth middleware's
// TokenValidator interface, parsing string claims into typed identifiers.
type MiddlewareAdapter struct {
	service *Service
}

func NewMiddlewareAdapter(service *Service) *MiddlewareAdapter {
	return &MiddlewareAdapter{service: service}
}

func (a *MiddlewareAdapter) ValidateToken(tokenString string) (*middleware.TokenClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ParseClaims(claims)
}

// ParseClaims converts raw string claims into typed middleware claims. A token
// carrying a malformed ID or unknown role is treated as unauthorized rather
// than invalid input: it was signed by us, so malformation means tampering or
// a version skew, not a user mistake.
func ParseClaims(claims *Claims) (*middleware.TokenClaims, error) {
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	unitID, err := id.ParseUnitID(claims.UnitID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	role, err := id.ParseRole(claims.Role)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return &middleware.TokenClaims{
		UserID:    userID,
		UnitID:    unitID,
		Role:      role,
		SessionID: claims.ID,
	}, nil
}
