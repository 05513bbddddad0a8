package rbac

import (
	"errors"

	api_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/api"
)

var ErrForbidden = errors.New("insufficient permissions")

// Authorizer answers ownership questions for an authenticated caller
type Authorizer struct {
	rbacService *Service
}

func NewAuthorizer(rbacService *Service) *Authorizer {
	return &Authorizer{rbacService: rbacService}
}

// IsAdmin reports whether the caller has the admin role
func (a *Authorizer) IsAdmin(claims *api_models.AccessClaims) bool {
	return claims != nil && a.rbacService.IsAdmin(claims.Role)
}

// RequireAdmin fails unless the caller is an admin
func (a *Authorizer) RequireAdmin(claims *api_models.AccessClaims) error {
	if !a.IsAdmin(claims) {
		return ErrForbidden
	}
	return nil
}

// CanAccess reports whether the caller owns the resource or is an admin
func (a *Authorizer) CanAccess(claims *api_models.AccessClaims, resourceUserID string) bool {
	if claims == nil {
		return false
	}
	return a.IsAdmin(claims) || claims.UserID == resourceUserID
}

// RequireOwnerOrAdmin fails unless CanAccess holds
func (a *Authorizer) RequireOwnerOrAdmin(claims *api_models.AccessClaims, resourceUserID string) error {
	if !a.CanAccess(claims, resourceUserID) {
		return ErrForbidden
	}
	return nil
}
