package rbac

import (
	"sort"

	auth_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/auth"
)

// Service knows the fixed set of roles
type Service struct {
	roles map[string]bool
}

func NewService() *Service {
	return &Service{
		roles: map[string]bool{
			auth_models.RoleAdmin: true,
			auth_models.RoleUser:  true,
		},
	}
}

func (s *Service) IsValidRole(roleName string) bool {
	return s.roles[roleName]
}

func (s *Service) IsAdmin(roleName string) bool {
	return roleName == auth_models.RoleAdmin
}

// GetValidRoles returns the roles in a stable order
func (s *Service) GetValidRoles() []string {
	roles := make([]string, 0, len(s.roles))
	for role := range s.roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
