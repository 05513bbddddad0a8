package auth

import (
	"context"
	"errors"

	rbac "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/rbac"
	auth_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/auth"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"
)

var ErrInvalidRole = errors.New("invalid role")

// UserService provides admin user management operations
type UserService struct {
	userRepo    interfaces.UserRepository
	rbacService *rbac.Service
}

func NewUserService(userRepo interfaces.UserRepository, rbacService *rbac.Service) *UserService {
	return &UserService{
		userRepo:    userRepo,
		rbacService: rbacService,
	}
}

func (s *UserService) GetAllUsers(ctx context.Context) ([]*auth_models.User, error) {
	return s.userRepo.GetAll(ctx)
}

// UpdateUserRole changes a user's role; the role must be known to rbac
func (s *UserService) UpdateUserRole(ctx context.Context, userID string, newRole string) (*auth_models.User, error) {
	if !s.rbacService.IsValidRole(newRole) {
		return nil, ErrInvalidRole
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	user.Role = newRole
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// SetActive enables or disables login for a user
func (s *UserService) SetActive(ctx context.Context, userID string, active bool) (*auth_models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	user.Active = active
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}
