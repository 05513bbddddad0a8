package auth

import (
	"context"
	"fmt"

	logger "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Logger"
	auth_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/auth"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"

	"golang.org/x/crypto/bcrypt"
)

// AdminConfig holds admin user configuration
type AdminConfig struct {
	Username string
	Email    string
	Password string
}

// AdminInitializer creates the first admin account on an empty installation
type AdminInitializer struct {
	userRepo    interfaces.UserRepository
	logger      *logger.Logger
	adminConfig AdminConfig
}

func NewAdminInitializer(userRepo interfaces.UserRepository, logger *logger.Logger, adminConfig AdminConfig) *AdminInitializer {
	return &AdminInitializer{
		userRepo:    userRepo,
		logger:      logger,
		adminConfig: adminConfig,
	}
}

// InitializeAdminUser creates the first admin user if no admin users exist.
// Without configured credentials it does nothing.
func (s *AdminInitializer) InitializeAdminUser(ctx context.Context) error {
	if s.adminConfig.Username == "" || s.adminConfig.Password == "" {
		s.logger.Logger.Info().Msg("ADMIN_USERNAME/ADMIN_PASSWORD not set, skipping admin bootstrap")
		return nil
	}

	adminUsers, err := s.userRepo.GetByRole(ctx, auth_models.RoleAdmin)
	if err != nil {
		return err
	}
	if len(adminUsers) > 0 {
		s.logger.Logger.Info().Int("count", len(adminUsers)).Msg("Admin users already exist, skipping admin user creation")
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(s.adminConfig.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	adminUser := auth_models.NewUser(s.adminConfig.Username, s.adminConfig.Email, string(hashedPassword), auth_models.RoleAdmin)
	if _, err := s.userRepo.Create(ctx, adminUser); err != nil {
		return err
	}

	s.logger.Logger.Info().Str("username", s.adminConfig.Username).Msg("First admin user created")
	s.logger.Logger.Warn().Msg("Change the admin password after first login")

	return nil
}
