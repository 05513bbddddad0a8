package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jwt "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/jwt"
	api_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/api"
	auth_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/auth"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrWeakPassword       = errors.New("password is too short")
	ErrInvalidUsername    = errors.New("username is required")
	ErrUserNotFound       = errors.New("user not found")
)

// AuthService aggregates auth operations
type AuthService struct {
	userRepo          interfaces.UserRepository
	jwtService        *jwt.Service
	passwordMinLength int
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// ProfileUpdate carries the fields a user may change on their own account
type ProfileUpdate struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func NewAuthService(userRepo interfaces.UserRepository, jwtService *jwt.Service, passwordMinLength int) *AuthService {
	return &AuthService{
		userRepo:          userRepo,
		jwtService:        jwtService,
		passwordMinLength: passwordMinLength,
	}
}

// Register creates a regular user. A taken username yields interfaces.ErrDuplicate.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*auth_models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, ErrInvalidUsername
	}
	if len(req.Password) < s.passwordMinLength {
		return nil, fmt.Errorf("%w: minimum %d characters", ErrWeakPassword, s.passwordMinLength)
	}

	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("username %q: %w", username, interfaces.ErrDuplicate)
	}

	hashedPassword, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := auth_models.NewUser(username, strings.TrimSpace(req.Email), hashedPassword, auth_models.RoleUser)
	return s.userRepo.Create(ctx, user)
}

// Login authenticates a user and returns tokens
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*auth_models.User, *api_models.TokenPair, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		return nil, nil, err
	}
	if user == nil || !user.Active {
		return nil, nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	tokenPair, err := s.jwtService.GenerateTokens(user.UserID, user.Username, user.Role)
	if err != nil {
		return nil, nil, err
	}

	return user, tokenPair, nil
}

// RefreshTokens exchanges a refresh token for a new pair
func (s *AuthService) RefreshTokens(ctx context.Context, refreshToken string) (*api_models.TokenPair, error) {
	return s.jwtService.RefreshTokens(ctx, refreshToken, s.userRepo)
}

// Logout revokes the token id shared by the caller's access and refresh tokens
func (s *AuthService) Logout(ctx context.Context, claims *api_models.AccessClaims) error {
	if claims.IssuedAt == nil {
		return s.jwtService.Revoke(ctx, claims.TokenID, claims.ExpiresAt.Time)
	}
	return s.jwtService.Revoke(ctx, claims.TokenID, claims.IssuedAt.Time)
}

// GetUserByID returns ErrUserNotFound on a miss
func (s *AuthService) GetUserByID(ctx context.Context, userID string) (*auth_models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of update
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*auth_models.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if update.Email != nil {
		user.Email = strings.TrimSpace(*update.Email)
	}
	if update.Password != nil {
		if len(*update.Password) < s.passwordMinLength {
			return nil, fmt.Errorf("%w: minimum %d characters", ErrWeakPassword, s.passwordMinLength)
		}
		hashed, err := s.HashPassword(*update.Password)
		if err != nil {
			return nil, err
		}
		user.Password = hashed
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// HashPassword hashes a password using bcrypt
func (s *AuthService) HashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}
