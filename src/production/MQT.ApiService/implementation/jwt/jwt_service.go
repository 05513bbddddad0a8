package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
	api_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/api"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token has been revoked")
)

// Service provides JWT operations
type Service struct {
	config      api_models.Config
	revocations interfaces.TokenRevocationRepository
	now         func() time.Time
}

// NewService creates a new JWT service. revocations may be nil, in which case logout is a no-op.
func NewService(config api_models.Config, revocations interfaces.TokenRevocationRepository) *Service {
	return &Service{
		config:      config,
		revocations: revocations,
		now:         time.Now,
	}
}

// GenerateTokens creates an access and refresh token sharing one token id
func (s *Service) GenerateTokens(userID, username, role string) (*api_models.TokenPair, error) {
	tokenID := uuid.New().String()
	now := s.now()
	expiresAt := now.Add(s.config.AccessTokenDuration)
	refreshExpiresAt := now.Add(s.config.RefreshTokenDuration)

	accessClaims := api_models.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
			ID:        tokenID,
		},
		UserID:    userID,
		Role:      role,
		TokenID:   tokenID,
		TokenType: api_models.TokenTypeAccess,
	}

	refreshClaims := api_models.RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(refreshExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
			ID:        tokenID,
		},
		UserID:    userID,
		TokenID:   tokenID,
		TokenType: api_models.TokenTypeRefresh,
	}

	accessTokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return nil, err
	}

	refreshTokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return nil, err
	}

	return &api_models.TokenPair{
		AccessToken:      accessTokenString,
		RefreshToken:     refreshTokenString,
		TokenID:          tokenID,
		ExpiresAt:        expiresAt.Unix(),
		RefreshExpiresAt: refreshExpiresAt.Unix(),
	}, nil
}

func (s *Service) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return []byte(s.config.SecretKey), nil
}

func (s *Service) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	return opts
}

// ValidateAccessToken checks signature, expiry and issuer and returns the claims
func (s *Service) ValidateAccessToken(tokenString string) (*api_models.AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &api_models.AccessClaims{}, s.keyFunc, s.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*api_models.AccessClaims); ok && token.Valid && claims.UserID != "" && claims.TokenType == api_models.TokenTypeAccess {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// ValidateRefreshToken validates a refresh token and returns the claims
func (s *Service) ValidateRefreshToken(tokenString string) (*api_models.RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &api_models.RefreshClaims{}, s.keyFunc, s.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*api_models.RefreshClaims); ok && token.Valid && claims.UserID != "" && claims.TokenType == api_models.TokenTypeRefresh {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// IsRevoked reports whether the token id was logged out
func (s *Service) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if s.revocations == nil || tokenID == "" {
		return false, nil
	}
	return s.revocations.IsRevoked(ctx, tokenID)
}

// Revoke blocks a token id until the refresh token sharing it would have expired
func (s *Service) Revoke(ctx context.Context, tokenID string, issuedAt time.Time) error {
	if s.revocations == nil {
		return nil
	}
	ttl := issuedAt.Add(s.config.RefreshTokenDuration).Sub(s.now())
	return s.revocations.Revoke(ctx, tokenID, ttl)
}

// RefreshTokens issues a new pair for the user named by a valid, unrevoked refresh token
func (s *Service) RefreshTokens(ctx context.Context, refreshTokenString string, userRepo interfaces.UserRepository) (*api_models.TokenPair, error) {
	refreshClaims, err := s.ValidateRefreshToken(refreshTokenString)
	if err != nil {
		return nil, err
	}

	revoked, err := s.IsRevoked(ctx, refreshClaims.TokenID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	user, err := userRepo.GetByID(ctx, refreshClaims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, errors.New("user not found")
	}

	newTokens, err := s.GenerateTokens(user.UserID, user.Username, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate new tokens: %w", err)
	}

	return newTokens, nil
}
