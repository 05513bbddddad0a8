package controllers

import (
	"errors"
	"net/http"
	"time"

	service "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/auth"
	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/middleware"
	logger "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Logger"
	api_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/api"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"

	"github.com/gin-gonic/gin"
)

const refreshCookie = "refresh_token"

// AuthController handles registration, login and the caller's own profile
type AuthController struct {
	authService    *service.AuthService
	authMiddleware *middleware.AuthMiddleware
	logger         *logger.Logger
	secureCookies  bool
}

func NewAuthController(authService *service.AuthService, authMiddleware *middleware.AuthMiddleware, logger *logger.Logger, secureCookies bool) *AuthController {
	return &AuthController{
		authService:    authService,
		authMiddleware: authMiddleware,
		logger:         logger,
		secureCookies:  secureCookies,
	}
}

// RegisterRoutes registers the auth routes with Gin
func (h *AuthController) RegisterRoutes(router *gin.Engine) {
	router.POST("/token", h.Login)

	auth := router.Group("/api/auth")
	{
		auth.POST("/refresh", h.RefreshTokens)
		auth.POST("/logout", h.authMiddleware.Authenticate(), h.Logout)
	}

	users := router.Group("/api/v1/users")
	{
		users.POST("/", h.Register)
		users.GET("/me", h.authMiddleware.Authenticate(), h.Profile)
		users.PATCH("/me", h.authMiddleware.Authenticate(), h.UpdateProfile)
	}
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}

func (h *AuthController) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req)
	switch {
	case errors.Is(err, interfaces.ErrDuplicate):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username already registered"})
		return
	case errors.Is(err, service.ErrWeakPassword), errors.Is(err, service.ErrInvalidUsername):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.ErrorWithError(err, "Failed to register user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		return
	}

	c.JSON(http.StatusCreated, userResponse{
		ID:       user.UserID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
		Active:   user.Active,
	})
}

// Login accepts an OAuth2 password form or a JSON body
func (h *AuthController) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBind(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, tokenPair, err := h.authService.Login(c.Request.Context(), req)
	if errors.Is(err, service.ErrInvalidCredentials) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Incorrect username or password"})
		return
	}
	if err != nil {
		h.logger.ErrorWithError(err, "Login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	h.setRefreshCookie(c, tokenPair)
	c.JSON(http.StatusOK, api_models.TokenResponse{
		AccessToken: tokenPair.AccessToken,
		TokenType:   "bearer",
		TokenID:     tokenPair.TokenID,
		ExpiresAt:   tokenPair.ExpiresAt,
		UserID:      user.UserID,
		Username:    user.Username,
		Role:        user.Role,
	})
}

// RefreshTokens reads the refresh token from its cookie or a JSON body
func (h *AuthController) RefreshTokens(c *gin.Context) {
	refreshToken, err := c.Cookie(refreshCookie)
	if err != nil || refreshToken == "" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if bindErr := c.ShouldBindJSON(&body); bindErr != nil || body.RefreshToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token not found"})
			return
		}
		refreshToken = body.RefreshToken
	}

	tokenPair, err := h.authService.RefreshTokens(c.Request.Context(), refreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	h.setRefreshCookie(c, tokenPair)
	c.JSON(http.StatusOK, gin.H{
		"access_token": tokenPair.AccessToken,
		"token_type":   "bearer",
		"token_id":     tokenPair.TokenID,
		"expires_at":   tokenPair.ExpiresAt,
	})
}

func (h *AuthController) Logout(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}

	if err := h.authService.Logout(c.Request.Context(), claims); err != nil {
		h.logger.ErrorWithError(err, "Failed to revoke token")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to revoke token"})
		return
	}

	c.SetCookie(refreshCookie, "", -1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *AuthController) Profile(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}

	user, err := h.authService.GetUserByID(c.Request.Context(), claims.UserID)
	if errors.Is(err, service.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *AuthController) UpdateProfile(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}

	var req service.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.authService.UpdateProfile(c.Request.Context(), claims.UserID, req)
	switch {
	case errors.Is(err, service.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *AuthController) setRefreshCookie(c *gin.Context, tokenPair *api_models.TokenPair) {
	maxAge := int(time.Until(time.Unix(tokenPair.RefreshExpiresAt, 0)).Seconds())
	c.SetCookie(refreshCookie, tokenPair.RefreshToken, maxAge, "/", "", h.secureCookies, true)
}
