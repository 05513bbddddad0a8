package middleware

import (
	"errors"
	"net/http"
	"strings"

	jwt "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/jwt"
	rbac "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/rbac"
	api_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/api"

	"github.com/gin-gonic/gin"
)

// Gin context keys
const (
	ClaimsContextKey   = "claims"
	UserIDContextKey   = "user_id"
	UserRoleContextKey = "user_role"
)

var ErrNoClaims = errors.New("claims not found in context")

// AuthMiddleware provides middleware functions for authentication and authorization
type AuthMiddleware struct {
	jwtService *jwt.Service
	authorizer *rbac.Authorizer
	config     Config
}

// Config holds middleware configuration
type Config struct {
	AccessTokenHeader string
	// Optional cookie fallback when the header is absent
	AccessTokenCookie string
}

func DefaultConfig() Config {
	return Config{
		AccessTokenHeader: "Authorization",
		AccessTokenCookie: "access_token",
	}
}

func NewAuthMiddleware(jwtService *jwt.Service, authorizer *rbac.Authorizer, config Config) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		authorizer: authorizer,
		config:     config,
	}
}

// extractToken gets a token from either header or cookie
func extractToken(r *http.Request, headerName, cookieName string) string {
	token := r.Header.Get(headerName)
	if token != "" {
		if strings.HasPrefix(token, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
		}
		return token
	}

	if cookieName != "" {
		cookie, err := r.Cookie(cookieName)
		if err == nil {
			return cookie.Value
		}
	}

	return ""
}

// Authenticate verifies the access token and rejects revoked ones
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken := extractToken(c.Request, m.config.AccessTokenHeader, m.config.AccessTokenCookie)
		if accessToken == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		claims, err := m.jwtService.ValidateAccessToken(accessToken)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
			return
		}

		revoked, err := m.jwtService.IsRevoked(c.Request.Context(), claims.TokenID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Token store unavailable"})
			return
		}
		if revoked {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has been revoked"})
			return
		}

		c.Set(ClaimsContextKey, claims)
		c.Set(UserIDContextKey, claims.UserID)
		c.Set(UserRoleContextKey, claims.Role)

		c.Next()
	}
}

// RequireAdmin must run after Authenticate
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := GetClaims(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		if err := m.authorizer.RequireAdmin(claims); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}

		c.Next()
	}
}

// GetClaims returns the claims stored by Authenticate
func GetClaims(c *gin.Context) (*api_models.AccessClaims, error) {
	val, exists := c.Get(ClaimsContextKey)
	if !exists {
		return nil, ErrNoClaims
	}

	claims, ok := val.(*api_models.AccessClaims)
	if !ok || claims == nil {
		return nil, ErrNoClaims
	}

	return claims, nil
}
