package controllers

import (
	"errors"
	"net/http"

	service "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/auth"
	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/middleware"

	"github.com/gin-gonic/gin"
)

// UserController handles admin user management requests
type UserController struct {
	userService    *service.UserService
	authMiddleware *middleware.AuthMiddleware
}

func NewUserController(userService *service.UserService, authMiddleware *middleware.AuthMiddleware) *UserController {
	return &UserController{
		userService:    userService,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the user routes with Gin
func (h *UserController) RegisterRoutes(router *gin.Engine) {
	admin := router.Group("/api/v1/users", h.authMiddleware.Authenticate(), h.authMiddleware.RequireAdmin())
	{
		admin.GET("/", h.GetAllUsers)
		admin.PATCH("/:id/role", h.UpdateUserRole)
		admin.PATCH("/:id/active", h.SetActive)
	}
}

func (h *UserController) GetAllUsers(c *gin.Context) {
	users, err := h.userService.GetAllUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, users)
}

func (h *UserController) UpdateUserRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userService.UpdateUserRole(c.Request.Context(), c.Param("id"), req.Role)
	h.respond(c, user, err)
}

func (h *UserController) SetActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userService.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	h.respond(c, user, err)
}

func (h *UserController) respond(c *gin.Context, user interface{}, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserNotFound), isNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, user)
	}
}
