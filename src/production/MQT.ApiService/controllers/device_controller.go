package controllers

import (
	"errors"
	"net/http"
	"strings"

	rbac "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/rbac"
	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/middleware"
	logger "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Logger"
	hardware_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/hardware"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"

	"github.com/gin-gonic/gin"
)

// DeviceController handles device management requests
type DeviceController struct {
	deviceRepo     interfaces.DeviceRepository
	authorizer     *rbac.Authorizer
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

func NewDeviceController(deviceRepo interfaces.DeviceRepository, authorizer *rbac.Authorizer, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *DeviceController {
	return &DeviceController{
		deviceRepo:     deviceRepo,
		authorizer:     authorizer,
		logger:         logger,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the device routes with Gin
func (c *DeviceController) RegisterRoutes(router *gin.Engine) {
	devices := router.Group("/api/v1/devices", c.authMiddleware.Authenticate())
	{
		devices.POST("/", c.CreateDevice)
		devices.GET("/", c.ListDevices)
		devices.GET("/:id", c.GetDevice)
		devices.DELETE("/:id", c.DeleteDevice)
	}
}

type CreateDeviceRequest struct {
	Name string `json:"name" binding:"required"`
}

func (c *DeviceController) CreateDevice(ctx *gin.Context) {
	claims, ok := callerClaims(ctx)
	if !ok {
		return
	}

	var req CreateDeviceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	device := &hardware_models.Device{Name: name, UserID: claims.UserID}
	err := c.deviceRepo.CreateDevice(ctx.Request.Context(), device)
	if errors.Is(err, interfaces.ErrDuplicate) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Device with this name already exists for the user."})
		return
	}
	if err != nil {
		c.logger.ErrorWithError(err, "Failed to create device")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusCreated, device)
}

// ListDevices returns the caller's devices, or every device for an admin
func (c *DeviceController) ListDevices(ctx *gin.Context) {
	claims, ok := callerClaims(ctx)
	if !ok {
		return
	}

	var (
		devices []hardware_models.Device
		err     error
	)
	if c.authorizer.IsAdmin(claims) {
		devices, err = c.deviceRepo.ListDevices(ctx.Request.Context())
	} else {
		devices, err = c.deviceRepo.ListDevicesByOwner(ctx.Request.Context(), claims.UserID)
	}
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, devices)
}

func (c *DeviceController) GetDevice(ctx *gin.Context) {
	device, ok := c.loadOwnedDevice(ctx)
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, device)
}

func (c *DeviceController) DeleteDevice(ctx *gin.Context) {
	device, ok := c.loadOwnedDevice(ctx)
	if !ok {
		return
	}

	if err := c.deviceRepo.DeleteDevice(ctx.Request.Context(), device.ID); err != nil {
		if isNotFound(err) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"deleted": true})
}

// loadOwnedDevice resolves :id and enforces ownership, writing 400/403/404 as needed
func (c *DeviceController) loadOwnedDevice(ctx *gin.Context) (*hardware_models.Device, bool) {
	claims, ok := callerClaims(ctx)
	if !ok {
		return nil, false
	}

	id, ok := idParam(ctx, "id")
	if !ok {
		return nil, false
	}

	device, err := c.deviceRepo.GetDeviceByID(ctx.Request.Context(), id)
	if err != nil {
		if isNotFound(err) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return nil, false
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}

	if !c.authorizer.CanAccess(claims, device.UserID) {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return nil, false
	}

	return device, true
}
