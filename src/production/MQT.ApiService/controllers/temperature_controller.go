package controllers

import (
	"math"
	"net/http"
	"strconv"
	"time"

	rbac "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/implementation/rbac"
	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/middleware"
	mqtingestor "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.IngestorService/ingestor"
	logger "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Logger"
	api_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/api"
	hardware_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/hardware"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"

	"github.com/gin-gonic/gin"
)

// TemperatureController serves stored readings. Admins see every device,
// users see only their own.
type TemperatureController struct {
	deviceRepo      interfaces.DeviceRepository
	temperatureRepo interfaces.TemperatureRepository
	authorizer      *rbac.Authorizer
	logger          *logger.Logger
	authMiddleware  *middleware.AuthMiddleware
	now             func() time.Time
}

func NewTemperatureController(deviceRepo interfaces.DeviceRepository, temperatureRepo interfaces.TemperatureRepository, authorizer *rbac.Authorizer, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *TemperatureController {
	return &TemperatureController{
		deviceRepo:      deviceRepo,
		temperatureRepo: temperatureRepo,
		authorizer:      authorizer,
		logger:          logger,
		authMiddleware:  authMiddleware,
		now:             time.Now,
	}
}

// RegisterRoutes registers the temperature routes with Gin
func (c *TemperatureController) RegisterRoutes(router *gin.Engine) {
	temps := router.Group("/temperatures", c.authMiddleware.Authenticate())
	{
		temps.POST("/", c.CreateTemperature)
		temps.GET("/", c.ListTemperatures)
		temps.GET("/latest/", c.GetLatest)
		temps.GET("/by_device_id/:device_id/", c.ListByDeviceID)
		temps.GET("/by_device_name/:device_name/", c.ListByDeviceName)
	}
}

type CreateTemperatureRequest struct {
	Temperature *float64 `json:"temperature"`
	Value       *float64 `json:"value"`
	Timestamp   *string  `json:"timestamp"`
	DeviceID    *int64   `json:"device_id"`
}

// CreateTemperature stores a reading for the named device, or the caller's first device
func (c *TemperatureController) CreateTemperature(ctx *gin.Context) {
	claims, ok := callerClaims(ctx)
	if !ok {
		return
	}

	var req CreateTemperatureRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	value := req.Temperature
	if value == nil {
		value = req.Value
	}
	if value == nil || math.IsNaN(*value) || math.IsInf(*value, 0) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "temperature must be a finite number"})
		return
	}

	ts := c.now().UTC()
	if req.Timestamp != nil {
		parsed, err := mqtingestor.ParseTimestamp(*req.Timestamp)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "timestamp must be ISO-8601"})
			return
		}
		ts = parsed
	}

	var device *hardware_models.Device
	if req.DeviceID != nil {
		device, ok = c.ownedDevice(ctx, claims, *req.DeviceID)
		if !ok {
			return
		}
	} else {
		owned, err := c.deviceRepo.ListDevicesByOwner(ctx.Request.Context(), claims.UserID)
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(owned) == 0 {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "no device registered for this user"})
			return
		}
		device = &owned[0]
	}

	temp := &hardware_models.Temperature{DeviceID: device.ID, Value: *value, Timestamp: ts}
	if err := c.temperatureRepo.CreateTemperature(ctx.Request.Context(), temp); err != nil {
		c.logger.ErrorWithError(err, "Failed to store temperature")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store temperature"})
		return
	}

	ctx.JSON(http.StatusCreated, temp)
}

// ListTemperatures returns every reading visible to the caller in insertion order
func (c *TemperatureController) ListTemperatures(ctx *gin.Context) {
	claims, ok := callerClaims(ctx)
	if !ok {
		return
	}

	var (
		temps []hardware_models.Temperature
		err   error
	)
	if c.authorizer.IsAdmin(claims) {
		temps, err = c.temperatureRepo.ListAll(ctx.Request.Context())
	} else {
		temps, err = c.temperatureRepo.ListByOwner(ctx.Request.Context(), claims.UserID)
	}
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, temps)
}

// GetLatest returns the newest reading by timestamp, optionally for one device
func (c *TemperatureController) GetLatest(ctx *gin.Context) {
	claims, ok := callerClaims(ctx)
	if !ok {
		return
	}

	var deviceID int64
	if raw := ctx.Query("device_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid device_id"})
			return
		}
		if _, ok := c.ownedDevice(ctx, claims, id); !ok {
			return
		}
		deviceID = id
	}

	owner := claims.UserID
	if c.authorizer.IsAdmin(claims) {
		owner = ""
	}

	temp, err := c.temperatureRepo.GetLatest(ctx.Request.Context(), owner, deviceID)
	if err != nil {
		if isNotFound(err) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "no temperatures found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, temp)
}

func (c *TemperatureController) ListByDeviceID(ctx *gin.Context) {
	claims, ok := callerClaims(ctx)
	if !ok {
		return
	}

	id, ok := idParam(ctx, "device_id")
	if !ok {
		return
	}

	if _, ok := c.ownedDevice(ctx, claims, id); !ok {
		return
	}

	temps, err := c.temperatureRepo.ListByDevice(ctx.Request.Context(), id)
	c.respondList(ctx, temps, err, "Temperatures not found for the given device ID")
}

// ListByDeviceName uses the oldest device carrying the name
func (c *TemperatureController) ListByDeviceName(ctx *gin.Context) {
	claims, ok := callerClaims(ctx)
	if !ok {
		return
	}

	name := ctx.Param("device_name")
	device, err := c.deviceRepo.FindDeviceByName(ctx.Request.Context(), name)
	if err != nil {
		if isNotFound(err) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Temperatures not found for the given device name"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !c.authorizer.CanAccess(claims, device.UserID) {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}

	temps, err := c.temperatureRepo.ListByDevice(ctx.Request.Context(), device.ID)
	c.respondList(ctx, temps, err, "Temperatures not found for the given device name")
}

func (c *TemperatureController) respondList(ctx *gin.Context, temps []hardware_models.Temperature, err error, notFound string) {
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(temps) == 0 {
		ctx.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	ctx.JSON(http.StatusOK, temps)
}

// ownedDevice loads a device and writes 404 or 403 when the caller may not use it
func (c *TemperatureController) ownedDevice(ctx *gin.Context, claims *api_models.AccessClaims, id int64) (*hardware_models.Device, bool) {
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
