package controllers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
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

// SensorController handles sensors and their readings. Access follows the owning plant.
type SensorController struct {
	plantRepo      interfaces.PlantRepository
	sensorRepo     interfaces.SensorRepository
	readingRepo    interfaces.SensorReadingRepository
	authorizer     *rbac.Authorizer
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
	now            func() time.Time
}

func NewSensorController(plantRepo interfaces.PlantRepository, sensorRepo interfaces.SensorRepository, readingRepo interfaces.SensorReadingRepository, authorizer *rbac.Authorizer, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *SensorController {
	return &SensorController{
		plantRepo:      plantRepo,
		sensorRepo:     sensorRepo,
		readingRepo:    readingRepo,
		authorizer:     authorizer,
		logger:         logger,
		authMiddleware: authMiddleware,
		now:            time.Now,
	}
}

// RegisterRoutes registers the sensor and sensor reading routes with Gin
func (c *SensorController) RegisterRoutes(router *gin.Engine) {
	sensors := router.Group("/api/v1/sensors", c.authMiddleware.Authenticate())
	{
		sensors.POST("/", c.CreateSensor)
		sensors.GET("/:id", c.GetSensor)
		sensors.PUT("/:id", c.UpdateSensor)
		sensors.DELETE("/:id", c.DeleteSensor)
		sensors.GET("/:id/readings/", c.ListReadings)
	}

	router.POST("/api/v1/sensor-readings/", c.authMiddleware.Authenticate(), c.CreateReading)
}

type CreateSensorRequest struct {
	Type    string `json:"type" binding:"required"`
	Unit    string `json:"unit" binding:"required"`
	PlantID int64  `json:"plant_id" binding:"required"`
}

type UpdateSensorRequest struct {
	Type *string `json:"type"`
	Unit *string `json:"unit"`
}

type CreateReadingRequest struct {
	Value     *float64 `json:"value" binding:"required"`
	Timestamp *string  `json:"timestamp"`
}

func (c *SensorController) CreateSensor(ctx *gin.Context) {
	claims, ok := callerClaims(ctx)
	if !ok {
		return
	}

	var req CreateSensorRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, ok := ownedPlant(ctx, c.plantRepo, c.authorizer, claims, req.PlantID); !ok {
		return
	}

	sensor := &hardware_models.Sensor{
		Type:    strings.TrimSpace(req.Type),
		Unit:    strings.TrimSpace(req.Unit),
		PlantID: req.PlantID,
	}
	if err := c.sensorRepo.CreateSensor(ctx.Request.Context(), sensor); err != nil {
		if errors.Is(err, interfaces.ErrReferenceMissing) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Plant not found"})
			return
		}
		c.logger.ErrorWithError(err, "Failed to create sensor")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusCreated, sensor)
}

func (c *SensorController) GetSensor(ctx *gin.Context) {
	sensor, ok := c.loadSensor(ctx, ctx.Param("id"))
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, sensor)
}

func (c *SensorController) UpdateSensor(ctx *gin.Context) {
	sensor, ok := c.loadSensor(ctx, ctx.Param("id"))
	if !ok {
		return
	}

	var req UpdateSensorRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Type != nil {
		sensor.Type = strings.TrimSpace(*req.Type)
	}
	if req.Unit != nil {
		sensor.Unit = strings.TrimSpace(*req.Unit)
	}

	if err := c.sensorRepo.UpdateSensor(ctx.Request.Context(), sensor); err != nil {
		if isNotFound(err) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Sensor not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, sensor)
}

func (c *SensorController) DeleteSensor(ctx *gin.Context) {
	sensor, ok := c.loadSensor(ctx, ctx.Param("id"))
	if !ok {
		return
	}

	if err := c.sensorRepo.DeleteSensor(ctx.Request.Context(), sensor.ID); err != nil {
		if isNotFound(err) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Sensor not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Sensor with ID " + strconv.FormatInt(sensor.ID, 10) + " deleted successfully"})
}

// ListReadings returns a sensor's readings, newest first
func (c *SensorController) ListReadings(ctx *gin.Context) {
	sensor, ok := c.loadSensor(ctx, ctx.Param("id"))
	if !ok {
		return
	}

	readings, err := c.readingRepo.ListReadingsBySensor(ctx.Request.Context(), sensor.ID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, readings)
}

// CreateReading takes the sensor from the sensor_id query parameter
func (c *SensorController) CreateReading(ctx *gin.Context) {
	sensor, ok := c.loadSensor(ctx, ctx.Query("sensor_id"))
	if !ok {
		return
	}

	var req CreateReadingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if math.IsNaN(*req.Value) || math.IsInf(*req.Value, 0) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "value must be a finite number"})
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

	reading := &hardware_models.SensorReading{SensorID: sensor.ID, Value: *req.Value, Timestamp: ts}
	if err := c.readingRepo.CreateSensorReading(ctx.Request.Context(), reading); err != nil {
		if errors.Is(err, interfaces.ErrReferenceMissing) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Sensor not found"})
			return
		}
		c.logger.ErrorWithError(err, "Failed to store sensor reading")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusCreated, reading)
}

// loadSensor parses rawID and checks the sensor's plant belongs to the caller
func (c *SensorController) loadSensor(ctx *gin.Context, rawID string) (*hardware_models.Sensor, bool) {
	claims, ok := callerClaims(ctx)
	if !ok {
		return nil, false
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid sensor id"})
		return nil, false
	}

	sensor, err := c.sensorRepo.GetSensor(ctx.Request.Context(), id)
	if err != nil {
		if isNotFound(err) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Sensor not found"})
			return nil, false
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}

	plant, err := c.plantRepo.GetPlant(ctx.Request.Context(), sensor.PlantID)
	if err != nil && !isNotFound(err) {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if err != nil || !c.authorizer.CanAccess(claims, plant.UserID) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Sensor not found"})
		return nil, false
	}

	return sensor, true
}

// ownedPlant loads a plant, reporting a plant owned by someone else as missing
func ownedPlant(ctx *gin.Context, plantRepo interfaces.PlantRepository, authorizer *rbac.Authorizer, claims *api_models.AccessClaims, id int64) (*hardware_models.Plant, bool) {
	plant, err := plantRepo.GetPlant(ctx.Request.Context(), id)
	if err != nil {
		if isNotFound(err) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Plant not found"})
			return nil, false
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}

	if !authorizer.CanAccess(claims, plant.UserID) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Plant not found"})
		return nil, false
	}

	return plant, true
}
