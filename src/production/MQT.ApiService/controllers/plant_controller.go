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

// PlantController handles plant management. Plants owned by someone else look missing.
type PlantController struct {
	plantRepo      interfaces.PlantRepository
	sensorRepo     interfaces.SensorRepository
	authorizer     *rbac.Authorizer
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

func NewPlantController(plantRepo interfaces.PlantRepository, sensorRepo interfaces.SensorRepository, authorizer *rbac.Authorizer, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *PlantController {
	return &PlantController{
		plantRepo:      plantRepo,
		sensorRepo:     sensorRepo,
		authorizer:     authorizer,
		logger:         logger,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the plant routes with Gin
func (c *PlantController) RegisterRoutes(router *gin.Engine) {
	plants := router.Group("/api/v1/plants", c.authMiddleware.Authenticate())
	{
		plants.POST("/", c.CreatePlant)
		plants.GET("/", c.ListPlants)
		plants.GET("/:id", c.GetPlant)
		plants.PUT("/:id", c.UpdatePlant)
		plants.DELETE("/:id", c.DeletePlant)
		plants.GET("/:id/sensors/", c.ListSensors)
	}
}

type PlantRequest struct {
	Name     string  `json:"name" binding:"required"`
	Location *string `json:"location"`
}

func (c *PlantController) CreatePlant(ctx *gin.Context) {
	claims, ok := callerClaims(ctx)
	if !ok {
		return
	}

	var req PlantRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plant := &hardware_models.Plant{
		Name:     strings.TrimSpace(req.Name),
		Location: req.Location,
		UserID:   claims.UserID,
	}
	if err := c.plantRepo.CreatePlant(ctx.Request.Context(), plant); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Plant with this name already exists for the user."})
			return
		}
		c.logger.ErrorWithError(err, "Failed to create plant")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusCreated, plant)
}

func (c *PlantController) ListPlants(ctx *gin.Context) {
	claims, ok := callerClaims(ctx)
	if !ok {
		return
	}

	plants, err := c.plantRepo.ListPlantsByUser(ctx.Request.Context(), claims.UserID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, plants)
}

func (c *PlantController) GetPlant(ctx *gin.Context) {
	plant, ok := c.loadPlant(ctx)
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, plant)
}

func (c *PlantController) UpdatePlant(ctx *gin.Context) {
	plant, ok := c.loadPlant(ctx)
	if !ok {
		return
	}

	var req PlantRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plant.Name = strings.TrimSpace(req.Name)
	plant.Location = req.Location
	if err := c.plantRepo.UpdatePlant(ctx.Request.Context(), plant); err != nil {
		switch {
		case errors.Is(err, interfaces.ErrDuplicate):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Plant with this name already exists for the user."})
		case isNotFound(err):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Plant not found"})
		default:
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	ctx.JSON(http.StatusOK, plant)
}

// DeletePlant also removes the plant's sensors and readings
func (c *PlantController) DeletePlant(ctx *gin.Context) {
	plant, ok := c.loadPlant(ctx)
	if !ok {
		return
	}

	if err := c.plantRepo.DeletePlant(ctx.Request.Context(), plant.ID); err != nil {
		if isNotFound(err) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Plant not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *PlantController) ListSensors(ctx *gin.Context) {
	plant, ok := c.loadPlant(ctx)
	if !ok {
		return
	}

	sensors, err := c.sensorRepo.ListSensorsByPlant(ctx.Request.Context(), plant.ID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, sensors)
}

func (c *PlantController) loadPlant(ctx *gin.Context) (*hardware_models.Plant, bool) {
	claims, ok := callerClaims(ctx)
	if !ok {
		return nil, false
	}

	id, ok := idParam(ctx, "id")
	if !ok {
		return nil, false
	}

	return ownedPlant(ctx, c.plantRepo, c.authorizer, claims, id)
}
