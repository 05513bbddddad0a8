package controllers

import (
	"context"
	"net/http"

	metrics "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Metrics"

	"github.com/gin-gonic/gin"
)

// StatusReporter is implemented by health.HealthChecker
type StatusReporter interface {
	GetHealthStatus(ctx context.Context) (map[string]interface{}, bool)
}

// HealthController serves liveness, readiness and Prometheus metrics
type HealthController struct {
	checker StatusReporter
	metrics *metrics.Metrics
}

func NewHealthController(checker StatusReporter, m *metrics.Metrics) *HealthController {
	return &HealthController{
		checker: checker,
		metrics: m,
	}
}

// RegisterRoutes registers the health routes with Gin
func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health/live", c.HealthLive)
	router.GET("/health/ready", c.HealthReady)
	router.GET("/metrics", gin.WrapH(c.metrics.Handler()))
}

func (c *HealthController) HealthLive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HealthReady fails with 503 while Postgres is unreachable or the broker is down
func (c *HealthController) HealthReady(ctx *gin.Context) {
	status, healthy := c.checker.GetHealthStatus(ctx.Request.Context())
	if !healthy {
		ctx.JSON(http.StatusServiceUnavailable, status)
		return
	}
	ctx.JSON(http.StatusOK, status)
}
