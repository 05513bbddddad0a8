package controllers

import (
	"context"
	"net/http"

	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/middleware"
	mqtingestor "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.IngestorService/ingestor"

	"github.com/gin-gonic/gin"
)

// MessageHandler is implemented by mqtingestor.Ingestor
type MessageHandler interface {
	Handle(ctx context.Context, msg mqtingestor.Message) mqtingestor.Outcome
}

// InternalController lets other services push broker-shaped messages over HTTP
type InternalController struct {
	handler MessageHandler
	secret  string
}

func NewInternalController(handler MessageHandler, secret string) *InternalController {
	return &InternalController{
		handler: handler,
		secret:  secret,
	}
}

// IngestRequest carries a topic and a raw payload exactly as a broker would deliver them
type IngestRequest struct {
	Topic   string `json:"topic" binding:"required"`
	Payload string `json:"payload"`
}

type IngestResponse struct {
	Outcome mqtingestor.Outcome `json:"outcome"`
	Stored  bool                `json:"stored"`
}

// RegisterRoutes registers the internal API routes
func (c *InternalController) RegisterRoutes(router *gin.Engine) {
	internal := router.Group("/internal")
	internal.Use(middleware.ServiceAuthMiddleware(c.secret))

	internal.POST("/ingest", c.Ingest)
}

// Ingest runs the message through the same pipeline as broker traffic
func (c *InternalController) Ingest(ctx *gin.Context) {
	var req IngestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	outcome := c.handler.Handle(ctx.Request.Context(), mqtingestor.Message{
		Topic:   req.Topic,
		Payload: []byte(req.Payload),
	})

	status := http.StatusUnprocessableEntity
	switch outcome {
	case mqtingestor.OutcomeStored:
		status = http.StatusCreated
	case mqtingestor.OutcomeStoreFailed, mqtingestor.OutcomePanic:
		status = http.StatusInternalServerError
	}

	ctx.JSON(status, IngestResponse{
		Outcome: outcome,
		Stored:  outcome == mqtingestor.OutcomeStored,
	})
}
