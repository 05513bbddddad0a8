package controllers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/middleware"
	api_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/api"

	"github.com/gin-gonic/gin"
)

// idParam parses a positive integer path parameter and writes a 400 otherwise
func idParam(ctx *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// callerClaims writes a 401 when Authenticate did not run
func callerClaims(ctx *gin.Context) (*api_models.AccessClaims, bool) {
	claims, err := middleware.GetClaims(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return nil, false
	}
	return claims, true
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
