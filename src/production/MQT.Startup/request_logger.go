package main

import (
	"time"

	"github.com/gin-gonic/gin"
	logger "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Logger"
)

// requestLogger replaces gin.Logger so access logs share the zerolog output
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	httpLog := log.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := httpLog.Logger.Info()
		if status >= 500 {
			event = httpLog.Logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
