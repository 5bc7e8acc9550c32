package handler

import (
	"net/http"

	"async-payment-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// HealthCheck returns a handler that pings each dependency and reports
// aggregate health. Any failing dependency degrades the response to 503.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		status := http.StatusOK
		overall := "healthy"
		deps := make(map[string]string, len(checkers))

		for _, checker := range checkers {
			if err := checker.Ping(ctx); err != nil {
				deps[checker.Name()] = "unhealthy: " + err.Error()
				overall = "degraded"
				status = http.StatusServiceUnavailable
			} else {
				deps[checker.Name()] = "healthy"
			}
		}

		c.JSON(status, gin.H{
			"status":       overall,
			"dependencies": deps,
		})
	}
}
