package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/triutilizer/backend/internal/sim"
)

var startTime = time.Now()

const version = "1.4.0"

// HealthCheck returns server health status
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "triutilizer-api",
		"version": version,
		"uptime":  time.Since(startTime).String(),
	})
}

// Status returns a richer liveness view including pool and simulation counts
func Status(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		settings := m.SolverSettings()

		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"service":     "triutilizer-api",
			"version":     version,
			"uptime":      time.Since(startTime).String(),
			"pool":        m.Pool().Stats(),
			"simulations": m.StatusCounts(),
			"parallel":    settings.ParallelEnabled,
		})
	}
}
