package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/triutilizer/backend/internal/config"
)

// GetConfig returns minimal config values required by frontend
func GetConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"step_interval_millis":   cfg.StepIntervalMillis,
			"simulation_ttl_minutes": cfg.SimulationTTLMinutes,
			"solver_max_iterations":  cfg.SolverMaxIterations,
			"parallel_enabled":       cfg.ParallelEnabled,
		})
	}
}
