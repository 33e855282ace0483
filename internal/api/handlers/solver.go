package handlers

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/triutilizer/backend/internal/admin"
	"github.com/triutilizer/backend/internal/sim"
)

// GetSolverSettings returns the live solver settings
func GetSolverSettings(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"settings": m.SolverSettings()})
	}
}

// UpdateSolverSettings applies a partial settings update. Every field is
// optional; omitted knobs keep their current value. Accepted values are
// clamped into range and the result is persisted to runtime config so it
// survives restarts.
func UpdateSolverSettings(m *sim.Manager, db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminUsername := c.GetString("admin_username")

		var req struct {
			Omega                     *float64 `json:"omega"`
			MaxIterations             *int     `json:"max_iterations"`
			Tolerance                 *float64 `json:"tolerance"`
			ChunkSize                 *int     `json:"chunk_size"`
			ParallelEnabled           *bool    `json:"parallel_enabled"`
			ForceParallel             *bool    `json:"force_parallel"`
			MinConstraintsForParallel *int     `json:"min_constraints_for_parallel"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		settings := m.SolverSettings()
		if req.Omega != nil {
			settings.Omega = *req.Omega
		}
		if req.MaxIterations != nil {
			settings.MaxIterations = *req.MaxIterations
		}
		if req.Tolerance != nil {
			settings.Tolerance = *req.Tolerance
		}
		if req.ChunkSize != nil {
			settings.ChunkSize = *req.ChunkSize
		}
		if req.ParallelEnabled != nil {
			settings.ParallelEnabled = *req.ParallelEnabled
		}
		if req.ForceParallel != nil {
			settings.ForceParallel = *req.ForceParallel
		}
		if req.MinConstraintsForParallel != nil {
			settings.MinConstraintsForParallel = *req.MinConstraintsForParallel
		}

		applied := m.UpdateSolverSettings(settings)
		persistSolverSettings(db, applied, adminUsername)

		if db != nil {
			admin.LogAdminAction(db, adminUsername, c.ClientIP(), "/api/v1/solver", "update_solver", map[string]interface{}{
				"omega":            applied.Omega,
				"max_iterations":   applied.MaxIterations,
				"tolerance":        applied.Tolerance,
				"parallel_enabled": applied.ParallelEnabled,
				"threshold":        applied.MinConstraintsForParallel,
			}, true)
		}

		c.JSON(http.StatusOK, gin.H{"settings": applied})
	}
}

// persistSolverSettings writes the applied settings back to runtime_config
// so a restart picks them up. Best-effort; the live settings already changed.
func persistSolverSettings(db *sqlx.DB, s sim.SolverSettings, updatedBy string) {
	if db == nil {
		return
	}
	values := map[string]string{
		"solver_omega":                 fmt.Sprintf("%g", s.Omega),
		"solver_max_iterations":        fmt.Sprintf("%d", s.MaxIterations),
		"solver_tolerance":             fmt.Sprintf("%g", s.Tolerance),
		"parallel_enabled":             fmt.Sprintf("%t", s.ParallelEnabled),
		"solver_force_parallel":        fmt.Sprintf("%t", s.ForceParallel),
		"min_constraints_for_parallel": fmt.Sprintf("%d", s.MinConstraintsForParallel),
	}
	for key, value := range values {
		if err := admin.UpdateRuntimeConfigValue(db, key, value, updatedBy); err != nil {
			log.Printf("[SOLVER] Failed to persist %s=%s: %v", key, value, err)
		}
	}
}
