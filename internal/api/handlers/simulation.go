package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/triutilizer/backend/internal/sim"
	"github.com/triutilizer/backend/internal/store"
)

// CreateSimulation creates a simulation, optionally pre-populated with
// bodies and constraints
func CreateSimulation(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name        string               `json:"name"`
			Gravity     [3]float64           `json:"gravity"`
			Bodies      []sim.BodySpec       `json:"bodies"`
			Constraints []sim.ConstraintSpec `json:"constraints"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		s, err := m.CreateSimulation(req.Name, req.Gravity, req.Bodies, req.Constraints)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.Header("X-Simulation-ID", s.ID)
		c.JSON(http.StatusCreated, gin.H{"simulation": s.Summary()})
	}
}

// ListSimulations returns a summary row per live simulation
func ListSimulations(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sims := m.ListSimulations()
		rows := make([]map[string]interface{}, 0, len(sims))
		for _, s := range sims {
			rows = append(rows, s.Summary())
		}
		c.JSON(http.StatusOK, gin.H{"simulations": rows, "count": len(rows)})
	}
}

// GetSimulation returns the full state of one simulation
func GetSimulation(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.GetSimulation(c.Param("token"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "simulation not found"})
			return
		}
		c.JSON(http.StatusOK, s.StateView())
	}
}

// AddBody appends a body to a non-running simulation
func AddBody(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.GetSimulation(c.Param("token"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "simulation not found"})
			return
		}

		var spec sim.BodySpec
		if err := c.BindJSON(&spec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body spec"})
			return
		}

		index, err := s.AddBody(spec)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"index": index})
	}
}

// AddConstraint appends a constraint to a non-running simulation
func AddConstraint(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.GetSimulation(c.Param("token"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "simulation not found"})
			return
		}

		var spec sim.ConstraintSpec
		if err := c.BindJSON(&spec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid constraint spec"})
			return
		}

		if err := s.AddConstraint(spec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"constraints": s.ConstraintCount()})
	}
}

// StepSimulation advances one simulation by dt seconds
func StepSimulation(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")

		var req struct {
			Dt float64 `json:"dt"`
		}
		// An empty body is fine; the default dt matches the stepper tick.
		if c.Request.ContentLength > 0 {
			if err := c.BindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		if req.Dt <= 0 {
			req.Dt = 0.05
		}

		res, mode, err := m.StepSimulation(token, req.Dt)
		if err != nil {
			if err.Error() == "simulation not found" {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"iterations":  res.Iterations,
			"final_error": res.FinalError,
			"converged":   res.Converged,
			"mode":        mode,
		})
	}
}

// StartSimulation moves a simulation into RUNNING
func StartSimulation(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		if err := m.StartSimulation(token); err != nil {
			if err.Error() == "simulation not found" {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "status": sim.StatusRunning})
	}
}

// PauseSimulation moves a simulation into PAUSED
func PauseSimulation(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		if err := m.PauseSimulation(token); err != nil {
			if err.Error() == "simulation not found" {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "status": sim.StatusPaused})
	}
}

// DeleteSimulation expires and removes a simulation
func DeleteSimulation(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		if err := m.DeleteSimulation(token); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "simulation not found"})
			return
		}
		log.Printf("[SIM] Simulation %s deleted via API", token)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// GetSimulationRuns returns recent recorded solve runs for a simulation.
// Run history outlives the live simulation, so an expired token still
// resolves through its database row.
func GetSimulationRuns(m *sim.Manager, db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")

		dbID := 0
		if s, err := m.GetSimulation(token); err == nil {
			dbID = s.DBID
		} else if db != nil {
			row, rowErr := store.GetSimulationByToken(db, token)
			if rowErr != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "simulation not found"})
				return
			}
			dbID = row.ID
		} else {
			c.JSON(http.StatusNotFound, gin.H{"error": "simulation not found"})
			return
		}

		if db == nil || dbID == 0 {
			c.JSON(http.StatusOK, gin.H{"runs": []interface{}{}})
			return
		}

		limit, _ := parsePagination(c, 50, 200)
		runs, err := store.RecentSolveRuns(db, dbID, limit)
		if err != nil {
			log.Printf("[SIM] Failed to fetch solve runs for %s: %v", token, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch runs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}
