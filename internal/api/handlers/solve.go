package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/triutilizer/backend/internal/physics"
	"github.com/triutilizer/backend/internal/sim"
)

// SolveOnce runs a stateless solve over the posted system and returns the
// result together with the post-solve body velocities. Positions are left
// untouched; callers integrate themselves if they want motion.
func SolveOnce(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Bodies      []sim.BodySpec       `json:"bodies"`
			Constraints []sim.ConstraintSpec `json:"constraints"`
			Params      *physics.Params      `json:"params"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if len(req.Bodies) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at least one body required"})
			return
		}

		res, mode, bodies, err := m.SolveOnce(req.Bodies, req.Constraints, req.Params)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		type bodyOut struct {
			Index    int        `json:"index"`
			Position [3]float64 `json:"position"`
			Velocity [3]float64 `json:"velocity"`
			Static   bool       `json:"static"`
		}
		out := make([]bodyOut, 0, len(bodies))
		for _, b := range bodies {
			out = append(out, bodyOut{
				Index:    b.Index,
				Position: [3]float64(b.Position),
				Velocity: [3]float64(b.Velocity),
				Static:   b.Static,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"iterations":  res.Iterations,
			"final_error": res.FinalError,
			"converged":   res.Converged,
			"mode":        mode,
			"bodies":      out,
		})
	}
}
