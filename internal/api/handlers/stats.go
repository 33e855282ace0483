package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/triutilizer/backend/internal/sim"
)

// GetStats returns accumulated solver statistics plus derived timing averages
func GetStats(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := m.Stats().Snapshot()

		avgParallel := m.Stats().AverageMillis("parallelStep")
		avgSequential := m.Stats().AverageMillis("sequentialStep")

		// Efficiency compares the measured average durations of the two
		// paths over the same workload mix. Above 1.0 means the parallel
		// path is paying for its coordination overhead.
		efficiency := 0.0
		if avgParallel > 0 {
			efficiency = avgSequential / avgParallel
		}

		c.JSON(http.StatusOK, gin.H{
			"stats":               snap,
			"avg_step_ms":         m.Stats().AverageMillis("physicsStep"),
			"avg_parallel_ms":     avgParallel,
			"avg_sequential_ms":   avgSequential,
			"parallel_efficiency": efficiency,
			"pool":                m.Pool().Stats(),
		})
	}
}

// ResetStats zeroes the statistics counters
func ResetStats(m *sim.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.Stats().Reset()
		log.Printf("[SOLVER] Statistics reset")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
