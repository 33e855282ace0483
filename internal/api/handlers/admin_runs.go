package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/triutilizer/backend/internal/store"
)

// GetAdminRuns returns recent solve runs across all simulations
func GetAdminRuns(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := parsePagination(c, 50, 200)
		simulationID, _ := strconv.Atoi(c.DefaultQuery("simulation_id", "0"))

		runs, err := store.RecentSolveRuns(db, simulationID, limit)
		if err != nil {
			log.Printf("[ADMIN] Failed to fetch solve runs: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch runs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
	}
}

// GetAdminHourlyStats returns rolled-up hourly solver statistics
func GetAdminHourlyStats(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "48"))

		stats, err := store.HourlyStats(db, limit)
		if err != nil {
			log.Printf("[ADMIN] Failed to fetch hourly stats: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch hourly stats"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"buckets": stats, "count": len(stats)})
	}
}
