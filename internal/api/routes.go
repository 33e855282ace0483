package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/triutilizer/backend/internal/api/handlers"
	"github.com/triutilizer/backend/internal/config"
	"github.com/triutilizer/backend/internal/sim"
	"github.com/triutilizer/backend/internal/ws"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, db *sqlx.DB, rdb *redis.Client, cfg *config.Config, manager *sim.Manager, hub *ws.Hub) {
	// No-cache middleware for development
	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] Aggressive no-cache headers enabled for all routes")
	}

	router.GET("/health", handlers.HealthCheck)

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)
		v1.GET("/status", handlers.Status(manager))
		v1.GET("/config", handlers.GetConfig(cfg))

		// Admin login
		v1.POST("/auth/login", handlers.Login(db, cfg))

		// One-shot solve and text console
		v1.POST("/solve", handlers.SolveOnce(manager))
		v1.POST("/command", handlers.HandleCommand(manager, hub, db, cfg))

		// Solver settings; updates need an admin token
		v1.GET("/solver", handlers.GetSolverSettings(manager))
		v1.PUT("/solver", handlers.AuthMiddleware(cfg), handlers.UpdateSolverSettings(manager, db))

		// Statistics
		v1.GET("/stats", handlers.GetStats(manager))
		v1.POST("/stats/reset", handlers.ResetStats(manager))

		// Simulation lifecycle
		sims := v1.Group("/simulations")
		{
			sims.POST("", handlers.CreateSimulation(manager))
			sims.GET("", handlers.ListSimulations(manager))
			sims.GET("/:token", handlers.GetSimulation(manager))
			sims.POST("/:token/bodies", handlers.AddBody(manager))
			sims.POST("/:token/constraints", handlers.AddConstraint(manager))
			sims.POST("/:token/step", handlers.StepSimulation(manager))
			sims.POST("/:token/start", handlers.StartSimulation(manager))
			sims.POST("/:token/pause", handlers.PauseSimulation(manager))
			sims.DELETE("/:token", handlers.DeleteSimulation(manager))
			sims.GET("/:token/runs", handlers.GetSimulationRuns(manager, db))
		}

		// Live streaming
		v1.GET("/ws", handlers.HandleSimWebSocket(hub))

		// Admin endpoints behind JWT auth
		adminGroup := v1.Group("/admin")
		adminGroup.Use(handlers.AuthMiddleware(cfg))
		{
			adminGroup.GET("/config", handlers.GetAdminRuntimeConfig(db))
			adminGroup.PUT("/config/:key", handlers.UpdateAdminRuntimeConfig(db, cfg, manager))
			adminGroup.GET("/audit", handlers.GetAdminAuditLogs(db))
			adminGroup.GET("/runs", handlers.GetAdminRuns(db))
			adminGroup.GET("/stats/hourly", handlers.GetAdminHourlyStats(db))
		}
	}
}
