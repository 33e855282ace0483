package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/triutilizer/backend/internal/admin"
	"github.com/triutilizer/backend/internal/alert"
	"github.com/triutilizer/backend/internal/api"
	"github.com/triutilizer/backend/internal/config"
	"github.com/triutilizer/backend/internal/database"
	"github.com/triutilizer/backend/internal/history"
	"github.com/triutilizer/backend/internal/middleware"
	"github.com/triutilizer/backend/internal/migrations"
	"github.com/triutilizer/backend/internal/redis"
	"github.com/triutilizer/backend/internal/sim"
	"github.com/triutilizer/backend/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Apply persisted runtime config overrides before anything reads cfg
	if err := admin.ApplyRuntimeConfigToConfig(db, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not apply runtime config: %v", err)
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Initialize alert webhook client (if configured)
	if cfg.AlertWebhookURL != "" {
		alertClient := alert.NewClient(cfg, rdb)
		if alertClient != nil {
			alert.SetDefault(alertClient)
			log.Printf("[ALERT] Webhook client initialized (url=%s)", cfg.AlertWebhookURL)
		}
	} else {
		log.Printf("[ALERT] Alert webhook is not configured (ALERT_WEBHOOK_URL missing)")
	}

	// Simulation manager owns the worker pool, solver settings and stats
	manager := sim.NewManager(db, rdb, cfg)
	defer manager.Close()

	ctx := context.Background()

	// Background workers: auto-stepper, idle reaper, performance logger
	manager.StartStepper(ctx)
	manager.StartReaper(ctx)
	manager.StartPerformanceLogger(ctx)

	// Roll per-solve rows into hourly buckets and prune old history
	go history.StartRollupWorker(ctx, db, cfg)

	// Websocket hub plus the Redis subscriber that feeds it solver events
	hub := ws.NewHub(manager)
	go hub.Run()
	ws.StartEventSubscriber(ctx, rdb, hub)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.WebSocketCORSCheck(cfg))

	// Initialize API handlers
	api.SetupRoutes(router, db, rdb, cfg, manager, hub)

	// Start server
	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting Triutilizer solver service on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
