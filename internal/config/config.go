package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server
	Environment string
	AppPort     string
	FrontendURL string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Solver
	ParallelEnabled          bool    // master switch for the parallel path
	SolverOmega              float64 // SOR over-relaxation factor (1.0, 2.0]
	SolverMaxIterations      int     // iteration cap per solve [1, 50]
	SolverTolerance          float64 // convergence threshold [1e-6, 1e-2]
	SolverChunkSize          int     // constraints per worker task
	MinConstraintsForParallel int    // below this the sequential path runs [1, 1000]
	SolverForceParallel      bool    // ignore the threshold and always go parallel
	PhysicsWorkers           int     // worker pool size, 0 = NumCPU

	// Simulation lifecycle
	StepIntervalMillis    int // driver tick period for running simulations
	SimulationTTLMinutes  int // idle simulations expire after this
	ReaperIntervalSeconds int // expiry sweep period

	// Diagnostics
	DebugLogging           bool
	LogPerformanceMetrics  bool
	PerformanceLogInterval int // seconds between performance log lines [10, 600]

	// History rollup
	HistoryRollupMinutes  int // how often solve runs are rolled into hourly stats
	HistoryRetentionDays  int // raw solve runs older than this are pruned

	// Alerts
	AlertWebhookURL      string
	AlertMinIntervalSecs int // rate limit between identical alerts

	// Auth
	JWTSecret string
}

// Load reads configuration from environment variables
func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		AppPort:     getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/triutilizer?sslmode=disable"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		ParallelEnabled:           getEnvBool("PARALLEL_ENABLED", true),
		SolverOmega:               getEnvFloat("SOLVER_OMEGA", 1.8),
		SolverMaxIterations:       getEnvInt("SOLVER_MAX_ITERATIONS", 10),
		SolverTolerance:           getEnvFloat("SOLVER_TOLERANCE", 1e-4),
		SolverChunkSize:           getEnvInt("SOLVER_CHUNK_SIZE", 16),
		MinConstraintsForParallel: getEnvInt("MIN_CONSTRAINTS_FOR_PARALLEL", 50),
		SolverForceParallel:       getEnvBool("SOLVER_FORCE_PARALLEL", false),
		PhysicsWorkers:            getEnvInt("PHYSICS_WORKERS", 0),

		StepIntervalMillis:    getEnvInt("STEP_INTERVAL_MILLIS", 50),
		SimulationTTLMinutes:  getEnvInt("SIMULATION_TTL_MINUTES", 30),
		ReaperIntervalSeconds: getEnvInt("REAPER_INTERVAL_SECONDS", 60),

		DebugLogging:           getEnvBool("DEBUG_LOGGING", false),
		LogPerformanceMetrics:  getEnvBool("LOG_PERFORMANCE_METRICS", false),
		PerformanceLogInterval: getEnvInt("PERFORMANCE_LOG_INTERVAL", 60),

		HistoryRollupMinutes: getEnvInt("HISTORY_ROLLUP_MINUTES", 10),
		HistoryRetentionDays: getEnvInt("HISTORY_RETENTION_DAYS", 14),

		AlertWebhookURL:      getEnv("ALERT_WEBHOOK_URL", ""),
		AlertMinIntervalSecs: getEnvInt("ALERT_MIN_INTERVAL_SECONDS", 300),

		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
	}

	cfg.ClampSolverValues()
	return cfg
}

// ClampSolverValues forces every solver knob into its supported range and
// logs anything it had to correct. Called on load and after runtime config
// changes.
func (c *Config) ClampSolverValues() {
	if c.SolverOmega <= 1.0 || c.SolverOmega > 2.0 {
		log.Printf("[CONFIG] SOLVER_OMEGA %v out of range (1.0, 2.0], using 1.8", c.SolverOmega)
		c.SolverOmega = 1.8
	}
	if c.SolverMaxIterations < 1 || c.SolverMaxIterations > 50 {
		log.Printf("[CONFIG] SOLVER_MAX_ITERATIONS %d out of range [1, 50], using 10", c.SolverMaxIterations)
		c.SolverMaxIterations = 10
	}
	if c.SolverTolerance < 1e-6 || c.SolverTolerance > 1e-2 {
		log.Printf("[CONFIG] SOLVER_TOLERANCE %v out of range [1e-6, 1e-2], using 1e-4", c.SolverTolerance)
		c.SolverTolerance = 1e-4
	}
	if c.SolverChunkSize < 1 {
		c.SolverChunkSize = 16
	}
	if c.MinConstraintsForParallel < 1 || c.MinConstraintsForParallel > 1000 {
		log.Printf("[CONFIG] MIN_CONSTRAINTS_FOR_PARALLEL %d out of range [1, 1000], using 50", c.MinConstraintsForParallel)
		c.MinConstraintsForParallel = 50
	}
	if c.PerformanceLogInterval < 10 || c.PerformanceLogInterval > 600 {
		log.Printf("[CONFIG] PERFORMANCE_LOG_INTERVAL %d out of range [10, 600], using 60", c.PerformanceLogInterval)
		c.PerformanceLogInterval = 60
	}
	if c.StepIntervalMillis < 1 {
		c.StepIntervalMillis = 50
	}
}

// getEnv gets an environment variable with a fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an integer environment variable with a fallback
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets a float environment variable with a fallback
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvBool gets a boolean environment variable with a fallback
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
