package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/triutilizer/backend/internal/admin"
	"github.com/triutilizer/backend/internal/config"
	"github.com/triutilizer/backend/internal/sim"
	"github.com/triutilizer/backend/internal/ws"
)

// CommandResponse is the console reply. Action "request" means the console
// should keep the prompt open for a follow-up, "end" closes the exchange.
type CommandResponse struct {
	Output string `json:"output"`
	Action string `json:"action"`
}

const helpText = `Commands:
help                       this text
status                     service and simulation overview
stats [reset]              solver statistics
solver [knob] [value]      show or set omega|iterations|tolerance|threshold|parallel
logging [perf] on|off      toggle debug or performance logging
overlay on|off             toggle the viewer debug overlay
test [n]                   solve a synthetic chain of n bodies`

// HandleCommand processes text console commands
func HandleCommand(m *sim.Manager, hub *ws.Hub, db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Command string `json:"command"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "command required"})
			return
		}

		output, action := processCommand(strings.TrimSpace(req.Command), m, hub, db, cfg)
		c.JSON(http.StatusOK, CommandResponse{Output: output, Action: action})
	}
}

// processCommand dispatches one space-tokenized command line
func processCommand(line string, m *sim.Manager, hub *ws.Hub, db *sqlx.DB, cfg *config.Config) (string, string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return helpText, "end"
	}

	switch strings.ToLower(parts[0]) {
	case "help":
		return helpText, "end"

	case "status":
		return renderStatus(m, hub), "end"

	case "stats":
		if len(parts) > 1 && strings.ToLower(parts[1]) == "reset" {
			m.Stats().Reset()
			log.Printf("[SOLVER] Statistics reset via console")
			return "Statistics reset.", "end"
		}
		return renderStats(m), "end"

	case "solver":
		return solverCommand(parts[1:], m, db)

	case "logging":
		return loggingCommand(parts[1:], db, cfg)

	case "overlay":
		if len(parts) < 2 {
			state := "off"
			if hub.OverlayEnabled() {
				state = "on"
			}
			return fmt.Sprintf("Overlay is %s.\nUsage: overlay on|off", state), "request"
		}
		switch strings.ToLower(parts[1]) {
		case "on":
			hub.SetOverlayEnabled(true)
			return "Overlay enabled.", "end"
		case "off":
			hub.SetOverlayEnabled(false)
			return "Overlay disabled.", "end"
		default:
			return "Usage: overlay on|off", "request"
		}

	case "test":
		n := 10
		if len(parts) > 1 {
			v, err := strconv.Atoi(parts[1])
			if err != nil || v < 2 {
				return "Usage: test [n]  (n >= 2)", "request"
			}
			n = v
		}
		return runTestSolve(m, n), "end"

	default:
		return "Unknown command: " + parts[0] + "\n\n" + helpText, "end"
	}
}

func renderStatus(m *sim.Manager, hub *ws.Hub) string {
	counts := m.StatusCounts()
	settings := m.SolverSettings()
	pool := m.Pool().Stats()

	parallel := "off"
	if settings.ParallelEnabled {
		parallel = "on"
		if settings.ForceParallel {
			parallel = "forced"
		}
	}
	overlay := "off"
	if hub.OverlayEnabled() {
		overlay = "on"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Simulations: %d live", m.ActiveCount())
	if len(counts) > 0 {
		b.WriteString(" (")
		first := true
		for _, status := range []sim.Status{sim.StatusConfiguring, sim.StatusRunning, sim.StatusPaused} {
			if n, ok := counts[status]; ok && n > 0 {
				if !first {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%d %s", n, status)
				first = false
			}
		}
		b.WriteString(")")
	}
	fmt.Fprintf(&b, "\nPool: %d workers, %d queued", pool.Workers, pool.Queued)
	fmt.Fprintf(&b, "\nParallel: %s (threshold %d)", parallel, settings.MinConstraintsForParallel)
	fmt.Fprintf(&b, "\nViewers: %d (overlay %s)", hub.ViewerCount(), overlay)
	fmt.Fprintf(&b, "\nUptime: %s", time.Since(startTime).Round(time.Second))
	return b.String()
}

func renderStats(m *sim.Manager) string {
	snap := m.Stats().Snapshot()
	avgStep := m.Stats().AverageMillis("physicsStep")
	avgParallel := m.Stats().AverageMillis("parallelStep")
	avgSequential := m.Stats().AverageMillis("sequentialStep")

	var b strings.Builder
	fmt.Fprintf(&b, "Total Steps: %d (%d parallel / %d sequential)", snap.TotalSteps, snap.ParallelSteps, snap.SequentialSteps)
	fmt.Fprintf(&b, "\nConstraints Solved: %d", snap.ConstraintsTotal)
	fmt.Fprintf(&b, "\nConverged: %d  Diverged: %d", snap.ConvergedSolves, snap.DivergedSolves)
	fmt.Fprintf(&b, "\nParallel Usage %%: %.1f", snap.ParallelUsagePct)
	fmt.Fprintf(&b, "\nAvg Step: %.3f ms (parallel %.3f, sequential %.3f)", avgStep, avgParallel, avgSequential)
	if avgParallel > 0 && avgSequential > 0 {
		fmt.Fprintf(&b, "\nParallel Efficiency: %.2fx", avgSequential/avgParallel)
	}
	return b.String()
}

func solverCommand(args []string, m *sim.Manager, db *sqlx.DB) (string, string) {
	settings := m.SolverSettings()

	if len(args) == 0 {
		out := fmt.Sprintf("omega=%.3f iterations=%d tolerance=%.1e chunk=%d\nparallel=%v force=%v threshold=%d",
			settings.Omega, settings.MaxIterations, settings.Tolerance, settings.ChunkSize,
			settings.ParallelEnabled, settings.ForceParallel, settings.MinConstraintsForParallel)
		return out + "\n\nUsage: solver <omega|iterations|tolerance|threshold|parallel> <value>", "request"
	}

	knob := strings.ToLower(args[0])
	if len(args) < 2 {
		return "Usage: solver " + knob + " <value>", "request"
	}
	value := args[1]

	switch knob {
	case "omega":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "Invalid omega: " + value, "request"
		}
		settings.Omega = v
	case "iterations":
		v, err := strconv.Atoi(value)
		if err != nil {
			return "Invalid iterations: " + value, "request"
		}
		settings.MaxIterations = v
	case "tolerance":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "Invalid tolerance: " + value, "request"
		}
		settings.Tolerance = v
	case "threshold":
		v, err := strconv.Atoi(value)
		if err != nil {
			return "Invalid threshold: " + value, "request"
		}
		settings.MinConstraintsForParallel = v
	case "parallel":
		switch strings.ToLower(value) {
		case "on":
			settings.ParallelEnabled = true
			settings.ForceParallel = false
		case "off":
			settings.ParallelEnabled = false
			settings.ForceParallel = false
		case "force":
			settings.ParallelEnabled = true
			settings.ForceParallel = true
		default:
			return "Usage: solver parallel on|off|force", "request"
		}
	default:
		return "Unknown knob: " + knob + "\nKnobs: omega, iterations, tolerance, threshold, parallel", "request"
	}

	applied := m.UpdateSolverSettings(settings)
	persistSolverSettings(db, applied, "console")

	return fmt.Sprintf("Applied. omega=%.3f iterations=%d tolerance=%.1e parallel=%v force=%v threshold=%d",
		applied.Omega, applied.MaxIterations, applied.Tolerance,
		applied.ParallelEnabled, applied.ForceParallel, applied.MinConstraintsForParallel), "end"
}

func loggingCommand(args []string, db *sqlx.DB, cfg *config.Config) (string, string) {
	if len(args) == 0 {
		return fmt.Sprintf("debug=%v perf=%v\nUsage: logging [perf] on|off", cfg.DebugLogging, cfg.LogPerformanceMetrics), "request"
	}

	key := "debug_logging"
	target := &cfg.DebugLogging
	name := "Debug logging"
	state := args[0]

	if strings.ToLower(args[0]) == "perf" {
		if len(args) < 2 {
			return "Usage: logging perf on|off", "request"
		}
		key = "log_performance_metrics"
		target = &cfg.LogPerformanceMetrics
		name = "Performance logging"
		state = args[1]
	}

	switch strings.ToLower(state) {
	case "on":
		*target = true
	case "off":
		*target = false
	default:
		return "Usage: logging [perf] on|off", "request"
	}

	if db != nil {
		if err := admin.UpdateRuntimeConfigValue(db, key, strconv.FormatBool(*target), "console"); err != nil {
			log.Printf("[CONFIG] Failed to persist %s: %v", key, err)
		}
	}
	log.Printf("[CONFIG] %s %s via console", name, strings.ToLower(state))
	return fmt.Sprintf("%s %s.", name, strings.ToLower(state)), "end"
}

// runTestSolve pushes a synthetic stretched chain through the full solve
// pipeline and reports what the solver did with it.
func runTestSolve(m *sim.Manager, n int) string {
	bodies, constraints := sim.ChainScene(n)

	started := time.Now()
	res, mode, _, err := m.SolveOnce(bodies, constraints, nil)
	elapsed := time.Since(started)
	if err != nil {
		return "Test solve failed: " + err.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Test solve: %d bodies, %d constraints", len(bodies), len(constraints))
	fmt.Fprintf(&b, "\nMode: %s", mode)
	fmt.Fprintf(&b, "\nIterations: %d", res.Iterations)
	fmt.Fprintf(&b, "\nFinal Error: %.6f", res.FinalError)
	fmt.Fprintf(&b, "\nConverged: %v", res.Converged)
	fmt.Fprintf(&b, "\nDuration: %s", elapsed.Round(time.Microsecond))
	return b.String()
}
