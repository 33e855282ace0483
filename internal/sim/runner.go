package sim

import (
	"context"
	"log"
	"time"
)

// StartStepper starts the fixed-interval driver that advances every RUNNING
// simulation. dt for each tick is the configured interval in seconds.
func (m *Manager) StartStepper(ctx context.Context) {
	interval := 50
	if m.cfg != nil && m.cfg.StepIntervalMillis > 0 {
		interval = m.cfg.StepIntervalMillis
	}
	dt := float64(interval) / 1000.0

	log.Printf("[STEP] Stepper started: interval=%dms", interval)
	go func() {
		ticker := time.NewTicker(time.Duration(interval) * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[STEP] Stepper stopping")
				return
			case <-ticker.C:
				m.StepAll(dt)
			}
		}
	}()
}

// StartPerformanceLogger periodically logs a one-line solver performance
// summary when enabled.
func (m *Manager) StartPerformanceLogger(ctx context.Context) {
	if m.cfg == nil || !m.cfg.LogPerformanceMetrics {
		return
	}
	interval := m.cfg.PerformanceLogInterval
	if interval <= 0 {
		interval = 60
	}

	log.Printf("[PERF] Performance logger started: interval=%ds", interval)
	go func() {
		ticker := time.NewTicker(time.Duration(interval) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[PERF] Performance logger stopping")
				return
			case <-ticker.C:
				snap := m.stats.Snapshot()
				pool := m.pool.Stats()
				log.Printf("[PERF] steps=%d parallel=%d (%.1f%%) sequential=%d converged=%d diverged=%d avgStep=%.3fms avgParallel=%.3fms avgSequential=%.3fms queued=%d",
					snap.TotalSteps, snap.ParallelSteps, snap.ParallelUsagePct, snap.SequentialSteps,
					snap.ConvergedSolves, snap.DivergedSolves,
					m.stats.AverageMillis("physicsStep"),
					m.stats.AverageMillis("parallelStep"),
					m.stats.AverageMillis("sequentialStep"),
					pool.Queued)
			}
		}
	}()
}
