package physics

import (
	"sync"
	"time"
)

// Stats accumulates solver activity counters and named duration metrics.
// All methods are safe for concurrent use.
type Stats struct {
	mu sync.RWMutex

	totalSteps      int64
	parallelSteps   int64
	sequentialSteps int64
	constraints     int64
	converged       int64
	diverged        int64

	// name -> accumulated nanos under "<name>_total" plus sample count under
	// "<name>_count".
	metrics map[string]int64
}

// NewStats returns an empty statistics accumulator.
func NewStats() *Stats {
	return &Stats{metrics: make(map[string]int64)}
}

// RecordStep counts one solver step and which path served it.
func (s *Stats) RecordStep(parallel bool, constraints int, converged bool) {
	s.mu.Lock()
	s.totalSteps++
	if parallel {
		s.parallelSteps++
	} else {
		s.sequentialSteps++
	}
	s.constraints += int64(constraints)
	if converged {
		s.converged++
	} else {
		s.diverged++
	}
	s.mu.Unlock()
}

// RecordDuration folds one timing sample into the named metric.
func (s *Stats) RecordDuration(name string, d time.Duration) {
	s.mu.Lock()
	s.metrics[name+"_total"] += d.Nanoseconds()
	s.metrics[name+"_count"]++
	s.mu.Unlock()
}

// AverageMillis reports the mean duration of the named metric in
// milliseconds, or zero when no samples exist.
func (s *Stats) AverageMillis(name string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := s.metrics[name+"_count"]
	if count == 0 {
		return 0
	}
	return float64(s.metrics[name+"_total"]) / float64(count) / 1e6
}

// StatsSnapshot is an immutable copy of the accumulated counters.
type StatsSnapshot struct {
	TotalSteps       int64            `json:"total_steps"`
	ParallelSteps    int64            `json:"parallel_steps"`
	SequentialSteps  int64            `json:"sequential_steps"`
	ConstraintsTotal int64            `json:"constraints_total"`
	ConvergedSolves  int64            `json:"converged_solves"`
	DivergedSolves   int64            `json:"diverged_solves"`
	ParallelUsagePct float64          `json:"parallel_usage_pct"`
	Metrics          map[string]int64 `json:"metrics"`
}

// Snapshot copies every counter and metric at once.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := StatsSnapshot{
		TotalSteps:       s.totalSteps,
		ParallelSteps:    s.parallelSteps,
		SequentialSteps:  s.sequentialSteps,
		ConstraintsTotal: s.constraints,
		ConvergedSolves:  s.converged,
		DivergedSolves:   s.diverged,
		Metrics:          make(map[string]int64, len(s.metrics)),
	}
	if s.totalSteps > 0 {
		snap.ParallelUsagePct = float64(s.parallelSteps) / float64(s.totalSteps) * 100
	}
	for k, v := range s.metrics {
		snap.Metrics[k] = v
	}
	return snap
}

// Reset zeroes every counter and metric.
func (s *Stats) Reset() {
	s.mu.Lock()
	s.totalSteps = 0
	s.parallelSteps = 0
	s.sequentialSteps = 0
	s.constraints = 0
	s.converged = 0
	s.diverged = 0
	s.metrics = make(map[string]int64)
	s.mu.Unlock()
}
