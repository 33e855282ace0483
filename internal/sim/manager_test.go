package sim

import (
	"math"
	"testing"

	"github.com/triutilizer/backend/internal/config"
	"github.com/triutilizer/backend/internal/physics"
)

// newTestManager builds a manager without DB or Redis; persistence and events
// degrade to no-ops.
func newTestManager(t *testing.T, mutate func(*config.Config)) *Manager {
	t.Helper()
	cfg := &config.Config{
		ParallelEnabled:           true,
		SolverOmega:               1.8,
		SolverMaxIterations:       10,
		SolverTolerance:           1e-4,
		SolverChunkSize:           4,
		MinConstraintsForParallel: 50,
		PhysicsWorkers:            2,
		StepIntervalMillis:        50,
		SimulationTTLMinutes:      30,
	}
	if mutate != nil {
		mutate(cfg)
	}
	m := NewManager(nil, nil, cfg)
	t.Cleanup(m.Close)
	return m
}

func pairSpecs() ([]BodySpec, []ConstraintSpec) {
	bodies := []BodySpec{
		{Mass: 1},
		{Position: [3]float64{2, 0, 0}, Mass: 1},
	}
	constraints := []ConstraintSpec{
		{BodyA: 0, BodyB: 1, Target: 1.0},
	}
	return bodies, constraints
}

func TestManagerCreateAndGet(t *testing.T) {
	m := newTestManager(t, nil)
	bodies, constraints := pairSpecs()

	s, err := m.CreateSimulation("pair", [3]float64{}, bodies, constraints)
	if err != nil {
		t.Fatalf("CreateSimulation: %v", err)
	}
	if s.Token == "" || s.ID == "" {
		t.Fatal("simulation missing identity")
	}

	got, err := m.GetSimulation(s.Token)
	if err != nil {
		t.Fatalf("GetSimulation: %v", err)
	}
	if got != s {
		t.Error("GetSimulation returned a different instance")
	}

	if _, err := m.GetSimulation("no-such-token"); err == nil {
		t.Error("unknown token should fail")
	}

	if m.ActiveCount() != 1 {
		t.Errorf("active count = %d, want 1", m.ActiveCount())
	}
}

func TestManagerCreateRejectsBadConstraint(t *testing.T) {
	m := newTestManager(t, nil)
	bodies, _ := pairSpecs()

	_, err := m.CreateSimulation("bad", [3]float64{}, bodies, []ConstraintSpec{
		{BodyA: 0, BodyB: 7, Target: 1},
	})
	if err == nil {
		t.Fatal("constraint referencing missing body should fail creation")
	}
	if m.ActiveCount() != 0 {
		t.Errorf("failed creation left %d simulations registered", m.ActiveCount())
	}
}

func TestManagerStepRouting(t *testing.T) {
	t.Run("below threshold goes sequential", func(t *testing.T) {
		m := newTestManager(t, nil)
		bodies, constraints := pairSpecs()
		s, _ := m.CreateSimulation("seq", [3]float64{}, bodies, constraints)

		_, mode, err := m.StepSimulation(s.Token, 0.05)
		if err != nil {
			t.Fatalf("StepSimulation: %v", err)
		}
		if mode != SolverModeSequential {
			t.Errorf("mode = %q, want %q", mode, SolverModeSequential)
		}
		snap := m.Stats().Snapshot()
		if snap.SequentialSteps != 1 || snap.ParallelSteps != 0 {
			t.Errorf("stats = %d sequential / %d parallel", snap.SequentialSteps, snap.ParallelSteps)
		}
	})

	t.Run("force parallel overrides threshold", func(t *testing.T) {
		m := newTestManager(t, func(cfg *config.Config) {
			cfg.SolverForceParallel = true
		})
		bodies, constraints := pairSpecs()
		s, _ := m.CreateSimulation("forced", [3]float64{}, bodies, constraints)

		_, mode, err := m.StepSimulation(s.Token, 0.05)
		if err != nil {
			t.Fatalf("StepSimulation: %v", err)
		}
		if mode != SolverModeParallel {
			t.Errorf("mode = %q, want %q", mode, SolverModeParallel)
		}
		snap := m.Stats().Snapshot()
		if snap.ParallelSteps != 1 {
			t.Errorf("parallel steps = %d, want 1", snap.ParallelSteps)
		}
	})

	t.Run("disabled parallel beats force", func(t *testing.T) {
		m := newTestManager(t, func(cfg *config.Config) {
			cfg.ParallelEnabled = false
			cfg.SolverForceParallel = true
		})
		bodies, constraints := pairSpecs()
		s, _ := m.CreateSimulation("disabled", [3]float64{}, bodies, constraints)

		_, mode, err := m.StepSimulation(s.Token, 0.05)
		if err != nil {
			t.Fatalf("StepSimulation: %v", err)
		}
		if mode != SolverModeSequential {
			t.Errorf("mode = %q, want %q", mode, SolverModeSequential)
		}
	})

	t.Run("at threshold goes parallel", func(t *testing.T) {
		m := newTestManager(t, func(cfg *config.Config) {
			cfg.MinConstraintsForParallel = 4
		})
		bodies, constraints := ChainScene(5) // 4 links
		s, _ := m.CreateSimulation("chain", [3]float64{}, bodies, constraints)

		_, mode, err := m.StepSimulation(s.Token, 0.05)
		if err != nil {
			t.Fatalf("StepSimulation: %v", err)
		}
		if mode != SolverModeParallel {
			t.Errorf("mode = %q, want %q", mode, SolverModeParallel)
		}
	})
}

func TestManagerSolveOnce(t *testing.T) {
	m := newTestManager(t, nil)
	bodies, constraints := ChainScene(8)

	res, mode, solved, err := m.SolveOnce(bodies, constraints, nil)
	if err != nil {
		t.Fatalf("SolveOnce: %v", err)
	}
	if mode != SolverModeSequential {
		t.Errorf("mode = %q, want %q (7 links, threshold 50)", mode, SolverModeSequential)
	}
	if len(solved) != 8 {
		t.Fatalf("returned %d bodies, want 8", len(solved))
	}

	// Positions are untouched by a solve, so the stretched chain's error is
	// still 0.1 and the run uses every iteration.
	if res.Converged {
		t.Error("stretched chain cannot converge inside one solve")
	}
	if res.Iterations != 10 {
		t.Errorf("iterations = %d, want 10", res.Iterations)
	}
	if math.Abs(res.FinalError-0.1) > 1e-9 {
		t.Errorf("final error = %v, want 0.1", res.FinalError)
	}

	// The solve must have produced corrective velocities on dynamic bodies.
	moved := 0
	for _, b := range solved[1:] {
		if b.Velocity.Len() > 0 {
			moved++
		}
	}
	if moved == 0 {
		t.Error("no dynamic body received velocity from the solve")
	}
	if solved[0].Velocity.Len() != 0 {
		t.Error("static anchor received velocity")
	}

	snap := m.Stats().Snapshot()
	if snap.TotalSteps != 1 {
		t.Errorf("stats total steps = %d, want 1", snap.TotalSteps)
	}
}

func TestManagerSolveOnceOverride(t *testing.T) {
	m := newTestManager(t, nil)
	bodies, constraints := ChainScene(4)

	override := &physics.Params{Omega: 1.5, MaxIterations: 3, Tolerance: 1e-4, ChunkSize: 4}
	res, _, _, err := m.SolveOnce(bodies, constraints, override)
	if err != nil {
		t.Fatalf("SolveOnce: %v", err)
	}
	if res.Iterations != 3 {
		t.Errorf("iterations = %d, want 3 with override", res.Iterations)
	}
}

func TestManagerUpdateSolverSettingsClamps(t *testing.T) {
	m := newTestManager(t, nil)

	applied := m.UpdateSolverSettings(SolverSettings{
		Params: physics.Params{
			Omega:         5.0,
			MaxIterations: 0,
			Tolerance:     -1,
			ChunkSize:     0,
		},
		ParallelEnabled:           true,
		MinConstraintsForParallel: 0,
	})

	if applied.Omega != 2.0 {
		t.Errorf("omega clamped to %v, want 2.0", applied.Omega)
	}
	if applied.MaxIterations != 1 {
		t.Errorf("max iterations clamped to %d, want 1", applied.MaxIterations)
	}
	if applied.Tolerance != 1e-4 {
		t.Errorf("tolerance clamped to %v, want 1e-4", applied.Tolerance)
	}
	if applied.MinConstraintsForParallel != 50 {
		t.Errorf("threshold clamped to %d, want 50", applied.MinConstraintsForParallel)
	}

	if got := m.SolverSettings(); got != applied {
		t.Error("settings read back differs from applied")
	}
}

func TestManagerStepAllOnlyRunning(t *testing.T) {
	m := newTestManager(t, nil)
	bodies, constraints := pairSpecs()

	running, _ := m.CreateSimulation("running", [3]float64{}, bodies, constraints)
	idle, _ := m.CreateSimulation("idle", [3]float64{}, bodies, constraints)
	if err := m.StartSimulation(running.Token); err != nil {
		t.Fatalf("StartSimulation: %v", err)
	}

	m.StepAll(0.05)

	if running.Steps() != 1 {
		t.Errorf("running simulation steps = %d, want 1", running.Steps())
	}
	if idle.Steps() != 0 {
		t.Errorf("idle simulation steps = %d, want 0", idle.Steps())
	}
}

func TestManagerStartPauseDelete(t *testing.T) {
	m := newTestManager(t, nil)
	bodies, constraints := pairSpecs()
	s, _ := m.CreateSimulation("lifecycle", [3]float64{}, bodies, constraints)

	if err := m.StartSimulation(s.Token); err != nil {
		t.Fatalf("StartSimulation: %v", err)
	}
	if got := s.CurrentStatus(); got != StatusRunning {
		t.Errorf("status = %s, want %s", got, StatusRunning)
	}

	if err := m.PauseSimulation(s.Token); err != nil {
		t.Fatalf("PauseSimulation: %v", err)
	}
	if got := s.CurrentStatus(); got != StatusPaused {
		t.Errorf("status = %s, want %s", got, StatusPaused)
	}

	counts := m.StatusCounts()
	if counts[StatusPaused] != 1 {
		t.Errorf("paused count = %d, want 1", counts[StatusPaused])
	}

	if err := m.DeleteSimulation(s.Token); err != nil {
		t.Fatalf("DeleteSimulation: %v", err)
	}
	if _, err := m.GetSimulation(s.Token); err == nil {
		t.Error("deleted simulation still retrievable")
	}
	if err := m.DeleteSimulation(s.Token); err == nil {
		t.Error("second delete should fail")
	}
	if got := s.CurrentStatus(); got != StatusExpired {
		t.Errorf("deleted simulation status = %s, want %s", got, StatusExpired)
	}
}
