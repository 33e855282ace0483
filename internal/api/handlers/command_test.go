package handlers

import (
	"strings"
	"testing"

	"github.com/triutilizer/backend/internal/config"
	"github.com/triutilizer/backend/internal/sim"
	"github.com/triutilizer/backend/internal/ws"
)

func newConsoleFixture(t *testing.T) (*sim.Manager, *ws.Hub, *config.Config) {
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
	m := sim.NewManager(nil, nil, cfg)
	t.Cleanup(m.Close)
	return m, ws.NewHub(m), cfg
}

func TestProcessCommandHelp(t *testing.T) {
	m, hub, cfg := newConsoleFixture(t)

	out, action := processCommand("help", m, hub, nil, cfg)
	if action != "end" {
		t.Errorf("expected action end, got %s", action)
	}
	for _, want := range []string{"status", "solver", "overlay", "test"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q:\n%s", want, out)
		}
	}

	// Empty input falls back to help
	out2, _ := processCommand("", m, hub, nil, cfg)
	if out2 != out {
		t.Errorf("empty command should render help")
	}
}

func TestProcessCommandUnknown(t *testing.T) {
	m, hub, cfg := newConsoleFixture(t)

	out, action := processCommand("frobnicate", m, hub, nil, cfg)
	if action != "end" {
		t.Errorf("expected action end, got %s", action)
	}
	if !strings.Contains(out, "Unknown command: frobnicate") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestStatusCommand(t *testing.T) {
	m, hub, cfg := newConsoleFixture(t)

	if _, err := m.CreateSimulation("console", [3]float64{}, nil, nil); err != nil {
		t.Fatalf("CreateSimulation: %v", err)
	}

	out, action := processCommand("status", m, hub, nil, cfg)
	if action != "end" {
		t.Errorf("expected action end, got %s", action)
	}
	for _, want := range []string{"Simulations: 1 live", "Pool: 2 workers", "Parallel: on (threshold 50)", "Uptime:"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestSolverCommandShowsSettings(t *testing.T) {
	m, hub, cfg := newConsoleFixture(t)

	out, action := processCommand("solver", m, hub, nil, cfg)
	if action != "request" {
		t.Errorf("expected action request, got %s", action)
	}
	if !strings.Contains(out, "omega=1.800") || !strings.Contains(out, "threshold=50") {
		t.Errorf("unexpected settings output: %s", out)
	}
}

func TestSolverCommandUpdatesKnobs(t *testing.T) {
	m, hub, cfg := newConsoleFixture(t)

	if _, action := processCommand("solver omega 1.5", m, hub, nil, cfg); action != "end" {
		t.Fatalf("expected action end for valid update")
	}
	if got := m.SolverSettings().Omega; got != 1.5 {
		t.Errorf("omega = %v, want 1.5", got)
	}

	processCommand("solver iterations 20", m, hub, nil, cfg)
	if got := m.SolverSettings().MaxIterations; got != 20 {
		t.Errorf("iterations = %d, want 20", got)
	}

	processCommand("solver threshold 5", m, hub, nil, cfg)
	if got := m.SolverSettings().MinConstraintsForParallel; got != 5 {
		t.Errorf("threshold = %d, want 5", got)
	}
}

func TestSolverCommandClampsOutOfRange(t *testing.T) {
	m, hub, cfg := newConsoleFixture(t)

	out, action := processCommand("solver omega 5", m, hub, nil, cfg)
	if action != "end" {
		t.Fatalf("clamped update should still apply, got action %s", action)
	}
	if got := m.SolverSettings().Omega; got != 2.0 {
		t.Errorf("omega = %v, want clamp to 2.0", got)
	}
	if !strings.Contains(out, "omega=2.000") {
		t.Errorf("response should show the clamped value: %s", out)
	}
}

func TestSolverCommandParallelToggle(t *testing.T) {
	m, hub, cfg := newConsoleFixture(t)

	processCommand("solver parallel off", m, hub, nil, cfg)
	if s := m.SolverSettings(); s.ParallelEnabled || s.ForceParallel {
		t.Errorf("parallel off: got enabled=%v force=%v", s.ParallelEnabled, s.ForceParallel)
	}

	processCommand("solver parallel force", m, hub, nil, cfg)
	if s := m.SolverSettings(); !s.ParallelEnabled || !s.ForceParallel {
		t.Errorf("parallel force: got enabled=%v force=%v", s.ParallelEnabled, s.ForceParallel)
	}

	processCommand("solver parallel on", m, hub, nil, cfg)
	if s := m.SolverSettings(); !s.ParallelEnabled || s.ForceParallel {
		t.Errorf("parallel on: got enabled=%v force=%v", s.ParallelEnabled, s.ForceParallel)
	}
}

func TestSolverCommandRejectsBadValue(t *testing.T) {
	m, hub, cfg := newConsoleFixture(t)

	out, action := processCommand("solver omega abc", m, hub, nil, cfg)
	if action != "request" {
		t.Errorf("expected action request for invalid value, got %s", action)
	}
	if !strings.Contains(out, "Invalid omega") {
		t.Errorf("unexpected output: %s", out)
	}
	if got := m.SolverSettings().Omega; got != 1.8 {
		t.Errorf("omega should be unchanged, got %v", got)
	}
}

func TestOverlayCommand(t *testing.T) {
	m, hub, cfg := newConsoleFixture(t)

	if _, action := processCommand("overlay on", m, hub, nil, cfg); action != "end" {
		t.Errorf("expected action end")
	}
	if !hub.OverlayEnabled() {
		t.Errorf("overlay should be enabled")
	}

	processCommand("overlay off", m, hub, nil, cfg)
	if hub.OverlayEnabled() {
		t.Errorf("overlay should be disabled")
	}

	out, action := processCommand("overlay", m, hub, nil, cfg)
	if action != "request" {
		t.Errorf("bare overlay should prompt, got %s", action)
	}
	if !strings.Contains(out, "Overlay is off") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestLoggingCommand(t *testing.T) {
	m, hub, cfg := newConsoleFixture(t)

	processCommand("logging on", m, hub, nil, cfg)
	if !cfg.DebugLogging {
		t.Errorf("debug logging should be on")
	}

	processCommand("logging off", m, hub, nil, cfg)
	if cfg.DebugLogging {
		t.Errorf("debug logging should be off")
	}

	processCommand("logging perf on", m, hub, nil, cfg)
	if !cfg.LogPerformanceMetrics {
		t.Errorf("performance logging should be on")
	}

	if _, action := processCommand("logging maybe", m, hub, nil, cfg); action != "request" {
		t.Errorf("invalid state should prompt")
	}
}

func TestTestCommandSolvesChain(t *testing.T) {
	m, hub, cfg := newConsoleFixture(t)

	out, action := processCommand("test 6", m, hub, nil, cfg)
	if action != "end" {
		t.Errorf("expected action end, got %s", action)
	}
	for _, want := range []string{"Test solve: 6 bodies, 5 constraints", "Mode: sequential", "Iterations: 10", "Converged: false"} {
		if !strings.Contains(out, want) {
			t.Errorf("test output missing %q:\n%s", want, out)
		}
	}

	if got := m.Stats().Snapshot().TotalSteps; got != 1 {
		t.Errorf("stats should record the test solve, TotalSteps = %d", got)
	}

	if _, action := processCommand("test x", m, hub, nil, cfg); action != "request" {
		t.Errorf("invalid n should prompt")
	}
}

func TestStatsCommandAndReset(t *testing.T) {
	m, hub, cfg := newConsoleFixture(t)

	processCommand("test 4", m, hub, nil, cfg)

	out, _ := processCommand("stats", m, hub, nil, cfg)
	for _, want := range []string{"Total Steps: 1", "Parallel Usage %: 0.0", "Diverged: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}

	out, action := processCommand("stats reset", m, hub, nil, cfg)
	if action != "end" || !strings.Contains(out, "reset") {
		t.Errorf("unexpected reset response: %s / %s", out, action)
	}
	if got := m.Stats().Snapshot().TotalSteps; got != 0 {
		t.Errorf("stats should be zeroed, TotalSteps = %d", got)
	}
}
