package sim

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/triutilizer/backend/internal/physics"
)

// Helper to create a two-body pair stretched 1.0 past its unit target, so
// the first solve has real error to work on.
func setupStretchedPair(t *testing.T) *Simulation {
	t.Helper()
	s := NewSimulation("sim_test", "tok_test", "pair")
	if _, err := s.AddBody(BodySpec{Mass: 1}); err != nil {
		t.Fatalf("AddBody: %v", err)
	}
	if _, err := s.AddBody(BodySpec{Position: [3]float64{2, 0, 0}, Mass: 1}); err != nil {
		t.Fatalf("AddBody: %v", err)
	}
	if err := s.AddConstraint(ConstraintSpec{BodyA: 0, BodyB: 1, Target: 1.0}); err != nil {
		t.Fatalf("AddConstraint: %v", err)
	}
	return s
}

func testSolver(t *testing.T) (*physics.Solver, *physics.Pool) {
	t.Helper()
	pool := physics.NewPool(2)
	t.Cleanup(pool.Close)
	return physics.NewSolver(physics.DefaultParams(), pool), pool
}

func TestSimulationLifecycle(t *testing.T) {
	s := NewSimulation("sim_a", "tok_a", "lifecycle")

	if got := s.CurrentStatus(); got != StatusConfiguring {
		t.Fatalf("new simulation status = %s, want %s", got, StatusConfiguring)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.CurrentStatus(); got != StatusRunning {
		t.Fatalf("after Start status = %s, want %s", got, StatusRunning)
	}

	// Starting again is a no-op, not an error.
	if err := s.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := s.CurrentStatus(); got != StatusPaused {
		t.Fatalf("after Pause status = %s, want %s", got, StatusPaused)
	}

	// Paused simulations can resume.
	if err := s.Start(); err != nil {
		t.Fatalf("resume: %v", err)
	}

	s.Expire()
	if err := s.Start(); err == nil {
		t.Error("Start after expiry should fail")
	}
	if err := s.Pause(); err == nil {
		t.Error("Pause after expiry should fail")
	}
}

func TestAddBodyStatusGate(t *testing.T) {
	s := NewSimulation("sim_b", "tok_b", "gate")
	if _, err := s.AddBody(BodySpec{Mass: 1}); err != nil {
		t.Fatalf("AddBody while configuring: %v", err)
	}

	s.Start()
	if _, err := s.AddBody(BodySpec{Mass: 1}); err == nil {
		t.Error("AddBody while running should fail")
	}

	s.Pause()
	if _, err := s.AddBody(BodySpec{Mass: 1}); err != nil {
		t.Errorf("AddBody while paused: %v", err)
	}

	bodies, _ := s.Counts()
	if bodies != 2 {
		t.Errorf("body count = %d, want 2", bodies)
	}
}

func TestAddConstraintValidatesIndices(t *testing.T) {
	s := NewSimulation("sim_c", "tok_c", "validate")
	s.AddBody(BodySpec{Mass: 1})
	s.AddBody(BodySpec{Position: [3]float64{1, 0, 0}, Mass: 1})

	if err := s.AddConstraint(ConstraintSpec{BodyA: 0, BodyB: 2, Target: 1}); err == nil {
		t.Error("constraint referencing missing body should fail")
	}
	if err := s.AddConstraint(ConstraintSpec{BodyA: -1, BodyB: 1, Target: 1}); err == nil {
		t.Error("constraint with negative index should fail")
	}
	if err := s.AddConstraint(ConstraintSpec{Type: "weld", BodyA: 0, BodyB: 1}); err == nil {
		t.Error("unknown constraint type should fail")
	}
	if err := s.AddConstraint(ConstraintSpec{BodyA: 0, BodyB: 1, Target: 1}); err != nil {
		t.Errorf("valid constraint rejected: %v", err)
	}
}

func TestStepSolvesAndIntegrates(t *testing.T) {
	s := setupStretchedPair(t)
	solver, _ := testSolver(t)

	res, err := s.Step(solver, true, 0.1)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	// The pair starts 1.0 over target, so the solve cannot converge inside
	// one velocity-only pass, but it must pull the bodies toward each other.
	if res.Converged {
		t.Error("stretched pair should not converge in a single step")
	}
	if s.Steps() != 1 {
		t.Errorf("step count = %d, want 1", s.Steps())
	}
	if s.CurrentMode() != SolverModeSequential {
		t.Errorf("mode = %q, want %q", s.CurrentMode(), SolverModeSequential)
	}

	view := s.StateView()
	bodies := view["bodies"].([]BodyView)
	if bodies[0].Position[0] <= 0 {
		t.Errorf("body 0 did not move toward body 1: x=%v", bodies[0].Position[0])
	}
	if bodies[1].Position[0] >= 2 {
		t.Errorf("body 1 did not move toward body 0: x=%v", bodies[1].Position[0])
	}
}

func TestStepAppliesGravity(t *testing.T) {
	s := NewSimulation("sim_g", "tok_g", "gravity")
	s.Gravity = mgl64.Vec3{0, -10, 0}
	s.AddBody(BodySpec{Mass: 2})
	solver, _ := testSolver(t)

	// First step: velocity picks up g*dt after the position update, so the
	// body has not fallen yet.
	if _, err := s.Step(solver, true, 0.1); err != nil {
		t.Fatalf("Step: %v", err)
	}
	view := s.StateView()
	b := view["bodies"].([]BodyView)[0]
	if math.Abs(b.Position[1]) > 1e-12 {
		t.Errorf("position moved before gravity accumulated: y=%v", b.Position[1])
	}
	if math.Abs(b.Velocity[1]+1.0) > 1e-9 {
		t.Errorf("velocity after one step = %v, want -1.0", b.Velocity[1])
	}

	// Second step: the accumulated velocity now moves the body.
	s.Step(solver, true, 0.1)
	view = s.StateView()
	b = view["bodies"].([]BodyView)[0]
	if b.Position[1] >= 0 {
		t.Errorf("body did not fall: y=%v", b.Position[1])
	}
}

func TestStepSkipsStaticBodies(t *testing.T) {
	s := NewSimulation("sim_s", "tok_s", "static")
	s.Gravity = mgl64.Vec3{0, -10, 0}
	s.AddBody(BodySpec{Static: true})
	solver, _ := testSolver(t)

	for i := 0; i < 5; i++ {
		s.Step(solver, true, 0.1)
	}

	view := s.StateView()
	b := view["bodies"].([]BodyView)[0]
	if b.Position != ([3]float64{}) || b.Velocity != ([3]float64{}) {
		t.Errorf("static body moved: pos=%v vel=%v", b.Position, b.Velocity)
	}
}

func TestStepOnExpiredSimulationFails(t *testing.T) {
	s := setupStretchedPair(t)
	solver, _ := testSolver(t)
	s.Expire()

	if _, err := s.Step(solver, true, 0.1); err == nil {
		t.Error("Step on expired simulation should fail")
	}
}

func TestDivergenceStreakTracksConsecutiveMisses(t *testing.T) {
	// Two static endpoints held apart: error can never shrink.
	s := NewSimulation("sim_d", "tok_d", "diverge")
	s.AddBody(BodySpec{Static: true})
	s.AddBody(BodySpec{Position: [3]float64{2, 0, 0}, Static: true})
	s.AddConstraint(ConstraintSpec{BodyA: 0, BodyB: 1, Target: 1})
	solver, _ := testSolver(t)

	for i := 1; i <= 3; i++ {
		s.Step(solver, true, 0.1)
		if got := s.DivergenceStreak(); got != i {
			t.Fatalf("streak after %d steps = %d", i, got)
		}
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := setupStretchedPair(t)
	solver, _ := testSolver(t)
	s.Start()
	s.Step(solver, true, 0.05)

	restored := restoreSimulation(s.snapshot())

	if restored.Token != s.Token || restored.ID != s.ID {
		t.Fatalf("identity lost: %s/%s", restored.ID, restored.Token)
	}
	// A running simulation comes back paused; the operator restarts it.
	if got := restored.CurrentStatus(); got != StatusPaused {
		t.Errorf("restored status = %s, want %s", got, StatusPaused)
	}
	if restored.Steps() != s.Steps() {
		t.Errorf("step count lost: %d vs %d", restored.Steps(), s.Steps())
	}

	origBodies := s.StateView()["bodies"].([]BodyView)
	gotBodies := restored.StateView()["bodies"].([]BodyView)
	for i := range origBodies {
		if origBodies[i].Position != gotBodies[i].Position {
			t.Errorf("body %d position changed across restore: %v vs %v", i, origBodies[i].Position, gotBodies[i].Position)
		}
		if origBodies[i].Velocity != gotBodies[i].Velocity {
			t.Errorf("body %d velocity changed across restore: %v vs %v", i, origBodies[i].Velocity, gotBodies[i].Velocity)
		}
	}

	// Warm-start lambdas survive the round trip.
	origLambda := s.constraints[0].PreviousLambda()
	gotLambda := restored.constraints[0].PreviousLambda()
	if origLambda == 0 {
		t.Fatal("test expects a non-zero lambda after the step")
	}
	if origLambda != gotLambda {
		t.Errorf("previous lambda changed across restore: %v vs %v", origLambda, gotLambda)
	}
}

func TestChainScene(t *testing.T) {
	bodies, constraints := ChainScene(10)
	if len(bodies) != 10 || len(constraints) != 9 {
		t.Fatalf("scene sizes = %d bodies, %d constraints", len(bodies), len(constraints))
	}
	if !bodies[0].Static {
		t.Error("first chain body should be the static anchor")
	}
	for i, c := range constraints {
		if c.BodyA != i || c.BodyB != i+1 {
			t.Errorf("link %d connects %d-%d", i, c.BodyA, c.BodyB)
		}
		if c.Target != 1.0 {
			t.Errorf("link %d target = %v", i, c.Target)
		}
	}

	// Every link starts stretched by the same margin.
	built, cons, err := BuildSystem(bodies, constraints)
	if err != nil {
		t.Fatalf("BuildSystem: %v", err)
	}
	for i, c := range cons {
		if e := c.ComputeError(built); math.Abs(e-0.1) > 1e-9 {
			t.Errorf("link %d initial error = %v, want 0.1", i, e)
		}
	}
}
