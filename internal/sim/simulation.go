package sim

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/triutilizer/backend/internal/physics"
)

// Status represents the lifecycle state of a simulation
type Status string

const (
	StatusConfiguring Status = "CONFIGURING"
	StatusRunning     Status = "RUNNING"
	StatusPaused      Status = "PAUSED"
	StatusExpired     Status = "EXPIRED"
)

// SolverModeParallel and SolverModeSequential name the path a step took.
const (
	SolverModeParallel   = "parallel"
	SolverModeSequential = "sequential"
)

// Simulation is one live constraint system. Bodies and constraints are only
// touched under mu; impulse application inside a solve additionally goes
// through the per-body locks so parallel chunks stay safe.
type Simulation struct {
	ID      string
	Token   string
	Name    string
	DBID    int
	Status  Status
	Gravity mgl64.Vec3

	bodies      []*physics.Body
	constraints []physics.Constraint

	StepCount  int64
	LastResult physics.Result
	LastMode   string

	CreatedAt    time.Time
	StartedAt    *time.Time
	LastStepAt   *time.Time
	LastActivity time.Time

	divergeStreak int

	mu sync.RWMutex
}

// NewSimulation creates an empty simulation in CONFIGURING state.
func NewSimulation(id, token, name string) *Simulation {
	return &Simulation{
		ID:           id,
		Token:        token,
		Name:         name,
		Status:       StatusConfiguring,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
}

// AddBody appends a body and returns its index. Bodies can only be added
// while the simulation is not running.
func (s *Simulation) AddBody(spec BodySpec) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status == StatusRunning {
		return 0, errors.New("pause the simulation before adding bodies")
	}
	if s.Status == StatusExpired {
		return 0, errors.New("simulation has expired")
	}

	index := len(s.bodies)
	s.bodies = append(s.bodies, BuildBody(index, spec))
	s.LastActivity = time.Now()
	return index, nil
}

// AddConstraint appends a constraint between already-registered bodies.
func (s *Simulation) AddConstraint(spec ConstraintSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status == StatusRunning {
		return errors.New("pause the simulation before adding constraints")
	}
	if s.Status == StatusExpired {
		return errors.New("simulation has expired")
	}

	c, err := BuildConstraint(spec, len(s.bodies))
	if err != nil {
		return err
	}
	s.constraints = append(s.constraints, c)
	s.LastActivity = time.Now()
	return nil
}

// Start moves the simulation into RUNNING so the step ticker picks it up.
func (s *Simulation) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.Status {
	case StatusRunning:
		log.Printf("[SIM] Simulation %s already running, skipping start", s.ID)
		return nil
	case StatusExpired:
		return errors.New("simulation has expired")
	}

	if s.StartedAt == nil {
		now := time.Now()
		s.StartedAt = &now
	}
	s.Status = StatusRunning
	s.LastActivity = time.Now()
	log.Printf("[SIM] Simulation %s running (%d bodies, %d constraints)", s.ID, len(s.bodies), len(s.constraints))
	return nil
}

// Pause stops ticker-driven stepping. Manual steps still work.
func (s *Simulation) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.Status {
	case StatusPaused, StatusConfiguring:
		return nil
	case StatusExpired:
		return errors.New("simulation has expired")
	}

	s.Status = StatusPaused
	s.LastActivity = time.Now()
	log.Printf("[SIM] Simulation %s paused at step %d", s.ID, s.StepCount)
	return nil
}

// Expire marks the simulation dead. Called by the reaper and by delete.
func (s *Simulation) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusExpired
}

// Step runs one solver pass and integrates the result. The solver mutates
// velocities only; Integrate then moves positions. Gravity is folded in as a
// force so Integrate applies it after the position update.
func (s *Simulation) Step(solver *physics.Solver, sequential bool, dt float64) (physics.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status == StatusExpired {
		return physics.Result{}, errors.New("simulation has expired")
	}

	if s.Gravity != (mgl64.Vec3{}) {
		for _, b := range s.bodies {
			if !b.Static {
				b.Force = b.Force.Add(s.Gravity.Mul(b.Mass))
			}
		}
	}

	var res physics.Result
	var err error
	if sequential {
		res, err = solver.SolveSequential(s.constraints, s.bodies)
	} else {
		res, err = solver.Solve(s.constraints, s.bodies)
	}
	if err != nil {
		return res, err
	}

	for _, b := range s.bodies {
		b.Integrate(dt)
	}

	s.StepCount++
	s.LastResult = res
	if sequential {
		s.LastMode = SolverModeSequential
	} else {
		s.LastMode = SolverModeParallel
	}
	now := time.Now()
	s.LastStepAt = &now
	s.LastActivity = now

	if !res.Converged && len(s.constraints) > 0 {
		s.divergeStreak++
	} else {
		s.divergeStreak = 0
	}

	return res, nil
}

// CurrentStatus returns the lifecycle state.
func (s *Simulation) CurrentStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Counts returns body and constraint counts.
func (s *Simulation) Counts() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bodies), len(s.constraints)
}

// ConstraintCount returns the number of constraints, used for the
// parallel-vs-sequential routing decision.
func (s *Simulation) ConstraintCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.constraints)
}

// CurrentMode returns the solver mode of the most recent step, "" before the
// first step.
func (s *Simulation) CurrentMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastMode
}

// Steps returns the number of completed steps.
func (s *Simulation) Steps() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.StepCount
}

// DivergenceStreak returns how many consecutive steps failed to converge.
func (s *Simulation) DivergenceStreak() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.divergeStreak
}

// IdleSince returns the last activity timestamp.
func (s *Simulation) IdleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastActivity
}

// TouchActivity refreshes the idle clock, e.g. when a client subscribes.
func (s *Simulation) TouchActivity() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// BodyView is the client-facing body state carried in step updates.
type BodyView struct {
	Index    int        `json:"index"`
	Position [3]float64 `json:"position"`
	Velocity [3]float64 `json:"velocity"`
	Static   bool       `json:"static"`
}

// ConstraintView is the client-facing constraint state, including the current
// positional error so dashboards can show residuals per link.
type ConstraintView struct {
	Type   string  `json:"type"`
	BodyA  int     `json:"body_a"`
	BodyB  int     `json:"body_b"`
	Target float64 `json:"target"`
	Error  float64 `json:"error"`
}

// StateView returns the full client-facing snapshot of the simulation.
func (s *Simulation) StateView() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bodies := make([]BodyView, len(s.bodies))
	for i, b := range s.bodies {
		bodies[i] = BodyView{
			Index:    b.Index,
			Position: [3]float64(b.Position),
			Velocity: [3]float64(b.Velocity),
			Static:   b.Static,
		}
	}

	constraints := make([]ConstraintView, 0, len(s.constraints))
	for _, c := range s.constraints {
		dc, ok := c.(*physics.DistanceConstraint)
		if !ok {
			continue
		}
		constraints = append(constraints, ConstraintView{
			Type:   "distance",
			BodyA:  dc.BodyA,
			BodyB:  dc.BodyB,
			Target: dc.Target,
			Error:  dc.ComputeError(s.bodies),
		})
	}

	return map[string]interface{}{
		"id":               s.ID,
		"token":            s.Token,
		"name":             s.Name,
		"status":           s.Status,
		"gravity":          [3]float64(s.Gravity),
		"body_count":       len(s.bodies),
		"constraint_count": len(s.constraints),
		"step_count":       s.StepCount,
		"last_result":      s.LastResult,
		"last_mode":        s.LastMode,
		"bodies":           bodies,
		"constraints":      constraints,
		"created_at":       s.CreatedAt,
		"started_at":       s.StartedAt,
		"last_step_at":     s.LastStepAt,
	}
}

// StepUpdate returns the compact per-step payload broadcast to stream
// subscribers after each step.
func (s *Simulation) StepUpdate() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bodies := make([]BodyView, len(s.bodies))
	for i, b := range s.bodies {
		bodies[i] = BodyView{
			Index:    b.Index,
			Position: [3]float64(b.Position),
			Velocity: [3]float64(b.Velocity),
			Static:   b.Static,
		}
	}

	return map[string]interface{}{
		"token":       s.Token,
		"step_count":  s.StepCount,
		"iterations":  s.LastResult.Iterations,
		"final_error": s.LastResult.FinalError,
		"converged":   s.LastResult.Converged,
		"mode":        s.LastMode,
		"bodies":      bodies,
	}
}

// Summary returns the list-endpoint row for this simulation.
func (s *Simulation) Summary() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"id":               s.ID,
		"token":            s.Token,
		"name":             s.Name,
		"status":           s.Status,
		"body_count":       len(s.bodies),
		"constraint_count": len(s.constraints),
		"step_count":       s.StepCount,
		"last_mode":        s.LastMode,
		"created_at":       s.CreatedAt,
	}
}
