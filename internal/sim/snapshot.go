package sim

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/triutilizer/backend/internal/physics"
)

// simSnapshot is the Redis-persisted form of a simulation. It captures enough
// to rebuild the live system after a restart, including per-constraint warm
// start lambdas.
type simSnapshot struct {
	ID          string               `json:"id"`
	Token       string               `json:"token"`
	Name        string               `json:"name"`
	DBID        int                  `json:"db_id"`
	Status      Status               `json:"status"`
	Gravity     [3]float64           `json:"gravity"`
	Bodies      []bodySnapshot       `json:"bodies"`
	Constraints []constraintSnapshot `json:"constraints"`
	StepCount   int64                `json:"step_count"`
	LastResult  physics.Result       `json:"last_result"`
	LastMode    string               `json:"last_mode"`
	CreatedAt   time.Time            `json:"created_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	LastStepAt  *time.Time           `json:"last_step_at,omitempty"`
}

type bodySnapshot struct {
	Index           int        `json:"index"`
	Position        [3]float64 `json:"position"`
	Velocity        [3]float64 `json:"velocity"`
	Force           [3]float64 `json:"force"`
	Mass            float64    `json:"mass"`
	Rotation        [4]float64 `json:"rotation"` // w, x, y, z
	AngularVelocity [3]float64 `json:"angular_velocity"`
	Torque          [3]float64 `json:"torque"`
	Inertia         [3]float64 `json:"inertia"`
	Static          bool       `json:"static"`
}

type constraintSnapshot struct {
	Type           string     `json:"type"`
	BodyA          int        `json:"body_a"`
	BodyB          int        `json:"body_b"`
	LocalA         [3]float64 `json:"local_a"`
	LocalB         [3]float64 `json:"local_b"`
	Target         float64    `json:"target"`
	Compliance     float64    `json:"compliance"`
	PreviousLambda float64    `json:"previous_lambda"`
}

// snapshot captures the full simulation state under the read lock.
func (s *Simulation) snapshot() simSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := simSnapshot{
		ID:         s.ID,
		Token:      s.Token,
		Name:       s.Name,
		DBID:       s.DBID,
		Status:     s.Status,
		Gravity:    [3]float64(s.Gravity),
		StepCount:  s.StepCount,
		LastResult: s.LastResult,
		LastMode:   s.LastMode,
		CreatedAt:  s.CreatedAt,
		StartedAt:  s.StartedAt,
		LastStepAt: s.LastStepAt,
	}

	snap.Bodies = make([]bodySnapshot, len(s.bodies))
	for i, b := range s.bodies {
		snap.Bodies[i] = bodySnapshot{
			Index:           b.Index,
			Position:        [3]float64(b.Position),
			Velocity:        [3]float64(b.Velocity),
			Force:           [3]float64(b.Force),
			Mass:            b.Mass,
			Rotation:        [4]float64{b.Rotation.W, b.Rotation.V[0], b.Rotation.V[1], b.Rotation.V[2]},
			AngularVelocity: [3]float64(b.AngularVelocity),
			Torque:          [3]float64(b.Torque),
			Inertia:         [3]float64(b.Inertia),
			Static:          b.Static,
		}
	}

	snap.Constraints = make([]constraintSnapshot, 0, len(s.constraints))
	for _, c := range s.constraints {
		dc, ok := c.(*physics.DistanceConstraint)
		if !ok {
			continue
		}
		snap.Constraints = append(snap.Constraints, constraintSnapshot{
			Type:           "distance",
			BodyA:          dc.BodyA,
			BodyB:          dc.BodyB,
			LocalA:         [3]float64(dc.LocalA),
			LocalB:         [3]float64(dc.LocalB),
			Target:         dc.Target,
			Compliance:     dc.Compliance,
			PreviousLambda: dc.PreviousLambda(),
		})
	}

	return snap
}

// restoreSimulation rebuilds a live simulation from a snapshot. A simulation
// that was RUNNING comes back PAUSED; the operator restarts it explicitly.
func restoreSimulation(snap simSnapshot) *Simulation {
	s := &Simulation{
		ID:           snap.ID,
		Token:        snap.Token,
		Name:         snap.Name,
		DBID:         snap.DBID,
		Status:       snap.Status,
		Gravity:      mgl64.Vec3(snap.Gravity),
		StepCount:    snap.StepCount,
		LastResult:   snap.LastResult,
		LastMode:     snap.LastMode,
		CreatedAt:    snap.CreatedAt,
		StartedAt:    snap.StartedAt,
		LastStepAt:   snap.LastStepAt,
		LastActivity: time.Now(),
	}
	if s.Status == StatusRunning {
		s.Status = StatusPaused
	}

	s.bodies = make([]*physics.Body, len(snap.Bodies))
	for i, bs := range snap.Bodies {
		b := physics.NewBody(bs.Index)
		b.Position = mgl64.Vec3(bs.Position)
		b.Velocity = mgl64.Vec3(bs.Velocity)
		b.Force = mgl64.Vec3(bs.Force)
		b.SetMass(bs.Mass)
		b.Rotation = mgl64.Quat{W: bs.Rotation[0], V: mgl64.Vec3{bs.Rotation[1], bs.Rotation[2], bs.Rotation[3]}}
		b.AngularVelocity = mgl64.Vec3(bs.AngularVelocity)
		b.Torque = mgl64.Vec3(bs.Torque)
		if bs.Inertia != ([3]float64{}) {
			b.Inertia = mgl64.Vec3(bs.Inertia)
			b.InvInertia = invertDiagonal(b.Inertia)
		}
		if bs.Static {
			b.SetStatic()
		}
		s.bodies[i] = b
	}

	for _, cs := range snap.Constraints {
		c := physics.NewDistanceConstraint(cs.BodyA, cs.BodyB, mgl64.Vec3(cs.LocalA), mgl64.Vec3(cs.LocalB), cs.Target)
		c.Compliance = cs.Compliance
		c.SetPreviousLambda(cs.PreviousLambda)
		s.constraints = append(s.constraints, c)
	}

	return s
}
