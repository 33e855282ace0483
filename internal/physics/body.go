package physics

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// Body holds the mutable state of one rigid body for the duration of a solve.
// Bodies are addressed by their position in the solve call's body slice; the
// Index field mirrors that position for diagnostics only.
//
// Impulse application is guarded by a per-body mutex so that constraint chunks
// running on different workers can never interleave a read-modify-write on the
// same velocity, even if a constraint type under-reports its affected bodies.
type Body struct {
	Index int

	// Linear motion
	Position mgl64.Vec3
	Velocity mgl64.Vec3
	Force    mgl64.Vec3
	Mass     float64
	InvMass  float64

	// Angular motion
	Rotation        mgl64.Quat
	AngularVelocity mgl64.Vec3
	Torque          mgl64.Vec3

	// Diagonal inertia tensor in body-local axes. Off-diagonal coupling is
	// deliberately not modeled.
	Inertia    mgl64.Vec3
	InvInertia mgl64.Vec3

	// Static bodies never receive impulses and never integrate. This flag is
	// the authoritative gate; InvMass/InvInertia are usually zeroed too, but
	// the flag alone is what excludes the body.
	Static bool

	mu sync.Mutex
}

// NewBody returns a dynamic unit-mass body with identity rotation and unit
// inertia at the origin.
func NewBody(index int) *Body {
	return &Body{
		Index:      index,
		Mass:       1.0,
		InvMass:    1.0,
		Rotation:   mgl64.QuatIdent(),
		Inertia:    mgl64.Vec3{1, 1, 1},
		InvInertia: mgl64.Vec3{1, 1, 1},
	}
}

// SetStatic marks the body as immovable and zeroes its inverse mass terms.
func (b *Body) SetStatic() {
	b.Static = true
	b.InvMass = 0
	b.InvInertia = mgl64.Vec3{}
}

// SetMass updates mass and inverse mass together. A non-positive mass is
// treated as infinite (invMass = 0).
func (b *Body) SetMass(mass float64) {
	b.Mass = mass
	if mass > 0 {
		b.InvMass = 1.0 / mass
	} else {
		b.InvMass = 0
	}
}

// ApplyLinearImpulse adds impulse*invMass to the linear velocity.
// Safe to call from multiple workers.
func (b *Body) ApplyLinearImpulse(impulse mgl64.Vec3) {
	b.mu.Lock()
	if !b.Static {
		b.Velocity = b.Velocity.Add(impulse.Mul(b.InvMass))
	}
	b.mu.Unlock()
}

// ApplyAngularImpulse adds the impulse scaled per-axis by the diagonal inverse
// inertia to the angular velocity. Safe to call from multiple workers.
func (b *Body) ApplyAngularImpulse(impulse mgl64.Vec3) {
	b.mu.Lock()
	if !b.Static {
		b.AngularVelocity = b.AngularVelocity.Add(mgl64.Vec3{
			impulse[0] * b.InvInertia[0],
			impulse[1] * b.InvInertia[1],
			impulse[2] * b.InvInertia[2],
		})
	}
	b.mu.Unlock()
}

// Integrate advances position and orientation by dt and folds accumulated
// force/torque into the velocities. Must run single-threaded, strictly after
// constraint solving for the tick has finished.
func (b *Body) Integrate(dt float64) {
	if b.Static {
		return
	}

	b.Position = b.Position.Add(b.Velocity.Mul(dt))

	// q += dt/2 * q*(0, w), then renormalize so drift never compounds.
	omega := mgl64.Quat{W: 0, V: b.AngularVelocity}
	b.Rotation = b.Rotation.Add(b.Rotation.Mul(omega).Scale(0.5 * dt)).Normalize()

	b.Velocity = b.Velocity.Add(b.Force.Mul(b.InvMass * dt))
	b.AngularVelocity = b.AngularVelocity.Add(mgl64.Vec3{
		b.Torque[0] * b.InvInertia[0] * dt,
		b.Torque[1] * b.InvInertia[1] * dt,
		b.Torque[2] * b.InvInertia[2] * dt,
	})

	b.Force = mgl64.Vec3{}
	b.Torque = mgl64.Vec3{}
}

// Snapshot returns an independent copy safe to read while workers mutate the
// original.
func (b *Body) Snapshot() *Body {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Body{
		Index:           b.Index,
		Position:        b.Position,
		Velocity:        b.Velocity,
		Force:           b.Force,
		Mass:            b.Mass,
		InvMass:         b.InvMass,
		Rotation:        b.Rotation,
		AngularVelocity: b.AngularVelocity,
		Torque:          b.Torque,
		Inertia:         b.Inertia,
		InvInertia:      b.InvInertia,
		Static:          b.Static,
	}
}
