package physics

import (
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// Below this separation the constraint direction is undefined, so the
	// solver skips the step instead of dividing by a near-zero length.
	minSeparation = 1e-6

	// Below this the effective mass is considered degenerate (for example two
	// static endpoints) and no impulse is produced.
	minEffectiveMass = 1e-6
)

// DistanceConstraint keeps two anchor points, given in body-local coordinates,
// at a fixed target distance. Compliance softens the constraint; zero means
// fully rigid.
type DistanceConstraint struct {
	BodyA, BodyB   int
	LocalA, LocalB mgl64.Vec3
	Target         float64
	Compliance     float64

	previousLambda float64
}

// NewDistanceConstraint builds a rigid distance constraint between two bodies.
func NewDistanceConstraint(bodyA, bodyB int, localA, localB mgl64.Vec3, target float64) *DistanceConstraint {
	return &DistanceConstraint{
		BodyA:  bodyA,
		BodyB:  bodyB,
		LocalA: localA,
		LocalB: localB,
		Target: target,
	}
}

func (c *DistanceConstraint) BodyIndices() []int {
	return []int{c.BodyA, c.BodyB}
}

// ComputeError returns current anchor distance minus target. Positive means
// the anchors are too far apart.
func (c *DistanceConstraint) ComputeError(bodies []*Body) float64 {
	worldA := anchorWorld(bodies[c.BodyA], c.LocalA)
	worldB := anchorWorld(bodies[c.BodyB], c.LocalB)
	return worldB.Sub(worldA).Len() - c.Target
}

// ComputeLambda converts a positional error into a raw impulse magnitude via
// the constraint's effective mass. Degenerate geometry yields zero.
func (c *DistanceConstraint) ComputeLambda(err float64, bodies []*Body) float64 {
	a := bodies[c.BodyA]
	b := bodies[c.BodyB]

	worldA := anchorWorld(a, c.LocalA)
	worldB := anchorWorld(b, c.LocalB)
	separation := worldB.Sub(worldA)
	dist := separation.Len()
	if dist < minSeparation {
		return 0
	}
	dir := separation.Mul(1.0 / dist)

	effMass := c.effectiveMass(a, b, worldA, worldB, dir)
	if effMass < minEffectiveMass {
		return 0
	}
	return -err / (effMass + c.Compliance)
}

// ApplyImpulse pushes the two bodies along the anchor line. Velocities only;
// positions move later during integration.
func (c *DistanceConstraint) ApplyImpulse(lambda float64, bodies []*Body) {
	a := bodies[c.BodyA]
	b := bodies[c.BodyB]

	worldA := anchorWorld(a, c.LocalA)
	worldB := anchorWorld(b, c.LocalB)
	separation := worldB.Sub(worldA)
	dist := separation.Len()
	if dist < minSeparation {
		return
	}
	dir := separation.Mul(1.0 / dist)
	impulse := dir.Mul(lambda)

	if !a.Static {
		a.ApplyLinearImpulse(impulse.Mul(-1))
		rA := worldA.Sub(a.Position)
		a.ApplyAngularImpulse(rA.Cross(impulse.Mul(-1)))
	}
	if !b.Static {
		b.ApplyLinearImpulse(impulse)
		rB := worldB.Sub(b.Position)
		b.ApplyAngularImpulse(rB.Cross(impulse))
	}
}

func (c *DistanceConstraint) PreviousLambda() float64 {
	return c.previousLambda
}

func (c *DistanceConstraint) SetPreviousLambda(lambda float64) {
	c.previousLambda = lambda
}

// effectiveMass sums the linear and rotational responsiveness of both
// endpoints along the constraint direction. Static bodies contribute nothing.
func (c *DistanceConstraint) effectiveMass(a, b *Body, worldA, worldB, dir mgl64.Vec3) float64 {
	sum := 0.0
	if !a.Static {
		sum += a.InvMass
		r := worldA.Sub(a.Position)
		rxn := r.Cross(dir)
		sum += rxn[0]*rxn[0]*a.InvInertia[0] + rxn[1]*rxn[1]*a.InvInertia[1] + rxn[2]*rxn[2]*a.InvInertia[2]
	}
	if !b.Static {
		sum += b.InvMass
		r := worldB.Sub(b.Position)
		rxn := r.Cross(dir)
		sum += rxn[0]*rxn[0]*b.InvInertia[0] + rxn[1]*rxn[1]*b.InvInertia[1] + rxn[2]*rxn[2]*b.InvInertia[2]
	}
	return sum
}

// anchorWorld rotates a body-local anchor into world space and offsets it by
// the body position.
func anchorWorld(b *Body, local mgl64.Vec3) mgl64.Vec3 {
	return b.Position.Add(b.Rotation.Rotate(local))
}
