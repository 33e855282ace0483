package sim

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/triutilizer/backend/internal/physics"
)

// BodySpec is the wire description of a rigid body, used by the simulation
// create endpoint, the body add endpoint and the one-shot solve endpoint.
type BodySpec struct {
	Position        [3]float64 `json:"position"`
	Velocity        [3]float64 `json:"velocity"`
	Mass            float64    `json:"mass"`
	Static          bool       `json:"static"`
	Inertia         [3]float64 `json:"inertia,omitempty"`
	AngularVelocity [3]float64 `json:"angular_velocity,omitempty"`
}

// ConstraintSpec is the wire description of a constraint. Type selects the
// concrete constraint; "distance" is the only type today.
type ConstraintSpec struct {
	Type       string     `json:"type"`
	BodyA      int        `json:"body_a"`
	BodyB      int        `json:"body_b"`
	LocalA     [3]float64 `json:"local_a"`
	LocalB     [3]float64 `json:"local_b"`
	Target     float64    `json:"target"`
	Compliance float64    `json:"compliance,omitempty"`
}

// BuildBody materializes a spec at the given index.
func BuildBody(index int, spec BodySpec) *physics.Body {
	b := physics.NewBody(index)
	b.Position = mgl64.Vec3(spec.Position)
	b.Velocity = mgl64.Vec3(spec.Velocity)
	b.AngularVelocity = mgl64.Vec3(spec.AngularVelocity)
	if spec.Mass > 0 {
		b.SetMass(spec.Mass)
	}
	if spec.Inertia != ([3]float64{}) {
		b.Inertia = mgl64.Vec3(spec.Inertia)
		b.InvInertia = invertDiagonal(b.Inertia)
	}
	if spec.Static {
		b.SetStatic()
	}
	return b
}

// BuildConstraint materializes a spec, validating the referenced bodies
// against bodyCount.
func BuildConstraint(spec ConstraintSpec, bodyCount int) (physics.Constraint, error) {
	if spec.BodyA < 0 || spec.BodyA >= bodyCount {
		return nil, fmt.Errorf("constraint references body %d, want [0,%d)", spec.BodyA, bodyCount)
	}
	if spec.BodyB < 0 || spec.BodyB >= bodyCount {
		return nil, fmt.Errorf("constraint references body %d, want [0,%d)", spec.BodyB, bodyCount)
	}

	switch spec.Type {
	case "", "distance":
		c := physics.NewDistanceConstraint(spec.BodyA, spec.BodyB, mgl64.Vec3(spec.LocalA), mgl64.Vec3(spec.LocalB), spec.Target)
		c.Compliance = spec.Compliance
		return c, nil
	default:
		return nil, fmt.Errorf("unknown constraint type %q", spec.Type)
	}
}

// BuildSystem materializes a full body+constraint set, used by the one-shot
// solve path.
func BuildSystem(bodySpecs []BodySpec, constraintSpecs []ConstraintSpec) ([]*physics.Body, []physics.Constraint, error) {
	bodies := make([]*physics.Body, len(bodySpecs))
	for i, bs := range bodySpecs {
		bodies[i] = BuildBody(i, bs)
	}

	constraints := make([]physics.Constraint, 0, len(constraintSpecs))
	for i, cs := range constraintSpecs {
		c, err := BuildConstraint(cs, len(bodies))
		if err != nil {
			return nil, nil, fmt.Errorf("constraint %d: %w", i, err)
		}
		constraints = append(constraints, c)
	}
	return bodies, constraints, nil
}

func invertDiagonal(v mgl64.Vec3) mgl64.Vec3 {
	var out mgl64.Vec3
	for i := 0; i < 3; i++ {
		if v[i] > 0 {
			out[i] = 1.0 / v[i]
		}
	}
	return out
}
