package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func twoBodyPair(ax, bx float64) []*Body {
	a := NewBody(0)
	a.Position = mgl64.Vec3{ax, 0, 0}
	b := NewBody(1)
	b.Position = mgl64.Vec3{bx, 0, 0}
	return []*Body{a, b}
}

func TestDistanceError(t *testing.T) {
	bodies := twoBodyPair(0, 3)
	c := NewDistanceConstraint(0, 1, mgl64.Vec3{}, mgl64.Vec3{}, 2.0)

	if got := c.ComputeError(bodies); got != 1.0 {
		t.Errorf("error = %v, want 1.0", got)
	}

	c.Target = 3.0
	if got := c.ComputeError(bodies); got != 0.0 {
		t.Errorf("error at target = %v, want 0", got)
	}

	c.Target = 5.0
	if got := c.ComputeError(bodies); got != -2.0 {
		t.Errorf("error when too close = %v, want -2.0", got)
	}
}

func TestDistanceErrorUsesRotatedAnchors(t *testing.T) {
	bodies := twoBodyPair(0, 3)
	// Rotating body A 90 degrees about z carries its local +x anchor to
	// world (0,1,0), so the gap to B at (3,0,0) is sqrt(10).
	bodies[0].Rotation = mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})
	c := NewDistanceConstraint(0, 1, mgl64.Vec3{1, 0, 0}, mgl64.Vec3{}, 0)

	want := math.Sqrt(3*3 + 1*1)
	if got := c.ComputeError(bodies); math.Abs(got-want) > 1e-9 {
		t.Errorf("error = %v, want %v", got, want)
	}
}

func TestDistanceLambda(t *testing.T) {
	bodies := twoBodyPair(0, 3)
	c := NewDistanceConstraint(0, 1, mgl64.Vec3{}, mgl64.Vec3{}, 2.0)

	err := c.ComputeError(bodies)
	// Two unit masses with center anchors: effective mass 2, lambda -err/2.
	if got := c.ComputeLambda(err, bodies); got != -0.5 {
		t.Errorf("lambda = %v, want -0.5", got)
	}
}

func TestDistanceLambdaDegenerateGeometry(t *testing.T) {
	t.Run("coincident anchors", func(t *testing.T) {
		bodies := twoBodyPair(0, 0)
		c := NewDistanceConstraint(0, 1, mgl64.Vec3{}, mgl64.Vec3{}, 1.0)
		if got := c.ComputeLambda(c.ComputeError(bodies), bodies); got != 0 {
			t.Errorf("lambda = %v, want 0 for coincident anchors", got)
		}
	})

	t.Run("both static", func(t *testing.T) {
		bodies := twoBodyPair(0, 3)
		bodies[0].SetStatic()
		bodies[1].SetStatic()
		c := NewDistanceConstraint(0, 1, mgl64.Vec3{}, mgl64.Vec3{}, 2.0)
		if got := c.ComputeLambda(c.ComputeError(bodies), bodies); got != 0 {
			t.Errorf("lambda = %v, want 0 for two static endpoints", got)
		}
	})
}

func TestDistanceComplianceSoftens(t *testing.T) {
	bodies := twoBodyPair(0, 3)
	rigid := NewDistanceConstraint(0, 1, mgl64.Vec3{}, mgl64.Vec3{}, 2.0)
	soft := NewDistanceConstraint(0, 1, mgl64.Vec3{}, mgl64.Vec3{}, 2.0)
	soft.Compliance = 1.0

	err := rigid.ComputeError(bodies)
	lr := rigid.ComputeLambda(err, bodies)
	ls := soft.ComputeLambda(err, bodies)

	if math.Abs(ls) >= math.Abs(lr) {
		t.Errorf("compliance did not soften: rigid %v, soft %v", lr, ls)
	}
}

func TestDistanceImpulseIsEqualAndOpposite(t *testing.T) {
	bodies := twoBodyPair(0, 3)
	c := NewDistanceConstraint(0, 1, mgl64.Vec3{}, mgl64.Vec3{}, 2.0)

	lambda := c.ComputeLambda(c.ComputeError(bodies), bodies)
	c.ApplyImpulse(lambda, bodies)

	va, vb := bodies[0].Velocity, bodies[1].Velocity
	if va[0] <= 0 || vb[0] >= 0 {
		t.Errorf("bodies not pulled together: vA=%v vB=%v", va, vb)
	}
	if va[0] != -vb[0] {
		t.Errorf("momentum not conserved: vA.x=%v vB.x=%v", va[0], vb[0])
	}
	// Positions stay put until integration.
	if bodies[0].Position != (mgl64.Vec3{}) || bodies[1].Position != (mgl64.Vec3{3, 0, 0}) {
		t.Error("impulse moved positions")
	}
}

func TestDistanceImpulseSkipsStaticEndpoint(t *testing.T) {
	bodies := twoBodyPair(0, 3)
	bodies[0].SetStatic()
	c := NewDistanceConstraint(0, 1, mgl64.Vec3{}, mgl64.Vec3{}, 2.0)

	lambda := c.ComputeLambda(c.ComputeError(bodies), bodies)
	c.ApplyImpulse(lambda, bodies)

	if bodies[0].Velocity != (mgl64.Vec3{}) {
		t.Errorf("static endpoint gained velocity %v", bodies[0].Velocity)
	}
	if bodies[1].Velocity[0] >= 0 {
		t.Errorf("dynamic endpoint not pulled toward static one: %v", bodies[1].Velocity)
	}
}

func TestDistanceOffsetAnchorSpinsBody(t *testing.T) {
	bodies := twoBodyPair(0, 3)
	// Anchor B one unit above its center of mass: the impulse has a lever arm
	// and must show up as angular velocity.
	c := NewDistanceConstraint(0, 1, mgl64.Vec3{}, mgl64.Vec3{0, 1, 0}, 1.0)

	lambda := c.ComputeLambda(c.ComputeError(bodies), bodies)
	if lambda == 0 {
		t.Fatal("expected a corrective lambda")
	}
	c.ApplyImpulse(lambda, bodies)

	if bodies[1].AngularVelocity == (mgl64.Vec3{}) {
		t.Error("offset anchor produced no angular velocity")
	}
}

func TestDistancePreviousLambdaRoundTrip(t *testing.T) {
	c := NewDistanceConstraint(0, 1, mgl64.Vec3{}, mgl64.Vec3{}, 1.0)
	if c.PreviousLambda() != 0 {
		t.Errorf("fresh constraint previous lambda = %v", c.PreviousLambda())
	}
	c.SetPreviousLambda(-0.75)
	if c.PreviousLambda() != -0.75 {
		t.Errorf("previous lambda = %v, want -0.75", c.PreviousLambda())
	}
}

func TestSharesBody(t *testing.T) {
	ab := NewDistanceConstraint(0, 1, mgl64.Vec3{}, mgl64.Vec3{}, 1)
	bc := NewDistanceConstraint(1, 2, mgl64.Vec3{}, mgl64.Vec3{}, 1)
	cd := NewDistanceConstraint(2, 3, mgl64.Vec3{}, mgl64.Vec3{}, 1)

	if !SharesBody(ab, bc) {
		t.Error("constraints sharing body 1 reported disjoint")
	}
	if SharesBody(ab, cd) {
		t.Error("disjoint constraints reported as sharing")
	}
}
