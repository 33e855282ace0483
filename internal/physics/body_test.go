package physics

import (
	"math"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestIntegrateUsesVelocityBeforeForces(t *testing.T) {
	b := NewBody(0)
	b.Velocity = mgl64.Vec3{1, 0, 0}
	b.Force = mgl64.Vec3{100, 0, 0}

	b.Integrate(0.1)

	// Position must advance with the pre-force velocity, then forces fold in.
	if b.Position[0] != 0.1 {
		t.Errorf("position.x = %v, want 0.1", b.Position[0])
	}
	if b.Velocity[0] != 11.0 {
		t.Errorf("velocity.x = %v, want 11.0", b.Velocity[0])
	}
	if b.Force != (mgl64.Vec3{}) {
		t.Errorf("force not cleared: %v", b.Force)
	}
}

func TestIntegrateTorque(t *testing.T) {
	b := NewBody(0)
	b.InvInertia = mgl64.Vec3{2, 2, 2}
	b.Torque = mgl64.Vec3{0, 0, 3}

	b.Integrate(0.5)

	if b.AngularVelocity[2] != 3.0 {
		t.Errorf("angularVelocity.z = %v, want 3.0", b.AngularVelocity[2])
	}
	if b.Torque != (mgl64.Vec3{}) {
		t.Errorf("torque not cleared: %v", b.Torque)
	}
}

func TestIntegrateKeepsRotationNormalized(t *testing.T) {
	b := NewBody(0)
	b.AngularVelocity = mgl64.Vec3{0, 0, math.Pi}

	for i := 0; i < 200; i++ {
		b.Integrate(0.01)
	}

	if l := b.Rotation.Len(); math.Abs(l-1.0) > 1e-9 {
		t.Errorf("rotation length drifted to %v", l)
	}
	if b.Rotation == mgl64.QuatIdent() {
		t.Error("rotation did not change under angular velocity")
	}
}

func TestStaticBodyNeverMoves(t *testing.T) {
	b := NewBody(0)
	b.Position = mgl64.Vec3{1, 2, 3}
	b.SetStatic()
	b.Velocity = mgl64.Vec3{5, 5, 5}
	b.Force = mgl64.Vec3{9, 9, 9}

	b.ApplyLinearImpulse(mgl64.Vec3{1, 0, 0})
	b.ApplyAngularImpulse(mgl64.Vec3{0, 1, 0})
	b.Integrate(1.0)

	if b.Position != (mgl64.Vec3{1, 2, 3}) {
		t.Errorf("static body moved to %v", b.Position)
	}
	if b.Velocity != (mgl64.Vec3{5, 5, 5}) {
		t.Errorf("static body velocity changed to %v", b.Velocity)
	}
	if b.AngularVelocity != (mgl64.Vec3{}) {
		t.Errorf("static body angular velocity changed to %v", b.AngularVelocity)
	}
}

func TestConcurrentImpulsesAllLand(t *testing.T) {
	b := NewBody(0)
	// Power-of-two increment so the sum is exact in any addition order.
	const n = 256
	const inc = 1.0 / 128.0

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			b.ApplyLinearImpulse(mgl64.Vec3{inc, 0, 0})
		}()
	}
	wg.Wait()

	if b.Velocity[0] != n*inc {
		t.Errorf("velocity.x = %v, want %v", b.Velocity[0], n*inc)
	}
}

func TestAngularImpulseScalesByInverseInertia(t *testing.T) {
	b := NewBody(0)
	b.InvInertia = mgl64.Vec3{1, 0.5, 0.25}

	b.ApplyAngularImpulse(mgl64.Vec3{4, 4, 4})

	want := mgl64.Vec3{4, 2, 1}
	if b.AngularVelocity != want {
		t.Errorf("angularVelocity = %v, want %v", b.AngularVelocity, want)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	b := NewBody(7)
	b.Position = mgl64.Vec3{1, 0, 0}
	snap := b.Snapshot()

	b.Position = mgl64.Vec3{9, 9, 9}
	b.ApplyLinearImpulse(mgl64.Vec3{1, 1, 1})

	if snap.Position != (mgl64.Vec3{1, 0, 0}) {
		t.Errorf("snapshot position changed to %v", snap.Position)
	}
	if snap.Velocity != (mgl64.Vec3{}) {
		t.Errorf("snapshot velocity changed to %v", snap.Velocity)
	}
	if snap.Index != 7 {
		t.Errorf("snapshot index = %d, want 7", snap.Index)
	}
}

func TestSetMass(t *testing.T) {
	b := NewBody(0)
	b.SetMass(4)
	if b.InvMass != 0.25 {
		t.Errorf("invMass = %v, want 0.25", b.InvMass)
	}
	b.SetMass(0)
	if b.InvMass != 0 {
		t.Errorf("invMass for zero mass = %v, want 0", b.InvMass)
	}
}
