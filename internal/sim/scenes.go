package sim

// ChainScene builds a synthetic stretched chain: n bodies in a line at 1.1
// spacing, linked by unit-distance constraints, first body static. Every link
// starts with 0.1 positional error, so a solve has real work to do. Used by
// the console test command.
func ChainScene(n int) ([]BodySpec, []ConstraintSpec) {
	if n < 2 {
		n = 2
	}

	bodies := make([]BodySpec, n)
	bodies[0] = BodySpec{Static: true, Mass: 1}
	for i := 1; i < n; i++ {
		bodies[i] = BodySpec{Position: [3]float64{float64(i) * 1.1, 0, 0}, Mass: 1}
	}

	constraints := make([]ConstraintSpec, n-1)
	for i := 0; i < n-1; i++ {
		constraints[i] = ConstraintSpec{Type: "distance", BodyA: i, BodyB: i + 1, Target: 1.0}
	}
	return bodies, constraints
}
