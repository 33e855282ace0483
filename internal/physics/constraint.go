package physics

// Constraint is one scalar restriction between bodies, solved iteratively by
// the red-black SOR loop. Implementations keep their own previous-lambda term
// so successive over-relaxation can blend across iterations.
//
// A constraint is owned by exactly one worker within a color batch, so the
// lambda accessors need no internal locking. Body mutation must go through
// Body.ApplyLinearImpulse / Body.ApplyAngularImpulse, which are synchronized.
type Constraint interface {
	// BodyIndices reports every body the constraint reads or writes, as
	// indices into the solve call's body slice. Partitioning and index
	// validation both rely on this being complete.
	BodyIndices() []int

	// ComputeError returns the signed violation of the constraint given the
	// current body states. Zero means satisfied.
	ComputeError(bodies []*Body) float64

	// ComputeLambda turns an error value into a raw corrective impulse
	// magnitude, before over-relaxation is applied.
	ComputeLambda(err float64, bodies []*Body) float64

	// ApplyImpulse applies the relaxed impulse to the constrained bodies,
	// touching velocities only.
	ApplyImpulse(lambda float64, bodies []*Body)

	// PreviousLambda and SetPreviousLambda expose the warm-start term the
	// solver blends against.
	PreviousLambda() float64
	SetPreviousLambda(lambda float64)
}

// SharesBody reports whether two constraints touch at least one common body.
func SharesBody(a, b Constraint) bool {
	for _, ai := range a.BodyIndices() {
		for _, bi := range b.BodyIndices() {
			if ai == bi {
				return true
			}
		}
	}
	return false
}
