package physics

// Partition is a two-color split of a constraint set. All red constraints are
// solved in parallel first, then all black constraints, so any two constraints
// that share a body must not both be red.
type Partition struct {
	Red   []Constraint
	Black []Constraint
}

// PartitionConstraints colors constraints greedily in input order: a
// constraint stays red unless it shares a body with an earlier red one.
//
// Black-black conflicts are not checked. Two black constraints can share a
// body and then race within the black batch; impulse application stays
// memory-safe because bodies lock internally, but the numeric result of such
// a batch is order-dependent. Chain topologies (the common case here) never
// trigger this since alternating links two-color cleanly.
func PartitionConstraints(constraints []Constraint) Partition {
	isRed := make([]bool, len(constraints))
	for i, c := range constraints {
		red := true
		for j := 0; j < i; j++ {
			if isRed[j] && SharesBody(c, constraints[j]) {
				red = false
				break
			}
		}
		isRed[i] = red
	}

	p := Partition{
		Red:   make([]Constraint, 0, len(constraints)),
		Black: make([]Constraint, 0, len(constraints)),
	}
	for i, c := range constraints {
		if isRed[i] {
			p.Red = append(p.Red, c)
		} else {
			p.Black = append(p.Black, c)
		}
	}
	return p
}
