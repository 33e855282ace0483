// Package physics implements a parallel red-black SOR constraint solver for
// rigid bodies.
//
// Constraints are split into two colors so that no two red constraints share
// a body. Each iteration solves all red constraints in parallel, waits, then
// solves all black constraints in parallel. Successive over-relaxation blends
// each raw impulse with the constraint's previous lambda, which lets the loop
// converge in fewer iterations than plain Gauss-Seidel at omega above 1.
package physics

import (
	"fmt"
	"math"
)

// Params are the tunable solver knobs. Values outside the supported ranges
// are clamped by NewSolver.
type Params struct {
	// Omega is the over-relaxation factor, (1.0, 2.0]. 1.0 degenerates to
	// Gauss-Seidel; values near 2 converge faster but can oscillate.
	Omega float64 `json:"omega"`

	// MaxIterations bounds the red+black sweeps per solve, minimum 1.
	MaxIterations int `json:"max_iterations"`

	// Tolerance is the convergence threshold on the largest absolute
	// constraint error, must be positive.
	Tolerance float64 `json:"tolerance"`

	// ChunkSize is how many constraints each worker task handles.
	ChunkSize int `json:"chunk_size"`
}

// DefaultParams returns the solver defaults.
func DefaultParams() Params {
	return Params{
		Omega:         1.8,
		MaxIterations: 10,
		Tolerance:     1e-4,
		ChunkSize:     16,
	}
}

// Clamped returns a copy of p with every knob forced into its supported
// range.
func (p Params) Clamped() Params {
	if p.Omega <= 1.0 {
		p.Omega = 1.0 + 1e-9
	}
	if p.Omega > 2.0 {
		p.Omega = 2.0
	}
	if p.MaxIterations < 1 {
		p.MaxIterations = 1
	}
	if p.Tolerance <= 0 {
		p.Tolerance = 1e-4
	}
	if p.ChunkSize < 1 {
		p.ChunkSize = 16
	}
	return p
}

// Result reports how a solve terminated.
type Result struct {
	// Iterations actually executed, 0 for an empty constraint set.
	Iterations int `json:"iterations"`

	// FinalError is the largest absolute constraint error observed in the
	// last iteration.
	FinalError float64 `json:"final_error"`

	// Converged is true when FinalError is at or below tolerance.
	Converged bool `json:"converged"`
}

// Outcome pairs a Result with its error for asynchronous delivery.
type Outcome struct {
	Result Result
	Err    error
}

// Solver runs red-black SOR iterations over a constraint set. A Solver is
// immutable after construction; build a new one to change parameters.
type Solver struct {
	params Params
	pool   *Pool
}

// NewSolver builds a solver around the given worker pool. Params are clamped
// into their supported ranges.
func NewSolver(params Params, pool *Pool) *Solver {
	return &Solver{params: params.Clamped(), pool: pool}
}

// Params returns the clamped parameters in effect.
func (s *Solver) Params() Params {
	return s.params
}

// Solve runs the parallel red-black loop until convergence or the iteration
// cap. Bodies are mutated in place, velocities only. Validation failures
// return before anything is touched.
func (s *Solver) Solve(constraints []Constraint, bodies []*Body) (Result, error) {
	if err := validate(constraints, bodies); err != nil {
		return Result{}, err
	}
	if len(constraints) == 0 {
		return Result{Iterations: 0, FinalError: 0, Converged: true}, nil
	}

	part := PartitionConstraints(constraints)

	maxError := math.MaxFloat64
	iterations := 0
	for iterations < s.params.MaxIterations && maxError > s.params.Tolerance {
		redErr, err := s.solveBatch(part.Red, bodies)
		if err != nil {
			return Result{}, err
		}
		blackErr, err := s.solveBatch(part.Black, bodies)
		if err != nil {
			return Result{}, err
		}
		maxError = math.Max(redErr, blackErr)
		iterations++
	}

	return Result{
		Iterations: iterations,
		FinalError: maxError,
		Converged:  maxError <= s.params.Tolerance,
	}, nil
}

// SolveAsync runs Solve on its own goroutine and returns a one-shot channel
// carrying the outcome.
func (s *Solver) SolveAsync(constraints []Constraint, bodies []*Body) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		r, err := s.Solve(constraints, bodies)
		out <- Outcome{Result: r, Err: err}
	}()
	return out
}

// SolveSequential runs plain Gauss-Seidel SOR on the calling goroutine, in
// input order without partitioning. Used below the parallelism threshold and
// as the fallback when the pool is unavailable. Same contract as Solve.
func (s *Solver) SolveSequential(constraints []Constraint, bodies []*Body) (Result, error) {
	if err := validate(constraints, bodies); err != nil {
		return Result{}, err
	}
	if len(constraints) == 0 {
		return Result{Iterations: 0, FinalError: 0, Converged: true}, nil
	}

	maxError := math.MaxFloat64
	iterations := 0
	for iterations < s.params.MaxIterations && maxError > s.params.Tolerance {
		sweep := 0.0
		for _, c := range constraints {
			e := math.Abs(s.step(c, bodies))
			if e > sweep {
				sweep = e
			}
		}
		maxError = sweep
		iterations++
	}

	return Result{
		Iterations: iterations,
		FinalError: maxError,
		Converged:  maxError <= s.params.Tolerance,
	}, nil
}

// solveBatch fans one color over the pool in fixed-size chunks and waits for
// every chunk before returning the batch's largest absolute error. Any chunk
// failure aborts the solve after the batch has fully drained, so no task is
// left mutating bodies behind the caller's back.
func (s *Solver) solveBatch(constraints []Constraint, bodies []*Body) (float64, error) {
	if len(constraints) == 0 {
		return 0, nil
	}

	chunk := s.params.ChunkSize
	numChunks := (len(constraints) + chunk - 1) / chunk
	chunkErrs := make([]float64, numChunks)
	futures := make([]<-chan error, 0, numChunks)

	for i := 0; i < numChunks; i++ {
		start := i * chunk
		end := start + chunk
		if end > len(constraints) {
			end = len(constraints)
		}
		slot := i
		batch := constraints[start:end]
		futures = append(futures, s.pool.Submit(func() error {
			worst := 0.0
			for _, c := range batch {
				e := math.Abs(s.step(c, bodies))
				if e > worst {
					worst = e
				}
			}
			chunkErrs[slot] = worst
			return nil
		}))
	}

	var firstErr error
	for _, f := range futures {
		if err := <-f; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return 0, firstErr
	}

	worst := 0.0
	for _, e := range chunkErrs {
		if e > worst {
			worst = e
		}
	}
	return worst, nil
}

// step performs one SOR update on a single constraint and returns the error
// measured before the impulse, which is what the convergence check uses.
func (s *Solver) step(c Constraint, bodies []*Body) float64 {
	err := c.ComputeError(bodies)
	lambda := c.ComputeLambda(err, bodies)
	relaxed := s.params.Omega*lambda + (1.0-s.params.Omega)*c.PreviousLambda()
	c.SetPreviousLambda(relaxed)
	c.ApplyImpulse(relaxed, bodies)
	return err
}

// validate rejects any constraint referencing a body index outside the slice
// before the solve mutates anything.
func validate(constraints []Constraint, bodies []*Body) error {
	for i, c := range constraints {
		for _, idx := range c.BodyIndices() {
			if idx < 0 || idx >= len(bodies) {
				return fmt.Errorf("physics: constraint %d references body %d, want [0,%d)", i, idx, len(bodies))
			}
		}
	}
	return nil
}
