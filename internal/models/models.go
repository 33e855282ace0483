package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Simulation is the persistent record of a constraint system registered with
// the server. The live body/constraint state lives in memory and Redis; this
// row carries identity and lifecycle.
type Simulation struct {
	ID          int            `db:"id" json:"id"`
	Token       string         `db:"token" json:"token"`
	Name        string         `db:"name" json:"name"`
	Status      string         `db:"status" json:"status"`
	BodyCount   int            `db:"body_count" json:"body_count"`
	ConstraintCount int        `db:"constraint_count" json:"constraint_count"`
	StepCount   int64          `db:"step_count" json:"step_count"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	StartedAt   sql.NullTime   `db:"started_at" json:"started_at,omitempty"`
	ExpiredAt   sql.NullTime   `db:"expired_at" json:"expired_at,omitempty"`
	LastStepAt  sql.NullTime   `db:"last_step_at" json:"last_step_at,omitempty"`
	Notes       sql.NullString `db:"notes" json:"notes,omitempty"`
}

// SolveRun records one solver invocation for history and diagnostics.
type SolveRun struct {
	ID           int           `db:"id" json:"id"`
	SimulationID sql.NullInt64 `db:"simulation_id" json:"simulation_id,omitempty"`
	Parallel     bool          `db:"parallel" json:"parallel"`
	Constraints  int           `db:"constraints" json:"constraints"`
	Bodies       int           `db:"bodies" json:"bodies"`
	Iterations   int           `db:"iterations" json:"iterations"`
	FinalError   float64       `db:"final_error" json:"final_error"`
	Converged    bool          `db:"converged" json:"converged"`
	DurationUs   int64         `db:"duration_us" json:"duration_us"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// SolverStatsHourly is an aggregated bucket of solve runs, produced by the
// history rollup worker.
type SolverStatsHourly struct {
	ID            int       `db:"id" json:"id"`
	Bucket        time.Time `db:"bucket" json:"bucket"`
	TotalRuns     int64     `db:"total_runs" json:"total_runs"`
	ParallelRuns  int64     `db:"parallel_runs" json:"parallel_runs"`
	ConvergedRuns int64     `db:"converged_runs" json:"converged_runs"`
	AvgIterations float64   `db:"avg_iterations" json:"avg_iterations"`
	AvgDurationUs float64   `db:"avg_duration_us" json:"avg_duration_us"`
	MaxFinalError float64   `db:"max_final_error" json:"max_final_error"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// RuntimeConfig is a single admin-editable configuration entry.
type RuntimeConfig struct {
	Key         string       `db:"key" json:"key"`
	Value       string       `db:"value" json:"value"`
	ValueType   string       `db:"value_type" json:"value_type"`
	Description string       `db:"description" json:"description"`
	UpdatedBy   sql.NullString `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt   sql.NullTime `db:"updated_at" json:"updated_at,omitempty"`
}

// AdminAccount is an operator login for the admin API.
type AdminAccount struct {
	ID         int            `db:"id" json:"id"`
	Username   string         `db:"username" json:"username"`
	TokenHash  string         `db:"token_hash" json:"-"`
	Roles      pq.StringArray `db:"roles" json:"roles"`
	AllowedIPs pq.StringArray `db:"allowed_ips" json:"allowed_ips"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	LastLogin  sql.NullTime   `db:"last_login" json:"last_login,omitempty"`
}

// AdminAudit is one audit log entry for an admin action.
type AdminAudit struct {
	ID            int            `db:"id" json:"id"`
	AdminUsername sql.NullString `db:"admin_username" json:"admin_username,omitempty"`
	IP            sql.NullString `db:"ip" json:"ip,omitempty"`
	Route         sql.NullString `db:"route" json:"route,omitempty"`
	Action        sql.NullString `db:"action" json:"action,omitempty"`
	Details       sql.NullString `db:"details" json:"details,omitempty"`
	Success       sql.NullBool   `db:"success" json:"success,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}
