package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/triutilizer/backend/internal/models"
)

// InsertSolveRun records one solver invocation. Best effort: the step path
// calls this asynchronously and only logs failures.
func InsertSolveRun(db *sqlx.DB, run *models.SolveRun) error {
	if db == nil {
		return nil
	}

	_, err := db.Exec(`INSERT INTO solve_runs (simulation_id, parallel, constraints, bodies, iterations, final_error, converged, duration_us, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		run.SimulationID, run.Parallel, run.Constraints, run.Bodies, run.Iterations, run.FinalError, run.Converged, run.DurationUs)
	return err
}

// RecentSolveRuns returns the newest runs, optionally filtered to one
// simulation. Limit is capped to keep the admin endpoint bounded.
func RecentSolveRuns(db *sqlx.DB, simulationID int, limit int) ([]models.SolveRun, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var runs []models.SolveRun
	var err error
	if simulationID > 0 {
		err = db.Select(&runs, `SELECT * FROM solve_runs WHERE simulation_id=$1 ORDER BY created_at DESC LIMIT $2`, simulationID, limit)
	} else {
		err = db.Select(&runs, `SELECT * FROM solve_runs ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// HourlyStats returns rolled-up buckets, newest first.
func HourlyStats(db *sqlx.DB, limit int) ([]models.SolverStatsHourly, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if limit <= 0 || limit > 168 {
		limit = 48
	}

	var stats []models.SolverStatsHourly
	if err := db.Select(&stats, `SELECT * FROM solver_stats_hourly ORDER BY bucket DESC LIMIT $1`, limit); err != nil {
		return nil, err
	}
	return stats, nil
}
