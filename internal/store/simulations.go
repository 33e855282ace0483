package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/triutilizer/backend/internal/models"
)

// InsertSimulation creates the persistent row for a new simulation and
// returns its id. Callers treat failures as best-effort; the in-memory
// simulation keeps working without a row.
func InsertSimulation(db *sqlx.DB, token, name, status string) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("db is nil")
	}

	var id int
	err := db.QueryRowx(`INSERT INTO simulations (token, name, status, created_at) VALUES ($1, $2, $3, NOW()) RETURNING id`,
		token, name, status).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateSimulationStatus updates lifecycle fields on the simulation row.
func UpdateSimulationStatus(db *sqlx.DB, token, status string) error {
	if db == nil {
		return nil
	}

	var err error
	switch status {
	case "RUNNING":
		_, err = db.Exec(`UPDATE simulations SET status=$1, started_at=COALESCE(started_at, NOW()) WHERE token=$2`, status, token)
	case "EXPIRED":
		_, err = db.Exec(`UPDATE simulations SET status=$1, expired_at=NOW() WHERE token=$2`, status, token)
	default:
		_, err = db.Exec(`UPDATE simulations SET status=$1 WHERE token=$2`, status, token)
	}
	return err
}

// TouchSimulation records step progress on the simulation row.
func TouchSimulation(db *sqlx.DB, token string, stepCount int64, bodyCount, constraintCount int) error {
	if db == nil {
		return nil
	}

	_, err := db.Exec(`UPDATE simulations SET step_count=$1, body_count=$2, constraint_count=$3, last_step_at=NOW() WHERE token=$4`,
		stepCount, bodyCount, constraintCount, token)
	return err
}

// GetSimulationByToken loads a simulation row.
func GetSimulationByToken(db *sqlx.DB, token string) (*models.Simulation, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}

	var s models.Simulation
	if err := db.Get(&s, `SELECT * FROM simulations WHERE token=$1`, token); err != nil {
		return nil, err
	}
	return &s, nil
}
