package history

import (
	"context"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/triutilizer/backend/internal/config"
)

// rollupWindowHours bounds how far back each rollup pass recomputes buckets.
// Recomputing the recent window keeps the pass idempotent: re-running it
// writes the same aggregates.
const rollupWindowHours = 48

// StartRollupWorker periodically aggregates solve_runs into hourly buckets
// and prunes raw runs past the retention window. Callers run it with go.
func StartRollupWorker(ctx context.Context, db *sqlx.DB, cfg *config.Config) {
	if db == nil {
		log.Println("[ROLLUP] No database; rollup worker not started")
		return
	}

	intervalMinutes := 10
	if cfg != nil && cfg.HistoryRollupMinutes > 0 {
		intervalMinutes = cfg.HistoryRollupMinutes
	}
	retentionDays := 14
	if cfg != nil && cfg.HistoryRetentionDays > 0 {
		retentionDays = cfg.HistoryRetentionDays
	}

	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()

	log.Printf("[ROLLUP] Rollup worker started (every %d min, retention %d days)", intervalMinutes, retentionDays)

	// Run once immediately on startup
	rollupRecentBuckets(db)
	pruneAgedRuns(db, retentionDays)

	for {
		select {
		case <-ctx.Done():
			log.Println("[ROLLUP] Rollup worker stopped")
			return
		case <-ticker.C:
			rollupRecentBuckets(db)
			pruneAgedRuns(db, retentionDays)
		}
	}
}

// rollupRecentBuckets recomputes the hourly aggregates for the recent window
// and upserts them, so late-arriving runs still land in their bucket.
func rollupRecentBuckets(db *sqlx.DB) {
	res, err := db.Exec(`
		INSERT INTO solver_stats_hourly
			(bucket, total_runs, parallel_runs, converged_runs, avg_iterations, avg_duration_us, max_final_error)
		SELECT date_trunc('hour', created_at) AS bucket,
			COUNT(*),
			COUNT(*) FILTER (WHERE parallel),
			COUNT(*) FILTER (WHERE converged),
			AVG(iterations),
			AVG(duration_us),
			MAX(final_error)
		FROM solve_runs
		WHERE created_at >= NOW() - make_interval(hours => $1)
		GROUP BY 1
		ON CONFLICT (bucket) DO UPDATE SET
			total_runs = EXCLUDED.total_runs,
			parallel_runs = EXCLUDED.parallel_runs,
			converged_runs = EXCLUDED.converged_runs,
			avg_iterations = EXCLUDED.avg_iterations,
			avg_duration_us = EXCLUDED.avg_duration_us,
			max_final_error = EXCLUDED.max_final_error
	`, rollupWindowHours)
	if err != nil {
		log.Printf("[ROLLUP] Failed to roll up solve runs: %v", err)
		return
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("[ROLLUP] Upserted %d hourly bucket(s)", n)
	}
}

// pruneAgedRuns deletes raw solve runs older than the retention window. The
// hourly buckets keep the long-term shape.
func pruneAgedRuns(db *sqlx.DB, retentionDays int) {
	res, err := db.Exec(`DELETE FROM solve_runs WHERE created_at < NOW() - make_interval(days => $1)`, retentionDays)
	if err != nil {
		log.Printf("[ROLLUP] Failed to prune aged solve runs: %v", err)
		return
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("[ROLLUP] Pruned %d solve run(s) past %d day retention", n, retentionDays)
	}
}
