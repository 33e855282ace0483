package sim

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/triutilizer/backend/internal/alert"
	"github.com/triutilizer/backend/internal/config"
	"github.com/triutilizer/backend/internal/models"
	"github.com/triutilizer/backend/internal/physics"
	"github.com/triutilizer/backend/internal/store"
)

// EventsChannel is the Redis pub/sub channel carrying step updates and
// lifecycle events to the websocket relay.
const EventsChannel = "solver_events"

// divergenceAlertStreak is how many consecutive non-converged steps trigger
// an operator alert.
const divergenceAlertStreak = 5

// SolverSettings bundles the solver params with the routing knobs that decide
// between the parallel and sequential paths.
type SolverSettings struct {
	physics.Params
	ParallelEnabled           bool `json:"parallel_enabled"`
	ForceParallel             bool `json:"force_parallel"`
	MinConstraintsForParallel int  `json:"min_constraints_for_parallel"`
}

// SettingsFromConfig builds clamped solver settings from the app config.
func SettingsFromConfig(cfg *config.Config) SolverSettings {
	return SolverSettings{
		Params: physics.Params{
			Omega:         cfg.SolverOmega,
			MaxIterations: cfg.SolverMaxIterations,
			Tolerance:     cfg.SolverTolerance,
			ChunkSize:     cfg.SolverChunkSize,
		}.Clamped(),
		ParallelEnabled:           cfg.ParallelEnabled,
		ForceParallel:             cfg.SolverForceParallel,
		MinConstraintsForParallel: cfg.MinConstraintsForParallel,
	}
}

// Manager owns all live simulations plus the worker pool, solver settings and
// statistics they share. It is constructed in main and handed to handlers and
// workers; there is deliberately no package-level instance.
type Manager struct {
	sims map[string]*Simulation // keyed by token
	mu   sync.RWMutex

	db  *sqlx.DB
	rdb *redis.Client
	cfg *config.Config

	pool  *physics.Pool
	stats *physics.Stats

	settings   SolverSettings
	settingsMu sync.RWMutex
}

// NewManager creates a manager with its worker pool sized from config.
func NewManager(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) *Manager {
	m := &Manager{
		sims:     make(map[string]*Simulation),
		db:       db,
		rdb:      rdb,
		cfg:      cfg,
		pool:     physics.NewPool(cfg.PhysicsWorkers),
		stats:    physics.NewStats(),
		settings: SettingsFromConfig(cfg),
	}
	log.Printf("[SIM] Manager ready: %d workers, omega=%.2f, threshold=%d",
		m.pool.Workers(), m.settings.Omega, m.settings.MinConstraintsForParallel)
	return m
}

// Close shuts the worker pool down. Pending solves finish first.
func (m *Manager) Close() {
	m.pool.Close()
}

// Pool exposes the worker pool for status reporting.
func (m *Manager) Pool() *physics.Pool { return m.pool }

// Stats exposes the shared solver statistics.
func (m *Manager) Stats() *physics.Stats { return m.stats }

// SolverSettings returns a copy of the current settings.
func (m *Manager) SolverSettings() SolverSettings {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	return m.settings
}

// UpdateSolverSettings replaces the settings after clamping.
func (m *Manager) UpdateSolverSettings(s SolverSettings) SolverSettings {
	s.Params = s.Params.Clamped()
	if s.MinConstraintsForParallel < 1 || s.MinConstraintsForParallel > 1000 {
		s.MinConstraintsForParallel = 50
	}
	m.settingsMu.Lock()
	m.settings = s
	m.settingsMu.Unlock()
	log.Printf("[SOLVER] Settings updated: omega=%.3f iters=%d tol=%.1e chunk=%d parallel=%v force=%v threshold=%d",
		s.Omega, s.MaxIterations, s.Tolerance, s.ChunkSize, s.ParallelEnabled, s.ForceParallel, s.MinConstraintsForParallel)
	return s
}

// ApplySolverConfig re-reads solver settings from the app config, used after
// runtime config changes land in cfg.
func (m *Manager) ApplySolverConfig(cfg *config.Config) {
	m.UpdateSolverSettings(SettingsFromConfig(cfg))
}

// generateToken generates a secure random token
func generateToken(length int) string {
	bytes := make([]byte, length)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// generateSimID generates a unique simulation ID
func generateSimID() string {
	return "sim_" + generateToken(8)
}

// CreateSimulation registers a new simulation with optional initial bodies
// and constraints.
func (m *Manager) CreateSimulation(name string, gravity [3]float64, bodySpecs []BodySpec, constraintSpecs []ConstraintSpec) (*Simulation, error) {
	s := NewSimulation(generateSimID(), generateToken(16), name)
	s.Gravity = mgl64.Vec3(gravity)

	for _, bs := range bodySpecs {
		if _, err := s.AddBody(bs); err != nil {
			return nil, err
		}
	}
	for _, cs := range constraintSpecs {
		if err := s.AddConstraint(cs); err != nil {
			return nil, err
		}
	}

	if m.db != nil {
		dbID, err := store.InsertSimulation(m.db, s.Token, name, string(StatusConfiguring))
		if err != nil {
			log.Printf("[DB] Failed to create simulation row for %s: %v", s.ID, err)
		} else {
			s.DBID = dbID
		}
	}

	m.mu.Lock()
	m.sims[s.Token] = s
	m.mu.Unlock()

	bodies, constraints := s.Counts()
	log.Printf("[SIM] Simulation created: %s (%d bodies, %d constraints)", s.ID, bodies, constraints)

	go m.saveToRedis(s)
	return s, nil
}

// GetSimulation retrieves a simulation by token, falling back to the Redis
// snapshot for restart recovery.
func (m *Manager) GetSimulation(token string) (*Simulation, error) {
	m.mu.RLock()
	s, ok := m.sims[token]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := m.loadFromRedis(token)
	if err != nil {
		return nil, errors.New("simulation not found")
	}

	m.mu.Lock()
	if existing, ok := m.sims[token]; ok {
		s = existing
	} else {
		m.sims[token] = s
	}
	m.mu.Unlock()

	log.Printf("[SIM] Simulation %s restored from Redis", s.ID)
	return s, nil
}

// ListSimulations returns all registered simulations.
func (m *Manager) ListSimulations() []*Simulation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Simulation, 0, len(m.sims))
	for _, s := range m.sims {
		out = append(out, s)
	}
	return out
}

// ActiveCount returns the number of registered simulations.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sims)
}

// StatusCounts returns simulation counts per lifecycle state.
func (m *Manager) StatusCounts() map[Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[Status]int)
	for _, s := range m.sims {
		counts[s.CurrentStatus()]++
	}
	return counts
}

// StartSimulation moves a simulation into RUNNING.
func (m *Manager) StartSimulation(token string) error {
	s, err := m.GetSimulation(token)
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		return err
	}
	if err := store.UpdateSimulationStatus(m.db, token, string(StatusRunning)); err != nil {
		log.Printf("[DB] Failed to mark simulation %s running: %v", s.ID, err)
	}
	m.publishEvent("simulation_started", token, map[string]interface{}{"id": s.ID})
	go m.saveToRedis(s)
	return nil
}

// PauseSimulation takes a simulation off the step ticker.
func (m *Manager) PauseSimulation(token string) error {
	s, err := m.GetSimulation(token)
	if err != nil {
		return err
	}
	if err := s.Pause(); err != nil {
		return err
	}
	if err := store.UpdateSimulationStatus(m.db, token, string(StatusPaused)); err != nil {
		log.Printf("[DB] Failed to mark simulation %s paused: %v", s.ID, err)
	}
	m.publishEvent("simulation_paused", token, map[string]interface{}{"id": s.ID})
	go m.saveToRedis(s)
	return nil
}

// DeleteSimulation expires a simulation and drops it from memory and Redis.
// The DB row stays for history.
func (m *Manager) DeleteSimulation(token string) error {
	m.mu.Lock()
	s, ok := m.sims[token]
	if ok {
		delete(m.sims, token)
	}
	m.mu.Unlock()
	if !ok {
		return errors.New("simulation not found")
	}

	s.Expire()
	if err := store.UpdateSimulationStatus(m.db, token, string(StatusExpired)); err != nil {
		log.Printf("[DB] Failed to mark simulation %s expired: %v", s.ID, err)
	}
	m.deleteFromRedis(token)
	m.publishEvent("simulation_expired", token, map[string]interface{}{"id": s.ID, "reason": "deleted"})
	log.Printf("[SIM] Simulation %s deleted", s.ID)
	return nil
}

// StepSimulation advances one simulation by dt, routing between the parallel
// and sequential solver paths.
func (m *Manager) StepSimulation(token string, dt float64) (physics.Result, string, error) {
	s, err := m.GetSimulation(token)
	if err != nil {
		return physics.Result{}, "", err
	}
	return m.stepLoaded(s, dt)
}

// StepAll advances every RUNNING simulation concurrently. Each step's solve
// shares the manager's worker pool; the fan-out itself uses goroutines so an
// outer step can never starve the pool its own solve needs.
func (m *Manager) StepAll(dt float64) {
	m.mu.RLock()
	running := make([]*Simulation, 0, len(m.sims))
	for _, s := range m.sims {
		if s.CurrentStatus() == StatusRunning {
			running = append(running, s)
		}
	}
	m.mu.RUnlock()

	if len(running) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, s := range running {
		wg.Add(1)
		go func(s *Simulation) {
			defer wg.Done()
			if _, _, err := m.stepLoaded(s, dt); err != nil {
				log.Printf("[STEP] Simulation %s step failed: %v", s.ID, err)
			}
		}(s)
	}
	wg.Wait()
}

// stepLoaded runs the routing decision, the solve and all the bookkeeping
// around it: stats, persistence, events, alerts.
func (m *Manager) stepLoaded(s *Simulation, dt float64) (physics.Result, string, error) {
	settings := m.SolverSettings()
	constraints := s.ConstraintCount()
	parallel := settings.ParallelEnabled &&
		(settings.ForceParallel || constraints >= settings.MinConstraintsForParallel)

	mode := SolverModeSequential
	if parallel {
		mode = SolverModeParallel
	}
	prevMode := s.CurrentMode()

	solver := physics.NewSolver(settings.Params, m.pool)
	start := time.Now()
	res, err := s.Step(solver, !parallel, dt)
	elapsed := time.Since(start)

	if err != nil {
		log.Printf("[STEP] Simulation %s solve aborted: %v", s.ID, err)
		go alert.Notify(context.Background(), "solve_abort", "solver aborted a step", map[string]interface{}{
			"simulation": s.ID,
			"token":      s.Token,
			"error":      err.Error(),
		})
		return res, mode, err
	}

	m.stats.RecordStep(parallel, constraints, res.Converged)
	m.stats.RecordDuration("physicsStep", elapsed)
	if parallel {
		m.stats.RecordDuration("parallelStep", elapsed)
	} else {
		m.stats.RecordDuration("sequentialStep", elapsed)
	}

	if m.cfg != nil && m.cfg.DebugLogging {
		log.Printf("[STEP] %s step=%d mode=%s constraints=%d iters=%d err=%.3e converged=%v took=%s",
			s.ID, s.Steps(), mode, constraints, res.Iterations, res.FinalError, res.Converged, elapsed)
	}

	go m.recordRun(s, res, parallel, constraints, elapsed)
	m.publishEvent("step_update", s.Token, s.StepUpdate())
	if prevMode != "" && prevMode != mode {
		m.publishEvent("mode_change", s.Token, map[string]interface{}{"from": prevMode, "to": mode})
	}
	go m.saveToRedis(s)

	if streak := s.DivergenceStreak(); streak >= divergenceAlertStreak && streak%divergenceAlertStreak == 0 {
		go alert.Notify(context.Background(), "divergence", "simulation repeatedly failing to converge", map[string]interface{}{
			"simulation":  s.ID,
			"token":       s.Token,
			"streak":      streak,
			"final_error": res.FinalError,
		})
	}

	return res, mode, nil
}

// SolveOnce runs a stateless solve over an inline system, using the same
// routing and bookkeeping as simulation steps. Backs the one-shot endpoint
// and the console test command.
func (m *Manager) SolveOnce(bodySpecs []BodySpec, constraintSpecs []ConstraintSpec, override *physics.Params) (physics.Result, string, []*physics.Body, error) {
	bodies, constraints, err := BuildSystem(bodySpecs, constraintSpecs)
	if err != nil {
		return physics.Result{}, "", nil, err
	}

	settings := m.SolverSettings()
	params := settings.Params
	if override != nil {
		params = override.Clamped()
	}
	parallel := settings.ParallelEnabled &&
		(settings.ForceParallel || len(constraints) >= settings.MinConstraintsForParallel)

	mode := SolverModeSequential
	if parallel {
		mode = SolverModeParallel
	}

	solver := physics.NewSolver(params, m.pool)
	start := time.Now()
	var res physics.Result
	if parallel {
		res, err = solver.Solve(constraints, bodies)
	} else {
		res, err = solver.SolveSequential(constraints, bodies)
	}
	elapsed := time.Since(start)
	if err != nil {
		go alert.Notify(context.Background(), "solve_abort", "one-shot solve aborted", map[string]interface{}{
			"error": err.Error(),
		})
		return res, mode, nil, err
	}

	m.stats.RecordStep(parallel, len(constraints), res.Converged)
	m.stats.RecordDuration("physicsStep", elapsed)
	if parallel {
		m.stats.RecordDuration("parallelStep", elapsed)
	} else {
		m.stats.RecordDuration("sequentialStep", elapsed)
	}

	run := &models.SolveRun{
		Parallel:    parallel,
		Constraints: len(constraints),
		Bodies:      len(bodies),
		Iterations:  res.Iterations,
		FinalError:  res.FinalError,
		Converged:   res.Converged,
		DurationUs:  elapsed.Microseconds(),
	}
	go func() {
		if err := store.InsertSolveRun(m.db, run); err != nil {
			log.Printf("[DB] Failed to record one-shot solve run: %v", err)
		}
	}()

	return res, mode, bodies, nil
}

// recordRun persists one step's solve run and touches the simulation row.
func (m *Manager) recordRun(s *Simulation, res physics.Result, parallel bool, constraints int, elapsed time.Duration) {
	if m.db == nil {
		return
	}

	bodies, _ := s.Counts()
	run := &models.SolveRun{
		SimulationID: sql.NullInt64{Int64: int64(s.DBID), Valid: s.DBID > 0},
		Parallel:     parallel,
		Constraints:  constraints,
		Bodies:       bodies,
		Iterations:   res.Iterations,
		FinalError:   res.FinalError,
		Converged:    res.Converged,
		DurationUs:   elapsed.Microseconds(),
	}
	if err := store.InsertSolveRun(m.db, run); err != nil {
		log.Printf("[DB] Failed to record solve run for %s: %v", s.ID, err)
	}
	if err := store.TouchSimulation(m.db, s.Token, s.Steps(), bodies, constraints); err != nil {
		log.Printf("[DB] Failed to touch simulation row for %s: %v", s.ID, err)
	}
}

// publishEvent pushes a typed event onto the solver events channel for the
// websocket relay. Best effort.
func (m *Manager) publishEvent(eventType, token string, data map[string]interface{}) {
	if m.rdb == nil {
		return
	}

	payload := map[string]interface{}{
		"type":  eventType,
		"token": token,
		"data":  data,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[SIM] Failed to marshal %s event: %v", eventType, err)
		return
	}
	if err := m.rdb.Publish(context.Background(), EventsChannel, b).Err(); err != nil {
		log.Printf("[SIM] publish %s failed: %v", eventType, err)
	}
}

// saveToRedis persists the simulation snapshot to Redis with the idle TTL.
func (m *Manager) saveToRedis(s *Simulation) error {
	if m.rdb == nil {
		return nil
	}

	data, err := json.Marshal(s.snapshot())
	if err != nil {
		return err
	}

	ttl := time.Hour
	if m.cfg != nil && m.cfg.SimulationTTLMinutes > 0 {
		ttl = time.Duration(m.cfg.SimulationTTLMinutes) * time.Minute
	}

	key := "sim:" + s.Token + ":state"
	return m.rdb.SetEx(context.Background(), key, data, ttl).Err()
}

// loadFromRedis restores a simulation snapshot from Redis.
func (m *Manager) loadFromRedis(token string) (*Simulation, error) {
	if m.rdb == nil {
		return nil, errors.New("no redis client")
	}

	key := "sim:" + token + ":state"
	data, err := m.rdb.Get(context.Background(), key).Result()
	if err == redis.Nil {
		return nil, errors.New("simulation not found in redis")
	}
	if err != nil {
		return nil, err
	}

	var snap simSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, err
	}
	return restoreSimulation(snap), nil
}

func (m *Manager) deleteFromRedis(token string) {
	if m.rdb == nil {
		return
	}
	if err := m.rdb.Del(context.Background(), "sim:"+token+":state").Err(); err != nil {
		log.Printf("[SIM] Failed to delete Redis snapshot for %s: %v", token, err)
	}
}
