package sim

import (
	"context"
	"log"
	"time"

	"github.com/triutilizer/backend/internal/store"
)

// StartReaper starts the background sweep that expires idle simulations.
func (m *Manager) StartReaper(ctx context.Context) {
	interval := 60
	if m.cfg != nil && m.cfg.ReaperIntervalSeconds > 0 {
		interval = m.cfg.ReaperIntervalSeconds
	}

	log.Printf("[REAPER] Reaper started: interval=%ds", interval)
	go func() {
		ticker := time.NewTicker(time.Duration(interval) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[REAPER] Reaper stopping")
				return
			case <-ticker.C:
				m.reapIdle()
			}
		}
	}()
}

// reapIdle expires every simulation whose last activity is older than the
// configured TTL.
func (m *Manager) reapIdle() {
	ttlMinutes := 30
	if m.cfg != nil && m.cfg.SimulationTTLMinutes > 0 {
		ttlMinutes = m.cfg.SimulationTTLMinutes
	}
	cutoff := time.Now().Add(-time.Duration(ttlMinutes) * time.Minute)

	m.mu.RLock()
	var idle []*Simulation
	for _, s := range m.sims {
		if s.IdleSince().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range idle {
		// Re-check under the sim's own lock; a step may have landed since.
		if !s.IdleSince().Before(cutoff) {
			continue
		}

		s.Expire()
		m.mu.Lock()
		delete(m.sims, s.Token)
		m.mu.Unlock()

		if err := store.UpdateSimulationStatus(m.db, s.Token, string(StatusExpired)); err != nil {
			log.Printf("[DB] Failed to mark simulation %s expired: %v", s.ID, err)
		}
		m.deleteFromRedis(s.Token)
		m.publishEvent("simulation_expired", s.Token, map[string]interface{}{"id": s.ID, "reason": "idle"})
		log.Printf("[REAPER] Simulation %s expired after %dm idle", s.ID, ttlMinutes)
	}
}
