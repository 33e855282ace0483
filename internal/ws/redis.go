package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/triutilizer/backend/internal/sim"
)

// solverEvent is the envelope the manager publishes on the events channel.
type solverEvent struct {
	Type  string                 `json:"type"`
	Token string                 `json:"token"`
	Data  map[string]interface{} `json:"data"`
}

// StartEventSubscriber subscribes to the solver events channel and relays
// incoming events to the viewers of the named simulation. Running the relay
// through Redis means every instance behind a load balancer sees the same
// stream regardless of which instance stepped the simulation.
func StartEventSubscriber(ctx context.Context, rdb *redis.Client, hub *Hub) {
	if rdb == nil {
		log.Println("[WS] Redis client not set; event subscriber not started")
		return
	}

	pubsub := rdb.Subscribe(ctx, sim.EventsChannel)
	ch := pubsub.Channel()
	go func() {
		log.Printf("[WS] %s subscriber started", sim.EventsChannel)
		for msg := range ch {
			var ev solverEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[WS] invalid event payload: %v", err)
				continue
			}

			switch ev.Type {
			case "step_update":
				// Data is the compact per-step payload; forward it as-is
				out := map[string]interface{}{"type": "step_update"}
				for k, v := range ev.Data {
					out[k] = v
				}
				hub.BroadcastToSimulation(ev.Token, out)

			case "mode_change":
				hub.BroadcastToSimulation(ev.Token, map[string]interface{}{
					"type":  "mode_change",
					"token": ev.Token,
					"from":  ev.Data["from"],
					"to":    ev.Data["to"],
				})

			case "simulation_started", "simulation_paused":
				hub.BroadcastToSimulation(ev.Token, map[string]interface{}{
					"type":  ev.Type,
					"token": ev.Token,
					"id":    ev.Data["id"],
				})

			case "simulation_expired":
				hub.BroadcastToSimulation(ev.Token, map[string]interface{}{
					"type":   "simulation_expired",
					"token":  ev.Token,
					"id":     ev.Data["id"],
					"reason": ev.Data["reason"],
				})

			default:
				log.Printf("[WS] unknown event type: %s", ev.Type)
			}
		}
	}()
}
