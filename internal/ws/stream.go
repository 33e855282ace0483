package ws

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// StepData is a client request for a manual step of the watched simulation.
type StepData struct {
	Dt float64 `json:"dt"`
}

func generateViewerID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return "v_" + hex.EncodeToString(b)
}

// HandleWebSocket upgrades a viewer connection and attaches it to the
// simulation named by the token query param.
func HandleWebSocket(h *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		simToken := c.Query("token")
		if simToken == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}

		if _, err := h.manager.GetSimulation(simToken); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "simulation not found"})
			return
		}

		// A stable client id lets a reconnecting viewer replace its old
		// connection instead of leaking it.
		viewerID := c.Query("client")
		if viewerID == "" {
			viewerID = generateViewerID()
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[WS] Upgrade error: %v", err)
			return
		}

		client := &Client{
			conn:     conn,
			viewerID: viewerID,
			simToken: simToken,
			hub:      h,
			send:     make(chan []byte, 256),
		}

		h.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// Run owns the register/unregister lifecycle. Started once from main.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()

			if oldClient, exists := h.clients[client.viewerID]; exists {
				log.Printf("[WS] Viewer %s reconnecting - closing old connection", client.viewerID)
				if err := oldClient.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"), time.Now().Add(5*time.Second)); err != nil {
					log.Printf("Error writing close control to old client %s: %v", oldClient.viewerID, err)
				}
				oldClient.conn.Close()
				select {
				case <-oldClient.send:
				default:
					close(oldClient.send)
				}
				delete(h.clients, client.viewerID)
				if room, exists := h.rooms[oldClient.simToken]; exists {
					delete(room, client.viewerID)
				}
			}

			h.clients[client.viewerID] = client
			if _, exists := h.rooms[client.simToken]; !exists {
				h.rooms[client.simToken] = make(map[string]*Client)
			}
			h.rooms[client.simToken][client.viewerID] = client
			overlay := h.overlay
			h.mu.Unlock()

			log.Printf("[WS] Viewer %s connected to simulation %s", client.viewerID, client.simToken)

			s, err := h.manager.GetSimulation(client.simToken)
			if err != nil {
				log.Printf("[WS] Simulation not found for token %s: %v", client.simToken, err)
				continue
			}

			state := s.StateView()
			state["type"] = "sim_state"
			state["overlay"] = overlay
			h.SendToViewer(client.viewerID, state)

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.viewerID]; ok && cur == client {
				delete(h.clients, client.viewerID)
				if room, exists := h.rooms[client.simToken]; exists {
					delete(room, client.viewerID)
					if len(room) == 0 {
						delete(h.rooms, client.simToken)
					}
				}

				log.Printf("[WS] Viewer %s disconnected from simulation %s", client.viewerID, client.simToken)

				select {
				case <-client.send:
				default:
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// readPump reads viewer messages.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (unexpected) for viewer %s: %v", c.viewerID, err)
			} else {
				log.Printf("WebSocket read error for viewer %s: %v", c.viewerID, err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		c.handleMessage(msg)
	}
}

// handleMessage processes incoming viewer messages.
func (c *Client) handleMessage(msg WSMessage) {
	switch msg.Type {
	case "get_state":
		s, err := c.hub.manager.GetSimulation(c.simToken)
		if err != nil {
			c.sendError("Simulation not found")
			return
		}
		state := s.StateView()
		state["type"] = "sim_state"
		state["overlay"] = c.hub.OverlayEnabled()
		d, _ := json.Marshal(state)
		c.send <- d

	case "step":
		var data StepData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				c.sendError("Invalid step data")
				return
			}
		}
		if data.Dt <= 0 {
			data.Dt = 0.05
		}
		res, mode, err := c.hub.manager.StepSimulation(c.simToken, data.Dt)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		// The room also receives a step_update through the event relay;
		// this direct reply covers deployments without Redis.
		c.hub.SendToViewer(c.viewerID, map[string]interface{}{
			"type":        "step_result",
			"iterations":  res.Iterations,
			"final_error": res.FinalError,
			"converged":   res.Converged,
			"mode":        mode,
		})

	default:
		c.sendError("Unknown message type")
	}
}
