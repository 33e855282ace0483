package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/triutilizer/backend/internal/sim"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// Client represents a connected WebSocket viewer
type Client struct {
	conn     *websocket.Conn
	viewerID string
	simToken string
	hub      *Hub
	send     chan []byte
}

// Hub maintains the set of active viewers grouped by simulation.
// It is constructed in main and handed to the handlers and the event
// subscriber; there is no package-level instance.
type Hub struct {
	clients    map[string]*Client            // viewerID -> Client
	rooms      map[string]map[string]*Client // simToken -> viewerID -> Client
	register   chan *Client
	unregister chan *Client
	manager    *sim.Manager
	overlay    bool
	mu         sync.RWMutex
}

// NewHub creates a new Hub bound to the simulation manager
func NewHub(manager *sim.Manager) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		manager:    manager,
	}
}

// BroadcastToSimulation sends a message to every viewer of a simulation
func (h *Hub) BroadcastToSimulation(simToken string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if room, exists := h.rooms[simToken]; exists {
		for _, client := range room {
			select {
			case client.send <- data:
			default:
				// Client's buffer is full
				log.Printf("Client send buffer full for viewer %s on simulation %s, dropping message", client.viewerID, simToken)
			}
		}
	}
}

// SendToViewer sends a message to a specific viewer
func (h *Hub) SendToViewer(viewerID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, exists := h.clients[viewerID]; exists {
		select {
		case client.send <- data:
			// sent
		default:
			log.Printf("[WS] SendToViewer dropped message for viewer %s (buffer full)", viewerID)
		}
	} else {
		log.Printf("[WS] SendToViewer no client for viewer %s", viewerID)
	}
}

// BroadcastAll sends a message to every connected viewer
func (h *Hub) BroadcastAll(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			log.Printf("[WS] BroadcastAll dropped message for viewer %s (buffer full)", client.viewerID)
		}
	}
}

// SetOverlayEnabled flips the debug overlay flag and tells every viewer
func (h *Hub) SetOverlayEnabled(enabled bool) {
	h.mu.Lock()
	changed := h.overlay != enabled
	h.overlay = enabled
	h.mu.Unlock()

	if changed {
		log.Printf("[WS] Debug overlay %s", map[bool]string{true: "enabled", false: "disabled"}[enabled])
	}
	h.BroadcastAll(map[string]interface{}{
		"type":    "overlay",
		"enabled": enabled,
	})
}

// OverlayEnabled reports the current debug overlay flag
func (h *Hub) OverlayEnabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.overlay
}

// ViewerCount returns the number of connected viewers
func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Message types
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed: connection is being replaced or cleaned up.
				// Best-effort close frame; ignore errors (conn may already be closed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error for viewer %s: %v", c.viewerID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("WebSocket ping error for viewer %s: %v", c.viewerID, err)
				return
			}
		}
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(message string) {
	data, _ := json.Marshal(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
	c.send <- data
}
