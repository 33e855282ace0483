package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/triutilizer/backend/internal/ws"
)

// HandleSimWebSocket handles real-time simulation streaming
func HandleSimWebSocket(hub *ws.Hub) gin.HandlerFunc {
	return ws.HandleWebSocket(hub)
}
