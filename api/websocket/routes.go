package websocket

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/pairview/server/internal/gate"
	"codeberg.org/pairview/server/internal/registry"
	ws "codeberg.org/pairview/server/internal/websocket"
)

func RegisterRoutes(router *gin.RouterGroup, hub *ws.Hub, authGate *gate.Gate, reg *registry.Registry) {
	router.GET("/ws", WebSocketHandler(hub, authGate, reg))
}
