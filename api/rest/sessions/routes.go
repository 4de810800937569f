package sessions

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/pairview/server/internal/auth"
	ws "codeberg.org/pairview/server/internal/websocket"
	"codeberg.org/pairview/server/pairview/sessions"
)

func RegisterRoutes(router *gin.RouterGroup, repo sessions.Repository, hub *ws.Hub, flushSession func(c *gin.Context, sessionID string) error) {
	group := router.Group("/sessions", auth.AuthMiddleware())

	group.POST("", CreateSessionHandler(repo))
	group.GET("", ListSessionsHandler(repo))
	group.GET("/:id/config", GetConfigHandler(repo))
	group.GET("/:id/code", GetCodeHandler(repo))
	group.GET("/:id/participants", ListParticipantsHandler(repo, hub))
	group.POST("/:id/participants", AddParticipantHandler(repo))
	group.POST("/:id/end", EndSessionHandler(repo, hub, flushSession))
}
