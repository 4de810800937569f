package main

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"codeberg.org/pairview/server/api/rest/health"
	"codeberg.org/pairview/server/api/rest/sessions"
	"codeberg.org/pairview/server/api/websocket"
)

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, server *Server) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	router.GET("/health", health.Handler)

	v1 := router.Group("/api/v1")

	{
		v1.GET("/ping", health.PingHandler)

		sessions.RegisterRoutes(v1, server.sessionRepo, server.hub, func(c *gin.Context, sessionID string) error {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
			defer cancel()

			if err := server.flusher.FlushSession(ctx, sessionID); err != nil {
				return err
			}

			return server.buffer.ClearSession(ctx, sessionID)
		})

		websocket.RegisterRoutes(v1, server.hub, server.gate, server.registry)
	}
}
