package main

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"codeberg.org/pairview/server/internal/config"
	"codeberg.org/pairview/server/internal/flush"
	"codeberg.org/pairview/server/internal/gate"
	"codeberg.org/pairview/server/internal/registry"
	ws "codeberg.org/pairview/server/internal/websocket"
	"codeberg.org/pairview/server/pairview/sessions"
)

// holds all dependencies and state for the API server
type Server struct {
	db             *pgxpool.Pool
	config         *config.Config
	sessionRepo    sessions.Repository
	gate           *gate.Gate
	registry       *registry.Registry
	hub            *ws.Hub
	buffer         *flush.Buffer
	flusher        *flush.Flusher
	cleanupService *sessions.CleanupService
	router         *gin.Engine
}
