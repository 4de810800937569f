package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"codeberg.org/pairview/server/internal/config"
	"codeberg.org/pairview/server/internal/flush"
	"codeberg.org/pairview/server/internal/gate"
	"codeberg.org/pairview/server/internal/logger"
	"codeberg.org/pairview/server/internal/registry"
	ws "codeberg.org/pairview/server/internal/websocket"
	"codeberg.org/pairview/server/pairview/sessions"
)

const (
	// how often the flusher writes buffered snapshots to Postgres
	snapshotFlushInterval = 5 * time.Second

	// how long an empty registry entry survives before eviction
	registryGracePeriod = 30 * time.Second

	// how often the cleanup service checks for stale sessions
	cleanupCheckInterval = 5 * time.Minute

	// sessions inactive for longer than this will be archived
	sessionInactivityThreshold = 30 * time.Minute
)

// creates and configures a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sessionRepo := sessions.NewRepository(db)

	buffer, err := flush.NewBuffer(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize redis buffer: %w", err)
	}

	flusher := flush.NewFlusher(buffer, sessionRepo, snapshotFlushInterval)

	reg := registry.New(sessionRepo, registryGracePeriod)
	authGate := gate.New(sessionRepo)

	hub := ws.NewHub(reg)

	hub.RegisterHandler(ws.TypeEdit, ws.EditHandler(reg, buffer))
	hub.RegisterHandler(ws.TypeCursor, ws.CursorHandler())
	hub.RegisterHandler(ws.TypeConfig, ws.ConfigHandler(reg, sessionRepo))
	hub.RegisterHandler(ws.TypePing, ws.PingHandler())

	// immediately flush pending state when a session loses its last
	// connection; intermediate disconnects leave the debounced flusher
	// to catch up
	hub.OnClientDisconnect(func(client *ws.Client, wasLast bool) {
		if !wasLast {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := flusher.FlushSession(ctx, client.SessionID); err != nil {
			logger.ErrorErr(err, "failed to flush on last disconnect",
				"client_id", client.ID,
				"session_id", client.SessionID,
			)
		} else {
			logger.Debug("flushed on last disconnect",
				"client_id", client.ID,
				"session_id", client.SessionID,
			)
		}
	})

	// archive sessions nobody has touched in a while, closing any
	// connections that are still parked on them
	cleanupService := sessions.NewCleanupService(
		sessionRepo,
		cleanupCheckInterval,
		sessionInactivityThreshold,
		func(sessionID string, reason string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := flusher.FlushSession(ctx, sessionID); err != nil {
				logger.ErrorErr(err, "failed to flush expiring session",
					"session_id", sessionID,
				)
			}

			hub.EndSession(sessionID, reason)

			buffer.ClearSession(ctx, sessionID) //nolint:errcheck,gosec // best-effort cleanup
		},
	)

	router := gin.Default()

	server := &Server{
		db:             db,
		config:         cfg,
		sessionRepo:    sessionRepo,
		gate:           authGate,
		registry:       reg,
		hub:            hub,
		buffer:         buffer,
		flusher:        flusher,
		cleanupService: cleanupService,
		router:         router,
	}

	RegisterRoutes(router, server)

	return server, nil
}
