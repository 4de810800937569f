package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"codeberg.org/pairview/server/internal/auth"
	apierrors "codeberg.org/pairview/server/internal/errors"
	"codeberg.org/pairview/server/internal/gate"
	"codeberg.org/pairview/server/internal/logger"
	"codeberg.org/pairview/server/internal/registry"
	ws "codeberg.org/pairview/server/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     ws.CheckOrigin,
}

// handles websocket connections for live interview sessions.
// The join handshake runs before the upgrade: identity from the token, role
// from the authorization gate, initial snapshot from the registry (which
// hydrates from the store when the session is not already live).
func WebSocketHandler(hub *ws.Hub, authGate *gate.Gate, reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params ConnectParams
		if err := c.ShouldBindQuery(&params); err != nil {
			apierrors.BadRequest(c, "invalid parameters", err)
			return
		}

		if !apierrors.IsValidUUID(params.SessionID) {
			apierrors.BadRequest(c, "invalid session_id format", nil)
			return
		}

		claims, err := auth.ValidateJWT(params.Token)
		if err != nil {
			apierrors.Unauthorized(c, "valid authentication required")
			return
		}
		userID := claims.UserID

		// use timeout context for store operations to prevent hanging
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		role, err := authGate.Authorize(ctx, userID, params.SessionID)
		if err != nil {
			switch {
			case errors.Is(err, gate.ErrNotFound):
				apierrors.SessionNotFound(c)
			case errors.Is(err, gate.ErrForbidden):
				apierrors.Forbidden(c, "you are not a participant of this session")
			default:
				apierrors.InternalError(c, "failed to authorize connection", err)
			}
			return
		}

		clientID, err := ws.GenerateClientID()
		if err != nil {
			apierrors.InternalError(c, "failed to generate client ID", err)
			return
		}

		// attach before the upgrade so a hydration failure is reported as
		// a plain HTTP error instead of an immediate socket close
		snapshot, err := reg.Attach(ctx, clientID, params.SessionID)
		if err != nil {
			apierrors.InternalError(c, "failed to load session state", err)
			return
		}

		ipAddress := c.ClientIP()

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			reg.Detach(clientID, params.SessionID)

			logger.ErrorErr(err, "failed to upgrade connection",
				"session_id", params.SessionID,
				"ip", ipAddress,
			)

			return
		}

		displayName := params.DisplayName
		if displayName == "" {
			displayName = claims.Email
		}

		client := ws.NewClient(clientID, params.SessionID, userID, displayName, role, ipAddress, snapshot, conn, hub)
		client.SetState(ws.StateAuthorizing)

		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()

		logger.Info("websocket connection established",
			"client_id", clientID,
			"session_id", params.SessionID,
			"role", role,
			"user_id", userID,
			"ip", ipAddress,
		)
	}
}
