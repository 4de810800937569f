package sessions

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"codeberg.org/pairview/server/internal/auth"
	apierrors "codeberg.org/pairview/server/internal/errors"
	"codeberg.org/pairview/server/internal/logger"
	ws "codeberg.org/pairview/server/internal/websocket"
	"codeberg.org/pairview/server/pairview/sessions"
)

// creates a handler that starts a new interview session owned by the caller
func CreateSessionHandler(repo sessions.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserID(c)
		if !exists {
			apierrors.Unauthorized(c, "")
			return
		}

		var req CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.ValidationError(c, err)
			return
		}

		session, err := repo.CreateSession(c.Request.Context(), &sessions.CreateSessionRequest{
			OwnerID:      userID,
			Language:     req.Language,
			EditorConfig: req.EditorConfig,
			Observable:   req.Observable,
		})
		if err != nil {
			apierrors.InternalError(c, "failed to create session", err)
			return
		}

		c.JSON(http.StatusCreated, session)
	}
}

// creates a handler that lists the caller's sessions, most recent first
func ListSessionsHandler(repo sessions.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserID(c)
		if !exists {
			apierrors.Unauthorized(c, "")
			return
		}

		activeOnly := c.Query("active") == "true"

		result, err := repo.GetUserSessions(c.Request.Context(), userID, activeOnly)
		if err != nil {
			apierrors.InternalError(c, "failed to list sessions", err)
			return
		}

		summaries := make([]SessionSummary, 0, len(result))
		for _, s := range result {
			summaries = append(summaries, SessionSummary{
				ID:        s.ID,
				OwnerID:   s.OwnerID,
				Language:  s.Language,
				Version:   s.Version,
				IsActive:  s.IsActive,
				CreatedAt: s.CreatedAt,
				UpdatedAt: s.UpdatedAt,
				EndedAt:   s.EndedAt,
			})
		}

		c.JSON(http.StatusOK, gin.H{"sessions": summaries})
	}
}

// canRead reports whether a user may read a session: members always, anyone
// else only when the session is open to observers
func canRead(session *sessions.Session, userID string) bool {
	return session.CanEdit(userID) || session.Observable
}

// creates a handler that returns a session's persisted editor config
func GetConfigHandler(repo sessions.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserID(c)
		if !exists {
			apierrors.Unauthorized(c, "")
			return
		}

		sessionID, ok := apierrors.ValidatePathUUID(c, "id")
		if !ok {
			return
		}

		session, err := repo.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			if errors.Is(err, sessions.ErrSessionNotFound) {
				apierrors.SessionNotFound(c)
				return
			}

			apierrors.InternalError(c, "failed to fetch session", err)
			return
		}

		if !canRead(session, userID) {
			apierrors.Forbidden(c, "not a member of this session")
			return
		}

		c.JSON(http.StatusOK, ConfigResponse{
			SessionID:    session.ID,
			Language:     session.Language,
			EditorConfig: session.EditorConfig,
		})
	}
}

// creates a handler that returns a session's last persisted content.
// This is the cold-read path: between flushes it may lag the live version
// held by connected participants.
func GetCodeHandler(repo sessions.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserID(c)
		if !exists {
			apierrors.Unauthorized(c, "")
			return
		}

		sessionID, ok := apierrors.ValidatePathUUID(c, "id")
		if !ok {
			return
		}

		session, err := repo.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			if errors.Is(err, sessions.ErrSessionNotFound) {
				apierrors.SessionNotFound(c)
				return
			}

			apierrors.InternalError(c, "failed to fetch session", err)
			return
		}

		if !canRead(session, userID) {
			apierrors.Forbidden(c, "not a member of this session")
			return
		}

		c.JSON(http.StatusOK, CodeResponse{
			SessionID: session.ID,
			Version:   session.Version,
			Content:   session.Content,
		})
	}
}

// creates a handler that lists who is connected to a session right now.
// Live membership comes from the hub, not the database: an invited user who
// never connected does not appear here.
func ListParticipantsHandler(repo sessions.Repository, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserID(c)
		if !exists {
			apierrors.Unauthorized(c, "")
			return
		}

		sessionID, ok := apierrors.ValidatePathUUID(c, "id")
		if !ok {
			return
		}

		session, err := repo.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			if errors.Is(err, sessions.ErrSessionNotFound) {
				apierrors.SessionNotFound(c)
				return
			}

			apierrors.InternalError(c, "failed to fetch session", err)
			return
		}

		if !canRead(session, userID) {
			apierrors.Forbidden(c, "not a member of this session")
			return
		}

		clients := hub.GetSessionClients(sessionID)

		participants := make([]LiveParticipant, 0, len(clients))
		for _, client := range clients {
			participants = append(participants, LiveParticipant{
				UserID:      client.UserID,
				DisplayName: client.DisplayName,
				Role:        client.Role,
			})
		}

		c.JSON(http.StatusOK, ParticipantsResponse{
			SessionID:    sessionID,
			Live:         hub.IsSessionActive(sessionID),
			Participants: participants,
		})
	}
}

// creates a handler that invites a user into a session (owner only)
func AddParticipantHandler(repo sessions.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserID(c)
		if !exists {
			apierrors.Unauthorized(c, "")
			return
		}

		sessionID, ok := apierrors.ValidatePathUUID(c, "id")
		if !ok {
			return
		}

		var req AddParticipantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.ValidationError(c, err)
			return
		}

		session, err := repo.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			if errors.Is(err, sessions.ErrSessionNotFound) {
				apierrors.SessionNotFound(c)
				return
			}

			apierrors.InternalError(c, "failed to fetch session", err)
			return
		}

		if session.OwnerID != userID {
			apierrors.Forbidden(c, "only the session owner can invite participants")
			return
		}

		if err := repo.AddParticipant(c.Request.Context(), sessionID, req.UserID); err != nil {
			apierrors.InternalError(c, "failed to add participant", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "participant added"})
	}
}

// creates a handler that archives a session (owner only), flushing pending
// state and closing any live connections
func EndSessionHandler(repo sessions.Repository, hub *ws.Hub, flushSession func(c *gin.Context, sessionID string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserID(c)
		if !exists {
			apierrors.Unauthorized(c, "")
			return
		}

		sessionID, ok := apierrors.ValidatePathUUID(c, "id")
		if !ok {
			return
		}

		session, err := repo.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			if errors.Is(err, sessions.ErrSessionNotFound) {
				apierrors.SessionNotFound(c)
				return
			}

			apierrors.InternalError(c, "failed to fetch session", err)
			return
		}

		if session.OwnerID != userID {
			apierrors.Forbidden(c, "only the session owner can end the session")
			return
		}

		// persist whatever the live side still holds before archiving
		if flushSession != nil {
			if err := flushSession(c, sessionID); err != nil {
				apierrors.InternalError(c, "failed to flush session state", err)
				return
			}
		}

		if err := repo.EndSession(c.Request.Context(), sessionID); err != nil {
			apierrors.InternalError(c, "failed to end session", err)
			return
		}

		logger.Info("owner ended session",
			"session_id", sessionID,
			"user_id", userID,
			"live_connections", hub.GetClientCount(sessionID),
		)

		hub.EndSession(sessionID, "session ended by owner")

		c.JSON(http.StatusOK, gin.H{"message": "session ended"})
	}
}
