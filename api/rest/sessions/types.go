package sessions

import (
	"time"

	"codeberg.org/pairview/server/pairview/sessions"
)

// request body for creating a session
type CreateSessionRequest struct {
	Language     string                `json:"language" binding:"max=50"`
	EditorConfig sessions.EditorConfig `json:"editor_config"`
	Observable   bool                  `json:"observable"`
}

// request body for inviting a participant
type AddParticipantRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// session summary returned by the list endpoint
type SessionSummary struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	Language  string     `json:"language"`
	Version   int64      `json:"version"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// response for the persisted-code endpoint
type CodeResponse struct {
	SessionID string `json:"session_id"`
	Version   int64  `json:"version"`
	Content   string `json:"content"`
}

// a currently connected member of a session
type LiveParticipant struct {
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// response for the live-participants endpoint
type ParticipantsResponse struct {
	SessionID    string            `json:"session_id"`
	Live         bool              `json:"live"`
	Participants []LiveParticipant `json:"participants"`
}

// response for the config endpoint
type ConfigResponse struct {
	SessionID    string                `json:"session_id"`
	Language     string                `json:"language"`
	EditorConfig sessions.EditorConfig `json:"editor_config"`
}
