package sessions

import (
	"context"
	"errors"
	"time"
)

// session roles
const (
	RoleOwner       = "owner"
	RoleParticipant = "participant"
	RoleObserver    = "observer"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session has ended")
)

// repository interface for session database operations
type Repository interface {
	CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	GetUserSessions(ctx context.Context, userID string, activeOnly bool) ([]*Session, error)
	AddParticipant(ctx context.Context, sessionID, userID string) error
	// persists a snapshot; replaying the same (version, content) pair is a no-op
	// and a snapshot older than what is at rest is never applied
	SaveSnapshot(ctx context.Context, sessionID string, version int64, content string) error
	UpdateConfig(ctx context.Context, sessionID, language string, cfg EditorConfig) error
	EndSession(ctx context.Context, sessionID string) error
	ListStaleSessions(ctx context.Context, threshold time.Time) ([]*Session, error)
}

// small structured editor configuration attached to a session
type EditorConfig struct {
	Theme   string `json:"theme,omitempty"`
	TabSize int    `json:"tab_size,omitempty"`
	Keymap  string `json:"keymap,omitempty"`
	Version string `json:"version,omitempty"` // client compatibility tag
}

// represents one interview's persisted state
type Session struct {
	ID             string       `json:"id"`
	OwnerID        string       `json:"owner_id"`
	ParticipantIDs []string     `json:"participant_ids"`
	Content        string       `json:"content"`
	Version        int64        `json:"version"`
	Language       string       `json:"language"`
	EditorConfig   EditorConfig `json:"editor_config"`
	Observable     bool         `json:"observable"`
	IsActive       bool         `json:"is_active"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	EndedAt        *time.Time   `json:"ended_at,omitempty"`
}

// contains data for creating a session
type CreateSessionRequest struct {
	OwnerID      string       `json:"owner_id"`
	Language     string       `json:"language"`
	EditorConfig EditorConfig `json:"editor_config"`
	Observable   bool         `json:"observable"`
}

// reports whether the user may edit content in this session
func (s *Session) CanEdit(userID string) bool {
	if userID == s.OwnerID {
		return true
	}

	for _, id := range s.ParticipantIDs {
		if id == userID {
			return true
		}
	}

	return false
}
