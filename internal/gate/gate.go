// Package gate decides whether an authenticated user may join a session,
// and with which role. It is a pure lookup: idempotent, no side effects,
// called on every connection attempt and again on reconnects.
package gate

import (
	"context"
	"errors"

	"codeberg.org/pairview/server/pairview/sessions"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrForbidden = errors.New("not entitled to join session")
)

// the slice of the session repository the gate needs
type SessionSource interface {
	GetSession(ctx context.Context, sessionID string) (*sessions.Session, error)
}

type Gate struct {
	source SessionSource
}

func New(source SessionSource) *Gate {
	return &Gate{source: source}
}

// resolves the role a user holds in a session.
// Returns ErrNotFound for unknown or archived sessions and ErrForbidden
// when the user is neither owner nor participant and the session does not
// admit observers.
func (g *Gate) Authorize(ctx context.Context, userID, sessionID string) (string, error) {
	session, err := g.source.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}

	if !session.IsActive {
		return "", ErrNotFound
	}

	if userID == session.OwnerID {
		return sessions.RoleOwner, nil
	}

	for _, id := range session.ParticipantIDs {
		if id == userID {
			return sessions.RoleParticipant, nil
		}
	}

	if session.Observable && userID != "" {
		return sessions.RoleObserver, nil
	}

	return "", ErrForbidden
}
