package sessions

import (
	"context"
	"time"

	"codeberg.org/pairview/server/internal/logger"
)

// handles automatic archiving of inactive sessions
type CleanupService struct {
	repo                Repository
	checkInterval       time.Duration
	inactivityThreshold time.Duration
	sessionEnder        SessionEnderFunc
}

// called to notify live connections when a session is being archived
type SessionEnderFunc func(sessionID string, reason string)

// creates a new cleanup service
func NewCleanupService(
	repo Repository,
	checkInterval time.Duration,
	inactivityThreshold time.Duration,
	sessionEnder SessionEnderFunc,
) *CleanupService {
	return &CleanupService{
		repo:                repo,
		checkInterval:       checkInterval,
		inactivityThreshold: inactivityThreshold,
		sessionEnder:        sessionEnder,
	}
}

// begins the cleanup service background loop
func (s *CleanupService) Start(ctx context.Context) {
	logger.Info("starting session cleanup service",
		"check_interval", s.checkInterval,
		"inactivity_threshold", s.inactivityThreshold,
	)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("session cleanup service stopped")
			return
		case <-ticker.C:
			s.archiveStaleSessions(ctx)
		}
	}
}

// finds and archives sessions that have been inactive past the threshold
func (s *CleanupService) archiveStaleSessions(ctx context.Context) {
	threshold := time.Now().Add(-s.inactivityThreshold)

	stale, err := s.repo.ListStaleSessions(ctx, threshold)
	if err != nil {
		logger.ErrorErr(err, "failed to list stale sessions")
		return
	}

	if len(stale) == 0 {
		return
	}

	logger.Info("found stale sessions to archive", "count", len(stale))

	for _, session := range stale {
		logger.Info("archiving stale session",
			"session_id", session.ID,
			"last_activity", session.UpdatedAt,
		)

		// notify live connections before archiving
		if s.sessionEnder != nil {
			s.sessionEnder(session.ID, "session expired due to inactivity")
		}

		if err := s.repo.EndSession(ctx, session.ID); err != nil {
			logger.ErrorErr(err, "failed to archive stale session",
				"session_id", session.ID,
			)
		}
	}
}
