package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) scanSession(row pgx.Row) (*Session, error) {
	var s Session

	err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.ParticipantIDs,
		&s.Content,
		&s.Version,
		&s.Language,
		&s.EditorConfig,
		&s.Observable,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.EndedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}

	if err != nil {
		return nil, err
	}

	return &s, nil
}

// creates a new interview session
func (r *repository) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	row := r.db.QueryRow(
		ctx,
		queryCreateSession,
		uuid.NewString(),
		req.OwnerID,
		req.Language,
		req.EditorConfig,
		req.Observable,
	)

	return r.scanSession(row)
}

// retrieves a session by ID
func (r *repository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return r.scanSession(r.db.QueryRow(ctx, queryGetSession, sessionID))
}

// retrieves all sessions for a user (as owner or participant), most recent first
func (r *repository) GetUserSessions(ctx context.Context, userID string, activeOnly bool) ([]*Session, error) {
	query := queryGetUserSessions

	if activeOnly {
		query = queryGetUserSessionsActiveOnly
	}

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()
	var result []*Session

	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// adds a user to the session's participant set (no-op if already present)
func (r *repository) AddParticipant(ctx context.Context, sessionID, userID string) error {
	tag, err := r.db.Exec(ctx, queryAddParticipant, sessionID, userID)
	if err != nil {
		return err
	}

	// distinguish "already a participant" (fine) from "no such session"
	if tag.RowsAffected() == 0 {
		if _, err := r.GetSession(ctx, sessionID); err != nil {
			return err
		}
	}

	return nil
}

func (r *repository) SaveSnapshot(ctx context.Context, sessionID string, version int64, content string) error {
	_, err := r.db.Exec(ctx, querySaveSnapshot, sessionID, content, version)
	return err
}

func (r *repository) UpdateConfig(ctx context.Context, sessionID, language string, cfg EditorConfig) error {
	_, err := r.db.Exec(ctx, queryUpdateConfig, sessionID, language, cfg)
	return err
}

func (r *repository) EndSession(ctx context.Context, sessionID string) error {
	_, err := r.db.Exec(ctx, queryEndSession, sessionID)
	return err
}

// lists active sessions with no activity since the threshold
func (r *repository) ListStaleSessions(ctx context.Context, threshold time.Time) ([]*Session, error) {
	rows, err := r.db.Query(ctx, queryListStaleSessions, threshold)
	if err != nil {
		return nil, err
	}

	defer rows.Close()
	var result []*Session

	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
