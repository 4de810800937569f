package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Repository with canned stale sessions; only the methods the cleanup
// service touches do anything
type fakeCleanupRepo struct {
	mu    sync.Mutex
	stale []*Session
	ended []string
}

func (f *fakeCleanupRepo) CreateSession(_ context.Context, _ *CreateSessionRequest) (*Session, error) {
	return nil, nil
}

func (f *fakeCleanupRepo) GetSession(_ context.Context, _ string) (*Session, error) {
	return nil, ErrSessionNotFound
}

func (f *fakeCleanupRepo) GetUserSessions(_ context.Context, _ string, _ bool) ([]*Session, error) {
	return nil, nil
}

func (f *fakeCleanupRepo) AddParticipant(_ context.Context, _, _ string) error { return nil }

func (f *fakeCleanupRepo) SaveSnapshot(_ context.Context, _ string, _ int64, _ string) error {
	return nil
}

func (f *fakeCleanupRepo) UpdateConfig(_ context.Context, _, _ string, _ EditorConfig) error {
	return nil
}

func (f *fakeCleanupRepo) EndSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, sessionID)
	return nil
}

func (f *fakeCleanupRepo) ListStaleSessions(_ context.Context, _ time.Time) ([]*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stale, nil
}

func TestArchiveStaleSessions(t *testing.T) {
	repo := &fakeCleanupRepo{
		stale: []*Session{
			{ID: "stale-1", UpdatedAt: time.Now().Add(-1 * time.Hour)},
			{ID: "stale-2", UpdatedAt: time.Now().Add(-2 * time.Hour)},
		},
	}

	var mu sync.Mutex
	var notified []string

	svc := NewCleanupService(repo, time.Minute, 30*time.Minute, func(sessionID, reason string) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, sessionID)
		assert.NotEmpty(t, reason)
	})

	svc.archiveStaleSessions(context.Background())

	repo.mu.Lock()
	assert.Equal(t, []string{"stale-1", "stale-2"}, repo.ended)
	repo.mu.Unlock()

	// live connections are told before the archive
	mu.Lock()
	assert.Equal(t, []string{"stale-1", "stale-2"}, notified)
	mu.Unlock()
}

func TestArchiveStaleSessionsNothingToDo(t *testing.T) {
	repo := &fakeCleanupRepo{}

	svc := NewCleanupService(repo, time.Minute, 30*time.Minute, nil)
	svc.archiveStaleSessions(context.Background())

	repo.mu.Lock()
	assert.Empty(t, repo.ended)
	repo.mu.Unlock()
}

func TestCleanupServiceStopsOnContextCancel(t *testing.T) {
	repo := &fakeCleanupRepo{}
	svc := NewCleanupService(repo, 10*time.Millisecond, 30*time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("cleanup service did not stop after context cancel")
	}
}
