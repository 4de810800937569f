package flush

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// in-memory SnapshotQueue mirroring the buffer's take/requeue semantics:
// taking clears the dirty mark but keeps the snapshot value
type fakeQueue struct {
	mu    sync.Mutex
	snaps map[string]*BufferedSnapshot
	dirty map[string]struct{}
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		snaps: make(map[string]*BufferedSnapshot),
		dirty: make(map[string]struct{}),
	}
}

func (q *fakeQueue) markDirty(sessionID string, version int64, content string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.snaps[sessionID] = &BufferedSnapshot{SessionID: sessionID, Version: version, Content: content}
	q.dirty[sessionID] = struct{}{}
}

func (q *fakeQueue) DirtySessions(_ context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, 0, len(q.dirty))
	for id := range q.dirty {
		ids = append(ids, id)
	}
	return ids, nil
}

func (q *fakeQueue) Take(_ context.Context, sessionID string) (*BufferedSnapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.dirty, sessionID)
	return q.snaps[sessionID], nil
}

func (q *fakeQueue) Requeue(_ context.Context, sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.dirty[sessionID] = struct{}{}
}

func (q *fakeQueue) isDirty(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.dirty[sessionID]
	return ok
}

// SnapshotSink that records saves and can be made to fail
type fakeSink struct {
	mu    sync.Mutex
	saved map[string]int64
	err   error
}

func newFakeSink() *fakeSink {
	return &fakeSink{saved: make(map[string]int64)}
}

func (s *fakeSink) SaveSnapshot(_ context.Context, sessionID string, version int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.saved[sessionID] = version
	return nil
}

func (s *fakeSink) savedVersion(sessionID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.saved[sessionID]
	return v, ok
}

func (s *fakeSink) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func TestFlushDrainsDirtySessions(t *testing.T) {
	queue := newFakeQueue()
	sink := newFakeSink()
	f := NewFlusher(queue, sink, time.Second)

	queue.markDirty("session-1", 4, "content a")
	queue.markDirty("session-2", 9, "content b")

	f.flush()

	v, ok := sink.savedVersion("session-1")
	require.True(t, ok)
	assert.Equal(t, int64(4), v)

	v, ok = sink.savedVersion("session-2")
	require.True(t, ok)
	assert.Equal(t, int64(9), v)

	assert.False(t, queue.isDirty("session-1"))
	assert.False(t, queue.isDirty("session-2"))
}

func TestFlushSkipsCleanSessions(t *testing.T) {
	queue := newFakeQueue()
	sink := newFakeSink()
	f := NewFlusher(queue, sink, time.Second)

	f.flush()

	_, ok := sink.savedVersion("session-1")
	assert.False(t, ok)
}

func TestFlushSession(t *testing.T) {
	queue := newFakeQueue()
	sink := newFakeSink()
	f := NewFlusher(queue, sink, time.Second)

	queue.markDirty("session-1", 7, "final content")

	require.NoError(t, f.FlushSession(context.Background(), "session-1"))

	v, ok := sink.savedVersion("session-1")
	require.True(t, ok)
	assert.Equal(t, int64(7), v)

	// nothing buffered is a no-op
	require.NoError(t, f.FlushSession(context.Background(), "session-2"))
}

func TestFlushFailureRequeuesAndBacksOff(t *testing.T) {
	queue := newFakeQueue()
	sink := newFakeSink()
	sink.setErr(errors.New("database down"))
	f := NewFlusher(queue, sink, time.Second)

	queue.markDirty("session-1", 4, "content")

	f.flush()

	// the snapshot stays queued for retry
	assert.True(t, queue.isDirty("session-1"))
	assert.True(t, f.deferred("session-1", time.Now()))

	// the next cycle skips the session while it is backing off
	f.flush()
	_, ok := sink.savedVersion("session-1")
	assert.False(t, ok)
}

func TestFlushRecoversAfterFailure(t *testing.T) {
	queue := newFakeQueue()
	sink := newFakeSink()
	sink.setErr(errors.New("database down"))
	f := NewFlusher(queue, sink, time.Second)

	queue.markDirty("session-1", 4, "content")

	assert.Error(t, f.FlushSession(context.Background(), "session-1"))
	assert.True(t, queue.isDirty("session-1"))

	sink.setErr(nil)

	// an explicit flush bypasses the backoff window
	require.NoError(t, f.FlushSession(context.Background(), "session-1"))

	v, ok := sink.savedVersion("session-1")
	require.True(t, ok)
	assert.Equal(t, int64(4), v)
	assert.False(t, f.deferred("session-1", time.Now()))
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{failures: 1, want: 2 * time.Second},
		{failures: 2, want: 4 * time.Second},
		{failures: 3, want: 8 * time.Second},
		{failures: 6, want: 64 * time.Second},
		{failures: 7, want: 2 * time.Minute},
		{failures: 100, want: 2 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, backoffDelay(tt.failures), "failures=%d", tt.failures)
	}
}
