package flush

import (
	"context"
	"sync"
	"time"

	"codeberg.org/pairview/server/internal/logger"
)

const (
	backoffBase = 2 * time.Second
	backoffMax  = 2 * time.Minute
)

// the slice of the session repository the flusher persists through
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, sessionID string, version int64, content string) error
}

// the slice of the buffer the flusher drains
type SnapshotQueue interface {
	DirtySessions(ctx context.Context) ([]string, error)
	Take(ctx context.Context, sessionID string) (*BufferedSnapshot, error)
	Requeue(ctx context.Context, sessionID string)
}

// drains the buffer to the session store on an interval. Each session moves
// through dirty -> flushing -> clean; a failed persist re-marks the session
// dirty and backs off exponentially. Store failures stay internal: the live
// broadcast path never waits on this loop.
type Flusher struct {
	buffer   SnapshotQueue
	sink     SnapshotSink
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu         sync.Mutex
	failures   map[string]int
	deferUntil map[string]time.Time
}

// creates a new flusher that periodically persists buffered snapshots
func NewFlusher(buffer SnapshotQueue, sink SnapshotSink, interval time.Duration) *Flusher {
	return &Flusher{
		buffer:     buffer,
		sink:       sink,
		interval:   interval,
		stopCh:     make(chan struct{}),
		failures:   make(map[string]int),
		deferUntil: make(map[string]time.Time),
	}
}

// begins the background flush loop
func (f *Flusher) Start() {
	f.wg.Add(1)
	go f.run()
	logger.Info("snapshot flusher started", "interval", f.interval.String())
}

// gracefully stops the flusher and flushes any remaining data
func (f *Flusher) Stop() {
	close(f.stopCh)
	f.wg.Wait()
	logger.Info("snapshot flusher stopped")
}

func (f *Flusher) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flush()
		case <-f.stopCh:
			logger.Info("flushing remaining buffered snapshots before shutdown")
			f.flush()
			return
		}
	}
}

func (f *Flusher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sessionIDs, err := f.buffer.DirtySessions(ctx)
	if err != nil {
		logger.ErrorErr(err, "failed to list dirty sessions")
		return
	}

	if len(sessionIDs) == 0 {
		return
	}

	logger.Debug("flushing dirty sessions", "count", len(sessionIDs))

	now := time.Now()

	for _, sessionID := range sessionIDs {
		if f.deferred(sessionID, now) {
			continue
		}

		f.flushOne(ctx, sessionID)
	}
}

func (f *Flusher) flushOne(ctx context.Context, sessionID string) {
	snap, err := f.buffer.Take(ctx, sessionID)
	if err != nil {
		logger.ErrorErr(err, "failed to take snapshot from buffer", "session_id", sessionID)
		return
	}

	if snap == nil {
		return
	}

	if err := f.sink.SaveSnapshot(ctx, sessionID, snap.Version, snap.Content); err != nil {
		logger.ErrorErr(err, "failed to persist snapshot, will retry",
			"session_id", sessionID,
			"version", snap.Version,
		)

		f.buffer.Requeue(ctx, sessionID)
		f.recordFailure(sessionID)
		return
	}

	f.clearFailure(sessionID)

	logger.Debug("persisted session snapshot",
		"session_id", sessionID,
		"version", snap.Version,
	)
}

// immediately flushes a specific session: used on last disconnect and on
// explicit session end, bypassing the debounce interval and any backoff
func (f *Flusher) FlushSession(ctx context.Context, sessionID string) error {
	snap, err := f.buffer.Take(ctx, sessionID)
	if err != nil {
		return err
	}

	if snap == nil {
		return nil
	}

	if err := f.sink.SaveSnapshot(ctx, sessionID, snap.Version, snap.Content); err != nil {
		f.buffer.Requeue(ctx, sessionID)
		f.recordFailure(sessionID)
		return err
	}

	f.clearFailure(sessionID)
	return nil
}

// reports whether a session is still inside its failure backoff window
func (f *Flusher) deferred(sessionID string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	until, ok := f.deferUntil[sessionID]
	return ok && now.Before(until)
}

func (f *Flusher) recordFailure(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures[sessionID]++
	f.deferUntil[sessionID] = time.Now().Add(backoffDelay(f.failures[sessionID]))
}

func (f *Flusher) clearFailure(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.failures, sessionID)
	delete(f.deferUntil, sessionID)
}

// returns the retry delay for the nth consecutive failure, doubling from
// backoffBase up to backoffMax
func backoffDelay(failures int) time.Duration {
	delay := backoffBase

	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= backoffMax {
			return backoffMax
		}
	}

	return delay
}
