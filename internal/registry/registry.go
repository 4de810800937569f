// Package registry holds the live, in-memory state of sessions that have at
// least one attached connection. While an entry is live it is the single
// source of truth for content and version; the database only catches up on
// flush. Entries are a pure cache: evicting one loses nothing that isn't
// already persisted or about to be.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/pairview/server/internal/logger"
	"codeberg.org/pairview/server/pairview/sessions"
)

// how long an empty entry survives before eviction, so quick reconnects
// resume without a cold-start read
const DefaultGracePeriod = 30 * time.Second

// the slice of the session repository used for cold-start hydration
type SnapshotSource interface {
	GetSession(ctx context.Context, sessionID string) (*sessions.Session, error)
}

// point-in-time view of a live session's document state
type Snapshot struct {
	Version  int64
	Content  string
	Language string
	Config   sessions.EditorConfig
}

// returned to a sender whose edit lost the version race; carries the
// authoritative state the client needs to rebase
type ConflictError struct {
	Version int64
	Content string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("stale base version, authoritative version is %d", e.Version)
}

// live state for one session.
// Membership (conns, evict timer) is guarded by the registry mutex;
// document state (version, content, config) by the entry mutex. The entry
// mutex is the per-session serialization point for edits, never held while
// taking the registry mutex.
type entry struct {
	sessionID string

	conns map[string]struct{}
	evict *time.Timer

	// closed once hydration finishes; hydrateErr is set before close
	ready      chan struct{}
	hydrateErr error

	mu       sync.Mutex
	version  int64
	content  string
	language string
	config   sessions.EditorConfig
}

// in-memory arena of live sessions keyed by session id
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	source SnapshotSource
	grace  time.Duration
}

func New(source SnapshotSource, grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	return &Registry{
		entries: make(map[string]*entry),
		source:  source,
		grace:   grace,
	}
}

// attaches a connection to a session, creating the entry on first attach.
// The first attach hydrates version/content from the store; later attaches
// (and attaches within the grace period) join the existing entry without
// touching the store. Safe under concurrent attaches for the same session:
// at most one entry per session id, at most one hydration read.
func (r *Registry) Attach(ctx context.Context, connID, sessionID string) (Snapshot, error) {
	r.mu.Lock()

	if e, ok := r.entries[sessionID]; ok {
		e.conns[connID] = struct{}{}

		if e.evict != nil {
			e.evict.Stop()
			e.evict = nil

			logger.Debug("reconnect within grace period, eviction cancelled",
				"session_id", sessionID,
			)
		}

		r.mu.Unlock()

		// wait for a hydration that may still be in flight
		select {
		case <-e.ready:
		case <-ctx.Done():
			r.Detach(connID, sessionID)
			return Snapshot{}, ctx.Err()
		}

		if e.hydrateErr != nil {
			return Snapshot{}, e.hydrateErr
		}

		e.mu.Lock()
		snap := e.snapshotLocked()
		e.mu.Unlock()

		return snap, nil
	}

	// reserve the entry before hydrating so concurrent attaches for the
	// same session join it instead of racing a second store read
	e := &entry{
		sessionID: sessionID,
		conns:     map[string]struct{}{connID: {}},
		ready:     make(chan struct{}),
	}
	r.entries[sessionID] = e
	r.mu.Unlock()

	session, err := r.source.GetSession(ctx, sessionID)
	if err != nil {
		r.mu.Lock()
		delete(r.entries, sessionID)
		r.mu.Unlock()

		e.hydrateErr = fmt.Errorf("failed to hydrate session: %w", err)
		close(e.ready)

		return Snapshot{}, e.hydrateErr
	}

	e.mu.Lock()
	e.version = session.Version
	e.content = session.Content
	e.language = session.Language
	e.config = session.EditorConfig
	snap := e.snapshotLocked()
	e.mu.Unlock()

	close(e.ready)

	logger.Info("session hydrated into registry",
		"session_id", sessionID,
		"version", snap.Version,
	)

	return snap, nil
}

// removes a connection from a session's entry. When the connection set
// becomes empty the entry is not evicted immediately: a grace timer is
// armed so a quick reconnect keeps the in-memory state.
func (r *Registry) Detach(connID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return
	}

	delete(e.conns, connID)

	if len(e.conns) > 0 {
		return
	}

	if e.evict != nil {
		e.evict.Stop()
	}

	e.evict = time.AfterFunc(r.grace, func() {
		r.evictIfEmpty(sessionID)
	})
}

// drops the entry unless a connection re-attached since the timer was armed
func (r *Registry) evictIfEmpty(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok || len(e.conns) > 0 {
		return
	}

	delete(r.entries, sessionID)

	logger.Info("evicted idle session from registry",
		"session_id", sessionID,
	)
}

// removes the entry immediately, grace period or not (explicit session end)
func (r *Registry) Evict(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[sessionID]; ok {
		if e.evict != nil {
			e.evict.Stop()
		}

		delete(r.entries, sessionID)
	}
}

// returns the connection ids attached to a session, minus the excluded one
func (r *Registry) Targets(sessionID, excludeConnID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return nil
	}

	targets := make([]string, 0, len(e.conns))

	for id := range e.conns {
		if id != excludeConnID {
			targets = append(targets, id)
		}
	}

	return targets
}

// applies an edit with optimistic concurrency. If baseVersion matches the
// live version the content is swapped in and the bumped version returned;
// a stale baseVersion yields a ConflictError carrying the authoritative
// version and content. Version assignment is linearizable per session: two
// concurrent edits can never receive the same number.
func (r *Registry) Apply(sessionID string, baseVersion int64, content string) (int64, error) {
	return r.ApplyPublish(sessionID, baseVersion, content, nil)
}

// ApplyPublish is Apply with a post-commit hook: when the edit is accepted,
// publish runs with the new version before the next edit for the session can
// commit. Fan-out done inside publish therefore leaves in version order.
// publish must not call back into methods that take the entry lock.
func (r *Registry) ApplyPublish(sessionID string, baseVersion int64, content string, publish func(version int64)) (int64, error) {
	r.mu.RLock()
	e, ok := r.entries[sessionID]
	r.mu.RUnlock()

	if !ok {
		return 0, fmt.Errorf("session %s is not live", sessionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if baseVersion != e.version {
		return 0, &ConflictError{
			Version: e.version,
			Content: e.content,
		}
	}

	e.version++
	e.content = content

	if publish != nil {
		publish(e.version)
	}

	return e.version, nil
}

// updates the live language/editor config for a session
func (r *Registry) SetConfig(sessionID, language string, cfg sessions.EditorConfig) bool {
	r.mu.RLock()
	e, ok := r.entries[sessionID]
	r.mu.RUnlock()

	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if language != "" {
		e.language = language
	}
	e.config = cfg

	return true
}

// returns the live snapshot for a session, if it is live
func (r *Registry) Snapshot(sessionID string) (Snapshot, bool) {
	r.mu.RLock()
	e, ok := r.entries[sessionID]
	r.mu.RUnlock()

	if !ok {
		return Snapshot{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.snapshotLocked(), true
}

// reports whether a session currently has a live entry
func (r *Registry) IsLive(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[sessionID]
	return ok
}

// returns the number of live entries
func (r *Registry) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// must be called with e.mu held
func (e *entry) snapshotLocked() Snapshot {
	return Snapshot{
		Version:  e.version,
		Content:  e.content,
		Language: e.language,
		Config:   e.config,
	}
}
