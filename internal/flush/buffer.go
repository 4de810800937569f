package flush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"codeberg.org/pairview/server/internal/logger"
)

// Redis-backed write-behind buffer between the live broadcast path and the
// session store. Accepted edits land here; the flusher drains to Postgres.
type Buffer struct {
	client *redis.Client
}

// creates a new buffer with a Redis connection
func NewBuffer(redisURL string) (*Buffer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("connected to redis")

	return &Buffer{client: client}, nil
}

// closes the Redis connection
func (b *Buffer) Close() error {
	return b.client.Close()
}

// stores the latest snapshot for a session and marks it dirty. Later
// snapshots simply overwrite earlier unflushed ones; only the newest
// version needs to reach the store.
func (b *Buffer) MarkDirty(ctx context.Context, sessionID string, version int64, content string) error {
	snap := BufferedSnapshot{
		SessionID: sessionID,
		Version:   version,
		Content:   content,
	}

	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := b.client.Pipeline()
	pipe.Set(ctx, fmt.Sprintf(keySessionSnapshot, sessionID), snapJSON, 0)
	pipe.SAdd(ctx, keyDirtySessions, sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to buffer snapshot: %w", err)
	}

	return nil
}

// returns all session IDs with unflushed snapshots
func (b *Buffer) DirtySessions(ctx context.Context) ([]string, error) {
	return b.client.SMembers(ctx, keyDirtySessions).Result()
}

// retrieves the pending snapshot for a session and clears its dirty mark.
// Returns nil when there is nothing to flush. The snapshot value itself is
// kept in redis so a failed persist can re-mark without data loss.
func (b *Buffer) Take(ctx context.Context, sessionID string) (*BufferedSnapshot, error) {
	snapJSON, err := b.client.Get(ctx, fmt.Sprintf(keySessionSnapshot, sessionID)).Result()

	if errors.Is(err, redis.Nil) {
		b.client.SRem(ctx, keyDirtySessions, sessionID) //nolint:errcheck // best-effort cleanup
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot for flush: %w", err)
	}

	var snap BufferedSnapshot
	if err := json.Unmarshal([]byte(snapJSON), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal buffered snapshot: %w", err)
	}

	b.client.SRem(ctx, keyDirtySessions, sessionID)

	return &snap, nil
}

// re-marks a session dirty after a failed persist so the next flush cycle
// retries it
func (b *Buffer) Requeue(ctx context.Context, sessionID string) {
	b.client.SAdd(ctx, keyDirtySessions, sessionID) //nolint:errcheck // best-effort retry
}

// removes all buffered data for a session (call after session ends)
func (b *Buffer) ClearSession(ctx context.Context, sessionID string) error {
	pipe := b.client.Pipeline()
	pipe.Del(ctx, fmt.Sprintf(keySessionSnapshot, sessionID))
	pipe.SRem(ctx, keyDirtySessions, sessionID)

	_, err := pipe.Exec(ctx)
	return err
}
