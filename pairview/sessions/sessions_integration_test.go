package sessions

// Integration tests against a real Postgres. Skipped unless TEST_DATABASE_URL
// points at a database with the sessions schema applied.

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) (Repository, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewRepository(pool), pool
}

func createIntegrationSession(t *testing.T, repo Repository, pool *pgxpool.Pool) *Session {
	t.Helper()

	session, err := repo.CreateSession(context.Background(), &CreateSessionRequest{
		OwnerID:  uuid.NewString(),
		Language: "go",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Exec(context.Background(), "DELETE FROM sessions WHERE id = $1", session.ID) //nolint:errcheck // test cleanup
	})

	return session
}

func TestSaveSnapshotKeepsNewestVersion(t *testing.T) {
	repo, pool := newTestRepository(t)
	ctx := context.Background()

	session := createIntegrationSession(t, repo, pool)

	require.NoError(t, repo.SaveSnapshot(ctx, session.ID, 5, "version five"))

	// replaying the same snapshot is a no-op
	require.NoError(t, repo.SaveSnapshot(ctx, session.ID, 5, "version five"))

	got, err := repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
	assert.Equal(t, "version five", got.Content)

	// a stale snapshot never rolls persisted state back
	require.NoError(t, repo.SaveSnapshot(ctx, session.ID, 4, "stale content"))

	got, err = repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
	assert.Equal(t, "version five", got.Content)

	// a newer snapshot still lands
	require.NoError(t, repo.SaveSnapshot(ctx, session.ID, 6, "version six"))

	got, err = repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.Version)
	assert.Equal(t, "version six", got.Content)
}

func TestUpdateConfigBlankLanguageKeepsStored(t *testing.T) {
	repo, pool := newTestRepository(t)
	ctx := context.Background()

	session := createIntegrationSession(t, repo, pool)

	require.NoError(t, repo.UpdateConfig(ctx, session.ID, "", EditorConfig{Theme: "dark"}))

	got, err := repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "go", got.Language)
	assert.Equal(t, "dark", got.EditorConfig.Theme)
}
