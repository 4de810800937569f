package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/pairview/server/pairview/sessions"
)

type fakeSource struct {
	session *sessions.Session
	err     error
}

func (f *fakeSource) GetSession(_ context.Context, _ string) (*sessions.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func TestAuthorize(t *testing.T) {
	session := &sessions.Session{
		ID:             "session-1",
		OwnerID:        "owner-1",
		ParticipantIDs: []string{"participant-1", "participant-2"},
		IsActive:       true,
	}

	observable := &sessions.Session{
		ID:         "session-2",
		OwnerID:    "owner-1",
		Observable: true,
		IsActive:   true,
	}

	archived := &sessions.Session{
		ID:       "session-3",
		OwnerID:  "owner-1",
		IsActive: false,
	}

	tests := []struct {
		name     string
		source   *fakeSource
		userID   string
		wantRole string
		wantErr  error
	}{
		{
			name:     "owner",
			source:   &fakeSource{session: session},
			userID:   "owner-1",
			wantRole: sessions.RoleOwner,
		},
		{
			name:     "participant",
			source:   &fakeSource{session: session},
			userID:   "participant-2",
			wantRole: sessions.RoleParticipant,
		},
		{
			name:    "stranger on a private session",
			source:  &fakeSource{session: session},
			userID:  "stranger",
			wantErr: ErrForbidden,
		},
		{
			name:     "stranger on an observable session",
			source:   &fakeSource{session: observable},
			userID:   "stranger",
			wantRole: sessions.RoleObserver,
		},
		{
			name:     "owner outranks observer on an observable session",
			source:   &fakeSource{session: observable},
			userID:   "owner-1",
			wantRole: sessions.RoleOwner,
		},
		{
			name:    "unknown session",
			source:  &fakeSource{err: sessions.ErrSessionNotFound},
			userID:  "owner-1",
			wantErr: ErrNotFound,
		},
		{
			name:    "archived session looks like a missing one",
			source:  &fakeSource{session: archived},
			userID:  "owner-1",
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(tt.source)

			role, err := g.Authorize(context.Background(), tt.userID, "any")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, role)
		})
	}
}

func TestAuthorizeStoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	g := New(&fakeSource{err: storeErr})

	_, err := g.Authorize(context.Background(), "owner-1", "session-1")

	// infrastructure failures pass through untranslated
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrNotFound)
}
