package sessions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionCanEdit(t *testing.T) {
	session := &Session{
		ID:             "session-1",
		OwnerID:        "owner-1",
		ParticipantIDs: []string{"participant-1", "participant-2"},
	}

	tests := []struct {
		name    string
		userID  string
		canEdit bool
	}{
		{name: "owner", userID: "owner-1", canEdit: true},
		{name: "participant", userID: "participant-1", canEdit: true},
		{name: "second participant", userID: "participant-2", canEdit: true},
		{name: "stranger", userID: "stranger", canEdit: false},
		{name: "empty user", userID: "", canEdit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.canEdit, session.CanEdit(tt.userID))
		})
	}
}
