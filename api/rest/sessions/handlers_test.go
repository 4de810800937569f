package sessions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	ws "codeberg.org/pairview/server/internal/websocket"
	"codeberg.org/pairview/server/pairview/sessions"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSessionID = "5f1c9a2e-8d3b-4f6a-9c0d-1e2f3a4b5c6d"

// Repository backed by a single fixed session
type fakeRepo struct {
	session *sessions.Session
}

func (f *fakeRepo) CreateSession(_ context.Context, _ *sessions.CreateSessionRequest) (*sessions.Session, error) {
	return f.session, nil
}

func (f *fakeRepo) GetSession(_ context.Context, sessionID string) (*sessions.Session, error) {
	if f.session == nil || f.session.ID != sessionID {
		return nil, sessions.ErrSessionNotFound
	}
	return f.session, nil
}

func (f *fakeRepo) GetUserSessions(_ context.Context, _ string, _ bool) ([]*sessions.Session, error) {
	return nil, nil
}

func (f *fakeRepo) AddParticipant(_ context.Context, _, _ string) error {
	return nil
}

func (f *fakeRepo) SaveSnapshot(_ context.Context, _ string, _ int64, _ string) error {
	return nil
}

func (f *fakeRepo) UpdateConfig(_ context.Context, _, _ string, _ sessions.EditorConfig) error {
	return nil
}

func (f *fakeRepo) EndSession(_ context.Context, _ string) error {
	return nil
}

func (f *fakeRepo) ListStaleSessions(_ context.Context, _ time.Time) ([]*sessions.Session, error) {
	return nil, nil
}

func newSessionRequest(t *testing.T, userID string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: testSessionID}}
	c.Set("user_id", userID)

	return c, w
}

func privateTestSession() *sessions.Session {
	return &sessions.Session{
		ID:             testSessionID,
		OwnerID:        "user-1",
		ParticipantIDs: []string{"user-2"},
		Content:        "func main() {}",
		Version:        7,
		Language:       "go",
		IsActive:       true,
	}
}

func TestGetCodeHandlerOwnerAllowed(t *testing.T) {
	repo := &fakeRepo{session: privateTestSession()}

	c, w := newSessionRequest(t, "user-1")
	GetCodeHandler(repo)(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "func main()")
}

func TestGetCodeHandlerParticipantAllowed(t *testing.T) {
	repo := &fakeRepo{session: privateTestSession()}

	c, w := newSessionRequest(t, "user-2")
	GetCodeHandler(repo)(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetCodeHandlerStrangerForbidden(t *testing.T) {
	repo := &fakeRepo{session: privateTestSession()}

	// authenticated, but neither a member nor watching an observable session
	c, w := newSessionRequest(t, "user-99")
	GetCodeHandler(repo)(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), "func main()")
}

func TestGetCodeHandlerObservableReadableByAnyone(t *testing.T) {
	session := privateTestSession()
	session.Observable = true
	repo := &fakeRepo{session: session}

	c, w := newSessionRequest(t, "user-99")
	GetCodeHandler(repo)(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetConfigHandlerStrangerForbidden(t *testing.T) {
	repo := &fakeRepo{session: privateTestSession()}

	c, w := newSessionRequest(t, "user-99")
	GetConfigHandler(repo)(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetConfigHandlerMemberAllowed(t *testing.T) {
	repo := &fakeRepo{session: privateTestSession()}

	c, w := newSessionRequest(t, "user-2")
	GetConfigHandler(repo)(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"language":"go"`)
}

func TestGetCodeHandlerUnknownSession(t *testing.T) {
	repo := &fakeRepo{}

	c, w := newSessionRequest(t, "user-1")
	GetCodeHandler(repo)(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListParticipantsHandlerStrangerForbidden(t *testing.T) {
	repo := &fakeRepo{session: privateTestSession()}
	hub := ws.NewHub(nil)

	c, w := newSessionRequest(t, "user-99")
	ListParticipantsHandler(repo, hub)(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListParticipantsHandlerEmptyWhenNobodyConnected(t *testing.T) {
	repo := &fakeRepo{session: privateTestSession()}
	hub := ws.NewHub(nil)

	c, w := newSessionRequest(t, "user-1")
	ListParticipantsHandler(repo, hub)(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"live":false`)
	assert.Contains(t, w.Body.String(), `"participants":[]`)
}
