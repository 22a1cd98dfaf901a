package httpsse

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/eventbus"
)

type fakeStore struct {
	sessions map[string]*domain.Session
}

func newFakeStore() *fakeStore { return &fakeStore{sessions: map[string]*domain.Session{}} }

func (s *fakeStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errNotFound{id}
	}
	return sess, nil
}

func (s *fakeStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	s.sessions[sess.ID] = sess
	return nil
}

type errNotFound struct{ id string }

func (e errNotFound) Error() string { return "session not found: " + e.id }

type fakeOrchestrator struct {
	called chan string
}

func (f *fakeOrchestrator) RunUserMessage(ctx context.Context, sessionID string, userText string, bus *eventbus.Bus, inputs *eventbus.InputChan) error {
	bus.Publish(domain.LoopEvent{Type: domain.EventFinished, SessionID: sessionID})
	if f.called != nil {
		f.called <- userText
	}
	return nil
}

func newTestServer() (*Server, *fakeStore, *fakeOrchestrator) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	orch := &fakeOrchestrator{called: make(chan string, 1)}
	return NewServer(orch, store, zerolog.Nop()), store, orch
}

func TestCreateSessionHandler_PersistsAndReturnsSession(t *testing.T) {
	s, store, _ := newTestServer()
	r := NewEngine(s, nil)

	body := `{"workingDir": "/tmp/project", "model": "claude-opus-4", "provider": "anthropic"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var got domain.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "/tmp/project", got.WorkingDir)
	assert.Equal(t, domain.WorkModeBuild, got.WorkMode)
	assert.NotEmpty(t, got.ID)
	assert.Len(t, store.sessions, 1)
}

func TestGetSessionHandler_NotFoundReturns404(t *testing.T) {
	s, _, _ := newTestServer()
	r := NewEngine(s, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSessionHandler_ReturnsStoredSession(t *testing.T) {
	s, store, _ := newTestServer()
	store.sessions["s1"] = &domain.Session{ID: "s1", Title: "hello"}
	r := NewEngine(s, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "hello", got.Title)
}

func TestPostMessageHandler_AcceptsAndRunsAsync(t *testing.T) {
	s, _, orch := newTestServer()
	r := NewEngine(s, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s1/messages", bytes.NewBufferString(`{"text": "hi there"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	select {
	case text := <-orch.called:
		assert.Equal(t, "hi there", text)
	case <-time.After(2 * time.Second):
		t.Fatal("RunUserMessage was never invoked")
	}
}

func TestPostMessageHandler_BadJSONReturns400(t *testing.T) {
	s, _, _ := newTestServer()
	r := NewEngine(s, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s1/messages", bytes.NewBufferString(`not json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInputHandler_AcceptsLoopInput(t *testing.T) {
	s, _, _ := newTestServer()
	r := NewEngine(s, nil)

	body := `{"type": "cancel", "toolCallId": ""}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s1/input", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	sc := s.sessions.getOrCreate("s1", zerolog.Nop())
	select {
	case in := <-sc.inputs.Recv():
		assert.Equal(t, domain.InputCancel, in.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("input was never relayed")
	}
}

func TestEventsHandler_StreamsPublishedEvents(t *testing.T) {
	s, _, _ := newTestServer()
	r := NewEngine(s, nil)

	sc := s.sessions.getOrCreate("s1", zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		r.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	sc.bus.Publish(domain.LoopEvent{Type: domain.EventFinished, SessionID: "s1"})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream handler did not return after context cancellation")
	}

	assert.Contains(t, w.Body.String(), "event: finished")
}
