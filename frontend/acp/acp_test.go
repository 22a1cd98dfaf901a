package acp

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/jsonrpc2"
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
	publish func(bus *eventbus.Bus)
}

func (f *fakeOrchestrator) RunUserMessage(ctx context.Context, sessionID string, userText string, bus *eventbus.Bus, inputs *eventbus.InputChan) error {
	if f.publish != nil {
		// give the session/prompt handler's streamNotifications goroutine
		// time to subscribe before anything is published, the way a real
		// provider round-trip would.
		time.Sleep(50 * time.Millisecond)
		f.publish(bus)
	}
	return nil
}

type notifyingHandler struct {
	notifications chan *jsonrpc2.Request
}

func (h *notifyingHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Notif {
		h.notifications <- req
	}
}

// wireUp connects a Server to an in-process client over a pair of pipes,
// the way Serve wires it over a real process's stdin/stdout.
func wireUp(t *testing.T, s *Server) (*jsonrpc2.Conn, *notifyingHandler) {
	t.Helper()
	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serverConn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(stdioReadWriteCloser{Reader: serverIn, Writer: serverOut}, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(s.handle))
	t.Cleanup(func() { serverConn.Close() })

	nh := &notifyingHandler{notifications: make(chan *jsonrpc2.Request, 16)}
	clientConn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(stdioReadWriteCloser{Reader: clientIn, Writer: clientOut}, jsonrpc2.VSCodeObjectCodec{}),
		nh)
	t.Cleanup(func() { clientConn.Close() })

	return clientConn, nh
}

func TestHandle_SessionNew_CreatesAndReturnsSession(t *testing.T) {
	store := newFakeStore()
	s := NewServer(&fakeOrchestrator{}, store, zerolog.Nop())
	client, _ := wireUp(t, s)

	var got domain.Session
	err := client.Call(context.Background(), "session/new", newSessionParams{WorkingDir: "/tmp/x", Model: "m", Provider: "p"}, &got)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", got.WorkingDir)
	assert.NotEmpty(t, got.ID)
	assert.Len(t, store.sessions, 1)
}

func TestHandle_UnknownMethod_ReturnsError(t *testing.T) {
	s := NewServer(&fakeOrchestrator{}, newFakeStore(), zerolog.Nop())
	client, _ := wireUp(t, s)

	var got map[string]string
	err := client.Call(context.Background(), "bogus/method", map[string]string{}, &got)
	assert.Error(t, err)
}

func TestHandle_SessionInput_RelaysToInputChan(t *testing.T) {
	s := NewServer(&fakeOrchestrator{}, newFakeStore(), zerolog.Nop())
	client, _ := wireUp(t, s)

	params := inputParams{SessionID: "s1", Input: domain.LoopInput{Type: domain.InputCancel}}
	var got map[string]string
	require.NoError(t, client.Call(context.Background(), "session/input", params, &got))
	assert.Equal(t, "accepted", got["status"])

	state := s.stateFor("s1")
	select {
	case in := <-state.inputs.Recv():
		assert.Equal(t, domain.InputCancel, in.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("input was never relayed to the session's input channel")
	}
}

func TestHandle_SessionPrompt_BridgesBusEventsAsNotifications(t *testing.T) {
	orch := &fakeOrchestrator{publish: func(bus *eventbus.Bus) {
		bus.Publish(domain.LoopEvent{Type: domain.EventFinished, SessionID: "s1"})
	}}
	s := NewServer(orch, newFakeStore(), zerolog.Nop())
	client, nh := wireUp(t, s)

	var got map[string]string
	err := client.Call(context.Background(), "session/prompt", promptParams{SessionID: "s1", Text: "hi"}, &got)
	require.NoError(t, err)
	assert.Equal(t, "ok", got["status"])

	select {
	case req := <-nh.notifications:
		assert.Equal(t, "session/update", req.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("session/update notification was never delivered")
	}
}
