// Package acp implements spec.md §6's agent-client-protocol mode: a
// stdio JSON-RPC transport exposing the same orchestrator to an editor.
// Grounded on coding/lsp/lsp_client.go's use of
// github.com/sourcegraph/jsonrpc2 for a stdio-piped RPC connection,
// repurposed here from an LSP *client* (dialing out to gopls) into a
// server (the editor dials in over the process's own stdin/stdout).
package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/eventbus"
	"github.com/sidecore/agentcore/frontend"
	"github.com/sourcegraph/jsonrpc2"
)

// Server bridges JSON-RPC requests/notifications over stdio to an
// Orchestrator. Permissions are auto-approved in this mode per spec.md
// §6 ("the editor is responsible for user consent before spawning the
// process") — the embedding process is expected to configure an empty
// ApprovalRequired set on the orchestrator when wiring it for ACP.
type Server struct {
	orch  frontend.Orchestrator
	store frontend.SessionStore
	log   zerolog.Logger

	mu    sync.Mutex
	conns map[string]*sessionState
}

type sessionState struct {
	ctx    context.Context
	cancel context.CancelFunc
	bus    *eventbus.Bus
	inputs *eventbus.InputChan
}

func NewServer(orch frontend.Orchestrator, store frontend.SessionStore, log zerolog.Logger) *Server {
	return &Server{orch: orch, store: store, log: log, conns: map[string]*sessionState{}}
}

type stdioReadWriteCloser struct {
	io.Reader
	io.Writer
}

func (stdioReadWriteCloser) Close() error { return nil }

// Serve blocks, handling RPC traffic over r/w (typically os.Stdin/os.Stdout)
// until the connection is closed or ctx is cancelled. Grounded on
// lsp_client.go's jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(rwc,
// jsonrpc2.VSCodeObjectCodec{}), handler) wiring.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) {
	rwc := stdioReadWriteCloser{Reader: r, Writer: w}
	conn := jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{}), jsonrpc2.HandlerWithError(s.handle))
	<-conn.DisconnectNotify()
}

type promptParams struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

type inputParams struct {
	SessionID string            `json:"sessionId"`
	Input     domain.LoopInput `json:"input"`
}

type newSessionParams struct {
	WorkingDir string `json:"workingDir"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`
}

func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "session/new":
		var p newSessionParams
		if req.Params != nil {
			if err := json.Unmarshal(*req.Params, &p); err != nil {
				return nil, err
			}
		}
		sess := &domain.Session{ID: newSessionID(), WorkingDir: p.WorkingDir, Model: p.Model, Provider: p.Provider, WorkMode: domain.WorkModeBuild}
		if err := s.store.CreateSession(ctx, sess); err != nil {
			return nil, err
		}
		return sess, nil

	case "session/prompt":
		var p promptParams
		if err := json.Unmarshal(*req.Params, &p); err != nil {
			return nil, err
		}
		state := s.stateFor(p.SessionID)
		go s.streamNotifications(conn, p.SessionID, state)
		if err := s.orch.RunUserMessage(state.ctx, p.SessionID, p.Text, state.bus, state.inputs); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil

	case "session/input":
		var p inputParams
		if err := json.Unmarshal(*req.Params, &p); err != nil {
			return nil, err
		}
		state := s.stateFor(p.SessionID)
		state.inputs.Send(p.Input)
		return map[string]string{"status": "accepted"}, nil

	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
}

// streamNotifications forwards every LoopEvent on the session's bus as a
// "session/update" JSON-RPC notification, per spec.md §6's "Notifications
// are bridged through a bounded channel (1000) with a 10s send timeout
// before drop" — that bound/timeout is eventbus.Bus's own Publish policy,
// which this loop inherits by subscribing to it rather than re-deriving.
func (s *Server) streamNotifications(conn *jsonrpc2.Conn, sessionID string, state *sessionState) {
	sub, unsubscribe := state.bus.Subscribe()
	defer unsubscribe()
	for evt := range sub {
		if err := conn.Notify(state.ctx, "session/update", evt); err != nil {
			s.log.Warn().Err(err).Str("session", sessionID).Msg("failed to deliver ACP notification")
			return
		}
	}
}

func (s *Server) stateFor(sessionID string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.conns[sessionID]; ok {
		return st
	}
	ctx, cancel := context.WithCancel(context.Background())
	st := &sessionState{ctx: ctx, cancel: cancel, bus: eventbus.New(s.log), inputs: eventbus.NewInputChan()}
	s.conns[sessionID] = st
	return st
}

func newSessionID() string {
	return fmt.Sprintf("s_%d", time.Now().UnixNano())
}
