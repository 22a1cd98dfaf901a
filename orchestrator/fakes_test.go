package orchestrator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/provider"
)

// fakeStore is an in-memory Store. GetSession hands back the same pointer
// it stores, an aliasing the real sqlite store does not give. The tests
// depend on it: they read the finished session state from the pointer
// they stored once RunUserMessage returns.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	titles   []string
}

func newFakeStore(sessions ...*domain.Session) *fakeStore {
	s := &fakeStore{sessions: map[string]*domain.Session{}}
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
	}
	return s
}

func (s *fakeStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errNotFound{id}
	}
	return sess, nil
}

type errNotFound struct{ id string }

func (e errNotFound) Error() string { return "session not found: " + e.id }

func (s *fakeStore) AppendMessages(ctx context.Context, sessionID string, msgs []domain.Message) error {
	return nil
}

func (s *fakeStore) UpdateUsage(ctx context.Context, sessionID string, u domain.Usage) error {
	return nil
}

func (s *fakeStore) SetTitle(ctx context.Context, sessionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	if sess, ok := s.sessions[sessionID]; ok {
		sess.Title = title
	}
	return nil
}

func (s *fakeStore) SetWorkMode(ctx context.Context, sessionID string, mode domain.WorkMode) error {
	return nil
}

func (s *fakeStore) GetPlanForSession(ctx context.Context, sessionID string) (*domain.Plan, error) {
	return nil, errNotFound{sessionID}
}

func (s *fakeStore) UpsertPlan(ctx context.Context, plan *domain.Plan) error { return nil }

func (s *fakeStore) UpdateTaskStatus(ctx context.Context, sessionID, taskID string, status domain.TaskStatus) error {
	return nil
}

func (s *fakeStore) AbandonPlan(ctx context.Context, sessionID string) error { return nil }

// scriptedClient plays back one []provider.StreamPart per call to Stream,
// in order. Calls past the end of the script wrap around to the start when
// loop is set (so a max-iterations test can replay one turn forever), and
// otherwise block until ctx is done.
type scriptedClient struct {
	mu    sync.Mutex
	turns [][]provider.StreamPart
	idx   int
	loop  bool
	hang  bool // never sends a part and never returns until ctx is done, to exercise inactivity timeout
}

func (c *scriptedClient) Stream(ctx context.Context, opts provider.Options, parts chan<- provider.StreamPart) (*provider.FinalMessage, error) {
	if c.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	c.mu.Lock()
	i := c.idx
	c.idx++
	c.mu.Unlock()

	if i >= len(c.turns) {
		if c.loop && len(c.turns) > 0 {
			i = i % len(c.turns)
		} else {
			<-ctx.Done()
			return nil, ctx.Err()
		}
	}
	for _, p := range c.turns[i] {
		select {
		case parts <- p:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &provider.FinalMessage{}, nil
}

// fakeTool is a minimal domain.Tool whose Execute is driven by a closure.
type fakeTool struct {
	name       string
	sideEffect domain.SideEffect
	exec       func(ctx context.Context, params []byte) (*domain.ToolResult, error)
}

func (f fakeTool) Name() string        { return f.name }
func (f fakeTool) Description() string { return "test tool " + f.name }
func (f fakeTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&struct{}{})
}
func (f fakeTool) SideEffect() domain.SideEffect { return f.sideEffect }
func (f fakeTool) Execute(ctx context.Context, params json.RawMessage, tc *domain.ToolContext) (*domain.ToolResult, error) {
	if f.exec != nil {
		return f.exec(ctx, params)
	}
	return &domain.ToolResult{Output: "ok"}, nil
}

// fakeUIHandledTool marks a fakeTool as UI-handled, so dispatchTools
// intercepts it before ever calling Execute (see handleUIHandled).
type fakeUIHandledTool struct{ fakeTool }

func (fakeUIHandledTool) UIHandled() {}

func toolCallPart(id, name, args string) provider.StreamPart {
	return provider.StreamPart{
		Type: provider.PartToolCallComplete,
		ToolCall: &domain.ToolUse{
			ID:        id,
			Name:      name,
			Arguments: json.RawMessage(args),
		},
	}
}

func textPart(s string) provider.StreamPart {
	return provider.StreamPart{Type: provider.PartTextDelta, Delta: s}
}
