package httpsse

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sidecore/agentcore/eventbus"
)

// sessionConn holds the live event bus, input channel and root context
// for one session's in-flight turn processing, so PostMessageHandler,
// EventsHandler and InputHandler (three separate HTTP requests) can
// share them. Grounded on the teacher's per-flow websocket-handler
// pattern (FlowEventsWebsocketHandler) of looking up a shared pub/sub
// point by id rather than owning one per connection.
type sessionConn struct {
	ctx    context.Context
	cancel context.CancelFunc
	bus    *eventbus.Bus
	inputs *eventbus.InputChan
}

type sessionRegistry struct {
	mu    sync.Mutex
	conns map[string]*sessionConn
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{conns: map[string]*sessionConn{}}
}

func (r *sessionRegistry) getOrCreate(sessionID string, log zerolog.Logger) *sessionConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sc, ok := r.conns[sessionID]; ok {
		return sc
	}
	ctx, cancel := context.WithCancel(context.Background())
	sc := &sessionConn{
		ctx:    ctx,
		cancel: cancel,
		bus:    eventbus.New(log),
		inputs: eventbus.NewInputChan(),
	}
	r.conns[sessionID] = sc
	return sc
}

func (r *sessionRegistry) close(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.conns[sessionID]
	if !ok {
		return
	}
	sc.cancel()
	sc.bus.Close()
	sc.inputs.Close()
	delete(r.conns, sessionID)
}
