package orchestrator

import (
	"sync"

	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/eventbus"
)

// inputRouter is the one and only reader of an eventbus.InputChan for
// the lifetime of a single RunUserMessage call: it demultiplexes
// tool-approval/user-response inputs to whichever dispatch step is
// currently waiting on that tool-call id, and turns any Cancel input
// into a single broadcast close. It is observed by parked approval and
// user-response waits, by dispatchTools for calls not yet executed, and
// by the loop's checkCancel before and after each streamed turn; it
// does not abort a provider stream in progress or a tool that is
// already executing. Grounded on spec.md §5's "cancellation token shared by the
// provider-stream task and all tool tasks of a turn" — this is that
// token, plus the approval/response demux spec.md §4.4 needs on the
// same physical channel.
type inputRouter struct {
	mu       sync.Mutex
	waiters  map[string]chan domain.LoopInput
	cancelCh chan struct{}
	once     sync.Once
}

func newInputRouter(inputs *eventbus.InputChan) *inputRouter {
	r := &inputRouter{waiters: map[string]chan domain.LoopInput{}, cancelCh: make(chan struct{})}
	go r.pump(inputs)
	return r
}

func (r *inputRouter) pump(inputs *eventbus.InputChan) {
	for in := range inputs.Recv() {
		if in.Type == domain.InputCancel {
			r.triggerCancel()
			continue
		}
		r.mu.Lock()
		ch, ok := r.waiters[in.ToolCallID]
		r.mu.Unlock()
		if ok {
			select {
			case ch <- in:
			default:
			}
		}
	}
}

func (r *inputRouter) triggerCancel() {
	r.once.Do(func() { close(r.cancelCh) })
}

// register returns a channel that will receive the next input of any
// type addressed to toolCallID; callers must unregister when done.
func (r *inputRouter) register(toolCallID string) chan domain.LoopInput {
	ch := make(chan domain.LoopInput, 1)
	r.mu.Lock()
	r.waiters[toolCallID] = ch
	r.mu.Unlock()
	return ch
}

func (r *inputRouter) unregister(toolCallID string) {
	r.mu.Lock()
	delete(r.waiters, toolCallID)
	r.mu.Unlock()
}

// cancelled is closed exactly once, the moment a Cancel input arrives.
func (r *inputRouter) cancelled() <-chan struct{} { return r.cancelCh }
