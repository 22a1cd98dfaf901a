package eventbus

import "github.com/sidecore/agentcore/domain"

// InputChan is the unbounded companion to Bus: a separate channel
// carrying LoopInputs (tool approvals, user responses, cancellation)
// back to the orchestrator. It is backed by a goroutine-fed buffer
// rather than a fixed-capacity Go channel so a burst of inputs never
// blocks the caller the way a slow subscriber can legitimately block
// Publish on the event side (spec.md §4.5: "so approvals and
// cancellation cannot be throttled by a slow event consumer").
type InputChan struct {
	in  chan domain.LoopInput
	out chan domain.LoopInput
}

// NewInputChan starts the unbounded relay goroutine and returns the
// channel pair; Send and Recv are safe to use from different goroutines.
func NewInputChan() *InputChan {
	ic := &InputChan{
		in:  make(chan domain.LoopInput),
		out: make(chan domain.LoopInput),
	}
	go ic.relay()
	return ic
}

func (ic *InputChan) relay() {
	var queue []domain.LoopInput
	for {
		if len(queue) == 0 {
			v, ok := <-ic.in
			if !ok {
				close(ic.out)
				return
			}
			queue = append(queue, v)
			continue
		}
		select {
		case v, ok := <-ic.in:
			if !ok {
				for _, q := range queue {
					ic.out <- q
				}
				close(ic.out)
				return
			}
			queue = append(queue, v)
		case ic.out <- queue[0]:
			queue = queue[1:]
		}
	}
}

// Send enqueues an input; it never blocks on a slow consumer.
func (ic *InputChan) Send(in domain.LoopInput) { ic.in <- in }

// Recv returns the channel the orchestrator reads inputs from.
func (ic *InputChan) Recv() <-chan domain.LoopInput { return ic.out }

// Close shuts down the relay goroutine.
func (ic *InputChan) Close() { close(ic.in) }
