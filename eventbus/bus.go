// Package eventbus implements the event bus and input channel of
// spec.md §4.5: a bounded, single-producer multi-consumer fan-out of
// LoopEvents from the orchestrator to front-ends, and a companion
// unbounded channel for LoopInputs so approvals and cancellation can
// never be throttled by a slow event consumer. Grounded on
// flow_event/flow_event.go's pub/sub contract in the teacher, which
// backs itself with Redis/NATS streams for cross-process delivery; that
// transport is out of this core's scope (spec.md §1), so what's left
// once it's stripped to an in-process primitive is exactly a bounded Go
// channel with the drop policy spec.md §4.5 describes.
package eventbus

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sidecore/agentcore/domain"
)

// Capacity is the bounded size of the event channel, per spec.md §4.5.
const Capacity = 1000

// SendTimeout is how long a blocked publish waits before the
// notification is dropped, per spec.md §4.5.
const SendTimeout = 10 * time.Second

// Bus fans out LoopEvents for one session to any number of subscribers.
// Each subscriber gets its own bounded channel so one slow consumer
// cannot starve the others; publishing to a full subscriber channel
// waits up to SendTimeout before dropping that one notification.
type Bus struct {
	log zerolog.Logger

	mu   sync.Mutex
	subs map[int]chan domain.LoopEvent
	next int
}

func New(log zerolog.Logger) *Bus {
	return &Bus{log: log, subs: map[int]chan domain.LoopEvent{}}
}

// Subscribe registers a new consumer and returns its channel plus an
// unsubscribe function. The channel is closed by Unsubscribe, never by
// Publish, so range loops over it terminate cleanly.
func (b *Bus) Subscribe() (<-chan domain.LoopEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan domain.LoopEvent, Capacity)
	b.subs[id] = ch
	return ch, func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish fans the event out to every current subscriber. A subscriber
// whose channel is full gets up to SendTimeout to drain before the
// notification is dropped with a warning log (spec.md §4.5); Publish
// itself never blocks longer than SendTimeout regardless of subscriber
// count, since each subscriber's wait runs independently.
func (b *Bus) Publish(evt domain.LoopEvent) {
	b.mu.Lock()
	targets := make([]chan domain.LoopEvent, 0, len(b.subs))
	for _, ch := range b.subs {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, ch := range targets {
		select {
		case ch <- evt:
		default:
			wg.Add(1)
			go func(ch chan domain.LoopEvent) {
				defer wg.Done()
				timer := time.NewTimer(SendTimeout)
				select {
				case ch <- evt:
					timer.Stop()
				case <-timer.C:
					b.log.Warn().
						Str("session_id", evt.SessionID).
						Str("event_type", string(evt.Type)).
						Msg("event bus subscriber full for 10s, dropping notification")
				}
			}(ch)
		}
	}
	wg.Wait()
}

// Close tears down every subscriber channel. Call once the orchestrator
// for this session is fully shut down.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
