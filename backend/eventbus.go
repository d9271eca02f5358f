package backend

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultSubscriptionBuffer = 16

// Event is a one-way notification published on the EventBus.
type Event interface {
	// Name identifies the event type on the wire (e.g. the SSE event field).
	Name() string
}

// TimerProgress is published once per timer tick with the time left,
// and once with zero Remaining when the timer is cancelled.
type TimerProgress struct {
	RunID     uuid.UUID
	Remaining time.Duration
}

func (TimerProgress) Name() string { return "timer-progress" }

func (t TimerProgress) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RunID       uuid.UUID `json:"runId"`
		RemainingMS int64     `json:"remainingMs"`
	}{t.RunID, t.Remaining.Milliseconds()})
}

// TimerFinished is published exactly once when a timer run expires.
type TimerFinished struct {
	RunID uuid.UUID `json:"runId"`
}

func (TimerFinished) Name() string { return "timer-finished" }

type LocaleChanged struct {
	Code string `json:"code"`
}

func (LocaleChanged) Name() string { return "locale-changed" }

// SessionChanged carries the controller state after a mutation.
type SessionChanged struct {
	Snapshot Snapshot `json:"snapshot"`
}

func (SessionChanged) Name() string { return "session-changed" }

// EventBus fans published events out to subscribers in publish order.
// A subscriber that falls behind loses its oldest buffered events.
type EventBus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[*Subscription]struct{})}
}

type Subscription struct {
	bus *EventBus
	c   chan Event
}

// C returns the delivery channel. It is closed on Unsubscribe or bus Close.
func (s *Subscription) C() <-chan Event {
	return s.c
}

func (s *Subscription) Unsubscribe() {
	s.bus.remove(s)
}

// Subscribe registers a new subscriber with the given buffer size
// (a default is used if size <= 0).
func (b *EventBus) Subscribe(size int) *Subscription {
	if size <= 0 {
		size = defaultSubscriptionBuffer
	}
	s := &Subscription{bus: b, c: make(chan Event, size)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.c)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish never blocks.
func (b *EventBus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		for {
			select {
			case s.c <- e:
			default:
				// full: drop the oldest and retry
				select {
				case <-s.c:
				default:
				}
				continue
			}
			break
		}
	}
}

func (b *EventBus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.c)
	}
}

// Close ends every subscription.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		close(s.c)
	}
	b.subs = map[*Subscription]struct{}{}
	b.closed = true
}
