package web

import (
	"sync"
	"time"

	"raspifpv/internal/wire"
)

// SampleEvent is one received sample as sent on the SSE stream.
type SampleEvent struct {
	Kind   string      `json:"kind"`
	AtUTC  string      `json:"at_utc"`
	Sample wire.Sample `json:"sample"`
}

// SampleBroadcaster fans received samples out to any listeners (e.g. SSE).
// A subscriber that is not keeping up misses samples; Publish never blocks.
// The most recent event of each kind is kept so new subscribers start with
// a full picture.
type SampleBroadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan SampleEvent
	nextID int
	last   map[string]SampleEvent
	now    func() time.Time
}

func NewSampleBroadcaster() *SampleBroadcaster {
	return &SampleBroadcaster{
		subs: make(map[int]chan SampleEvent),
		last: make(map[string]SampleEvent),
		now:  time.Now,
	}
}

func (b *SampleBroadcaster) Subscribe(buffer int) (int, <-chan SampleEvent) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan SampleEvent, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	for _, kind := range []string{wire.TagPosition.String(), wire.TagPower.String(), wire.TagSignal.String()} {
		if ev, ok := b.last[kind]; ok {
			select {
			case ch <- ev:
			default:
			}
		}
	}
	b.mu.Unlock()
	return id, ch
}

func (b *SampleBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of live subscriptions.
func (b *SampleBroadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish has the telemetry.Observer signature so it can be registered on a
// Subscriber directly.
func (b *SampleBroadcaster) Publish(s wire.Sample) {
	if b == nil || s == nil {
		return
	}
	ev := SampleEvent{
		Kind:   s.Tag().String(),
		AtUTC:  b.now().UTC().Format(time.RFC3339Nano),
		Sample: s,
	}

	// Send under the read lock so Unsubscribe cannot close a channel mid-send.
	b.mu.RLock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.RUnlock()

	b.mu.Lock()
	b.last[ev.Kind] = ev
	b.mu.Unlock()
}
