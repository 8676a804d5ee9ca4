package state

import "sync"

// Slice names the part of a session an event is about.
type Slice string

const (
	SliceVisibility Slice = "visibility"
	SliceData       Slice = "data"
	SliceRegion     Slice = "region"
	SliceMapStyle   Slice = "mapStyle"
	SliceFeature    Slice = "feature"
	// SlicePalette events are not tied to a session.
	SlicePalette Slice = "palette"
)

// Event reports a session mutation.
type Event struct {
	Session string
	Slice   Slice
	Action  string // e.g. "pending", "loaded", "failed", "cleared", "set"
	Dataset string // empty for session-wide slices
	Message string // failure detail for "failed"
}

// Bus is a fan-out pub/sub of session events.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Publish sends e to every subscriber without blocking; slow subscribers
// miss events.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a buffered channel of events.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	_, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}
