package state

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CookieName is the cookie carrying the session id.
const CookieName = "hazard_session"

// Registry hands out sessions by id and expires idle ones.
type Registry struct {
	bus *Bus
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. Sessions idle for longer than ttl are
// removed by Sweep; a zero ttl keeps them forever.
func NewRegistry(bus *Bus, ttl time.Duration) *Registry {
	if bus == nil {
		bus = NewBus()
	}
	return &Registry{bus: bus, ttl: ttl, now: time.Now, sessions: make(map[string]*Session)}
}

// Bus returns the event bus every session publishes on.
func (r *Registry) Bus() *Bus { return r.bus }

// Get returns the session with id, refreshing its idle timer.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// GetOrCreate returns the session with id, or a new session when id is
// unknown. created reports whether a new session was made.
func (r *Registry) GetOrCreate(id string) (s *Session, created bool) {
	if id != "" {
		if s, ok := r.Get(id); ok {
			return s, false
		}
	}
	s = newSession(uuid.NewString(), r.bus, r.now)
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes idle sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.lastSeen().Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
