// Package state holds the per-session application state of the portal:
// dataset visibility, loaded results, the drawn region, the map style and
// feature hover/selection. Each slice is changed only through its mutators,
// and every change is published on the bus.
package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/filter"
	"github.com/joeblew999/plat-hazard/internal/layers"
	"github.com/joeblew999/plat-hazard/internal/query"
)

// Loaded is a successfully loaded dataset together with the request that
// produced it, kept so the full result can be downloaded again.
type Loaded struct {
	Collection *geojson.FeatureCollection
	Units      map[string]string
	Metadata   *[2]float64
	Request    query.Request
	Privileged bool
	LoadedAt   time.Time
}

// Ticket identifies one load submission. Only the latest ticket of a
// dataset may complete; older ones are discarded.
type Ticket struct {
	ID      string
	Dataset dataset.Key
	seq     uint64
}

// Session is the state of one portal user.
type Session struct {
	id  string
	bus *Bus
	now func() time.Time

	mu         sync.RWMutex
	visible    map[dataset.Key]bool
	loaded     map[dataset.Key]*Loaded
	latest     map[dataset.Key]uint64
	pending    map[dataset.Key]bool
	seq        uint64
	region     orb.Geometry
	mapStyle   string
	lastSeenAt time.Time

	features layers.FeatureStates
}

func newSession(id string, bus *Bus, now func() time.Time) *Session {
	return &Session{
		id:         id,
		bus:        bus,
		now:        now,
		visible:    make(map[dataset.Key]bool),
		loaded:     make(map[dataset.Key]*Loaded),
		latest:     make(map[dataset.Key]uint64),
		pending:    make(map[dataset.Key]bool),
		lastSeenAt: now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

func (s *Session) publish(slice Slice, action string, key dataset.Key, msg string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(Event{Session: s.id, Slice: slice, Action: action, Dataset: string(key), Message: msg})
}

// --- visibility ---

// SetVisible shows or hides every layer of key.
func (s *Session) SetVisible(key dataset.Key, visible bool) {
	s.mu.Lock()
	s.visible[key] = visible
	s.mu.Unlock()
	s.publish(SliceVisibility, "set", key, "")
}

// Toggle flips the visibility of key and returns the new value.
func (s *Session) Toggle(key dataset.Key) bool {
	s.mu.Lock()
	v := !s.visible[key]
	s.visible[key] = v
	s.mu.Unlock()
	s.publish(SliceVisibility, "set", key, "")
	return v
}

// Visible reports whether key is shown.
func (s *Session) Visible(key dataset.Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible[key]
}

// --- loads ---

// BeginLoad registers a new submission for key. It supersedes every earlier
// submission of the same dataset that has not completed yet.
func (s *Session) BeginLoad(key dataset.Key) Ticket {
	s.mu.Lock()
	s.seq++
	t := Ticket{ID: uuid.NewString(), Dataset: key, seq: s.seq}
	s.latest[key] = t.seq
	s.pending[key] = true
	s.mu.Unlock()
	s.publish(SliceData, "pending", key, "")
	return t
}

// CompleteLoad stores the result of t, replacing the previous result
// wholesale. It reports false, storing nothing, when t was superseded.
// The first load of a dataset makes it visible.
func (s *Session) CompleteLoad(t Ticket, l *Loaded) bool {
	s.mu.Lock()
	if s.latest[t.Dataset] != t.seq {
		s.mu.Unlock()
		return false
	}
	if l.LoadedAt.IsZero() {
		l.LoadedAt = s.now()
	}
	_, seen := s.visible[t.Dataset]
	if !seen {
		s.visible[t.Dataset] = true
	}
	s.loaded[t.Dataset] = l
	s.pending[t.Dataset] = false
	s.mu.Unlock()

	s.features.Forget(string(t.Dataset))
	s.publish(SliceData, "loaded", t.Dataset, "")
	return true
}

// FailLoad ends t without touching the previously loaded result. It reports
// false when t was superseded.
func (s *Session) FailLoad(t Ticket, msg string) bool {
	s.mu.Lock()
	if s.latest[t.Dataset] != t.seq {
		s.mu.Unlock()
		return false
	}
	s.pending[t.Dataset] = false
	s.mu.Unlock()
	s.publish(SliceData, "failed", t.Dataset, msg)
	return true
}

// Pending reports whether the latest submission of key is still running.
func (s *Session) Pending(key dataset.Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending[key]
}

// Loaded returns the loaded result of key.
func (s *Session) Loaded(key dataset.Key) (*Loaded, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loaded[key]
	return l, ok
}

// LoadedKeys returns the datasets with a loaded result, in dataset order.
func (s *Session) LoadedKeys() []dataset.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []dataset.Key
	for _, k := range dataset.Keys {
		if _, ok := s.loaded[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// ClearAll drops every loaded result. Submissions still running are
// superseded so their results are discarded.
func (s *Session) ClearAll() {
	s.mu.Lock()
	for k := range s.loaded {
		delete(s.loaded, k)
	}
	for k := range s.latest {
		s.seq++
		s.latest[k] = s.seq
		s.pending[k] = false
	}
	s.mu.Unlock()

	for _, k := range dataset.Keys {
		s.features.Forget(string(k))
	}
	s.publish(SliceData, "cleared", "", "")
}

// --- region ---

// SetRegion replaces the drawn region.
func (s *Session) SetRegion(g orb.Geometry) error {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return filter.ErrRegion
	}
	s.mu.Lock()
	s.region = g
	s.mu.Unlock()
	s.publish(SliceRegion, "set", "", "")
	return nil
}

// ClearRegion removes the drawn region.
func (s *Session) ClearRegion() {
	s.mu.Lock()
	s.region = nil
	s.mu.Unlock()
	s.publish(SliceRegion, "cleared", "", "")
}

// Region returns the drawn region, or nil.
func (s *Session) Region() orb.Geometry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.region
}

// --- map style ---

// SetMapStyle selects the basemap style.
func (s *Session) SetMapStyle(style string) {
	s.mu.Lock()
	s.mapStyle = style
	s.mu.Unlock()
	s.publish(SliceMapStyle, "set", "", "")
}

// MapStyle returns the selected basemap style.
func (s *Session) MapStyle() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mapStyle
}

// --- feature state ---

// Hover moves the hover flag to f.
func (s *Session) Hover(f layers.FeatureRef) []layers.StateOp {
	ops := s.features.Hover(f)
	if len(ops) > 0 {
		s.publish(SliceFeature, "hover", dataset.Key(f.Source), "")
	}
	return ops
}

// Leave clears the hover flag.
func (s *Session) Leave() []layers.StateOp { return s.features.Leave() }

// Select moves the selection to f.
func (s *Session) Select(f layers.FeatureRef) []layers.StateOp {
	ops := s.features.Select(f)
	if len(ops) > 0 {
		s.publish(SliceFeature, "select", dataset.Key(f.Source), "")
	}
	return ops
}

// Deselect clears the selection.
func (s *Session) Deselect() []layers.StateOp { return s.features.Deselect() }

// Selected returns the selected feature, if any.
func (s *Session) Selected() (layers.FeatureRef, bool) { return s.features.Selected() }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeenAt = s.now()
	s.mu.Unlock()
}

func (s *Session) lastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeenAt
}
