package layers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// FeatureRef identifies a feature within a map source.
type FeatureRef struct {
	Source string `json:"source"`
	ID     string `json:"id"`
}

// FeatureID formats a feature id the way the map reports it. Integral
// numbers print without exponent whether they arrive as JSON float64 or
// as store integers, so 1234567 and 1.234567e6 name the same feature.
func FeatureID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(id), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(id, 10)
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case int:
		return strconv.Itoa(id)
	case uint64:
		return strconv.FormatUint(id, 10)
	case uint32:
		return strconv.FormatUint(uint64(id), 10)
	}
	return fmt.Sprint(v)
}

// Feature-state flags.
const (
	StateHover    = "hover"
	StateSelected = "selected"
)

// StateOp sets one flag on one feature. Ops must be applied in order.
type StateOp struct {
	Feature FeatureRef `json:"feature"`
	Flag    string     `json:"flag"`
	Value   bool       `json:"value"`
}

// FeatureStates tracks the hovered and selected feature. Every transition
// clears the flags it set on the previous feature before setting new ones,
// and a selected feature never carries the hover flag.
type FeatureStates struct {
	mu       sync.Mutex
	hovered  *FeatureRef
	selected *FeatureRef
}

// Hover moves the hover flag to f.
func (s *FeatureStates) Hover(f FeatureRef) []StateOp {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hovered != nil && *s.hovered == f {
		return nil
	}
	ops := s.clearHover()
	if s.selected != nil && *s.selected == f {
		return ops
	}
	s.hovered = &f
	return append(ops, StateOp{Feature: f, Flag: StateHover, Value: true})
}

// Leave clears the hover flag.
func (s *FeatureStates) Leave() []StateOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearHover()
}

// Select moves the selection to f.
func (s *FeatureStates) Select(f FeatureRef) []StateOp {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected != nil && *s.selected == f {
		return nil
	}
	ops := s.clearSelected()
	if s.hovered != nil && *s.hovered == f {
		ops = append(ops, s.clearHover()...)
	}
	s.selected = &f
	return append(ops, StateOp{Feature: f, Flag: StateSelected, Value: true})
}

// Deselect clears the selection.
func (s *FeatureStates) Deselect() []StateOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearSelected()
}

// Forget drops tracked features of source without emitting ops, used when
// the source's data is replaced and its features no longer exist.
func (s *FeatureStates) Forget(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hovered != nil && s.hovered.Source == source {
		s.hovered = nil
	}
	if s.selected != nil && s.selected.Source == source {
		s.selected = nil
	}
}

// Hovered returns the hovered feature, if any.
func (s *FeatureStates) Hovered() (FeatureRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hovered == nil {
		return FeatureRef{}, false
	}
	return *s.hovered, true
}

// Selected returns the selected feature, if any.
func (s *FeatureStates) Selected() (FeatureRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return FeatureRef{}, false
	}
	return *s.selected, true
}

func (s *FeatureStates) clearHover() []StateOp {
	if s.hovered == nil {
		return nil
	}
	op := StateOp{Feature: *s.hovered, Flag: StateHover, Value: false}
	s.hovered = nil
	return []StateOp{op}
}

func (s *FeatureStates) clearSelected() []StateOp {
	if s.selected == nil {
		return nil
	}
	op := StateOp{Feature: *s.selected, Flag: StateSelected, Value: false}
	s.selected = nil
	return []StateOp{op}
}
