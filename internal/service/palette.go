// Package service holds the portal's persisted settings.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/layers"
	"github.com/joeblew999/plat-hazard/internal/state"
)

// ErrNoOverride is returned when deleting a palette that was never set.
var ErrNoOverride = errors.New("palette not overridden")

// PaletteService stores per-dataset palette overrides in palettes.json and
// falls back to the built-in palettes. It implements layers.Palettes.
type PaletteService struct {
	dataDir   string
	bus       *state.Bus
	overrides map[dataset.Key]layers.Palette
	mu        sync.RWMutex
}

// NewPaletteService loads overrides from dataDir. Changes are announced on
// bus, which may be nil.
func NewPaletteService(dataDir string, bus *state.Bus) *PaletteService {
	s := &PaletteService{
		dataDir:   dataDir,
		bus:       bus,
		overrides: make(map[dataset.Key]layers.Palette),
	}
	s.loadFromDisk()
	return s
}

// Palette returns the effective palette of key.
func (s *PaletteService) Palette(key dataset.Key) layers.Palette {
	p, _ := s.Get(key)
	return p
}

// Get returns the effective palette of key and whether it is overridden.
func (s *PaletteService) Get(key dataset.Key) (layers.Palette, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.overrides[key]; ok {
		p.Colors = append([]string(nil), p.Colors...)
		return p, true
	}
	return layers.DefaultPalette(key), false
}

// List returns the effective palette of every dataset.
func (s *PaletteService) List() map[dataset.Key]layers.Palette {
	out := make(map[dataset.Key]layers.Palette, len(dataset.Keys))
	for _, k := range dataset.Keys {
		out[k] = s.Palette(k)
	}
	return out
}

// Put validates and stores an override for key.
func (s *PaletteService) Put(key dataset.Key, p layers.Palette) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %q", dataset.ErrUnknownDataset, string(key))
	}
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	prev, had := s.overrides[key]
	s.overrides[key] = p
	if err := s.saveToDisk(); err != nil {
		if had {
			s.overrides[key] = prev
		} else {
			delete(s.overrides, key)
		}
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.publish(key, "updated")
	return nil
}

// Delete removes the override of key, restoring the built-in palette.
func (s *PaletteService) Delete(key dataset.Key) error {
	s.mu.Lock()
	p, ok := s.overrides[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoOverride, key)
	}
	delete(s.overrides, key)
	if err := s.saveToDisk(); err != nil {
		s.overrides[key] = p
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.publish(key, "deleted")
	return nil
}

func (s *PaletteService) publish(key dataset.Key, action string) {
	if s.bus != nil {
		s.bus.Publish(state.Event{Slice: state.SlicePalette, Action: action, Dataset: string(key)})
	}
}

func (s *PaletteService) configFile() string {
	return filepath.Join(s.dataDir, "palettes.json")
}

// loadFromDisk ignores a missing or unreadable file and invalid entries.
func (s *PaletteService) loadFromDisk() {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return
	}
	var stored map[dataset.Key]layers.Palette
	if err := json.Unmarshal(data, &stored); err != nil {
		return
	}
	for k, p := range stored {
		if k.Valid() && p.Validate() == nil {
			s.overrides[k] = p
		}
	}
}

func (s *PaletteService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.overrides, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.configFile(), data, 0644)
}

var _ layers.Palettes = (*PaletteService)(nil)
