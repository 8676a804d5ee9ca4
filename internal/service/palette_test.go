package service

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/layers"
	"github.com/joeblew999/plat-hazard/internal/state"
)

func TestPaletteDefaults(t *testing.T) {
	s := NewPaletteService(t.TempDir(), nil)
	p, overridden := s.Get(dataset.Seismicity)
	if overridden {
		t.Fatal("fresh service reports an override")
	}
	if !slices.Equal(p.Colors, layers.DefaultPalette(dataset.Seismicity).Colors) {
		t.Errorf("colors = %v", p.Colors)
	}
	if len(s.List()) != len(dataset.Keys) {
		t.Errorf("list has %d palettes", len(s.List()))
	}
}

func TestPalettePutPersistsAndPublishes(t *testing.T) {
	dir := t.TempDir()
	bus := state.NewBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	s := NewPaletteService(dir, bus)
	want := layers.Palette{Colors: []string{"#000000", "#ffffff"}, Range: [2]float64{0, 10}}
	if err := s.Put(dataset.HeatFlow, want); err != nil {
		t.Fatal(err)
	}

	ev := <-ch
	if ev.Slice != state.SlicePalette || ev.Action != "updated" || ev.Dataset != "hf" {
		t.Errorf("event = %+v", ev)
	}
	if _, err := os.Stat(filepath.Join(dir, "palettes.json")); err != nil {
		t.Fatalf("not persisted: %v", err)
	}

	reloaded := NewPaletteService(dir, nil)
	got, overridden := reloaded.Get(dataset.HeatFlow)
	if !overridden || !slices.Equal(got.Colors, want.Colors) || got.Range != want.Range {
		t.Fatalf("reloaded = %+v (%t)", got, overridden)
	}

	// The binder picks the override up.
	stops := layers.NewBinder(reloaded).Ramp(dataset.HeatFlow, nil)
	if len(stops) != 4 || stops[1] != "#000000" || stops[3] != "#ffffff" {
		t.Errorf("ramp = %v", stops)
	}
}

func TestPalettePutRejects(t *testing.T) {
	s := NewPaletteService(t.TempDir(), nil)
	if err := s.Put(dataset.HeatFlow, layers.Palette{Colors: []string{"red"}}); !errors.Is(err, layers.ErrPalette) {
		t.Errorf("bad colour: %v", err)
	}
	if err := s.Put("lava", layers.Palette{Colors: []string{"#ff0000"}}); !errors.Is(err, dataset.ErrUnknownDataset) {
		t.Errorf("unknown dataset: %v", err)
	}
}

func TestPaletteDelete(t *testing.T) {
	s := NewPaletteService(t.TempDir(), nil)
	if err := s.Delete(dataset.Slip); !errors.Is(err, ErrNoOverride) {
		t.Fatalf("delete without override: %v", err)
	}
	if err := s.Put(dataset.Slip, layers.Palette{Colors: []string{"#123456"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(dataset.Slip); err != nil {
		t.Fatal(err)
	}
	if _, overridden := s.Get(dataset.Slip); overridden {
		t.Fatal("override survived delete")
	}
}

func TestPaletteIgnoresInvalidFile(t *testing.T) {
	dir := t.TempDir()
	content := `{"hf": {"colors": ["nope"]}, "lava": {"colors": ["#ffffff"]}, "slip": {"colors": ["#010203"]}}`
	if err := os.WriteFile(filepath.Join(dir, "palettes.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewPaletteService(dir, nil)
	if _, overridden := s.Get(dataset.HeatFlow); overridden {
		t.Error("invalid palette loaded")
	}
	if p, overridden := s.Get(dataset.Slip); !overridden || p.Colors[0] != "#010203" {
		t.Errorf("valid palette not loaded: %+v", p)
	}
}
