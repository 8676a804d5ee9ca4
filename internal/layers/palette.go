package layers

import (
	"errors"
	"fmt"

	"github.com/joeblew999/plat-hazard/internal/dataset"
)

// ErrPalette is wrapped by palette validation failures.
var ErrPalette = errors.New("invalid palette")

// Palette is the colour ramp of a dataset.
type Palette struct {
	Colors []string `json:"colors" minItems:"1" maxItems:"12" doc:"Ramp colours, low to high (#rrggbb)" example:"[\"#ffffcc\",\"#fd8d3c\",\"#800026\"]"`
	// Base spaces the stops geometrically when not 1.
	Base float64 `json:"base,omitempty" minimum:"0" doc:"Stop spacing base; 1 is linear" example:"1"`
	// Range is used until data is loaded, and for datasets whose colour
	// property is not range recalibrated.
	Range [2]float64 `json:"range" doc:"Default [min, max] of the coloured property"`
}

// Validate checks colours and base.
func (p Palette) Validate() error {
	if len(p.Colors) == 0 {
		return fmt.Errorf("%w: no colours", ErrPalette)
	}
	for _, c := range p.Colors {
		if _, err := ParseHex(c); err != nil {
			return fmt.Errorf("%w: %v", ErrPalette, err)
		}
	}
	if p.Base < 0 {
		return fmt.Errorf("%w: negative base", ErrPalette)
	}
	return nil
}

func (p Palette) base() float64 {
	if p.Base == 0 {
		return 1
	}
	return p.Base
}

// Palettes resolves the palette of a dataset.
type Palettes interface {
	Palette(key dataset.Key) Palette
}

var (
	magma   = []string{"#fcfdbf", "#fc8961", "#b73779", "#51127c", "#000004"}
	viridis = []string{"#fde725", "#5ec962", "#21918c", "#3b528b", "#440154"}
	heat    = []string{"#313695", "#74add1", "#fee090", "#f46d43", "#a50026"}
)

var defaultPalettes = map[dataset.Key]Palette{
	dataset.Volcanoes:  {Colors: []string{"#d7301f"}, Range: [2]float64{0, 1}},
	dataset.Seamounts:  {Colors: []string{"#2c7fb8"}, Range: [2]float64{0, 1}},
	dataset.GNSS:       {Colors: []string{"#238b45"}, Range: [2]float64{0, 1}},
	dataset.Faults:     {Colors: []string{"#e31a1c"}, Range: [2]float64{0, 1}},
	dataset.Seismicity: {Colors: magma, Base: 1.5, Range: [2]float64{0, 700}},
	dataset.HeatFlow:   {Colors: heat, Range: [2]float64{0, 250}},
	dataset.Slab2:      {Colors: viridis, Range: [2]float64{0, 700}},
	dataset.Slip:       {Colors: magma, Range: [2]float64{0, 50}},
	dataset.Rocks:      {Colors: []string{"#8c510a"}, Range: [2]float64{0, 1}},
}

// DefaultPalette returns the built-in palette of key.
func DefaultPalette(key dataset.Key) Palette {
	p, ok := defaultPalettes[key]
	if !ok {
		return Palette{Colors: []string{"#888888"}, Range: [2]float64{0, 1}}
	}
	p.Colors = append([]string(nil), p.Colors...)
	return p
}

// Defaults is the Palettes of built-in palettes.
type Defaults struct{}

func (Defaults) Palette(key dataset.Key) Palette { return DefaultPalette(key) }
