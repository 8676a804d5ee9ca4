// Package layers binds loaded datasets to MapLibre style layers and tracks
// per-feature hover and selection state.
package layers

import (
	"github.com/joeblew999/plat-hazard/internal/dataset"
)

// Spec is one MapLibre style layer.
type Spec struct {
	ID     string         `json:"id"`
	Type   string         `json:"type" enum:"circle,line,fill,symbol"`
	Source string         `json:"source"`
	Filter any            `json:"filter,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
	Layout map[string]any `json:"layout"`
}

// Sub-layer id suffixes.
const (
	SubIcon  = "-icon"
	SubLabel = "-label"
)

// SeismicityMagTypes are the magnitude types with their own sub-layer; every
// other type falls into the "-other" sub-layer.
var SeismicityMagTypes = []string{"mw", "mb", "ml"}

// Binder produces the style layers of a dataset.
type Binder struct {
	palettes Palettes
}

// NewBinder creates a Binder. A nil Palettes uses the built-in palettes.
func NewBinder(p Palettes) *Binder {
	if p == nil {
		p = Defaults{}
	}
	return &Binder{palettes: p}
}

// ColorProperty returns the property a dataset is coloured by, or "" when it
// has a flat colour.
func ColorProperty(key dataset.Key) string {
	if key == dataset.Seismicity {
		return "depth"
	}
	spec, err := dataset.Lookup(key)
	if err != nil {
		return ""
	}
	return spec.RangeProperty
}

// Ramp returns the stops used to colour key given the observed range of its
// colour property. observed may be nil before data is loaded.
func (b *Binder) Ramp(key dataset.Key, observed *[2]float64) []any {
	p := b.palettes.Palette(key)
	return InterpolateRange(effectiveRange(p, observed), p.Colors, p.base())
}

func effectiveRange(p Palette, observed *[2]float64) [2]float64 {
	if observed != nil && observed[1] > observed[0] {
		return *observed
	}
	return p.Range
}

// Bind returns the ordered layers of key. Every layer's visibility follows
// visible. observed is the loaded [min, max] of the dataset's colour
// property; it recalibrates the ramp of range coloured datasets.
func (b *Binder) Bind(key dataset.Key, visible bool, observed *[2]float64) []Spec {
	p := b.palettes.Palette(key)
	src := string(key)
	layout := func(extra map[string]any) map[string]any {
		m := map[string]any{"visibility": visibility(visible)}
		for k, v := range extra {
			m[k] = v
		}
		return m
	}

	flat := p.Colors[0]
	ramp := func(prop string, rng [2]float64) any {
		return ColorExpr(prop, rng, p.Colors, p.base())
	}

	switch key {
	case dataset.Volcanoes, dataset.GNSS:
		icon := "volcano"
		if key == dataset.GNSS {
			icon = "gnss"
		}
		return []Spec{
			{
				ID: src + SubIcon, Type: "symbol", Source: src,
				Layout: layout(map[string]any{"icon-image": icon, "icon-size": 0.8, "icon-allow-overlap": true}),
				Paint:  map[string]any{"icon-color": interactive(flat), "icon-opacity": 0.95},
			},
			{
				ID: src + SubLabel, Type: "symbol", Source: src,
				Layout: layout(map[string]any{
					"text-field": []any{"get", "name"}, "text-size": 11,
					"text-offset": []any{0, 1.2}, "text-anchor": "top", "text-optional": true,
				}),
				Paint: map[string]any{"text-color": "#222222", "text-halo-color": "#ffffff", "text-halo-width": 1},
			},
		}

	case dataset.Seismicity:
		color := ramp("depth", effectiveRange(p, observed))
		radius := []any{"interpolate", []any{"linear"}, []any{"to-number", []any{"get", "mw"}, 0}, 0, 2, 9, 14}
		specs := make([]Spec, 0, len(SeismicityMagTypes)+1)
		magType := []any{"downcase", []any{"to-string", []any{"get", "magType"}}}
		for _, mt := range SeismicityMagTypes {
			specs = append(specs, circle(src+"-"+mt, src, []any{"==", magType, mt}, color, radius, layout(nil)))
		}
		known := make([]any, len(SeismicityMagTypes))
		for i, mt := range SeismicityMagTypes {
			known[i] = mt
		}
		other := []any{"!", []any{"in", magType, []any{"literal", known}}}
		return append(specs, circle(src+"-other", src, other, color, radius, layout(nil)))

	case dataset.Faults:
		return []Spec{{
			ID: src, Type: "line", Source: src,
			Layout: layout(map[string]any{"line-cap": "round", "line-join": "round"}),
			Paint: map[string]any{
				"line-color": interactive(flat),
				"line-width": []any{"case", []any{"boolean", []any{"feature-state", "selected"}, false}, 4, 1.5},
			},
		}}

	case dataset.Slab2:
		return []Spec{{
			ID: src, Type: "line", Source: src,
			Layout: layout(nil),
			Paint: map[string]any{
				"line-color": ramp("depth", effectiveRange(p, observed)),
				"line-width": 1.2,
			},
		}}

	case dataset.Slip:
		return []Spec{{
			ID: src, Type: "fill", Source: src,
			Layout: layout(nil),
			Paint: map[string]any{
				"fill-color":         interactive(ramp("slip", effectiveRange(p, observed))),
				"fill-opacity":       0.8,
				"fill-outline-color": "#333333",
			},
		}}

	case dataset.HeatFlow:
		return []Spec{circle(src, src, nil, ramp("qval", effectiveRange(p, observed)), 4.0, layout(nil))}

	default:
		return []Spec{circle(src, src, nil, flat, 4.5, layout(nil))}
	}
}

func circle(id, src string, filter, color, radius any, layout map[string]any) Spec {
	return Spec{
		ID: id, Type: "circle", Source: src, Filter: filter,
		Layout: layout,
		Paint: map[string]any{
			"circle-color":        interactive(color),
			"circle-radius":       radius,
			"circle-opacity":      0.85,
			"circle-stroke-color": "#ffffff",
			"circle-stroke-width": []any{"case", []any{"boolean", []any{"feature-state", "hover"}, false}, 2, 0.5},
		},
	}
}

// Highlight colours for selected and hovered features.
const (
	SelectedColor = "#00e5ff"
	HoverColor    = "#ffd600"
)

// interactive wraps a colour so feature-state flags override it. Selection
// is tested first so it wins over hover on the same feature.
func interactive(base any) any {
	return []any{
		"case",
		[]any{"boolean", []any{"feature-state", "selected"}, false}, SelectedColor,
		[]any{"boolean", []any{"feature-state", "hover"}, false}, HoverColor,
		base,
	}
}

func visibility(visible bool) string {
	if visible {
		return "visible"
	}
	return "none"
}
