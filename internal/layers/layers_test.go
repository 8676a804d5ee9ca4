package layers

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/joeblew999/plat-hazard/internal/dataset"
)

func TestInterpolateRangeLinear(t *testing.T) {
	got := InterpolateRange([2]float64{0, 100}, []string{"c0", "c1", "c2"}, 1)
	want := []any{0.0, "c0", 50.0, "c1", 100.0, "c2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestInterpolateRangeGeometric(t *testing.T) {
	colors := []string{"a", "b", "c", "d", "e"}
	for _, base := range []float64{0.5, 1.5, 2, 10} {
		stops := InterpolateRange([2]float64{10, 700}, colors, base)
		if stops[0] != 10.0 {
			t.Fatalf("base %g: first stop %v, want range start", base, stops[0])
		}
		if last := stops[len(stops)-2].(float64); last < 699.999 || last > 700.001 {
			t.Errorf("base %g: last stop %v, want range end", base, last)
		}

		var prevGap float64
		for i := 2; i < len(stops); i += 2 {
			gap := stops[i].(float64) - stops[i-2].(float64)
			if gap <= 0 {
				t.Fatalf("base %g: stops not increasing: %v", base, stops)
			}
			if i > 2 {
				if base > 1 && gap <= prevGap {
					t.Errorf("base %g: gaps should grow: %v", base, stops)
				}
				if base < 1 && gap >= prevGap {
					t.Errorf("base %g: gaps should shrink: %v", base, stops)
				}
			}
			prevGap = gap
		}
	}
}

func TestInterpolateRangeEdges(t *testing.T) {
	if InterpolateRange([2]float64{0, 1}, nil, 1) != nil {
		t.Error("expected nil for no colours")
	}
	got := InterpolateRange([2]float64{3, 9}, []string{"x"}, 1)
	if !reflect.DeepEqual(got, []any{3.0, "x"}) {
		t.Errorf("single colour: %v", got)
	}
	desc := InterpolateRange([2]float64{100, 0}, []string{"a", "b", "c"}, 1)
	if !reflect.DeepEqual(desc, []any{100.0, "a", 50.0, "b", 0.0, "c"}) {
		t.Errorf("descending: %v", desc)
	}
}

func TestColorAt(t *testing.T) {
	stops := InterpolateRange([2]float64{0, 100}, []string{"#000000", "#ffffff"}, 1)
	if c := ColorAt(stops, -5); c.R != 0 {
		t.Errorf("below range: %v", c)
	}
	if c := ColorAt(stops, 50); c.R != 128 || c.G != 128 || c.B != 128 {
		t.Errorf("midpoint: %v", c)
	}
	if c := ColorAt(stops, 500); c.R != 255 {
		t.Errorf("above range: %v", c)
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#f80")
	if err != nil || c.R != 0xff || c.G != 0x88 || c.B != 0 {
		t.Errorf("short form: %v %v", c, err)
	}
	if _, err := ParseHex("blue"); err == nil {
		t.Error("expected an error")
	}
}

func TestBindVisibilityAndIDs(t *testing.T) {
	b := NewBinder(nil)
	for _, k := range dataset.Keys {
		for _, visible := range []bool{true, false} {
			specs := b.Bind(k, visible, nil)
			if len(specs) == 0 {
				t.Fatalf("%s: no layers", k)
			}
			ids := map[string]bool{}
			for _, s := range specs {
				if !strings.HasPrefix(s.ID, string(k)) {
					t.Errorf("%s: layer id %q lacks dataset prefix", k, s.ID)
				}
				if ids[s.ID] {
					t.Errorf("%s: duplicate layer id %q", k, s.ID)
				}
				ids[s.ID] = true
				if s.Source != string(k) {
					t.Errorf("%s: source %q", k, s.Source)
				}
				want := "none"
				if visible {
					want = "visible"
				}
				if s.Layout["visibility"] != want {
					t.Errorf("%s/%s: visibility %v, want %s", k, s.ID, s.Layout["visibility"], want)
				}
			}
		}
	}
}

func TestBindSeismicitySubLayers(t *testing.T) {
	specs := NewBinder(nil).Bind(dataset.Seismicity, true, nil)
	var ids []string
	for _, s := range specs {
		ids = append(ids, s.ID)
	}
	want := []string{"seis-mw", "seis-mb", "seis-ml", "seis-other"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

type fixedPalette Palette

func (p fixedPalette) Palette(dataset.Key) Palette { return Palette(p) }

func TestBindRecalibratesRamp(t *testing.T) {
	b := NewBinder(fixedPalette{Colors: []string{"#000000", "#ffffff"}, Range: [2]float64{0, 50}})

	stops := func(observed *[2]float64) string {
		spec := b.Bind(dataset.Slip, true, observed)[0]
		out, _ := json.Marshal(spec.Paint["fill-color"])
		return string(out)
	}

	def := stops(nil)
	if !strings.Contains(def, `0,"#000000",50,"#ffffff"`) {
		t.Errorf("default ramp: %s", def)
	}
	loaded := stops(&[2]float64{2, 12})
	if !strings.Contains(loaded, `2,"#000000",12,"#ffffff"`) {
		t.Errorf("recalibrated ramp: %s", loaded)
	}
	if degenerate := stops(&[2]float64{5, 5}); degenerate != def {
		t.Errorf("degenerate range should fall back to the palette range: %s", degenerate)
	}
}

func TestColorProperty(t *testing.T) {
	tests := map[dataset.Key]string{
		dataset.Seismicity: "depth",
		dataset.Slip:       "slip",
		dataset.Slab2:      "depth",
		dataset.HeatFlow:   "qval",
		dataset.Volcanoes:  "",
	}
	for k, want := range tests {
		if got := ColorProperty(k); got != want {
			t.Errorf("%s: %q, want %q", k, got, want)
		}
	}
}

func TestPaletteValidate(t *testing.T) {
	if err := (Palette{Colors: []string{"#fff", "#000000"}}).Validate(); err != nil {
		t.Error(err)
	}
	for _, p := range []Palette{{}, {Colors: []string{"red"}}, {Colors: []string{"#fff"}, Base: -1}} {
		if err := p.Validate(); err == nil {
			t.Errorf("expected %+v to be invalid", p)
		}
	}
	for _, k := range dataset.Keys {
		if err := DefaultPalette(k).Validate(); err != nil {
			t.Errorf("%s: %v", k, err)
		}
	}
}

func TestFeatureStates(t *testing.T) {
	a := FeatureRef{Source: "vlc", ID: "1"}
	b := FeatureRef{Source: "vlc", ID: "2"}
	var s FeatureStates

	if got := s.Hover(a); !reflect.DeepEqual(got, []StateOp{{a, StateHover, true}}) {
		t.Fatalf("hover a: %v", got)
	}
	if got := s.Hover(a); got != nil {
		t.Errorf("hover a again: %v", got)
	}
	if got := s.Hover(b); !reflect.DeepEqual(got, []StateOp{{a, StateHover, false}, {b, StateHover, true}}) {
		t.Errorf("hover b must clear a before setting b: %v", got)
	}
	if got := s.Select(b); !reflect.DeepEqual(got, []StateOp{{b, StateHover, false}, {b, StateSelected, true}}) {
		t.Errorf("select b must drop its hover flag: %v", got)
	}
	if got := s.Hover(b); got != nil {
		t.Errorf("hovering the selected feature must not set hover: %v", got)
	}
	if _, ok := s.Hovered(); ok {
		t.Error("selected feature must not be tracked as hovered")
	}
	if got := s.Hover(a); !reflect.DeepEqual(got, []StateOp{{a, StateHover, true}}) {
		t.Errorf("hover a while b selected: %v", got)
	}
	if got := s.Select(a); !reflect.DeepEqual(got, []StateOp{
		{b, StateSelected, false}, {a, StateHover, false}, {a, StateSelected, true},
	}) {
		t.Errorf("select a: %v", got)
	}
	if got := s.Leave(); got != nil {
		t.Errorf("leave with nothing hovered: %v", got)
	}
	if got := s.Deselect(); !reflect.DeepEqual(got, []StateOp{{a, StateSelected, false}}) {
		t.Errorf("deselect: %v", got)
	}
	if _, ok := s.Selected(); ok {
		t.Error("expected no selection")
	}
}

func TestFeatureStatesForget(t *testing.T) {
	var s FeatureStates
	s.Hover(FeatureRef{"seis", "1"})
	s.Select(FeatureRef{"vlc", "9"})
	s.Forget("seis")
	if _, ok := s.Hovered(); ok {
		t.Error("hover on a forgotten source should be dropped")
	}
	if _, ok := s.Selected(); !ok {
		t.Error("selection on another source should survive")
	}
}

func TestFeatureID(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want string
	}{
		{float64(1234567), "1234567"},
		{int64(1234567), "1234567"},
		{int32(42), "42"},
		{json.Number("1234567"), "1234567"},
		{"us7000abcd", "us7000abcd"},
		{2.5, "2.5"},
		{nil, ""},
	} {
		if got := FeatureID(tc.in); got != tc.want {
			t.Errorf("FeatureID(%#v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
