package layers

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// InterpolateRange spreads colors over rng and returns alternating
// value/color stops: [v0, c0, v1, c1, ...]. With base 1 the values are evenly
// spaced; any other positive base spaces them along a geometric series so
// that gaps grow (base > 1) or shrink (base < 1) towards rng[1]. The first
// stop is always rng[0] and the last rng[1].
func InterpolateRange(rng [2]float64, colors []string, base float64) []any {
	n := len(colors)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []any{rng[0], colors[0]}
	}

	lo, span := rng[0], rng[1]-rng[0]
	stops := make([]any, 0, 2*n)
	for i, c := range colors {
		stops = append(stops, lo+span*position(i, n, base), c)
	}
	return stops
}

// position is the fraction of the range at which stop i of n sits.
func position(i, n int, base float64) float64 {
	last := float64(n - 1)
	if base <= 0 || base == 1 {
		return float64(i) / last
	}
	return (math.Pow(base, float64(i)) - 1) / (math.Pow(base, last) - 1)
}

// ColorExpr returns a MapLibre interpolate expression colouring by prop.
// A degenerate range collapses to the first colour.
func ColorExpr(prop string, rng [2]float64, colors []string, base float64) any {
	if len(colors) == 0 {
		return "#888888"
	}
	if rng[1] <= rng[0] {
		return colors[0]
	}
	expr := []any{"interpolate", []any{"linear"}, []any{"to-number", []any{"get", prop}, rng[0]}}
	return append(expr, InterpolateRange(rng, colors, base)...)
}

// ColorAt evaluates stops produced by InterpolateRange at v, blending
// linearly between neighbouring colours. Values outside the stops clamp to
// the end colours. Stops may be ascending or descending.
func ColorAt(stops []any, v float64) color.RGBA {
	if len(stops) < 2 {
		return color.RGBA{0x88, 0x88, 0x88, 0xff}
	}
	type stop struct {
		at float64
		c  color.RGBA
	}
	pts := make([]stop, 0, len(stops)/2)
	for i := 0; i+1 < len(stops); i += 2 {
		at, _ := stops[i].(float64)
		s, _ := stops[i+1].(string)
		c, err := ParseHex(s)
		if err != nil {
			c = color.RGBA{0x88, 0x88, 0x88, 0xff}
		}
		pts = append(pts, stop{at, c})
	}
	if pts[0].at > pts[len(pts)-1].at {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}

	if v <= pts[0].at {
		return pts[0].c
	}
	for i := 1; i < len(pts); i++ {
		if v <= pts[i].at {
			a, b := pts[i-1], pts[i]
			t := (v - a.at) / (b.at - a.at)
			return blend(a.c, b.c, t)
		}
	}
	return pts[len(pts)-1].c
}

func blend(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), mix(a.A, b.A)}
}

// ParseHex parses "#rgb" or "#rrggbb".
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	return color.RGBA{uint8(n >> 16), uint8(n >> 8), uint8(n), 0xff}, nil
}
