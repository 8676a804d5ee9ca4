// Package raster draws loaded datasets onto a static Web Mercator map. Its
// View renders in the background and is what map image exports capture.
package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/layers"
	"github.com/joeblew999/plat-hazard/internal/query"
)

var (
	oceanColor     = color.RGBA{0xd6, 0xe6, 0xf2, 0xff}
	graticuleColor = color.RGBA{0xb4, 0xc8, 0xd8, 0xff}
	outlineColor   = color.RGBA{0x33, 0x33, 0x33, 0xb0}
)

// ErrEmptyView is returned by NewView when the size or bounds are unusable.
var ErrEmptyView = errors.New("empty map view")

// Layer is one dataset drawn on the map. Group is the layer group name that
// exports toggle.
type Layer struct {
	Group      string
	Key        dataset.Key
	Collection *geojson.FeatureCollection
}

// Options configure a View.
type Options struct {
	Width, Height int
	// Bound is in lon/lat. A zero bound shows the whole world.
	Bound orb.Bound
	// Graticule is the spacing of grid lines in degrees; 0 uses 30.
	Graticule float64
}

// View is an asynchronously rendered map of some layers.
type View struct {
	opts   Options
	binder *layers.Binder
	layers []Layer

	mu      sync.Mutex
	visible map[string]bool
	frame   *image.RGBA
	idle    chan struct{}
	busy    bool
	gen     uint64
}

var closed = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// NewView starts rendering lays with every group visible. binder supplies
// colours; nil uses the built-in palettes.
func NewView(opts Options, binder *layers.Binder, lays []Layer) (*View, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, ErrEmptyView
	}
	if opts.Bound.IsZero() {
		opts.Bound = orb.Bound{Min: orb.Point{-180, -maxLat}, Max: orb.Point{180, maxLat}}
	}
	if opts.Bound.Max[0] <= opts.Bound.Min[0] || opts.Bound.Max[1] <= opts.Bound.Min[1] {
		return nil, ErrEmptyView
	}
	if opts.Graticule <= 0 {
		opts.Graticule = 30
	}
	if binder == nil {
		binder = layers.NewBinder(nil)
	}

	v := &View{
		opts:    opts,
		binder:  binder,
		layers:  lays,
		visible: make(map[string]bool, len(lays)),
	}
	for _, l := range lays {
		v.visible[l.Group] = true
	}
	v.redraw()
	return v, nil
}

// Groups returns the visible layer groups in draw order.
func (v *View) Groups() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	seen := map[string]bool{}
	for _, l := range v.layers {
		if v.visible[l.Group] && !seen[l.Group] {
			seen[l.Group] = true
			out = append(out, l.Group)
		}
	}
	return out
}

// SetVisible shows or hides a group and starts a redraw.
func (v *View) SetVisible(group string, visible bool) {
	v.mu.Lock()
	v.visible[group] = visible
	v.mu.Unlock()
	v.redraw()
}

// Idle returns a channel that is closed once no redraw is in progress.
func (v *View) Idle() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.busy {
		return closed
	}
	return v.idle
}

// Capture encodes the last completed frame as PNG.
func (v *View) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	frame := v.frame
	v.mu.Unlock()
	if frame == nil {
		return nil, ErrEmptyView
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// redraw bumps the generation and makes sure a render loop is running. A
// loop keeps rendering until the frame it finishes is the latest one.
func (v *View) redraw() {
	v.mu.Lock()
	v.gen++
	if v.busy {
		v.mu.Unlock()
		return
	}
	v.busy = true
	v.idle = make(chan struct{})
	v.mu.Unlock()
	go v.loop()
}

func (v *View) loop() {
	for {
		v.mu.Lock()
		gen := v.gen
		var shown []Layer
		for _, l := range v.layers {
			if v.visible[l.Group] {
				shown = append(shown, l)
			}
		}
		v.mu.Unlock()

		frame := v.render(shown)

		v.mu.Lock()
		if gen == v.gen {
			v.frame = frame
			v.busy = false
			close(v.idle)
			v.mu.Unlock()
			return
		}
		v.mu.Unlock()
	}
}

func (v *View) render(shown []Layer) *image.RGBA {
	c := newCanvas(v.opts.Width, v.opts.Height, v.opts.Bound)
	c.fill(oceanColor)
	v.graticule(c)
	for _, l := range shown {
		v.drawLayer(c, l)
	}
	return c.img
}

func (v *View) graticule(c *canvas) {
	step := v.opts.Graticule
	for lon := -180.0; lon <= 180; lon += step {
		c.path([]orb.Point{{lon, -maxLat}, {lon, maxLat}}, graticuleColor)
	}
	for lat := -90.0 + step; lat < 90; lat += step {
		c.path([]orb.Point{{-180, lat}, {180, lat}}, graticuleColor)
	}
}

func (v *View) drawLayer(c *canvas, l Layer) {
	if l.Collection == nil {
		return
	}
	prop := layers.ColorProperty(l.Key)
	var observed *[2]float64
	if prop != "" {
		observed = query.Extent(l.Collection, prop)
	}
	stops := v.binder.Ramp(l.Key, observed)
	flat := layers.ColorAt(stops, 0)

	for _, f := range l.Collection.Features {
		col := flat
		if prop != "" {
			if n, ok := number(f.Properties[prop]); ok {
				col = layers.ColorAt(stops, n)
			}
		}
		col.A = 0xd9
		c.geometry(f.Geometry, col, radius(l.Key, f))
	}
}

// radius sizes seismicity points by moment magnitude, matching the map style.
func radius(key dataset.Key, f *geojson.Feature) float64 {
	if key != dataset.Seismicity {
		return 3.5
	}
	mw, ok := number(f.Properties["mw"])
	if !ok {
		return 2
	}
	return 2 + max(0, min(mw, 9))*2/3
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
