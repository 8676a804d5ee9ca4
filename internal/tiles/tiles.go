// Package tiles cuts loaded datasets into Mapbox vector tiles, one tile at a
// time for the map or as a whole PMTiles pyramid for download.
package tiles

import (
	"errors"
	"fmt"
	"io"
	"maps"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/plat-hazard/internal/pmtiles"
)

// MaxZoom is the deepest zoom served.
const MaxZoom = 14

// ErrZoom is returned for tiles outside the served zoom range or grid.
var ErrZoom = errors.New("tile out of range")

// Validate checks that z/x/y addresses a tile of the served pyramid.
func Validate(z, x, y uint32) error {
	if z > MaxZoom {
		return fmt.Errorf("%w: zoom %d > %d", ErrZoom, z, MaxZoom)
	}
	if n := uint32(1) << z; x >= n || y >= n {
		return fmt.Errorf("%w: %d/%d/%d", ErrZoom, z, x, y)
	}
	return nil
}

// Tile encodes the features of fc that touch t as one gzipped MVT layer
// named layer. It returns nil when the tile would be empty.
func Tile(fc *geojson.FeatureCollection, layer string, t maptile.Tile) ([]byte, error) {
	if fc == nil {
		return nil, nil
	}
	bound := t.Bound()
	var hits []*geojson.Feature
	for _, f := range fc.Features {
		if f.Geometry != nil && geometryIntersectsTile(f.Geometry, bound) {
			hits = append(hits, f)
		}
	}
	return encode(t, hits, layer)
}

// Pyramid encodes every non-empty tile of fc from minZoom to maxZoom.
func Pyramid(fc *geojson.FeatureCollection, layer string, minZoom, maxZoom int) ([]pmtiles.Tile, error) {
	minZoom = max(minZoom, 0)
	maxZoom = min(maxZoom, MaxZoom)
	var out []pmtiles.Tile
	if fc == nil {
		return out, nil
	}
	for z := minZoom; z <= maxZoom; z++ {
		byTile := make(map[maptile.Tile][]*geojson.Feature)
		for _, f := range fc.Features {
			if f.Geometry == nil {
				continue
			}
			for _, t := range tilesInBounds(f.Geometry.Bound(), maptile.Zoom(z)) {
				byTile[t] = append(byTile[t], f)
			}
		}
		for t, features := range byTile {
			var hits []*geojson.Feature
			for _, f := range features {
				if geometryIntersectsTile(f.Geometry, t.Bound()) {
					hits = append(hits, f)
				}
			}
			data, err := encode(t, hits, layer)
			if err != nil {
				return nil, fmt.Errorf("tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
			}
			if data != nil {
				out = append(out, pmtiles.Tile{Z: uint32(t.Z), X: t.X, Y: t.Y, Data: data})
			}
		}
	}
	return out, nil
}

// Archive writes the pyramid of fc as a PMTiles archive.
func Archive(w io.Writer, fc *geojson.FeatureCollection, layer string, minZoom, maxZoom int) error {
	if fc == nil {
		return pmtiles.ErrNoTiles
	}
	pyramid, err := Pyramid(fc, layer, minZoom, maxZoom)
	if err != nil {
		return err
	}
	meta := pmtiles.Metadata{
		Name:        layer,
		Format:      "pbf",
		Compression: "gzip",
		MinZoom:     max(minZoom, 0),
		MaxZoom:     min(maxZoom, MaxZoom),
		VectorLayers: []map[string]any{{
			"id":     layer,
			"fields": fieldTypes(fc),
		}},
	}
	return pmtiles.Write(w, pyramid, meta, collectionBound(fc))
}

func collectionBound(fc *geojson.FeatureCollection) orb.Bound {
	var b orb.Bound
	first := true
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if first {
			b, first = f.Geometry.Bound(), false
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

func fieldTypes(fc *geojson.FeatureCollection) map[string]string {
	fields := map[string]string{}
	for _, f := range fc.Features {
		for k, v := range f.Properties {
			if _, ok := fields[k]; ok {
				continue
			}
			switch v.(type) {
			case float64, float32, int, int64, int32:
				fields[k] = "Number"
			case bool:
				fields[k] = "Boolean"
			case nil:
			default:
				fields[k] = "String"
			}
		}
	}
	return fields
}

func encode(t maptile.Tile, features []*geojson.Feature, layer string) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		g := cloneGeometry(f.Geometry)
		if g == nil {
			continue
		}
		clone := geojson.NewFeature(g)
		clone.ID = f.ID
		clone.Properties = maps.Clone(f.Properties)
		if clone.Properties == nil {
			clone.Properties = geojson.Properties{}
		}
		fc.Append(clone)
	}
	if len(fc.Features) == 0 {
		return nil, nil
	}

	l := mvt.NewLayer(layer, fc)
	if eps := simplifyEpsilon(t.Z); eps > 0 {
		l.Simplify(simplify.DouglasPeucker(eps))
	}
	l.Clip(t.Bound())
	l.ProjectToTile(t)
	l.RemoveEmpty(0.5, 0.5)
	if len(l.Features) == 0 {
		return nil, nil
	}
	return mvt.MarshalGzipped(mvt.Layers{l})
}

// geometryIntersectsTile refines a bound check with vertex and containment
// tests. Lines whose bound overlaps the tile are accepted.
func geometryIntersectsTile(geom orb.Geometry, tile orb.Bound) bool {
	if !geom.Bound().Intersects(tile) {
		return false
	}

	switch g := geom.(type) {
	case orb.Point:
		return tile.Contains(g)
	case orb.MultiPoint:
		for _, p := range g {
			if tile.Contains(p) {
				return true
			}
		}
		return false
	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if tile.Contains(p) {
					return true
				}
			}
		}
		corners := []orb.Point{
			tile.Min, {tile.Max[0], tile.Min[1]}, tile.Max, {tile.Min[0], tile.Max[1]}, tile.Center(),
		}
		for _, p := range corners {
			if planar.PolygonContains(g, p) {
				return true
			}
		}
		return false
	case orb.MultiPolygon:
		for _, p := range g {
			if geometryIntersectsTile(p, tile) {
				return true
			}
		}
		return false
	case orb.MultiLineString:
		for _, ls := range g {
			if geometryIntersectsTile(ls, tile) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func tilesInBounds(b orb.Bound, z maptile.Zoom) []maptile.Tile {
	lo := maptile.At(b.Min, z)
	hi := maptile.At(b.Max, z)
	minX, maxX := min(lo.X, hi.X), max(lo.X, hi.X)
	minY, maxY := min(lo.Y, hi.Y), max(lo.Y, hi.Y)

	tiles := make([]maptile.Tile, 0, (maxX-minX+1)*(maxY-minY+1))
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, maptile.New(x, y, z))
		}
	}
	return tiles
}

// simplifyEpsilon is the Douglas-Peucker tolerance in degrees at zoom z.
// Fault traces and slab contours are drawn at full detail from z12.
func simplifyEpsilon(z maptile.Zoom) float64 {
	switch {
	case z >= 12:
		return 0
	case z >= 8:
		return 0.0005
	case z >= 5:
		return 0.005
	default:
		return 0.02
	}
}

// cloneGeometry deep-copies g, since clipping and projection rewrite
// coordinates in place.
func cloneGeometry(g orb.Geometry) orb.Geometry {
	switch g := g.(type) {
	case orb.Point:
		return g
	case orb.MultiPoint:
		return g.Clone()
	case orb.LineString:
		return g.Clone()
	case orb.MultiLineString:
		return g.Clone()
	case orb.Ring:
		return g.Clone()
	case orb.Polygon:
		return g.Clone()
	case orb.MultiPolygon:
		return g.Clone()
	default:
		return nil
	}
}
