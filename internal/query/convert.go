package query

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-hazard/internal/store"
)

// ToFeatureCollection converts rows carrying an "id" column and a serialized
// GeoJSON "geometry" column into features. Every other column becomes a
// property. Rows without geometry cannot be placed on the map; they are
// left out and counted in skipped.
func ToFeatureCollection(res *store.Result) (fc *geojson.FeatureCollection, skipped int, err error) {
	fc = geojson.NewFeatureCollection()
	if res == nil {
		return fc, 0, nil
	}

	idIdx, geomIdx := -1, -1
	for i, c := range res.Columns {
		switch c {
		case idColumn:
			idIdx = i
		case geometryColumn:
			geomIdx = i
		}
	}
	if geomIdx < 0 {
		return nil, 0, fmt.Errorf("result has no %q column", geometryColumn)
	}

	for n, row := range res.Rows {
		raw := geometryBytes(row[geomIdx])
		if raw == nil {
			skipped++
			continue
		}
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("row %d: invalid geometry: %w", n, err)
		}

		f := geojson.NewFeature(g.Geometry())
		if idIdx >= 0 {
			f.ID = featureID(row[idIdx])
		}
		for i, c := range res.Columns {
			if i == idIdx || i == geomIdx {
				continue
			}
			f.Properties[c] = property(row[i])
		}
		fc.Append(f)
	}
	return fc, skipped, nil
}

func geometryBytes(v any) []byte {
	switch g := v.(type) {
	case string:
		if g == "" {
			return nil
		}
		return []byte(g)
	case []byte:
		if len(g) == 0 {
			return nil
		}
		return g
	}
	return nil
}

// featureID keeps ids numeric where the store returned a number.
func featureID(v any) any {
	switch id := v.(type) {
	case int32:
		return int64(id)
	case int:
		return int64(id)
	case []byte:
		return string(id)
	}
	return v
}

func property(v any) any {
	switch p := v.(type) {
	case []byte:
		return string(p)
	case time.Time:
		return p.UTC().Format(time.RFC3339)
	case float64:
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil
		}
	}
	return v
}

// Extent returns the [min, max] of a numeric property over fc, or nil when no
// feature carries a number there.
func Extent(fc *geojson.FeatureCollection, prop string) *[2]float64 {
	var out *[2]float64
	for _, f := range fc.Features {
		v, ok := number(f.Properties[prop])
		if !ok {
			continue
		}
		if out == nil {
			out = &[2]float64{v, v}
			continue
		}
		out[0] = math.Min(out[0], v)
		out[1] = math.Max(out[1], v)
	}
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
