// Package export encodes loaded datasets for download and packages the
// layered map images of the current view.
package export

import (
	"encoding/json"
	"io"
	"maps"

	"github.com/paulmach/orb/geojson"
)

// GeometryProperty is the property that carries the serialized geometry
// column when a row was converted without being split. It is dropped on
// export since the geometry is already embedded in the feature.
const GeometryProperty = "geometry"

// GeoJSON returns a copy of fc suitable for download. Geometries are shared
// with fc, properties are copied without GeometryProperty.
func GeoJSON(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	out.Features = make([]*geojson.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		c := geojson.NewFeature(f.Geometry)
		c.ID = f.ID
		c.BBox = f.BBox
		c.Properties = maps.Clone(f.Properties)
		if c.Properties == nil {
			c.Properties = geojson.Properties{}
		}
		delete(c.Properties, GeometryProperty)
		out.Features = append(out.Features, c)
	}
	return out
}

// WriteGeoJSON writes the export form of fc to w.
func WriteGeoJSON(w io.Writer, fc *geojson.FeatureCollection) error {
	return json.NewEncoder(w).Encode(GeoJSON(fc))
}
