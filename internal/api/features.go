package api

import (
	"maps"
	"slices"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/layers"
	"github.com/joeblew999/plat-hazard/internal/state"
)

// findFeature looks a feature up by its id as the map reports it.
func findFeature(fc *geojson.FeatureCollection, id string) *geojson.Feature {
	for _, f := range fc.Features {
		if f.ID != nil && layers.FeatureID(f.ID) == id {
			return f
		}
	}
	return nil
}

// FeatureDetail lists the properties of a loaded feature in attribute
// order, each with its display unit.
func FeatureDetail(sess *state.Session, key dataset.Key, id string) (FeatureBody, bool) {
	l, ok := sess.Loaded(key)
	if !ok {
		return FeatureBody{}, false
	}
	f := findFeature(l.Collection, id)
	if f == nil {
		return FeatureBody{}, false
	}

	spec, _ := dataset.Lookup(key)
	seen := make(map[string]bool, len(f.Properties))
	rows := make([]PropertyRow, 0, len(f.Properties))
	add := func(name string) {
		v, ok := f.Properties[name]
		if !ok || seen[name] {
			return
		}
		seen[name] = true
		rows = append(rows, PropertyRow{Name: name, Value: v, Unit: l.Units[name]})
	}
	for _, a := range spec.Attributes {
		add(a.Name)
	}
	for _, name := range slices.Sorted(maps.Keys(f.Properties)) {
		add(name)
	}
	return FeatureBody{Dataset: key, ID: id, Properties: rows}, true
}
