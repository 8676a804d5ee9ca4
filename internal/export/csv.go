package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/paulmach/orb/geojson"
)

// Header returns the property keys of fc, without GeometryProperty. Keys
// listed in preferred come first and in that order; the remaining keys
// follow in first-seen order, sorted within each feature.
func Header(fc *geojson.FeatureCollection, preferred ...string) []string {
	seen := map[string]bool{GeometryProperty: true}
	var header []string
	if fc == nil {
		return header
	}
	present := map[string]bool{}
	for _, f := range fc.Features {
		for k := range f.Properties {
			present[k] = true
		}
	}
	for _, k := range preferred {
		if present[k] && !seen[k] {
			seen[k] = true
			header = append(header, k)
		}
	}
	for _, f := range fc.Features {
		for _, k := range sortedKeys(f.Properties) {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	return header
}

// CSV writes one row per feature with the properties of fc as columns,
// ordered as by Header. Geometry is not written. Nested values are JSON
// encoded in their cell.
func CSV(w io.Writer, fc *geojson.FeatureCollection, preferred ...string) error {
	header := Header(fc, preferred...)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if fc != nil {
		row := make([]string, len(header))
		for _, f := range fc.Features {
			for i, k := range header {
				cell, err := formatCell(f.Properties[k])
				if err != nil {
					return fmt.Errorf("column %s: %w", k, err)
				}
				row[i] = cell
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case fmt.Stringer:
		return t.String(), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func sortedKeys(p geojson.Properties) []string {
	return slices.Sorted(maps.Keys(p))
}
