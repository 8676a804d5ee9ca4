package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-hazard/internal/dataset"
)

// ErrRegion is returned for a drawn region that is not a polygon or
// multi-polygon.
var ErrRegion = errors.New("region must be a Polygon or MultiPolygon")

// Where accumulates AND-ed predicates and their positional arguments.
// Placeholders are "$n", numbered from 1 in the order arguments are added.
type Where struct {
	clauses []string
	args    []any
}

// Arg registers v and returns its placeholder.
func (w *Where) Arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

// And adds a predicate.
func (w *Where) And(clause string) {
	w.clauses = append(w.clauses, clause)
}

// Clauses returns the predicates added so far.
func (w *Where) Clauses() []string { return w.clauses }

// Args returns the positional arguments.
func (w *Where) Args() []any { return w.args }

// SQL returns "WHERE (a) AND (b) ...", or "" when there are no predicates.
func (w *Where) SQL() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return "WHERE (" + strings.Join(w.clauses, ") AND (") + ")"
}

// Predicates adds one predicate per active filter in values. Keys absent from
// values, select filters set to All and empty searches add nothing.
func Predicates(w *Where, defs []dataset.Definition, values Values) {
	for _, d := range defs {
		v, ok := values[d.FilterKey()]
		if !ok {
			continue
		}
		if clause := dataset.Visit[string](d, predicate{w: w, value: v}); clause != "" {
			w.And(clause)
		}
	}
}

// Intersects adds a spatial intersection of geomCol with region.
func Intersects(w *Where, geomCol string, region orb.Geometry) error {
	switch region.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return ErrRegion
	}
	b, err := json.Marshal(geojson.NewGeometry(region))
	if err != nil {
		return fmt.Errorf("failed to encode region: %w", err)
	}
	w.And(fmt.Sprintf("ST_Intersects(%s, ST_GeomFromGeoJSON(%s))", geomCol, w.Arg(string(b))))
	return nil
}

// ParseRegion decodes a GeoJSON geometry, Feature or single-feature
// FeatureCollection into a polygon or multi-polygon.
func ParseRegion(raw json.RawMessage) (orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("failed to parse region: %w", err)
	}

	var g orb.Geometry
	switch head.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse region: %w", err)
		}
		g = f.Geometry
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse region: %w", err)
		}
		if len(fc.Features) != 1 {
			return nil, fmt.Errorf("%w: expected one feature, got %d", ErrRegion, len(fc.Features))
		}
		g = fc.Features[0].Geometry
	default:
		geom, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse region: %w", err)
		}
		g = geom.Geometry()
	}

	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return g, nil
	default:
		return nil, ErrRegion
	}
}

// likePattern escapes LIKE metacharacters and wraps s for a substring match.
// The result is used with ESCAPE '\'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

type predicate struct {
	w     *Where
	value Value
}

func (p predicate) ilike(col, s string) string {
	return fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, col, p.w.Arg(likePattern(s)))
}

func (p predicate) Select(d dataset.Select) string {
	s, ok := p.value.(Text)
	if !ok || strings.EqualFold(string(s), dataset.All) {
		return ""
	}
	if string(s) == dataset.Unset && d.NullColumn != "" {
		return d.NullColumn + " IS NULL"
	}
	if d.Match == dataset.MatchPartial {
		return p.ilike(d.Column, string(s))
	}
	return fmt.Sprintf("%s = %s", d.Column, p.w.Arg(string(s)))
}

func (p predicate) Search(d dataset.Search) string {
	s, ok := p.value.(Text)
	if !ok || strings.TrimSpace(string(s)) == "" {
		return ""
	}
	return p.ilike(d.Column, strings.TrimSpace(string(s)))
}

func (p predicate) between(col string, lo, hi any, allowNull bool) string {
	clause := fmt.Sprintf("%s BETWEEN %s AND %s", col, p.w.Arg(lo), p.w.Arg(hi))
	return orNull(clause, col, allowNull)
}

func orNull(clause, col string, allowNull bool) string {
	if !allowNull {
		return clause
	}
	return fmt.Sprintf("%s OR %s IS NULL", clause, col)
}

func (p predicate) Range(d dataset.Range) string {
	iv, ok := p.value.(Interval)
	if !ok {
		return ""
	}
	return p.between(d.Column, iv.Lo, iv.Hi, iv.AllowNull)
}

func (p predicate) GreaterThan(d dataset.GreaterThan) string {
	iv, ok := p.value.(Interval)
	if !ok {
		return ""
	}
	return orNull(fmt.Sprintf("%s > %s", d.Column, p.w.Arg(iv.Lo)), d.Column, iv.AllowNull)
}

func (p predicate) Date(d dataset.Date) string {
	dv, ok := p.value.(DateInterval)
	if !ok {
		return ""
	}
	return p.between(d.Column, dv.From, dv.To, dv.AllowNull)
}
