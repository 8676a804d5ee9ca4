package dataset

import (
	"fmt"
	"strings"
)

// Attribute is one selected column; Name becomes the feature property.
type Attribute struct {
	Expr string
	Name string
}

// Spec describes how a dataset is laid out in the relational store.
type Spec struct {
	Key   Key
	Title string
	// Table is the base relation with its alias, e.g. "volcanoes v".
	Table string
	Joins []string
	// ID is the stable per-row identifier that becomes the feature id.
	ID       string
	Geometry string
	// Attributes become feature properties, in this order.
	Attributes []Attribute
	// Restricted is a boolean expression marking rows from restricted
	// sources. Empty when the dataset has no restricted sources.
	Restricted string
	// Units maps property names to display units.
	Units map[string]string
	// RangeProperty names the numeric property whose loaded extent drives
	// colour ramps. Empty when the dataset is not range coloured.
	RangeProperty string
	// Filters is nil for datasets that always load everything.
	Filters []Definition
}

// From returns the FROM clause body: base table plus joins.
func (s *Spec) From() string {
	if len(s.Joins) == 0 {
		return s.Table
	}
	return s.Table + " " + strings.Join(s.Joins, " ")
}

// Lookup returns the spec registered for k.
func Lookup(k Key) (*Spec, error) {
	s, ok := specs[k]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, string(k))
	}
	return s, nil
}

// Filters returns the filter definitions of k, or nil when k has none.
func Filters(k Key) []Definition {
	if s, ok := specs[k]; ok {
		return s.Filters
	}
	return nil
}

const (
	joinBibliography = "LEFT JOIN bibliography b ON b.id = %s.source_id"
	joinCountries    = "LEFT JOIN countries c ON c.id = %s.country_id"
)

func join(tmpl, alias string) string { return fmt.Sprintf(tmpl, alias) }

var specs = map[Key]*Spec{
	Volcanoes: {
		Key:      Volcanoes,
		Title:    "Volcanoes",
		Table:    "volcanoes v",
		Joins:    []string{join(joinBibliography, "v"), join(joinCountries, "v")},
		ID:       "v.id",
		Geometry: "v.geom",
		Attributes: []Attribute{
			{"v.name", "name"},
			{"v.class", "class"},
			{"v.category_source", "categorySource"},
			{"v.elevation", "elevation"},
			{"b.title", "source"},
			{"c.name", "country"},
		},
		Restricted: "b.restricted",
		Units:      map[string]string{"elevation": "m"},
		Filters: []Definition{
			Select{Field: Field{"class", "Class", "v.class"}},
			Select{Field: Field{"sources", "Source", "b.title"}},
			Select{Field: Field{"categorySources", "Category source", "v.category_source"}, Match: MatchPartial},
			Select{Field: Field{"countries", "Country", "c.name"}},
		},
	},
	Seamounts: {
		Key:      Seamounts,
		Title:    "Seamounts",
		Table:    "seamounts s",
		Joins:    []string{join(joinBibliography, "s")},
		ID:       "s.id",
		Geometry: "s.geom",
		Attributes: []Attribute{
			{"s.name", "name"},
			{"s.class", "class"},
			{"s.summit_depth", "depth"},
			{"s.height", "height"},
			{"b.title", "source"},
		},
		Restricted: "b.restricted",
		Units:      map[string]string{"depth": "m", "height": "m"},
		Filters: []Definition{
			Select{Field: Field{"class", "Class", "s.class"}},
			Select{Field: Field{"sources", "Source", "b.title"}},
			Range{Field: Field{"depth", "Summit depth", "s.summit_depth"}, Units: "m"},
			Range{Field: Field{"height", "Height", "s.height"}, Units: "m"},
		},
	},
	GNSS: {
		Key:   GNSS,
		Title: "GNSS stations",
		Table: "gnss_stations g",
		Joins: []string{
			join(joinCountries, "g"),
			"LEFT JOIN gnss_station_types t ON t.id = g.type_id",
		},
		ID:       "g.id",
		Geometry: "g.geom",
		Attributes: []Attribute{
			{"g.name", "name"},
			{"t.name", "stationType"},
			{"c.name", "country"},
			{"g.installed_at", "installed"},
			{"g.velocity_e", "velocityE"},
			{"g.velocity_n", "velocityN"},
		},
		Units: map[string]string{"velocityE": "mm/yr", "velocityN": "mm/yr"},
		Filters: []Definition{
			Search{Field: Field{"name", "Station name", "g.name"}},
			Select{Field: Field{"stationType", "Station type", "t.name"}, NullColumn: "g.type_id"},
			Select{Field: Field{"countries", "Country", "c.name"}},
			Date{Field: Field{"installed", "Installed", "g.installed_at"}},
		},
	},
	Faults: {
		Key:      Faults,
		Title:    "Faults",
		Table:    "faults f",
		Joins:    []string{"LEFT JOIN fault_types ft ON ft.id = f.type_id"},
		ID:       "f.id",
		Geometry: "f.geom",
		Attributes: []Attribute{
			{"f.name", "name"},
			{"ft.name", "type"},
			{"f.dip", "dip"},
			{"f.length_km", "length"},
			{"f.slip_rate", "slipRate"},
		},
		Units: map[string]string{"dip": "°", "length": "km", "slipRate": "mm/yr"},
		Filters: []Definition{
			Search{Field: Field{"name", "Fault name", "f.name"}},
			Select{Field: Field{"type", "Fault type", "ft.name"}, NullColumn: "f.type_id"},
			Range{Field: Field{"dip", "Dip", "f.dip"}, Units: "°"},
			GreaterThan{Field: Field{"length", "Length", "f.length_km"}, Units: "km", MaxVal: float(1000)},
		},
	},
	Seismicity: {
		Key:      Seismicity,
		Title:    "Seismicity",
		Table:    "seismicity e",
		ID:       "e.id",
		Geometry: "e.geom",
		Attributes: []Attribute{
			{"e.place", "place"},
			{"e.mag_type", "magType"},
			{"e.mw", "mw"},
			{"e.depth", "depth"},
			{"e.event_time", "time"},
		},
		Units: map[string]string{"depth": "km"},
		Filters: []Definition{
			Range{Field: Field{"depth", "Depth", "e.depth"}, Units: "km"},
			Range{Field: Field{"mw", "Magnitude", "e.mw"}},
			Date{Field: Field{"time", "Event time", "e.event_time"}},
			Select{Field: Field{"magType", "Magnitude type", "e.mag_type"}, NullColumn: "e.mag_type"},
		},
	},
	HeatFlow: {
		Key:      HeatFlow,
		Title:    "Heat flow",
		Table:    "heat_flow h",
		Joins:    []string{join(joinBibliography, "h"), join(joinCountries, "h")},
		ID:       "h.id",
		Geometry: "h.geom",
		Attributes: []Attribute{
			{"h.q", "qval"},
			{"h.year", "year"},
			{"b.title", "source"},
			{"c.name", "country"},
		},
		Restricted:    "b.restricted",
		Units:         map[string]string{"qval": "mW/m²"},
		RangeProperty: "qval",
		Filters: []Definition{
			Range{Field: Field{"qval", "Heat flow", "h.q"}, Units: "mW/m²"},
			Select{Field: Field{"sources", "Source", "b.title"}},
			Select{Field: Field{"countries", "Country", "c.name"}},
			GreaterThan{Field: Field{"year", "Published after", "h.year"}, MaxVal: float(2030)},
		},
	},
	Slab2: {
		Key:      Slab2,
		Title:    "Slab2 geometry",
		Table:    "slab2 sl",
		ID:       "sl.id",
		Geometry: "sl.geom",
		Attributes: []Attribute{
			{"sl.region", "region"},
			{"sl.depth", "depth"},
		},
		Units:         map[string]string{"depth": "km"},
		RangeProperty: "depth",
	},
	Slip: {
		Key:      Slip,
		Title:    "Slip models",
		Table:    "slip_models sm",
		ID:       "sm.id",
		Geometry: "sm.geom",
		Attributes: []Attribute{
			{"sm.event_name", "event"},
			{"sm.slip", "slip"},
			{"sm.rake", "rake"},
			{"sm.depth", "depth"},
		},
		Units:         map[string]string{"slip": "m", "rake": "°", "depth": "km"},
		RangeProperty: "slip",
	},
	Rocks: {
		Key:   Rocks,
		Title: "Rock samples",
		Table: "rock_samples r",
		Joins: []string{
			"LEFT JOIN rock_types rt ON rt.id = r.rock_type_id",
			join(joinBibliography, "r"),
			join(joinCountries, "r"),
		},
		ID:       "r.id",
		Geometry: "r.geom",
		Attributes: []Attribute{
			{"r.name", "name"},
			{"rt.name", "rockType"},
			{"r.sio2", "sio2"},
			{"b.title", "source"},
			{"c.name", "country"},
		},
		Restricted: "b.restricted",
		Units:      map[string]string{"sio2": "wt%"},
		Filters: []Definition{
			Search{Field: Field{"name", "Sample name", "r.name"}},
			Select{Field: Field{"rockType", "Rock type", "rt.name"}, NullColumn: "r.rock_type_id"},
			Range{Field: Field{"sio2", "SiO₂", "r.sio2"}, Units: "wt%"},
			Select{Field: Field{"sources", "Source", "b.title"}},
			Select{Field: Field{"countries", "Country", "c.name"}},
		},
	},
}
