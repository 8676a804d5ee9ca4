package query

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/store"
	"github.com/joeblew999/plat-hazard/internal/store/storetest"
)

func point(x, y float64) string {
	b, _ := json.Marshal(map[string]any{"type": "Point", "coordinates": []float64{x, y}})
	return string(b)
}

// volcanoRows answers volcano queries; restricted rows are dropped when the
// statement carries the restriction clause.
func volcanoRows(sql string, _ []any) (*store.Result, error) {
	res := &store.Result{Columns: []string{"id", "name", "class", "categorySource", "elevation", "source", "country", "geometry"}}
	rows := []struct {
		row        []any
		restricted bool
	}{
		{[]any{int64(1), "Etna", "Stratovolcano", "GVP", 3357.0, "Smithsonian", "Italy", point(15, 37.7)}, false},
		{[]any{int64(2), "Kilauea", "Shield", "GVP", 1247.0, "Private survey", "United States", point(-155.3, 19.4)}, true},
		{[]any{int64(3), "Unnamed", "Submarine", nil, nil, nil, nil, point(140, -20)}, false},
	}
	for _, r := range rows {
		if r.restricted && strings.Contains(sql, "NOT COALESCE(b.restricted, FALSE)") {
			continue
		}
		res.Rows = append(res.Rows, r.row)
	}
	return res, nil
}

func TestLoadDataset_VolcanoesAllFilters(t *testing.T) {
	fake := &storetest.Store{Handler: volcanoRows}
	e := NewExecutor(fake, 0, nil)
	req := Request{
		Filter: true,
		Values: json.RawMessage(`{"class":"All","sources":"All","categorySources":"All","countries":"All"}`),
	}

	anon := e.LoadDataset(context.Background(), dataset.Volcanoes, req, false)
	if !anon.Success {
		t.Fatalf("load failed: %s", anon.Error)
	}
	if n := len(anon.Data.GeoJSON.Features); n != 2 {
		t.Errorf("unprivileged: got %d features, want 2", n)
	}

	calls := fake.Calls()
	sql := calls[0].SQL
	if !strings.Contains(sql, "WHERE (NOT COALESCE(b.restricted, FALSE)) ORDER BY v.id") {
		t.Errorf("expected only the restriction predicate, got %s", sql)
	}
	if len(calls[0].Args) != 0 {
		t.Errorf("expected no args, got %v", calls[0].Args)
	}

	priv := e.LoadDataset(context.Background(), dataset.Volcanoes, req, true)
	if n := len(priv.Data.GeoJSON.Features); n != 3 {
		t.Errorf("privileged: got %d features, want 3", n)
	}
	if strings.Contains(fake.Calls()[1].SQL, "WHERE") {
		t.Errorf("privileged statement should be unconditional: %s", fake.Calls()[1].SQL)
	}
}

func TestLoadDataset_FeatureConversion(t *testing.T) {
	e := NewExecutor(&storetest.Store{Handler: volcanoRows}, 0, nil)
	res := e.LoadDataset(context.Background(), dataset.Volcanoes, Request{}, true)
	if !res.Success {
		t.Fatal(res.Error)
	}

	f := res.Data.GeoJSON.Features[0]
	if f.ID != int64(1) {
		t.Errorf("feature id = %v", f.ID)
	}
	if _, ok := f.Properties["geometry"]; ok {
		t.Error("geometry must not be a property")
	}
	if _, ok := f.Properties["id"]; ok {
		t.Error("id must not be a property")
	}
	if f.Properties["name"] != "Etna" || f.Properties["elevation"] != 3357.0 {
		t.Errorf("properties = %v", f.Properties)
	}
	if f.Geometry.GeoJSONType() != "Point" {
		t.Errorf("geometry type = %s", f.Geometry.GeoJSONType())
	}
	if res.Data.Units["elevation"] != "m" {
		t.Errorf("units = %v", res.Data.Units)
	}
	if res.Data.Metadata != nil {
		t.Error("volcanoes are not range coloured")
	}
}

// seismicRows simulates the store applying the depth predicate, so the test
// checks that the statement carries the bound with the right null policy.
func seismicRows(sql string, args []any) (*store.Result, error) {
	res := &store.Result{Columns: []string{"id", "place", "magType", "mw", "depth", "time", "geometry"}}
	all := [][]any{
		{int64(1), "shallow", "mw", 6.1, 10.0, nil, point(0, 0)},
		{int64(2), "deep", "mw", nil, 300.0, nil, point(1, 1)},
		{int64(3), "unknown depth", "mb", 4.2, nil, nil, point(2, 2)},
		{int64(4), "boundary", nil, 5.0, 50.0, nil, point(3, 3)},
	}
	bounded := strings.Contains(sql, "e.depth BETWEEN $1 AND $2")
	nullable := strings.Contains(sql, "e.depth BETWEEN $1 AND $2 OR e.depth IS NULL")
	for _, row := range all {
		depth, ok := row[4].(float64)
		if bounded {
			lo, hi := args[0].(float64), args[1].(float64)
			if !ok && !nullable {
				continue
			}
			if ok && (depth < lo || depth > hi) {
				continue
			}
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func TestLoadDataset_SeismicityDepthBound(t *testing.T) {
	e := NewExecutor(&storetest.Store{Handler: seismicRows}, 0, nil)
	req := Request{Filter: true, Values: json.RawMessage(`{
		"depth": [0, 50], "depthAllowNull": false,
		"mw": [0, 10], "mwAllowNull": true,
		"time": {"from": "1900-01-01T00:00:00Z", "to": "2100-01-01T00:00:00Z"},
		"magType": "All"
	}`)}

	res := e.LoadDataset(context.Background(), dataset.Seismicity, req, false)
	if !res.Success {
		t.Fatal(res.Error)
	}
	for _, f := range res.Data.GeoJSON.Features {
		d, ok := f.Properties["depth"].(float64)
		if !ok || d < 0 || d > 50 {
			t.Errorf("feature %v has depth %v outside [0,50]", f.ID, f.Properties["depth"])
		}
	}
	if n := len(res.Data.GeoJSON.Features); n != 2 {
		t.Errorf("got %d features, want 2", n)
	}
}

func TestLoadDataset_ValidationFailsBeforeQuery(t *testing.T) {
	fake := &storetest.Store{}
	e := NewExecutor(fake, 0, nil)
	req := Request{Filter: true, Values: json.RawMessage(`{"depth":"deep"}`)}

	res := e.LoadDataset(context.Background(), dataset.Seismicity, req, true)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.FieldErrors["depth"] == "" {
		t.Errorf("expected a depth field error, got %v", res.FieldErrors)
	}
	if len(fake.Calls()) != 0 {
		t.Error("store must not be queried with invalid input")
	}
}

func TestLoadDataset_Failures(t *testing.T) {
	tests := []struct {
		name    string
		key     dataset.Key
		req     Request
		handler func(string, []any) (*store.Result, error)
		queried bool
	}{
		{name: "unknown dataset", key: "lava"},
		{name: "filter on unfiltered dataset", key: dataset.Slip, req: Request{Filter: true, Values: json.RawMessage(`{}`)}},
		{name: "point region", key: dataset.Slip, req: Request{Drawing: json.RawMessage(`{"type":"Point","coordinates":[0,0]}`)}},
		{
			name:    "query error",
			key:     dataset.Slip,
			handler: func(string, []any) (*store.Result, error) { return nil, errors.New("connection reset") },
			queried: true,
		},
		{
			name: "bad geometry",
			key:  dataset.Slip,
			handler: func(string, []any) (*store.Result, error) {
				return &store.Result{Columns: []string{"id", "geometry"}, Rows: [][]any{{int64(1), "{oops"}}}, nil
			},
			queried: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &storetest.Store{Handler: tt.handler}
			res := NewExecutor(fake, 0, nil).LoadDataset(context.Background(), tt.key, tt.req, false)
			if res.Success || res.Error == "" || res.Data != nil {
				t.Fatalf("expected a tagged failure, got %+v", res)
			}
			if got := len(fake.Calls()) > 0; got != tt.queried {
				t.Errorf("queried = %v, want %v", got, tt.queried)
			}
		})
	}
}

func TestLoadDataset_QueryErrorDoesNotLeakSQL(t *testing.T) {
	fake := &storetest.Store{Handler: func(string, []any) (*store.Result, error) {
		return nil, errors.New(`relation "slip_models" does not exist`)
	}}
	res := NewExecutor(fake, 0, nil).LoadDataset(context.Background(), dataset.Slip, Request{}, false)
	if strings.Contains(res.Error, "slip_models") {
		t.Errorf("error leaks store detail: %q", res.Error)
	}
}

func TestLoadDataset_RegionAndMetadata(t *testing.T) {
	fake := &storetest.Store{Handler: func(string, []any) (*store.Result, error) {
		return &store.Result{
			Columns: []string{"id", "event", "slip", "rake", "depth", "geometry"},
			Rows: [][]any{
				{int64(1), "Tohoku", 12.5, 90.0, 20.0, point(142, 38)},
				{int64(2), "Tohoku", 48.0, 90.0, 10.0, point(143, 38)},
				{int64(3), "Tohoku", nil, 90.0, 30.0, point(144, 38)},
			},
		}, nil
	}}
	region := json.RawMessage(`{"type":"Polygon","coordinates":[[[140,35],[145,35],[145,40],[140,35]]]}`)

	res := NewExecutor(fake, 0, nil).LoadDataset(context.Background(), dataset.Slip, Request{Drawing: region}, false)
	if !res.Success {
		t.Fatal(res.Error)
	}
	if m := res.Data.Metadata; m == nil || m[0] != 12.5 || m[1] != 48 {
		t.Errorf("metadata = %v, want [12.5 48]", m)
	}

	call := fake.Calls()[0]
	if !strings.Contains(call.SQL, "WHERE (ST_Intersects(sm.geom, ST_GeomFromGeoJSON($1)))") {
		t.Errorf("missing region predicate: %s", call.SQL)
	}
	if len(call.Args) != 1 {
		t.Errorf("args = %v", call.Args)
	}
}

func TestStatementSelectsAttributes(t *testing.T) {
	spec, _ := dataset.Lookup(dataset.Faults)
	sql, _, err := Statement(spec, Request{}, true)
	if err != nil {
		t.Fatal(err)
	}
	want := `SELECT f.id AS id, f.name AS "name", ft.name AS "type", f.dip AS "dip", f.length_km AS "length", ` +
		`f.slip_rate AS "slipRate", CAST(ST_AsGeoJSON(f.geom) AS VARCHAR) AS geometry ` +
		`FROM faults f LEFT JOIN fault_types ft ON ft.id = f.type_id ORDER BY f.id`
	if sql != want {
		t.Errorf("sql =\n%s\nwant\n%s", sql, want)
	}
}

func TestToFeatureCollectionSkipsMissingGeometry(t *testing.T) {
	fc, skipped, err := ToFeatureCollection(&store.Result{
		Columns: []string{"id", "name", "geometry"},
		Rows: [][]any{
			{int32(7), []byte("a"), point(1, 2)},
			{int32(8), "b", nil},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Features) != 1 || skipped != 1 {
		t.Fatalf("got %d features, %d skipped", len(fc.Features), skipped)
	}
	if fc.Features[0].ID != int64(7) || fc.Features[0].Properties["name"] != "a" {
		t.Errorf("feature = %+v", fc.Features[0])
	}

	if _, _, err := ToFeatureCollection(&store.Result{Columns: []string{"id"}}); err == nil {
		t.Error("expected an error without a geometry column")
	}
}

func TestLoadDataset_ReportsRowsWithoutGeometry(t *testing.T) {
	fake := &storetest.Store{Handler: func(sql string, args []any) (*store.Result, error) {
		res, _ := volcanoRows(sql, args)
		res.Rows = append(res.Rows, []any{int64(4), "Lost", "Shield", nil, nil, nil, nil, nil})
		return res, nil
	}}
	res := NewExecutor(fake, 0, nil).LoadDataset(context.Background(), dataset.Volcanoes, Request{}, true)
	if !res.Success {
		t.Fatalf("load failed: %s", res.Error)
	}
	if n := len(res.Data.GeoJSON.Features); n != 3 || res.Data.Skipped != 1 {
		t.Errorf("features = %d, skipped = %d; want 3 and 1", n, res.Data.Skipped)
	}
	full := NewExecutor(&storetest.Store{Handler: volcanoRows}, 0, nil).LoadDataset(context.Background(), dataset.Volcanoes, Request{}, true)
	if full.Data.Skipped != 0 {
		t.Errorf("complete rows reported %d skipped", full.Data.Skipped)
	}
}
