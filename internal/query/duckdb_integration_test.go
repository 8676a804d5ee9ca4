//go:build integration

package query

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/store"
)

// Run with: go test -tags=integration ./internal/query/...
// Needs network access the first time DuckDB installs the spatial extension.

const volcanoSchema = `
CREATE TABLE bibliography (id INTEGER PRIMARY KEY, title VARCHAR, restricted BOOLEAN);
CREATE TABLE countries (id INTEGER PRIMARY KEY, name VARCHAR);
CREATE TABLE volcanoes (
	id INTEGER PRIMARY KEY, name VARCHAR, class VARCHAR, category_source VARCHAR,
	elevation DOUBLE, source_id INTEGER, country_id INTEGER, geom GEOMETRY
);
INSERT INTO bibliography VALUES (1, 'Smithsonian', false), (2, 'Private survey', true);
INSERT INTO countries VALUES (1, 'Italy'), (2, 'Japan');
INSERT INTO volcanoes VALUES
	(1, 'Etna', 'Stratovolcano', 'GVP', 3357, 1, 1, ST_Point(15.0, 37.7)),
	(2, 'Fuji', 'Stratovolcano', 'GVP; JMA', 3776, 2, 2, ST_Point(138.7, 35.4)),
	(3, 'Unnamed', 'Submarine', NULL, NULL, NULL, NULL, ST_Point(140.0, -20.0));
`

func TestDuckDB_LoadVolcanoes(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewDuckDB(store.Config{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	defer db.Close()

	if err := db.Exec(ctx, volcanoSchema); err != nil {
		t.Fatalf("seed: %v", err)
	}

	e := NewExecutor(db, 0, nil)
	all := Request{Filter: true, Values: json.RawMessage(`{"class":"All","sources":"All","categorySources":"All","countries":"All"}`)}

	res := e.LoadDataset(ctx, dataset.Volcanoes, all, false)
	if !res.Success {
		t.Fatal(res.Error)
	}
	if n := len(res.Data.GeoJSON.Features); n != 2 {
		t.Errorf("unprivileged: got %d features, want 2", n)
	}

	res = e.LoadDataset(ctx, dataset.Volcanoes, all, true)
	if n := len(res.Data.GeoJSON.Features); n != 3 {
		t.Errorf("privileged: got %d features, want 3", n)
	}

	partial := Request{Filter: true, Values: json.RawMessage(`{"class":"All","sources":"All","categorySources":"jma","countries":"All"}`)}
	res = e.LoadDataset(ctx, dataset.Volcanoes, partial, true)
	if !res.Success {
		t.Fatal(res.Error)
	}
	if n := len(res.Data.GeoJSON.Features); n != 1 || res.Data.GeoJSON.Features[0].Properties["name"] != "Fuji" {
		t.Errorf("partial category match returned %d features", n)
	}

	region := json.RawMessage(`{"type":"Polygon","coordinates":[[[10,30],[20,30],[20,40],[10,40],[10,30]]]}`)
	res = e.LoadDataset(ctx, dataset.Volcanoes, Request{Drawing: region}, true)
	if n := len(res.Data.GeoJSON.Features); n != 1 {
		t.Errorf("region: got %d features, want 1", n)
	}
}
