package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/go-chi/chi/v5"

	"github.com/joeblew999/plat-hazard/internal/auth"
	"github.com/joeblew999/plat-hazard/internal/config"
	"github.com/joeblew999/plat-hazard/internal/populate"
	"github.com/joeblew999/plat-hazard/internal/query"
	"github.com/joeblew999/plat-hazard/internal/service"
	"github.com/joeblew999/plat-hazard/internal/state"
	"github.com/joeblew999/plat-hazard/internal/store"
	"github.com/joeblew999/plat-hazard/internal/store/storetest"
)

func point(x, y float64) string {
	b, _ := json.Marshal(map[string]any{"type": "Point", "coordinates": []float64{x, y}})
	return string(b)
}

// volcanoStore answers volcano loads and the category queries of the
// volcano filters. The restricted row is dropped when the statement carries
// the restriction clause.
func volcanoStore() *storetest.Store {
	return &storetest.Store{Handler: func(sql string, _ []any) (*store.Result, error) {
		if strings.Contains(sql, "DISTINCT") {
			return &store.Result{Columns: []string{"category"}, Rows: [][]any{{"Shield"}, {"Stratovolcano"}}}, nil
		}
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
	}}
}

const allVolcanoes = `{"filter":true,"values":{"class":"All","sources":"All","categorySources":"All","countries":"All"}}`

// client keeps the session cookie between requests.
type client struct {
	t      *testing.T
	api    humatest.TestAPI
	cookie string
}

func (c *client) do(method, path string, args ...any) *httptest.ResponseRecorder {
	c.t.Helper()
	if c.cookie != "" {
		args = append([]any{"Cookie: " + c.cookie}, args...)
	}
	resp := c.api.Do(method, path, args...)
	for _, ck := range resp.Result().Cookies() {
		if ck.Name == state.CookieName {
			c.cookie = ck.Name + "=" + ck.Value
		}
	}
	return resp
}

func (c *client) decode(resp *httptest.ResponseRecorder, v any) {
	c.t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), v); err != nil {
		c.t.Fatalf("decode %s: %v", resp.Body.String(), err)
	}
}

func newTestClient(t *testing.T, s *storetest.Store) *client {
	t.Helper()
	bus := state.NewBus()
	reg := state.NewRegistry(bus, time.Hour)
	svc := &Services{
		Executor: query.NewExecutor(s, 0, nil),
		Populate: populate.NewBuilder(s, nil, 0, nil),
		Palettes: service.NewPaletteService(t.TempDir(), bus),
		Bus:      bus,
		Export:   config.ExportConfig{Timeout: 5 * time.Second, TileMaxZoom: 2},
	}

	router := chi.NewMux()
	router.Use(auth.Middleware([]string{"secret"}))
	router.Use(reg.Middleware(false))
	api := humatest.Wrap(t, humachi.New(router, huma.DefaultConfig("Hazard Test", Version)))
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewInfoHandler("/tmp/data", s).RegisterRoutes(api)
	return &client{t: t, api: api}
}

func TestHealthAndInfo(t *testing.T) {
	c := newTestClient(t, volcanoStore())

	resp := c.do(http.MethodGet, "/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("health: %d", resp.Code)
	}
	var health HealthBody
	c.decode(resp, &health)
	if health.Status != "ok" || health.Version != Version {
		t.Errorf("health = %+v", health)
	}

	var info InfoBody
	c.decode(c.do(http.MethodGet, "/api/v1/info", "X-API-Key: secret"), &info)
	if info.Store != "fake" || !info.DB || !info.Privileged {
		t.Errorf("info = %+v", info)
	}
}

func TestDatasets(t *testing.T) {
	c := newTestClient(t, volcanoStore())

	resp := c.do(http.MethodGet, "/api/v1/datasets")
	if resp.Code != http.StatusOK {
		t.Fatalf("list: %d %s", resp.Code, resp.Body.String())
	}
	var all []DatasetBody
	c.decode(resp, &all)
	if len(all) != 9 || all[0].Key != "vlc" {
		t.Fatalf("got %d datasets, first %v", len(all), all)
	}
	if strings.Contains(resp.Body.String(), "v.class") {
		t.Error("column expressions must not reach the client")
	}
	if all[0].Visible || all[0].Loaded != nil {
		t.Errorf("fresh session dataset = %+v", all[0])
	}

	if resp := c.do(http.MethodGet, "/api/v1/datasets/nope"); resp.Code != http.StatusUnprocessableEntity && resp.Code != http.StatusNotFound {
		t.Errorf("unknown key: %d", resp.Code)
	}
}

func TestGetFilters(t *testing.T) {
	c := newTestClient(t, volcanoStore())

	resp := c.do(http.MethodGet, "/api/v1/datasets/vlc/filters")
	if resp.Code != http.StatusOK {
		t.Fatalf("filters: %d %s", resp.Code, resp.Body.String())
	}
	var body FiltersBody
	c.decode(resp, &body)
	if len(body.Filters) != 4 {
		t.Fatalf("filters = %+v", body.Filters)
	}
	if body.Defaults["class"] != "All" {
		t.Errorf("defaults = %v", body.Defaults)
	}
	if got := body.Snapshot["class"].Categories; len(got) != 2 || got[0] != "Shield" {
		t.Errorf("class categories = %v", got)
	}
	if _, ok := body.Signals["filters"]; !ok {
		t.Errorf("signals = %v", body.Signals)
	}
}

func TestLoadAndInspect(t *testing.T) {
	c := newTestClient(t, volcanoStore())

	resp := c.do(http.MethodPost, "/api/v1/datasets/vlc/load", strings.NewReader(allVolcanoes))
	if resp.Code != http.StatusOK {
		t.Fatalf("load: %d %s", resp.Code, resp.Body.String())
	}
	var load struct {
		Success bool `json:"success"`
		Ticket  string
		Data    struct {
			GeoJSON struct {
				Features []json.RawMessage `json:"features"`
			} `json:"geojson"`
		} `json:"data"`
	}
	c.decode(resp, &load)
	if !load.Success || load.Ticket == "" || len(load.Data.GeoJSON.Features) != 2 {
		t.Fatalf("load = %+v", load)
	}

	var ds DatasetBody
	c.decode(c.do(http.MethodGet, "/api/v1/datasets/vlc"), &ds)
	if ds.Loaded == nil || ds.Loaded.Features != 2 || !ds.Loaded.Filtered || ds.Pending {
		t.Errorf("dataset after load = %+v", ds)
	}

	var layers LayersBody
	c.decode(c.do(http.MethodGet, "/api/v1/datasets/vlc/layers"), &layers)
	if len(layers.Layers) == 0 || !layers.Visible {
		t.Errorf("layers = %+v", layers)
	}

	resp = c.do(http.MethodGet, "/api/v1/datasets/vlc/features/1")
	if resp.Code != http.StatusOK {
		t.Fatalf("feature: %d %s", resp.Code, resp.Body.String())
	}
	var feature FeatureBody
	c.decode(resp, &feature)
	if len(feature.Properties) == 0 || feature.Properties[0].Name != "name" || feature.Properties[0].Value != "Etna" {
		t.Errorf("feature = %+v", feature)
	}
	for _, p := range feature.Properties {
		if p.Name == "elevation" && p.Unit != "m" {
			t.Errorf("elevation unit = %q", p.Unit)
		}
	}

	if resp := c.do(http.MethodGet, "/api/v1/datasets/vlc/features/99"); resp.Code != http.StatusNotFound {
		t.Errorf("missing feature: %d", resp.Code)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	c := newTestClient(t, volcanoStore())

	resp := c.do(http.MethodPost, "/api/v1/datasets/vlc/load", map[string]any{
		"filter": true,
		"values": map[string]any{"class": "All"},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("load: %d %s", resp.Code, resp.Body.String())
	}
	var body LoadBody
	c.decode(resp, &body)
	if body.Success || body.FieldErrors["countries"] != "required" {
		t.Errorf("load = %+v", body)
	}
	if link := resp.Header().Values("Link"); len(link) != 0 {
		t.Errorf("failed load advertises actions: %v", link)
	}

	var ds DatasetBody
	c.decode(c.do(http.MethodGet, "/api/v1/datasets/vlc"), &ds)
	if ds.Loaded != nil || ds.Pending {
		t.Errorf("failed load left state behind: %+v", ds)
	}
}

func TestPrivilegedLoad(t *testing.T) {
	c := newTestClient(t, volcanoStore())

	var load LoadBody
	c.decode(c.do(http.MethodPost, "/api/v1/datasets/vlc/load", "X-API-Key: secret", strings.NewReader(allVolcanoes)), &load)
	if !load.Success || len(load.Data.GeoJSON.Features) != 3 {
		t.Fatalf("privileged load = %+v", load)
	}

	if resp := c.do(http.MethodGet, "/api/v1/info", "X-API-Key: wrong"); resp.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: %d", resp.Code)
	}
}

func TestDownload(t *testing.T) {
	c := newTestClient(t, volcanoStore())

	if resp := c.do(http.MethodGet, "/api/v1/datasets/vlc/download"); resp.Code != http.StatusNotFound {
		t.Fatalf("download before load: %d", resp.Code)
	}
	c.do(http.MethodPost, "/api/v1/datasets/vlc/load", strings.NewReader(allVolcanoes))

	resp := c.do(http.MethodGet, "/api/v1/datasets/vlc/download")
	if resp.Code != http.StatusOK {
		t.Fatalf("geojson: %d %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("content type = %q", ct)
	}
	if cd := resp.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="vlc.geojson"`) {
		t.Errorf("content disposition = %q", cd)
	}
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	c.decode(resp, &fc)
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Errorf("geojson = %s", resp.Body.String())
	}

	resp = c.do(http.MethodGet, "/api/v1/datasets/vlc/download?format=csv")
	if resp.Code != http.StatusOK {
		t.Fatalf("csv: %d %s", resp.Code, resp.Body.String())
	}
	lines := strings.Split(strings.TrimSpace(resp.Body.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "name,class,") {
		t.Errorf("csv = %q", resp.Body.String())
	}

	resp = c.do(http.MethodGet, "/api/v1/datasets/vlc/download?format=pmtiles")
	if resp.Code != http.StatusOK {
		t.Fatalf("pmtiles: %d %s", resp.Code, resp.Body.String())
	}
	if !bytes.HasPrefix(resp.Body.Bytes(), []byte("PMTiles")) {
		t.Error("pmtiles archive lacks the magic")
	}

	if resp := c.do(http.MethodGet, "/api/v1/datasets/vlc/download?format=shp"); resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown format: %d", resp.Code)
	}
}

func TestTiles(t *testing.T) {
	c := newTestClient(t, volcanoStore())

	if resp := c.do(http.MethodGet, "/api/v1/datasets/vlc/tiles/0/0/0"); resp.Code != http.StatusNotFound {
		t.Errorf("tile before load: %d", resp.Code)
	}
	c.do(http.MethodPost, "/api/v1/datasets/vlc/load", strings.NewReader(allVolcanoes))

	resp := c.do(http.MethodGet, "/api/v1/datasets/vlc/tiles/0/0/0")
	if resp.Code != http.StatusOK {
		t.Fatalf("tile: %d %s", resp.Code, resp.Body.String())
	}
	if resp.Header().Get("Content-Encoding") != "gzip" || resp.Body.Len() == 0 {
		t.Errorf("tile headers = %v", resp.Header())
	}

	// The north-west corner of zoom 4 holds no volcano.
	if resp := c.do(http.MethodGet, "/api/v1/datasets/vlc/tiles/4/0/0"); resp.Code != http.StatusNoContent {
		t.Errorf("empty tile: %d", resp.Code)
	}
	if resp := c.do(http.MethodGet, "/api/v1/datasets/vlc/tiles/2/9/0"); resp.Code != http.StatusBadRequest {
		t.Errorf("out of range tile: %d", resp.Code)
	}
}

func TestRegionAppliesToLoads(t *testing.T) {
	s := volcanoStore()
	c := newTestClient(t, s)

	square := `{"type":"Polygon","coordinates":[[[10,30],[20,30],[20,40],[10,40],[10,30]]]}`
	resp := c.do(http.MethodPut, "/api/v1/region", "Content-Type: application/json", strings.NewReader(square))
	if resp.Code != http.StatusOK {
		t.Fatalf("region: %d %s", resp.Code, resp.Body.String())
	}

	var sess SessionBody
	c.decode(c.do(http.MethodGet, "/api/v1/session"), &sess)
	if sess.Region == nil || sess.MapStyle != DefaultMapStyle {
		t.Errorf("session = %+v", sess)
	}

	c.do(http.MethodPost, "/api/v1/datasets/vlc/load", strings.NewReader(allVolcanoes))
	calls := s.Calls()
	if last := calls[len(calls)-1].SQL; !strings.Contains(last, "ST_Intersects") {
		t.Errorf("region not applied: %s", last)
	}

	c.do(http.MethodDelete, "/api/v1/region")
	c.do(http.MethodPost, "/api/v1/datasets/vlc/load", strings.NewReader(allVolcanoes))
	calls = s.Calls()
	if last := calls[len(calls)-1].SQL; strings.Contains(last, "ST_Intersects") {
		t.Errorf("cleared region still applied: %s", last)
	}

	line := `{"type":"LineString","coordinates":[[0,0],[1,1]]}`
	if resp := c.do(http.MethodPut, "/api/v1/region", strings.NewReader(line)); resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("line region: %d", resp.Code)
	}
}

func TestSessionSettings(t *testing.T) {
	c := newTestClient(t, volcanoStore())
	c.do(http.MethodPost, "/api/v1/datasets/vlc/load", strings.NewReader(allVolcanoes))

	var vis VisibilityBody
	c.decode(c.do(http.MethodPut, "/api/v1/visibility/vlc", map[string]any{"visible": false}), &vis)
	if vis.Visible {
		t.Error("visibility not updated")
	}

	if resp := c.do(http.MethodPut, "/api/v1/map-style", map[string]any{"style": "dark"}); resp.Code != http.StatusOK {
		t.Fatalf("map style: %d %s", resp.Code, resp.Body.String())
	}
	if resp := c.do(http.MethodPut, "/api/v1/map-style", map[string]any{"style": "neon"}); resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid style: %d", resp.Code)
	}

	var sess SessionBody
	c.decode(c.do(http.MethodGet, "/api/v1/session"), &sess)
	if sess.Visible["vlc"] || sess.MapStyle != "dark" || len(sess.Loaded) != 1 {
		t.Errorf("session = %+v", sess)
	}

	c.do(http.MethodDelete, "/api/v1/data")
	c.decode(c.do(http.MethodGet, "/api/v1/session"), &sess)
	if len(sess.Loaded) != 0 {
		t.Errorf("data not cleared: %+v", sess.Loaded)
	}
	if resp := c.do(http.MethodGet, "/api/v1/datasets/vlc/download"); resp.Code != http.StatusNotFound {
		t.Errorf("download after clear: %d", resp.Code)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	c := newTestClient(t, volcanoStore())
	c.do(http.MethodPost, "/api/v1/datasets/vlc/load", strings.NewReader(allVolcanoes))

	other := &client{t: t, api: c.api}
	var sess SessionBody
	other.decode(other.do(http.MethodGet, "/api/v1/session"), &sess)
	if len(sess.Loaded) != 0 {
		t.Errorf("new session sees another session's data: %v", sess.Loaded)
	}
}

func TestPalettes(t *testing.T) {
	c := newTestClient(t, volcanoStore())

	var list []PaletteBody
	c.decode(c.do(http.MethodGet, "/api/v1/palettes"), &list)
	if len(list) != 9 {
		t.Fatalf("got %d palettes", len(list))
	}

	bad := map[string]any{"colors": []string{"red"}, "range": []float64{0, 1}}
	if resp := c.do(http.MethodPut, "/api/v1/palettes/seis", bad); resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid palette: %d %s", resp.Code, resp.Body.String())
	}

	good := map[string]any{"colors": []string{"#000000", "#ffffff"}, "range": []float64{0, 700}}
	var body PaletteBody
	c.decode(c.do(http.MethodPut, "/api/v1/palettes/seis", good), &body)
	if !body.Overridden || body.Palette.Colors[1] != "#ffffff" {
		t.Errorf("put = %+v", body)
	}

	if resp := c.do(http.MethodDelete, "/api/v1/palettes/seis"); resp.Code != http.StatusOK {
		t.Errorf("delete: %d", resp.Code)
	}
	if resp := c.do(http.MethodDelete, "/api/v1/palettes/seis"); resp.Code != http.StatusNotFound {
		t.Errorf("second delete: %d", resp.Code)
	}
}

func TestExportMap(t *testing.T) {
	c := newTestClient(t, volcanoStore())
	c.do(http.MethodPost, "/api/v1/datasets/vlc/load", strings.NewReader(allVolcanoes))

	resp := c.do(http.MethodPost, "/api/v1/export/map", map[string]any{"width": 128, "height": 64})
	if resp.Code != http.StatusOK {
		t.Fatalf("export: %d %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("content type = %q", ct)
	}
	zr, err := zip.NewReader(bytes.NewReader(resp.Body.Bytes()), int64(resp.Body.Len()))
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"combined_map.png", "basemap.png", "layer_1.png"} {
		if !names[want] {
			t.Errorf("archive lacks %s: %v", want, names)
		}
	}
}
