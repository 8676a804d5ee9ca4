package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-hazard/internal/auth"
	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/export"
	"github.com/joeblew999/plat-hazard/internal/filter"
	"github.com/joeblew999/plat-hazard/internal/form"
	"github.com/joeblew999/plat-hazard/internal/humastar"
	"github.com/joeblew999/plat-hazard/internal/layers"
	"github.com/joeblew999/plat-hazard/internal/pmtiles"
	"github.com/joeblew999/plat-hazard/internal/populate"
	"github.com/joeblew999/plat-hazard/internal/query"
	"github.com/joeblew999/plat-hazard/internal/state"
	"github.com/joeblew999/plat-hazard/internal/tiles"
)

// Download formats.
const (
	FormatGeoJSON = "geojson"
	FormatCSV     = "csv"
	FormatPMTiles = "pmtiles"
)

var loadedActions = []humastar.ActionDef{
	{Rel: "download", Pattern: "/api/v1/datasets/%s/download?format=geojson", Method: http.MethodGet, Title: "Download GeoJSON"},
	{Rel: "download-csv", Pattern: "/api/v1/datasets/%s/download?format=csv", Method: http.MethodGet, Title: "Download CSV"},
	{Rel: "download-pmtiles", Pattern: "/api/v1/datasets/%s/download?format=pmtiles", Method: http.MethodGet, Title: "Download PMTiles"},
	{Rel: "layers", Pattern: "/api/v1/datasets/%s/layers", Method: http.MethodGet, Title: "Map layers"},
}

var loadAction = humastar.ActionDef{
	Rel: "load", Pattern: "/api/v1/datasets/%s/load", Method: http.MethodPost, Title: "Load dataset",
}

// Types

type LoadedSummary struct {
	Features int         `json:"features" doc:"Number of features loaded"`
	Range    *[2]float64 `json:"range,omitempty" doc:"Observed extent of the colour property"`
	Filtered bool        `json:"filtered" doc:"Whether the filter values were applied"`
	LoadedAt time.Time   `json:"loadedAt" doc:"When the result was stored"`
}

type DatasetBody struct {
	Key     dataset.Key               `json:"key" doc:"Dataset key"`
	Title   string                    `json:"title" doc:"Display title"`
	Filters []filter.ClientDefinition `json:"filters" doc:"Client filter schema; null for datasets that always load everything"`
	Units   map[string]string         `json:"units,omitempty" doc:"Display units by property"`
	Visible bool                      `json:"visible" doc:"Whether the dataset's layers are shown"`
	Pending bool                      `json:"pending" doc:"Whether a load is running"`
	Loaded  *LoadedSummary            `json:"loaded,omitempty" doc:"Summary of the loaded result"`
}

// Actions implements humastar.Actor.
func (b DatasetBody) Actions() []humastar.Action {
	defs := []humastar.ActionDef{loadAction}
	if b.Loaded != nil {
		defs = append(defs, loadedActions...)
	}
	return humastar.ActionsFor(string(b.Key), defs)
}

type FiltersBody struct {
	Key      dataset.Key               `json:"key" doc:"Dataset key"`
	Filters  []filter.ClientDefinition `json:"filters" doc:"Client filter schema"`
	Defaults map[string]any            `json:"defaults" doc:"Default form state"`
	Signals  map[string]any            `json:"signals" doc:"Default Datastar signals of the form"`
	Snapshot populate.DatasetSnapshot  `json:"snapshot" doc:"Observed bounds and categories by filter key"`
}

type LoadBody struct {
	Dataset    dataset.Key `json:"dataset" doc:"Dataset key"`
	Ticket     string      `json:"ticket" doc:"Submission id"`
	Superseded bool        `json:"superseded,omitempty" doc:"A newer load of the dataset was submitted meanwhile; this result was discarded"`
	query.Result
}

// Actions implements humastar.Actor.
func (b LoadBody) Actions() []humastar.Action {
	if !b.Success || b.Superseded {
		return nil
	}
	return humastar.ActionsFor(string(b.Dataset), loadedActions)
}

type LayersBody struct {
	Dataset dataset.Key   `json:"dataset" doc:"Dataset key"`
	Visible bool          `json:"visible" doc:"Whether the layers are shown"`
	Range   *[2]float64   `json:"range,omitempty" doc:"Observed extent the colour ramp is calibrated to"`
	Layers  []layers.Spec `json:"layers" doc:"MapLibre style layers"`
}

type PropertyRow struct {
	Name  string `json:"name" doc:"Property name"`
	Value any    `json:"value" doc:"Property value"`
	Unit  string `json:"unit,omitempty" doc:"Display unit"`
}

type FeatureBody struct {
	Dataset    dataset.Key   `json:"dataset" doc:"Dataset key"`
	ID         string        `json:"id" doc:"Feature id"`
	Properties []PropertyRow `json:"properties" doc:"Properties in display order"`
}

type DownloadInput struct {
	KeyInput
	Format string `query:"format" enum:"geojson,csv,pmtiles" default:"geojson" doc:"File format"`
}

type DownloadOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

type TileInput struct {
	KeyInput
	Z uint32 `path:"z" maximum:"14" doc:"Zoom"`
	X uint32 `path:"x" doc:"Column"`
	Y uint32 `path:"y" doc:"Row"`
}

type TileOutput struct {
	Status          int
	ContentType     string `header:"Content-Type"`
	ContentEncoding string `header:"Content-Encoding"`
	Body            []byte
}

type FeatureInput struct {
	KeyInput
	ID string `path:"id" doc:"Feature id"`
}

// RegisterDatasets registers dataset routes.
func (h *APIHandler) RegisterDatasets(api huma.API) {
	huma.Get(api, "/api/v1/datasets", h.ListDatasets, huma.OperationTags("datasets"))
	huma.Get(api, "/api/v1/datasets/{key}", h.GetDataset, huma.OperationTags("datasets"))
	huma.Get(api, "/api/v1/datasets/{key}/filters", h.GetFilters, huma.OperationTags("datasets"))
	huma.Post(api, "/api/v1/datasets/{key}/load", h.LoadDataset, huma.OperationTags("datasets"))
	huma.Get(api, "/api/v1/datasets/{key}/download", h.Download, huma.OperationTags("datasets"))
	huma.Get(api, "/api/v1/datasets/{key}/layers", h.GetLayers, huma.OperationTags("datasets"))
	huma.Get(api, "/api/v1/datasets/{key}/tiles/{z}/{x}/{y}", h.GetTile, huma.OperationTags("datasets"))
	huma.Get(api, "/api/v1/datasets/{key}/features/{id}", h.GetFeature, huma.OperationTags("datasets"))
	huma.Get(api, "/api/v1/populate", h.GetPopulate, huma.OperationTags("datasets"))
}

// Handlers

func (h *APIHandler) ListDatasets(ctx context.Context, input *struct{}) (*struct{ Body []DatasetBody }, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DatasetBody, 0, len(dataset.Keys))
	for _, k := range dataset.Keys {
		out = append(out, datasetBody(sess, k))
	}
	return &struct{ Body []DatasetBody }{Body: out}, nil
}

func (h *APIHandler) GetDataset(ctx context.Context, input *KeyInput) (*struct{ Body DatasetBody }, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	return &struct{ Body DatasetBody }{Body: datasetBody(sess, key)}, nil
}

func datasetBody(sess *state.Session, key dataset.Key) DatasetBody {
	spec, _ := dataset.Lookup(key)
	b := DatasetBody{
		Key:     key,
		Title:   spec.Title,
		Filters: filter.ToClientSchema(spec.Filters),
		Units:   spec.Units,
		Visible: sess.Visible(key),
		Pending: sess.Pending(key),
	}
	if l, ok := sess.Loaded(key); ok {
		b.Loaded = &LoadedSummary{
			Features: len(l.Collection.Features),
			Range:    observed(key, l),
			Filtered: l.Request.Filter,
			LoadedAt: l.LoadedAt,
		}
	}
	return b
}

func (h *APIHandler) GetFilters(ctx context.Context, input *KeyInput) (*struct{ Body FiltersBody }, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	defs := dataset.Filters(key)
	snap, err := h.svc.Populate.Dataset(ctx, key, auth.Privileged(ctx))
	if err != nil {
		return nil, storeError("failed to compute filter bounds", err)
	}
	client := filter.ToClientSchema(defs)
	defaults := filter.Defaults(snap, defs)
	signals, err := form.Signals(client, defaults)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to build form signals", err)
	}
	return &struct{ Body FiltersBody }{Body: FiltersBody{
		Key:      key,
		Filters:  client,
		Defaults: defaults,
		Signals:  signals,
		Snapshot: snap,
	}}, nil
}

func (h *APIHandler) GetPopulate(ctx context.Context, input *struct{}) (*struct{ Body populate.Snapshot }, error) {
	snap, err := h.svc.Populate.Build(ctx, auth.Privileged(ctx))
	if err != nil {
		return nil, storeError("failed to compute filter bounds", err)
	}
	return &struct{ Body populate.Snapshot }{Body: snap}, nil
}

func (h *APIHandler) LoadDataset(ctx context.Context, input *struct {
	KeyInput
	Body query.Request
}) (*struct{ Body LoadBody }, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	o := h.svc.Load(ctx, sess, key, input.Body)
	return &struct{ Body LoadBody }{Body: LoadBody{
		Dataset:    key,
		Ticket:     o.Ticket.ID,
		Superseded: !o.Applied,
		Result:     o.Result,
	}}, nil
}

func (h *APIHandler) Download(ctx context.Context, input *DownloadInput) (*DownloadOutput, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	l, ok := sess.Loaded(key)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("%s is not loaded", key))
	}

	// The full result is fetched again with the stored parameters.
	res := h.svc.Executor.LoadDataset(ctx, key, l.Request, l.Privileged && auth.Privileged(ctx))
	if !res.Success {
		return nil, huma.Error500InternalServerError(res.Error)
	}
	fc := res.Data.GeoJSON

	var buf bytes.Buffer
	out := &DownloadOutput{}
	switch input.Format {
	case FormatCSV:
		spec, _ := dataset.Lookup(key)
		cols := make([]string, 0, len(spec.Attributes))
		for _, a := range spec.Attributes {
			cols = append(cols, a.Name)
		}
		err = export.CSV(&buf, fc, cols...)
		out.ContentType = "text/csv; charset=utf-8"
	case FormatPMTiles:
		err = tiles.Archive(&buf, fc, string(key), 0, h.svc.Export.TileMaxZoom)
		if errors.Is(err, pmtiles.ErrNoTiles) || errors.Is(err, pmtiles.ErrDirectoryTooLarge) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		out.ContentType = "application/vnd.pmtiles"
	default:
		err = export.WriteGeoJSON(&buf, export.GeoJSON(fc))
		out.ContentType = "application/geo+json"
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to encode download", err)
	}
	out.ContentDisposition = fmt.Sprintf(`attachment; filename="%s.%s"`, key, input.Format)
	out.Body = buf.Bytes()
	return out, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *KeyInput) (*struct{ Body LayersBody }, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	l, _ := sess.Loaded(key)
	rng := observed(key, l)
	visible := sess.Visible(key)
	return &struct{ Body LayersBody }{Body: LayersBody{
		Dataset: key,
		Visible: visible,
		Range:   rng,
		Layers:  h.svc.Binder.Bind(key, visible, rng),
	}}, nil
}

func (h *APIHandler) GetTile(ctx context.Context, input *TileInput) (*TileOutput, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	if err := tiles.Validate(input.Z, input.X, input.Y); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	l, ok := sess.Loaded(key)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("%s is not loaded", key))
	}

	data, err := tiles.Tile(l.Collection, string(key), maptile.New(input.X, input.Y, maptile.Zoom(input.Z)))
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to encode tile", err)
	}
	if data == nil {
		return &TileOutput{Status: http.StatusNoContent}, nil
	}
	return &TileOutput{
		Status:          http.StatusOK,
		ContentType:     "application/vnd.mapbox-vector-tile",
		ContentEncoding: "gzip",
		Body:            data,
	}, nil
}

func (h *APIHandler) GetFeature(ctx context.Context, input *FeatureInput) (*struct{ Body FeatureBody }, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	body, ok := FeatureDetail(sess, key, input.ID)
	if !ok {
		return nil, huma.Error404NotFound("feature not found")
	}
	return &struct{ Body FeatureBody }{Body: body}, nil
}
