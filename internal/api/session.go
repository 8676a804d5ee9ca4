package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/filter"
	"github.com/joeblew999/plat-hazard/internal/layers"
)

// MapStyles are the selectable basemap styles.
var MapStyles = []string{"light", "dark", "satellite", "terrain"}

// DefaultMapStyle is reported until a style is selected.
const DefaultMapStyle = "light"

// Types

type SessionBody struct {
	ID       string               `json:"id" doc:"Session id"`
	Visible  map[dataset.Key]bool `json:"visible" doc:"Layer visibility by dataset"`
	Loaded   []dataset.Key        `json:"loaded" doc:"Datasets with a loaded result"`
	Region   *geojson.Geometry    `json:"region,omitempty" doc:"Drawn region"`
	MapStyle string               `json:"mapStyle" doc:"Basemap style"`
	Selected *layers.FeatureRef   `json:"selected,omitempty" doc:"Selected feature"`
}

type VisibilityBody struct {
	Visible bool `json:"visible" doc:"Show or hide the dataset's layers"`
}

type MapStyleBody struct {
	Style string `json:"style" enum:"light,dark,satellite,terrain" doc:"Basemap style"`
}

// RegisterSession registers routes over the caller's portal state.
func (h *APIHandler) RegisterSession(api huma.API) {
	huma.Get(api, "/api/v1/session", h.GetSession, huma.OperationTags("session"))
	huma.Put(api, "/api/v1/region", h.PutRegion, huma.OperationTags("session"))
	huma.Delete(api, "/api/v1/region", h.DeleteRegion, huma.OperationTags("session"))
	huma.Put(api, "/api/v1/visibility/{key}", h.PutVisibility, huma.OperationTags("session"))
	huma.Delete(api, "/api/v1/data", h.ClearData, huma.OperationTags("session"))
	huma.Put(api, "/api/v1/map-style", h.PutMapStyle, huma.OperationTags("session"))
}

// Handlers

func (h *APIHandler) GetSession(ctx context.Context, input *struct{}) (*struct{ Body SessionBody }, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	b := SessionBody{
		ID:       sess.ID(),
		Visible:  make(map[dataset.Key]bool, len(dataset.Keys)),
		Loaded:   sess.LoadedKeys(),
		MapStyle: sess.MapStyle(),
	}
	if b.Loaded == nil {
		b.Loaded = []dataset.Key{}
	}
	if b.MapStyle == "" {
		b.MapStyle = DefaultMapStyle
	}
	for _, k := range dataset.Keys {
		b.Visible[k] = sess.Visible(k)
	}
	if r := sess.Region(); r != nil {
		b.Region = geojson.NewGeometry(r)
	}
	if f, ok := sess.Selected(); ok {
		b.Selected = &f
	}
	return &struct{ Body SessionBody }{Body: b}, nil
}

func (h *APIHandler) PutRegion(ctx context.Context, input *struct {
	RawBody []byte
}) (*MessageOutput, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	g, err := filter.ParseRegion(input.RawBody)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	if err := sess.SetRegion(g); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	return &MessageOutput{Body: MessageBody{Message: "Region set"}}, nil
}

func (h *APIHandler) DeleteRegion(ctx context.Context, input *struct{}) (*MessageOutput, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	sess.ClearRegion()
	return &MessageOutput{Body: MessageBody{Message: "Region cleared"}}, nil
}

func (h *APIHandler) PutVisibility(ctx context.Context, input *struct {
	KeyInput
	Body VisibilityBody
}) (*struct{ Body VisibilityBody }, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	sess.SetVisible(key, input.Body.Visible)
	return &struct{ Body VisibilityBody }{Body: VisibilityBody{Visible: sess.Visible(key)}}, nil
}

func (h *APIHandler) ClearData(ctx context.Context, input *struct{}) (*MessageOutput, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	sess.ClearAll()
	return &MessageOutput{Body: MessageBody{Message: "All data cleared"}}, nil
}

func (h *APIHandler) PutMapStyle(ctx context.Context, input *struct{ Body MapStyleBody }) (*struct{ Body MapStyleBody }, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	sess.SetMapStyle(input.Body.Style)
	return &struct{ Body MapStyleBody }{Body: input.Body}, nil
}
