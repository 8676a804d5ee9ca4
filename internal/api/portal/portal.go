// Package portal contains the Datastar SSE handlers of the portal UI.
package portal

import (
	"context"
	"fmt"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-hazard/internal/api"
	"github.com/joeblew999/plat-hazard/internal/auth"
	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/filter"
	"github.com/joeblew999/plat-hazard/internal/form"
	"github.com/joeblew999/plat-hazard/internal/humastar"
	"github.com/joeblew999/plat-hazard/internal/query"
	"github.com/joeblew999/plat-hazard/internal/state"
	"github.com/joeblew999/plat-hazard/internal/templates"
)

// Tag marks every portal operation.
const Tag = "portal"

// Page element selectors.
const (
	LoadedPanel    = "#loaded-datasets"
	FeaturePanel   = "#feature-detail"
	Notifications  = "#notifications"
	MapStyleSelect = "#map-style"
)

// Signal roots besides the form roots.
const (
	PendingRoot  = "pending"
	DatasetsRoot = "datasets"
	FeatureOps   = "featureOps"
	MapRoot      = "map"
)

// FormPanel returns the selector of the element holding a dataset's form.
func FormPanel(key dataset.Key) string { return "#panel-" + string(key) }

// Handler serves the portal's SSE endpoints.
type Handler struct {
	humastar.Handler
	svc *api.Services
}

// NewHandler creates a portal handler.
func NewHandler(svc *api.Services, renderer *templates.Renderer) *Handler {
	return &Handler{Handler: humastar.Handler{Renderer: renderer}, svc: svc}
}

type keyInput struct {
	Key string `path:"key" doc:"Dataset key"`
}

type keySignalsInput struct {
	Key     string `path:"key" doc:"Dataset key"`
	RawBody []byte
}

type dateInput struct {
	Key     string `path:"key" doc:"Dataset key"`
	Filter  string `path:"filter" doc:"Date filter key"`
	RawBody []byte
}

func (h *Handler) RegisterRoutes(humaAPI huma.API) {
	tags := huma.OperationTags(Tag)
	huma.Get(humaAPI, "/api/v1/portal/panel", h.Panel, tags)
	huma.Get(humaAPI, "/api/v1/portal/forms/{key}", h.Form, tags)
	huma.Post(humaAPI, "/api/v1/portal/forms/{key}/dates/{filter}", h.ReconcileDates, tags)
	huma.Post(humaAPI, "/api/v1/portal/load/{key}", h.Load, tags)
	huma.Post(humaAPI, "/api/v1/portal/toggle/{key}", h.Toggle, tags)
	huma.Post(humaAPI, "/api/v1/portal/clear", h.Clear, tags)
	huma.Post(humaAPI, "/api/v1/portal/map-style", h.MapStyle, tags)
	huma.Post(humaAPI, "/api/v1/portal/hover", h.Hover, tags)
	huma.Post(humaAPI, "/api/v1/portal/select", h.Select, tags)
	huma.Post(humaAPI, "/api/v1/portal/deselect", h.Deselect, tags)
	huma.Get(humaAPI, "/api/v1/portal/events", h.Events, tags)
}

func parseKey(s string) (dataset.Key, error) {
	k, err := dataset.Parse(s)
	if err != nil {
		return "", huma.Error404NotFound(err.Error())
	}
	return k, nil
}

func session(ctx context.Context) (*state.Session, error) {
	s := state.FromContext(ctx)
	if s == nil {
		return nil, huma.Error500InternalServerError("no session")
	}
	return s, nil
}

// nested builds {root: {key: v}}.
func nested(root string, key dataset.Key, v any) map[string]any {
	return map[string]any{root: map[string]any{string(key): v}}
}

// Panel renders the loaded datasets and the map style selector.
func (h *Handler) Panel(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Patch(h.loadedPanel(sess), LoadedPanel)
		sse.Patch(h.mapStyleOptions(sess), MapStyleSelect)
	}), nil
}

// Form renders the filter form of a dataset and initialises its signals
// from the populate snapshot.
func (h *Handler) Form(ctx context.Context, input *keyInput) (*huma.StreamResponse, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	defs := dataset.Filters(key)
	snap, err := h.svc.Populate.Dataset(ctx, key, auth.Privileged(ctx))
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("filter bounds unavailable", err)
	}
	client := filter.ToClientSchema(defs)
	html, err := form.Render(key, client, snap, form.DefaultRoutes(key))
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to render form", err)
	}
	initial, err := form.Signals(client, filter.Defaults(snap, defs))
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to build form signals", err)
	}
	signals := nested(form.SignalRoot, key, initial)
	signals[form.ErrorRoot] = map[string]any{string(key): clearedErrors(client)}
	signals[PendingRoot] = map[string]any{string(key): sess.Pending(key)}

	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(signals)
		sse.Patch(html, FormPanel(key))
	}), nil
}

// ReconcileDates applies a calendar pick to a date filter's range.
func (h *Handler) ReconcileDates(ctx context.Context, input *dateInput) (*huma.StreamResponse, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	var isDate bool
	for _, d := range dataset.Filters(key) {
		if d.FilterKey() == input.Filter && d.FilterKind() == dataset.KindDate {
			isDate = true
		}
	}
	if !isDate {
		return nil, huma.Error404NotFound(fmt.Sprintf("%s has no date filter %q", key, input.Filter))
	}
	signals, err := humastar.ParseSignals(input.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}

	ds := form.Dataset(signals, key)
	f := input.Filter
	current, errCur := dateRange(ds, f+"From", f+"To")
	next, errNext := dateRange(ds, f+"PickFrom", f+"PickTo")
	if errNext != nil {
		return nil, huma.Error422UnprocessableEntity(errNext.Error())
	}
	out := next
	if errCur == nil {
		out = form.ReconcileDateRange(current, next)
	}

	from, to := out.From.UTC().Format(form.DateLayout), out.To.UTC().Format(form.DateLayout)
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(nested(form.SignalRoot, key, map[string]any{
			f + "From": from, f + "To": to,
			f + "PickFrom": from, f + "PickTo": to,
		}))
	}), nil
}

func dateRange(sig map[string]any, fromKey, toKey string) (filter.DateRange, error) {
	from, err := form.ParseDate(sig[fromKey], false)
	if err != nil {
		return filter.DateRange{}, err
	}
	to, err := form.ParseDate(sig[toKey], false)
	if err != nil {
		return filter.DateRange{}, err
	}
	return filter.DateRange{From: from, To: to}, nil
}

// clearedErrors resets every inline validation message of a form.
func clearedErrors(defs []filter.ClientDefinition) map[string]any {
	out := make(map[string]any, len(defs))
	for _, d := range defs {
		out[d.Key] = ""
	}
	return out
}

// Load submits a dataset form. Validation messages are patched next to the
// offending controls; a superseded submission patches nothing.
func (h *Handler) Load(ctx context.Context, input *keySignalsInput) (*huma.StreamResponse, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	signals, err := humastar.ParseSignals(input.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}

	client := filter.ToClientSchema(dataset.Filters(key))
	var req query.Request
	if client != nil {
		values, err := form.FormState(client, form.Dataset(signals, key))
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to read form", err)
		}
		req = query.Request{Filter: true, Values: values}
	}

	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(nested(PendingRoot, key, true))
		o := h.svc.Load(ctx, sess, key, req)
		if !o.Applied {
			return
		}

		errs := clearedErrors(client)
		for k, msg := range o.Result.FieldErrors {
			errs[k] = msg
		}
		out := nested(PendingRoot, key, false)
		out[form.ErrorRoot] = map[string]any{string(key): errs}

		spec, _ := dataset.Lookup(key)
		if !o.Result.Success {
			sse.Signals(out)
			sse.Append(h.Notification("error", o.Result.Error), Notifications)
			return
		}
		out[DatasetsRoot] = map[string]any{string(key): map[string]any{
			"ticket":   o.Ticket.ID,
			"features": len(o.Result.Data.GeoJSON.Features),
			"visible":  sess.Visible(key),
		}}
		sse.Signals(out)
		sse.Patch(h.loadedPanel(sess), LoadedPanel)
		sse.Append(h.Notification("success",
			fmt.Sprintf("Loaded %d %s", len(o.Result.Data.GeoJSON.Features), spec.Title)), Notifications)
	}), nil
}

// Toggle flips the visibility of a dataset.
func (h *Handler) Toggle(ctx context.Context, input *keyInput) (*huma.StreamResponse, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	visible := sess.Toggle(key)
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(nested(DatasetsRoot, key, map[string]any{"visible": visible}))
		sse.Patch(h.loadedPanel(sess), LoadedPanel)
	}), nil
}

// Clear drops every loaded result of the session.
func (h *Handler) Clear(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	sess.ClearAll()
	return h.Stream(func(sse humastar.SSE) {
		cleared := make(map[string]any, len(dataset.Keys))
		for _, k := range dataset.Keys {
			cleared[string(k)] = nil
		}
		sse.Signals(map[string]any{DatasetsRoot: cleared})
		sse.Patch(h.loadedPanel(sess), LoadedPanel)
		sse.Replace(emptyFeaturePanel, FeaturePanel)
	}), nil
}

// MapStyle selects the basemap style from the "mapStyle" signal.
func (h *Handler) MapStyle(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	style := signals.String("mapStyle")
	if !validStyle(style) {
		return nil, huma.Error422UnprocessableEntity(fmt.Sprintf("unknown map style %q", style))
	}
	sess.SetMapStyle(style)
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{MapRoot: map[string]any{"style": style}})
	}), nil
}

func validStyle(s string) bool { return slices.Contains(api.MapStyles, s) }
