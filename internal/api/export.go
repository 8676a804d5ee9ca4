package api

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-hazard/internal/export"
	"github.com/joeblew999/plat-hazard/internal/raster"
	"github.com/joeblew999/plat-hazard/internal/state"
)

// Export defaults used when the configuration leaves them unset.
const (
	defaultExportTimeout = 30 * time.Second
	defaultExportWidth   = 1600
	defaultExportHeight  = 1000
)

type ExportMapBody struct {
	Width  int       `json:"width,omitempty" minimum:"64" maximum:"4096" doc:"Image width in pixels"`
	Height int       `json:"height,omitempty" minimum:"64" maximum:"4096" doc:"Image height in pixels"`
	Bound  []float64 `json:"bound,omitempty" minItems:"4" maxItems:"4" doc:"[west, south, east, north]; defaults to the drawn region or the world"`
}

type ZipOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

// RegisterExport registers the map image export route.
func (h *APIHandler) RegisterExport(api huma.API) {
	huma.Post(api, "/api/v1/export/map", h.ExportMap, huma.OperationTags("export"))
}

// ExportMap renders the visible loaded datasets and returns a ZIP of the
// combined map, the basemap and one image per dataset.
func (h *APIHandler) ExportMap(ctx context.Context, input *struct {
	Body *ExportMapBody `required:"false"`
}) (*ZipOutput, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}

	opts := raster.Options{
		Width:  orDefault(h.svc.Export.Width, defaultExportWidth),
		Height: orDefault(h.svc.Export.Height, defaultExportHeight),
	}
	if region := sess.Region(); region != nil {
		opts.Bound = region.Bound()
	}
	if b := input.Body; b != nil {
		opts.Width = orDefault(b.Width, opts.Width)
		opts.Height = orDefault(b.Height, opts.Height)
		if len(b.Bound) == 4 {
			opts.Bound = orb.Bound{Min: orb.Point{b.Bound[0], b.Bound[1]}, Max: orb.Point{b.Bound[2], b.Bound[3]}}
		}
	}

	view, err := raster.NewView(opts, h.svc.Binder, visibleLayers(sess))
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	timeout := h.svc.Export.Timeout
	if timeout <= 0 {
		timeout = defaultExportTimeout
	}
	images, err := export.MapImages(ctx, view, timeout)
	if err != nil {
		if errors.Is(err, export.ErrRenderTimeout) {
			return nil, huma.Error504GatewayTimeout(err.Error())
		}
		return nil, huma.Error500InternalServerError("map export failed", err)
	}

	var buf bytes.Buffer
	if err := export.Zip(&buf, images, time.Now()); err != nil {
		return nil, huma.Error500InternalServerError("failed to package images", err)
	}
	return &ZipOutput{
		ContentType:        "application/zip",
		ContentDisposition: `attachment; filename="map_export.zip"`,
		Body:               buf.Bytes(),
	}, nil
}

// visibleLayers returns the loaded datasets that are shown, in dataset order.
func visibleLayers(sess *state.Session) []raster.Layer {
	var out []raster.Layer
	for _, k := range sess.LoadedKeys() {
		if !sess.Visible(k) {
			continue
		}
		l, _ := sess.Loaded(k)
		out = append(out, raster.Layer{Group: string(k), Key: k, Collection: l.Collection})
	}
	return out
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
