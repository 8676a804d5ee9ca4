package api

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-hazard/internal/auth"
	"github.com/joeblew999/plat-hazard/internal/store"
)

type InfoHandler struct {
	dataDir string
	store   store.Store
}

// NewInfoHandler creates the info handler. s may be nil when no store is
// configured.
func NewInfoHandler(dataDir string, s store.Store) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, store: s}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name       string   `json:"name" doc:"Service name"`
	Version    string   `json:"version" doc:"Service version"`
	DataDir    string   `json:"data_dir" doc:"Data directory path"`
	Store      string   `json:"store" doc:"Store driver, empty when none is configured"`
	DB         bool     `json:"db" doc:"Whether the store answers"`
	Privileged bool     `json:"privileged" doc:"Whether the caller sees restricted sources"`
	Features   []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:       "plat-hazard",
		Version:    Version,
		DataDir:    h.dataDir,
		Privileged: auth.Privileged(ctx),
		Features:   []string{"filters", "geojson", "csv", "pmtiles", "mvt", "map-export"},
	}
	if h.store != nil {
		body.Store = h.store.Driver()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		body.DB = h.store.Ping(pingCtx) == nil
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
