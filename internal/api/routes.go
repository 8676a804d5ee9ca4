// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-hazard/internal/config"
	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/layers"
	"github.com/joeblew999/plat-hazard/internal/populate"
	"github.com/joeblew999/plat-hazard/internal/query"
	"github.com/joeblew999/plat-hazard/internal/service"
	"github.com/joeblew999/plat-hazard/internal/state"
	"github.com/joeblew999/plat-hazard/internal/store"
)

// Version is reported by the health and info endpoints.
const Version = "1.0.0"

// Services holds the service dependencies for API handlers.
type Services struct {
	Executor *query.Executor
	Populate *populate.Builder
	Palettes *service.PaletteService
	Binder   *layers.Binder
	Bus      *state.Bus
	Export   config.ExportConfig
	Logger   *zap.Logger
}

// Types

type KeyInput struct {
	Key string `path:"key" doc:"Dataset key" enum:"vlc,smt,gnss,flt,seis,hf,slab2,slip,rock" example:"vlc"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type MessageOutput struct {
	Body MessageBody
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	if svc.Logger == nil {
		svc.Logger = zap.NewNop()
	}
	if svc.Binder == nil {
		svc.Binder = layers.NewBinder(svc.Palettes)
	}
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

// parseKey maps an unknown dataset key to 404.
func parseKey(s string) (dataset.Key, error) {
	k, err := dataset.Parse(s)
	if err != nil {
		return "", huma.Error404NotFound(err.Error())
	}
	return k, nil
}

// session returns the caller's session attached by the session middleware.
func session(ctx context.Context) (*state.Session, error) {
	s := state.FromContext(ctx)
	if s == nil {
		return nil, huma.Error500InternalServerError("no session")
	}
	return s, nil
}

// storeError maps store failures to 503 and everything else to 500.
func storeError(msg string, err error) error {
	if errors.Is(err, store.ErrUnavailable) {
		return huma.Error503ServiceUnavailable("store unavailable")
	}
	return huma.Error500InternalServerError(msg, err)
}
