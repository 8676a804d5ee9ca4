package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/layers"
	"github.com/joeblew999/plat-hazard/internal/service"
)

type PaletteBody struct {
	Dataset    dataset.Key    `json:"dataset" doc:"Dataset key"`
	Overridden bool           `json:"overridden" doc:"Whether the built-in palette is overridden"`
	Palette    layers.Palette `json:"palette" doc:"Effective palette"`
}

// RegisterPalettes registers palette override routes.
func (h *APIHandler) RegisterPalettes(api huma.API) {
	huma.Get(api, "/api/v1/palettes", h.ListPalettes, huma.OperationTags("palettes"))
	huma.Get(api, "/api/v1/palettes/{key}", h.GetPalette, huma.OperationTags("palettes"))
	huma.Put(api, "/api/v1/palettes/{key}", h.PutPalette, huma.OperationTags("palettes"))
	huma.Delete(api, "/api/v1/palettes/{key}", h.DeletePalette, huma.OperationTags("palettes"))
}

func (h *APIHandler) paletteBody(key dataset.Key) PaletteBody {
	p, overridden := h.svc.Palettes.Get(key)
	return PaletteBody{Dataset: key, Overridden: overridden, Palette: p}
}

func (h *APIHandler) ListPalettes(ctx context.Context, input *struct{}) (*struct{ Body []PaletteBody }, error) {
	out := make([]PaletteBody, 0, len(dataset.Keys))
	for _, k := range dataset.Keys {
		out = append(out, h.paletteBody(k))
	}
	return &struct{ Body []PaletteBody }{Body: out}, nil
}

func (h *APIHandler) GetPalette(ctx context.Context, input *KeyInput) (*struct{ Body PaletteBody }, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	return &struct{ Body PaletteBody }{Body: h.paletteBody(key)}, nil
}

func (h *APIHandler) PutPalette(ctx context.Context, input *struct {
	KeyInput
	Body layers.Palette
}) (*struct{ Body PaletteBody }, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	if err := h.svc.Palettes.Put(key, input.Body); err != nil {
		if errors.Is(err, layers.ErrPalette) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to save palette", err)
	}
	return &struct{ Body PaletteBody }{Body: h.paletteBody(key)}, nil
}

func (h *APIHandler) DeletePalette(ctx context.Context, input *KeyInput) (*MessageOutput, error) {
	key, err := parseKey(input.Key)
	if err != nil {
		return nil, err
	}
	if err := h.svc.Palettes.Delete(key); err != nil {
		if errors.Is(err, service.ErrNoOverride) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to delete palette", err)
	}
	return &MessageOutput{Body: MessageBody{Message: "Palette reset"}}, nil
}
