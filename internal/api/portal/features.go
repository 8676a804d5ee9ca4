package portal

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-hazard/internal/api"
	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/humastar"
	"github.com/joeblew999/plat-hazard/internal/layers"
)

const emptyFeaturePanel = `<div id="feature-detail"></div>`

// featureRef reads {source, id} from a signal object.
func featureRef(s humastar.Signals) (layers.FeatureRef, bool) {
	if s == nil {
		return layers.FeatureRef{}, false
	}
	ref := layers.FeatureRef{Source: s.String("source")}
	switch id := s["id"].(type) {
	case string, float64:
		ref.ID = layers.FeatureID(id)
	}
	return ref, ref.Source != "" && ref.ID != ""
}

// Hover moves the hover flag to the feature in the "hover" signal, or
// clears it when the signal is empty. The resulting feature-state
// operations are sent back in order.
func (h *Handler) Hover(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	var ops []layers.StateOp
	if ref, ok := featureRef(signals.Object("hover")); ok {
		ops = sess.Hover(ref)
	} else {
		ops = sess.Leave()
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{FeatureOps: opsOrEmpty(ops)})
	}), nil
}

// Select moves the selection to the feature in the "select" signal and
// renders its properties.
func (h *Handler) Select(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	ref, ok := featureRef(signals.Object("select"))
	if !ok {
		return h.deselect(sess.Deselect()), nil
	}
	key, err := parseKey(ref.Source)
	if err != nil {
		return nil, err
	}
	detail, found := api.FeatureDetail(sess, key, ref.ID)
	if !found {
		return nil, huma.Error404NotFound("feature not found")
	}
	ops := sess.Select(ref)

	spec, _ := dataset.Lookup(key)
	html, err := h.Renderer.Render("feature-detail", map[string]any{
		"Source": ref.Source,
		"ID":     ref.ID,
		"Title":  spec.Title,
		"Rows":   detail.Properties,
	})
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to render feature", err)
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{FeatureOps: opsOrEmpty(ops)})
		sse.Patch(html, FeaturePanel)
	}), nil
}

// Deselect clears the selection.
func (h *Handler) Deselect(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	return h.deselect(sess.Deselect()), nil
}

func (h *Handler) deselect(ops []layers.StateOp) *huma.StreamResponse {
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{FeatureOps: opsOrEmpty(ops)})
		sse.Replace(emptyFeaturePanel, FeaturePanel)
	})
}

func opsOrEmpty(ops []layers.StateOp) []layers.StateOp {
	if ops == nil {
		return []layers.StateOp{}
	}
	return ops
}
