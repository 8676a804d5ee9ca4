package portal

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-hazard/internal/humastar"
	"github.com/joeblew999/plat-hazard/internal/state"
)

// Events streams the caller's state changes, and palette changes, until the
// client disconnects. The panel is rendered once on connect.
func (h *Handler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	sess, err := session(ctx)
	if err != nil {
		return nil, err
	}
	bus := h.svc.Bus
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			var ch chan state.Event
			if bus != nil {
				ch = bus.Subscribe()
				defer bus.Unsubscribe(ch)
			}
			sse.Patch(h.loadedPanel(sess), LoadedPanel)

			done := humaCtx.Context().Done()
			for {
				select {
				case <-done:
					return
				case ev := <-ch:
					h.forward(sse, sess, ev)
				}
			}
		},
	}, nil
}

// forward relays one bus event to the client if it concerns it.
func (h *Handler) forward(sse humastar.SSE, sess *state.Session, ev state.Event) {
	if ev.Session != "" && ev.Session != sess.ID() {
		return
	}
	switch ev.Slice {
	case state.SliceData, state.SliceVisibility:
		sse.Patch(h.loadedPanel(sess), LoadedPanel)
	case state.SliceMapStyle:
		sse.Signals(map[string]any{MapRoot: map[string]any{"style": sess.MapStyle()}})
	}
	sse.DispatchCustomEvent("hazard-state", map[string]any{
		"slice":   string(ev.Slice),
		"action":  ev.Action,
		"dataset": ev.Dataset,
		"message": ev.Message,
	})
}
