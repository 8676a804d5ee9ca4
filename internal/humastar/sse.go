// Package humastar connects Huma operations to Datastar.
//
// Portal operations return a [huma.StreamResponse] built by [Handler.Stream];
// the callback receives an [SSE] that writes Datastar events on the
// underlying chi response. Request signals are read with [SignalsInput].
// JSON operations get RFC 8288 Link headers from [Links].
package humastar

import (
	"bytes"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-hazard/internal/templates"
)

// EmptyInput is the input of operations without parameters.
type EmptyInput struct{}

// SSE writes Datastar events for one portal request.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE opens the event stream of a request served through humachi.
func NewSSE(ctx huma.Context) SSE {
	r, w := humachi.Unwrap(ctx)
	return SSE{ServerSentEventGenerator: datastar.NewSSE(w, r)}
}

// Patch sets the children of selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html, datastar.WithSelector(selector), datastar.WithModeInner(), datastar.WithViewTransitions())
}

// Replace swaps the element at selector.
func (s SSE) Replace(html, selector string) {
	s.PatchElements(html, datastar.WithSelector(selector), datastar.WithModeOuter(), datastar.WithViewTransitions())
}

// Append adds html after the last child of selector.
func (s SSE) Append(html, selector string) {
	s.PatchElements(html, datastar.WithSelector(selector), datastar.WithModeAppend())
}

// Signals merges values into the client signals. Nil values remove the
// signal on the client.
func (s SSE) Signals(values map[string]any) {
	s.MarshalAndPatchSignals(values)
}

// Handler is embedded by portal handlers.
type Handler struct {
	Renderer *templates.Renderer
}

// Stream wraps fn as a streaming Huma response.
func (h *Handler) Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{Body: func(ctx huma.Context) { fn(NewSSE(ctx)) }}
}

// SelectOptionData is the data of the select-option fragment.
type SelectOptionData struct {
	Value    string
	Label    string
	Selected bool
}

// RenderList renders each item with tmpl. An empty list renders the
// empty-state fragment with title and msg.
func (h *Handler) RenderList(tmpl string, items []any, title, msg string) string {
	if len(items) == 0 {
		return h.fragment("empty-state", map[string]string{"Title": title, "Message": msg})
	}
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString(h.fragment(tmpl, item))
	}
	return sb.String()
}

// RenderSelect renders a placeholder option with an empty value followed
// by options.
func (h *Handler) RenderSelect(placeholder string, options []SelectOptionData) string {
	var sb strings.Builder
	sb.WriteString(h.fragment("select-option", SelectOptionData{Label: placeholder}))
	for _, o := range options {
		sb.WriteString(h.fragment("select-option", o))
	}
	return sb.String()
}

// Notification renders a status message; level is "info", "success" or "error".
func (h *Handler) Notification(level, msg string) string {
	return h.fragment("notification", map[string]string{"Level": level, "Message": msg})
}

// fragment renders what it can. A broken fragment yields a partial or
// empty string rather than failing the stream.
func (h *Handler) fragment(name string, data any) string {
	var buf bytes.Buffer
	_ = h.Renderer.RenderToBuffer(&buf, name, data)
	return buf.String()
}
