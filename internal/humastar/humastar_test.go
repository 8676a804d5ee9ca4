package humastar

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/go-chi/chi/v5"

	"github.com/joeblew999/plat-hazard/internal/templates"
)

type itemBody struct {
	Key string `json:"key"`
}

func (b itemBody) Actions() []Action {
	return ActionsFor(b.Key, []ActionDef{
		{Rel: "download", Pattern: "/api/v1/things/%s/download", Method: http.MethodGet, Title: "Download"},
	})
}

type itemOutput struct {
	Body itemBody
}

type keyInput struct {
	Key string `path:"key"`
}

func newTestAPI(t *testing.T) (humatest.TestAPI, *Links) {
	t.Helper()
	links := NewLinks("portal")
	cfg := huma.DefaultConfig("test", "1.0.0")
	cfg.Transformers = append(cfg.Transformers, links.Transformer())
	api := humatest.Wrap(t, humachi.New(chi.NewMux(), cfg))

	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Tags: []string{"system"}},
		func(context.Context, *EmptyInput) (*struct{}, error) { return nil, nil })
	huma.Register(api, huma.Operation{OperationID: "list", Method: http.MethodGet, Path: "/api/v1/things", Tags: []string{"things"}},
		func(context.Context, *EmptyInput) (*struct{}, error) { return nil, nil })
	huma.Register(api, huma.Operation{OperationID: "get", Method: http.MethodGet, Path: "/api/v1/things/{key}", Tags: []string{"things"}},
		func(_ context.Context, in *keyInput) (*itemOutput, error) {
			return &itemOutput{Body: itemBody{Key: in.Key}}, nil
		})
	huma.Register(api, huma.Operation{OperationID: "put", Method: http.MethodPut, Path: "/api/v1/things/{key}", Tags: []string{"things"}},
		func(context.Context, *keyInput) (*struct{}, error) { return nil, nil })
	huma.Register(api, huma.Operation{OperationID: "stream", Method: http.MethodPost, Path: "/api/v1/portal/things", Tags: []string{"portal"}},
		func(context.Context, *EmptyInput) (*huma.StreamResponse, error) {
			h := &Handler{}
			return h.Stream(func(sse SSE) {
				sse.Patch("<p>hi</p>", "#out")
				sse.Signals(map[string]any{"count": 1})
			}), nil
		})
	links.Build(api)
	return api, links
}

func TestLinksBuild(t *testing.T) {
	_, links := newTestAPI(t)

	entry := links.For(EntryPath)
	for _, want := range []string{
		`</api/v1/things>; rel="things"`,
		`</openapi.json>; rel="service-desc"`,
	} {
		if !slices.Contains(entry, want) {
			t.Errorf("entry links missing %s: %v", want, entry)
		}
	}
	for _, l := range entry {
		if strings.Contains(l, "/portal/") {
			t.Errorf("skipped tag leaked into links: %s", l)
		}
	}

	item := links.For("/api/v1/things/{key}")
	for _, want := range []string{
		`</api/v1/things>; rel="collection"`,
		`</api/v1/things/{key}>; rel="edit"`,
	} {
		if !slices.Contains(item, want) {
			t.Errorf("item links missing %s: %v", want, item)
		}
	}
	if coll := links.For("/api/v1/things"); !slices.Contains(coll, `</api/v1/things/{key}>; rel="item"`) {
		t.Errorf("collection links = %v", coll)
	}
}

func TestLinkTransformer(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.Get("/api/v1/things/abc")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	got := resp.Header().Values("Link")
	for _, want := range []string{
		`</api/v1/things/abc>; rel="self"`,
		`</api/v1/things/abc/download>; rel="download"; method="GET"; title="Download"`,
	} {
		if !slices.Contains(got, want) {
			t.Errorf("Link headers missing %s: %v", want, got)
		}
	}
}

func TestStreamWritesDatastarEvents(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.Post("/api/v1/portal/things")
	body := resp.Body.String()
	if !strings.HasPrefix(resp.Header().Get("Content-Type"), "text/event-stream") {
		t.Errorf("content type = %q", resp.Header().Get("Content-Type"))
	}
	for _, want := range []string{"datastar-patch-elements", "selector #out", "<p>hi</p>", "datastar-patch-signals"} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q:\n%s", want, body)
		}
	}
	if len(resp.Header().Values("Link")) != 0 {
		t.Errorf("portal operations get no links")
	}
}

func TestParseSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"filters":{"vlc":{"country":"Japan"}},"n":2,"ok":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Object("filters").Object("vlc").String("country"); got != "Japan" {
		t.Errorf("nested string = %q", got)
	}
	if s.Float("n") != 2 || !s.Bool("ok") || !s.Has("filters") || s.Has("missing") {
		t.Errorf("scalar accessors wrong: %v", s)
	}
	if got := string(s.Object("filters").Raw("vlc")); got != `{"country":"Japan"}` {
		t.Errorf("Raw = %s", got)
	}
	if s.Object("n") != nil || s.Raw("missing") != nil {
		t.Error("missing or non-object values must be nil")
	}

	empty, err := ParseSignals(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty body = %v, %v", empty, err)
	}
	in := &SignalsInput{RawBody: []byte("{")}
	if _, err := in.MustParse(); err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestActionLinkHeader(t *testing.T) {
	a := Action{Rel: "clear", Href: "/api/v1/data", Method: http.MethodDelete, Title: "Clear", Schema: "/s.json"}
	want := `</api/v1/data>; rel="clear"; method="DELETE"; title="Clear"; schema="/s.json"`
	if got := a.LinkHeader(); got != want {
		t.Errorf("got %s", got)
	}

	quoted := Action{Rel: "load", Href: "/x", Title: `Load "vlc"`}
	if got := quoted.LinkHeader(); got != `</x>; rel="load"; title="Load \"vlc\""` {
		t.Errorf("got %s", got)
	}
}

func TestRenderHelpers(t *testing.T) {
	r, err := templates.New()
	if err != nil {
		t.Fatal(err)
	}
	h := &Handler{Renderer: r}

	empty := h.RenderList("dataset-card", nil, "Nothing loaded", "Load a dataset")
	if !strings.Contains(empty, "Nothing loaded") {
		t.Errorf("empty state = %s", empty)
	}
	opts := h.RenderSelect("Style", []SelectOptionData{{Value: "dark", Label: "Dark", Selected: true}})
	if !strings.Contains(opts, `<option value="">Style</option>`) || !strings.Contains(opts, `<option value="dark" selected>Dark</option>`) {
		t.Errorf("select = %s", opts)
	}
	if n := h.Notification("error", "failed"); !strings.Contains(n, `notification error`) {
		t.Errorf("notification = %s", n)
	}
}
