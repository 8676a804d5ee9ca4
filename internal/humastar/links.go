package humastar

import (
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// EntryPath is the API entry point that links to every collection.
const EntryPath = "/health"

type link struct {
	href string
	rel  string
}

func (l link) header() string {
	return Action{Href: l.href, Rel: l.rel}.LinkHeader()
}

// linkSet collects links per operation path, dropping duplicates.
type linkSet map[string][]link

func (s linkSet) add(from, to, rel string) {
	l := link{href: to, rel: rel}
	if !slices.Contains(s[from], l) {
		s[from] = append(s[from], l)
	}
}

// route is a registered, linkable path of the OpenAPI document.
type route struct {
	path string
	tags []string
	item *huma.PathItem
}

// templated reports whether the path has parameters, which makes it an
// item rather than a collection.
func (r route) templated() bool { return strings.Contains(r.path, "{") }

// Links holds RFC 8288 Link headers per operation path, computed from the
// OpenAPI document. The transformer can be installed before Build runs.
type Links struct {
	mu      sync.RWMutex
	headers map[string][]string
	skip    []string
}

// NewLinks returns an empty table. Operations tagged with one of skipTags
// get no links.
func NewLinks(skipTags ...string) *Links {
	return &Links{headers: map[string][]string{}, skip: skipTags}
}

func (l *Links) skipped(tags []string) bool {
	return slices.ContainsFunc(l.skip, func(t string) bool { return slices.Contains(tags, t) })
}

func (l *Links) routes(doc *huma.OpenAPI) (collections, items []route) {
	for p, pi := range doc.Paths {
		r := route{path: p, tags: firstTags(pi), item: pi}
		if l.skipped(r.tags) {
			continue
		}
		if r.templated() {
			items = append(items, r)
		} else {
			collections = append(collections, r)
		}
	}
	byPath := func(a, b route) int { return strings.Compare(a.path, b.path) }
	slices.SortFunc(collections, byPath)
	slices.SortFunc(items, byPath)
	return collections, items
}

// Build derives the links of every registered route and documents them as
// OpenAPI response links.
func (l *Links) Build(api huma.API) {
	doc := api.OpenAPI()
	collections, items := l.routes(doc)
	set := linkSet{}

	for _, it := range items {
		dir := path.Dir(it.path)
		for parent := dir; parent != "/"; parent = path.Dir(parent) {
			if _, ok := doc.Paths[parent]; !ok {
				continue
			}
			if parent == dir {
				set.add(it.path, parent, "collection")
			}
			set.add(it.path, parent, "up")
			break
		}
		if it.item.Put != nil || it.item.Patch != nil {
			set.add(it.path, it.path, "edit")
		}
	}

	for _, c := range collections {
		if c.path == EntryPath {
			continue
		}
		set.add(EntryPath, c.path, tail(c.path))
		set.add(c.path, EntryPath, "up")
		for _, it := range items {
			if path.Dir(it.path) == c.path {
				set.add(c.path, it.path, "item")
			}
		}
		for _, other := range collections {
			if other.path != c.path && other.path != EntryPath && overlaps(c.tags, other.tags) {
				set.add(c.path, other.path, tail(other.path))
			}
		}
	}
	set.add(EntryPath, "/openapi.json", "describedby")
	set.add(EntryPath, "/openapi.json", "service-desc")
	set.add(EntryPath, "/docs", "service-doc")

	for _, r := range append(collections, items...) {
		if schema := getSchemaName(r.item); schema != "" {
			set.add(r.path, "/openapi.json#/components/schemas/"+schema, "describedby")
		}
	}

	headers := make(map[string][]string, len(set))
	for p, links := range set {
		for _, lk := range links {
			headers[p] = append(headers[p], lk.header())
		}
		if pi, ok := doc.Paths[p]; ok {
			documentLinks(pi, links)
		}
	}

	l.mu.Lock()
	l.headers = headers
	l.mu.Unlock()
}

// For returns the Link header values of an operation path.
func (l *Links) For(opPath string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headers[opPath]
}

// Transformer writes the links of the matched operation, a self link on
// item paths and the actions of bodies implementing [Actor].
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil || l.skipped(op.Tags) {
			return v, nil
		}
		for _, h := range l.For(op.Path) {
			ctx.AppendHeader("Link", h)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", link{href: ctx.URL().Path, rel: "self"}.header())
		}
		if actor, ok := v.(Actor); ok {
			for _, a := range actor.Actions() {
				ctx.AppendHeader("Link", a.LinkHeader())
			}
		}
		return v, nil
	}
}

func operations(pi *huma.PathItem) []*huma.Operation {
	var ops []*huma.Operation
	for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
		if op != nil {
			ops = append(ops, op)
		}
	}
	return ops
}

func firstTags(pi *huma.PathItem) []string {
	for _, op := range operations(pi) {
		if len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func overlaps(a, b []string) bool {
	return slices.ContainsFunc(a, func(t string) bool { return slices.Contains(b, t) })
}

func tail(p string) string {
	return path.Base(strings.TrimRight(p, "/"))
}

func successResponse(op *huma.Operation) *huma.Response {
	for code, r := range op.Responses {
		if code[0] == '2' {
			return r
		}
	}
	return nil
}

// getSchemaName is the component schema name of the GET response at pi.
func getSchemaName(pi *huma.PathItem) string {
	if pi.Get == nil {
		return ""
	}
	resp := successResponse(pi.Get)
	if resp == nil {
		return ""
	}
	for _, mt := range resp.Content {
		if mt.Schema != nil && mt.Schema.Ref != "" {
			return tail(mt.Schema.Ref)
		}
	}
	return ""
}

// documentLinks records links as OpenAPI Link objects on the success
// responses of every operation at pi.
func documentLinks(pi *huma.PathItem, links []link) {
	for _, op := range operations(pi) {
		resp := successResponse(op)
		if resp == nil {
			continue
		}
		if resp.Links == nil {
			resp.Links = map[string]*huma.Link{}
		}
		for _, lk := range links {
			resp.Links[lk.rel] = &huma.Link{OperationRef: lk.href, Description: "Related: " + lk.rel}
		}
	}
}
