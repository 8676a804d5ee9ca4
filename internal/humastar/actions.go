package humastar

import (
	"fmt"
	"strings"
)

// Action is a hypermedia action that depends on the state of a resource,
// e.g. the downloads of a dataset that has been loaded. It is written as an
// RFC 8288 Link header with method, title and schema target attributes:
//
//	</api/v1/datasets/vlc/download?format=csv>; rel="download-csv"; method="GET"; title="Download CSV"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
	// Schema optionally points at the JSON Schema of the request body.
	Schema string
}

// Actor is implemented by response bodies that offer actions.
type Actor interface {
	Actions() []Action
}

// LinkHeader formats the action as a Link header value.
func (a Action) LinkHeader() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<%s>; rel="%s"`, a.Href, a.Rel)
	for _, attr := range [][2]string{{"method", a.Method}, {"title", a.Title}, {"schema", a.Schema}} {
		if attr[1] != "" {
			fmt.Fprintf(&b, `; %s="%s"`, attr[0], quoteEscaper.Replace(attr[1]))
		}
	}
	return b.String()
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// ActionDef is an action template; Pattern holds one %s verb for the
// resource key.
type ActionDef struct {
	Rel     string
	Pattern string
	Method  string
	Title   string
	Schema  string
}

// ActionsFor expands defs for the resource key id.
func ActionsFor(id string, defs []ActionDef) []Action {
	actions := make([]Action, len(defs))
	for i, d := range defs {
		actions[i] = Action{
			Rel:    d.Rel,
			Href:   fmt.Sprintf(d.Pattern, id),
			Method: d.Method,
			Title:  d.Title,
			Schema: d.Schema,
		}
	}
	return actions
}
