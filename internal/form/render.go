// Package form renders the filter controls of a dataset as Datastar-bound
// HTML and maps between the bound signals and the filter form state.
//
// Signals live under "filters.<dataset>":
//
//	select, search   → <key>                 string
//	range            → <key>Lo, <key>Hi      number
//	greaterThan      → <key>Lo, <key>Hi      number (Hi fixed at the slider max)
//	date             → <key>From, <key>To    "2006-01-02"
//	                   <key>PickFrom/PickTo  raw calendar selection
//	allow null       → <key>AllowNull        bool
//
// Validation messages are patched into "errors.<dataset>.<key>".
package form

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"

	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/filter"
	"github.com/joeblew999/plat-hazard/internal/populate"
)

// SignalRoot is the top-level signal holding every dataset's filter form.
const SignalRoot = "filters"

// ErrorRoot is the top-level signal holding inline validation messages.
const ErrorRoot = "errors"

// Routes are the endpoints the rendered controls post to.
type Routes struct {
	Load  string // POST, submits the form
	Dates string // POST, reconciles a calendar pick; %s is the filter key
}

// DefaultRoutes returns the portal routes of key.
func DefaultRoutes(key dataset.Key) Routes {
	return Routes{
		Load:  "/api/v1/portal/load/" + string(key),
		Dates: "/api/v1/portal/forms/" + string(key) + "/dates/%s",
	}
}

// FormID returns the element id of a dataset's form.
func FormID(key dataset.Key) string { return "filters-" + string(key) }

// Render builds the filter form of key: one control group per definition.
// Slider bounds come from snap. An unknown kind is an error.
func Render(key dataset.Key, defs []filter.ClientDefinition, snap populate.DatasetSnapshot, routes Routes) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `<form id="%s" class="filter-form" data-on:submit__prevent="@post('%s')">`+"\n",
		FormID(key), routes.Load)

	if len(defs) == 0 {
		b.WriteString(`    <p class="muted">This dataset has no filters; loading returns every record.</p>` + "\n")
	}
	for _, d := range defs {
		r := groupRenderer{b: &b, key: key, def: d, bounds: snap[d.Key], routes: routes}
		if err := r.render(); err != nil {
			return "", err
		}
	}

	fmt.Fprintf(&b, `    <button type="submit" data-attr:aria-busy="$pending.%s">Load</button>`+"\n", key)
	b.WriteString("</form>\n")
	return b.String(), nil
}

type groupRenderer struct {
	b      *strings.Builder
	key    dataset.Key
	def    filter.ClientDefinition
	bounds populate.Bounds
	routes Routes
}

func (r groupRenderer) signal(suffix string) string {
	return SignalRoot + "." + string(r.key) + "." + r.def.Key + suffix
}

func (r groupRenderer) render() error {
	fmt.Fprintf(r.b, `    <div class="form-group" data-kind="%s">`+"\n", r.def.Kind)
	fmt.Fprintf(r.b, "        <label>%s%s</label>\n", html.EscapeString(r.def.Label), unitSuffix(r.def.Units))

	if err := filter.VisitClient(r.def, r); err != nil {
		return fmt.Errorf("form: %w", err)
	}

	if r.def.AllowNullKey != "" {
		fmt.Fprintf(r.b, `        <label class="allow-null"><input type="checkbox" data-bind="%s"> Include missing values</label>`+"\n",
			r.signal("AllowNull"))
	}
	fmt.Fprintf(r.b, `        <p class="field-error" data-show="$%s.%s.%s" data-text="$%s.%s.%s"></p>`+"\n",
		ErrorRoot, r.key, r.def.Key, ErrorRoot, r.key, r.def.Key)
	r.b.WriteString("    </div>\n")
	return nil
}

func (r groupRenderer) Select(filter.ClientDefinition) {
	fmt.Fprintf(r.b, `        <select data-bind="%s">`+"\n", r.signal(""))
	fmt.Fprintf(r.b, "            <option value=\"%s\">All</option>\n", dataset.All)
	if r.def.Unset {
		fmt.Fprintf(r.b, "            <option value=\"%s\">Not set</option>\n", dataset.Unset)
	}
	if r.bounds.Categories == nil {
		r.b.WriteString("            <option disabled>Categories unavailable</option>\n")
	}
	for _, c := range r.bounds.Categories {
		v := html.EscapeString(c)
		fmt.Fprintf(r.b, "            <option value=\"%s\">%s</option>\n", v, v)
	}
	r.b.WriteString("        </select>\n")
}

func (r groupRenderer) Search(filter.ClientDefinition) {
	fmt.Fprintf(r.b, `        <input type="search" data-bind="%s" placeholder="Search %s">`+"\n",
		r.signal(""), html.EscapeString(strings.ToLower(r.def.Label)))
}

func (r groupRenderer) slider(suffix string, lo, hi float64) {
	fmt.Fprintf(r.b, `        <input type="range" data-bind="%s" min="%s" max="%s" step="%s">`+"\n",
		r.signal(suffix), num(lo), num(hi), step(lo, hi))
}

func (r groupRenderer) Range(filter.ClientDefinition) {
	lo, hi := bound(r.bounds.Min), bound(r.bounds.Max)
	r.slider("Lo", lo, hi)
	r.slider("Hi", lo, hi)
	fmt.Fprintf(r.b, `        <output data-text="$%s + ' – ' + $%s"></output>`+"\n", r.signal("Lo"), r.signal("Hi"))
}

func (r groupRenderer) GreaterThan(filter.ClientDefinition) {
	lo, hi := bound(r.bounds.Min), bound(r.bounds.Max)
	if r.def.MaxVal != nil {
		hi = *r.def.MaxVal
	}
	if lo > hi {
		lo = hi
	}
	r.slider("Lo", lo, hi)
	fmt.Fprintf(r.b, `        <output data-text="'> ' + $%s"></output>`+"\n", r.signal("Lo"))
}

func (r groupRenderer) Date(filter.ClientDefinition) {
	first, last := "", ""
	if r.bounds.From != nil {
		first = r.bounds.From.UTC().Format(DateLayout)
	}
	if r.bounds.To != nil {
		last = r.bounds.To.UTC().Format(DateLayout)
	}
	post := fmt.Sprintf(r.routes.Dates, r.def.Key)
	r.b.WriteString(`        <div class="date-pair">` + "\n")
	for _, side := range []string{"PickFrom", "PickTo"} {
		fmt.Fprintf(r.b, `            <input type="date" data-bind="%s" min="%s" max="%s" data-on:change="@post('%s')">`+"\n",
			r.signal(side), first, last, post)
	}
	r.b.WriteString("        </div>\n")
	fmt.Fprintf(r.b, `        <output data-text="$%s + ' → ' + $%s"></output>`+"\n", r.signal("From"), r.signal("To"))
}

func unitSuffix(u string) string {
	if u == "" {
		return ""
	}
	return " (" + html.EscapeString(u) + ")"
}

func bound(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// step picks a slider step of roughly a hundredth of the span, rounded to a
// power of ten.
func step(lo, hi float64) string {
	span := hi - lo
	if span <= 0 {
		return "any"
	}
	return num(math.Pow(10, math.Floor(math.Log10(span/100))))
}
