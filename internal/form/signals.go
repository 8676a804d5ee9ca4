package form

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/filter"
)

// DateLayout is the layout of date signals.
const DateLayout = "2006-01-02"

// Signals converts default form values (as returned by filter.Defaults) into
// the flat signal layout of one dataset form. An unknown kind is an error.
func Signals(defs []filter.ClientDefinition, defaults map[string]any) (map[string]any, error) {
	w := defaultSignals{out: make(map[string]any, len(defs)*3), defaults: defaults}
	for _, d := range defs {
		if err := filter.VisitClient(d, w); err != nil {
			return nil, fmt.Errorf("form: %w", err)
		}
		if d.AllowNullKey != "" {
			w.out[d.AllowNullKey] = defaults[d.AllowNullKey]
		}
	}
	return w.out, nil
}

type defaultSignals struct {
	out      map[string]any
	defaults map[string]any
}

func (w defaultSignals) Select(d filter.ClientDefinition) { w.out[d.Key] = w.defaults[d.Key] }
func (w defaultSignals) Search(d filter.ClientDefinition) { w.out[d.Key] = w.defaults[d.Key] }

func (w defaultSignals) Range(d filter.ClientDefinition) {
	if pair, ok := w.defaults[d.Key].([]float64); ok && len(pair) == 2 {
		w.out[d.Key+"Lo"], w.out[d.Key+"Hi"] = pair[0], pair[1]
	}
}

func (w defaultSignals) GreaterThan(d filter.ClientDefinition) { w.Range(d) }

func (w defaultSignals) Date(d filter.ClientDefinition) {
	if dr, ok := w.defaults[d.Key].(filter.DateRange); ok {
		from, to := dr.From.UTC().Format(DateLayout), dr.To.UTC().Format(DateLayout)
		w.out[d.Key+"From"], w.out[d.Key+"To"] = from, to
		w.out[d.Key+"PickFrom"], w.out[d.Key+"PickTo"] = from, to
	}
}

// Dataset extracts the signals of one dataset form from the full Datastar
// signal payload.
func Dataset(all map[string]any, key dataset.Key) map[string]any {
	root, _ := all[SignalRoot].(map[string]any)
	ds, _ := root[string(key)].(map[string]any)
	if ds == nil {
		return map[string]any{}
	}
	return ds
}

// FormState converts the flat signals of one dataset form into the filter
// form state accepted by filter.Validate. Signals that are absent or
// malformed stay absent so that validation reports them.
func FormState(defs []filter.ClientDefinition, sig map[string]any) (json.RawMessage, error) {
	r := formReader{sig: sig, state: make(map[string]any, len(defs)*2)}
	for _, d := range defs {
		if err := filter.VisitClient(d, r); err != nil {
			return nil, fmt.Errorf("form: %w", err)
		}
		if d.AllowNullKey != "" {
			if v, ok := sig[d.AllowNullKey]; ok {
				r.state[d.AllowNullKey] = v
			}
		}
	}
	return json.Marshal(r.state)
}

type formReader struct {
	sig   map[string]any
	state map[string]any
}

func (r formReader) Select(d filter.ClientDefinition) {
	if v, ok := r.sig[d.Key]; ok {
		r.state[d.Key] = v
	}
}

func (r formReader) Search(d filter.ClientDefinition) { r.Select(d) }

func (r formReader) Range(d filter.ClientDefinition) {
	lo, okLo := number(r.sig[d.Key+"Lo"])
	hi, okHi := number(r.sig[d.Key+"Hi"])
	if okLo && okHi {
		r.state[d.Key] = []float64{lo, hi}
	}
}

func (r formReader) GreaterThan(d filter.ClientDefinition) { r.Range(d) }

func (r formReader) Date(d filter.ClientDefinition) {
	from, errFrom := ParseDate(r.sig[d.Key+"From"], false)
	to, errTo := ParseDate(r.sig[d.Key+"To"], true)
	if errFrom == nil && errTo == nil {
		r.state[d.Key] = filter.DateRange{From: from, To: to}
	}
}

// number accepts JSON numbers and the strings range inputs bind.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0, false
}

// ParseDate parses a date signal. A bare day used as an upper bound covers
// the whole day, up to its last nanosecond.
func ParseDate(v any, endOfDay bool) (time.Time, error) {
	s, _ := v.(string)
	if t, err := time.Parse(DateLayout, s); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}
