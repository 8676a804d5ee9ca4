package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joeblew999/plat-hazard/internal/dataset"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid filter values")

// ValidationError lists per-field problems, keyed by form key.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Validate parses raw form state against defs. Every definition key must be
// present with the shape its kind requires; AllowNull flags are optional and
// default to true.
func Validate(defs []dataset.Definition, raw json.RawMessage) (Values, error) {
	var form map[string]json.RawMessage
	if len(raw) == 0 || string(raw) == "null" {
		form = map[string]json.RawMessage{}
	} else if err := json.Unmarshal(raw, &form); err != nil {
		return nil, &ValidationError{Fields: map[string]string{"": "expected a JSON object"}}
	}

	values := make(Values, len(defs))
	fields := map[string]string{}
	for _, d := range defs {
		v := validator{form: form}
		val := dataset.Visit[Value](d, &v)
		if v.err != "" {
			fields[v.field] = v.err
			continue
		}
		values[d.FilterKey()] = val
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return values, nil
}

// validator checks one definition; a failure sets field and err.
type validator struct {
	form  map[string]json.RawMessage
	field string
	err   string
}

func (v *validator) fail(field, msg string) Value {
	v.field, v.err = field, msg
	return nil
}

func (v *validator) text(key string) Value {
	raw, ok := v.form[key]
	if !ok {
		return v.fail(key, "required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return v.fail(key, "expected a string")
	}
	return Text(s)
}

func (v *validator) allowNull(key string) (bool, bool) {
	nk := dataset.AllowNullKey(key)
	raw, ok := v.form[nk]
	if !ok || string(raw) == "null" {
		return true, true
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		v.fail(nk, "expected a boolean")
		return false, false
	}
	return b, true
}

func (v *validator) interval(key string) (Interval, bool) {
	raw, ok := v.form[key]
	if !ok {
		v.fail(key, "required")
		return Interval{}, false
	}
	var pair []float64
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		v.fail(key, "expected a [min, max] pair of numbers")
		return Interval{}, false
	}
	if pair[0] > pair[1] {
		v.fail(key, "minimum is greater than maximum")
		return Interval{}, false
	}
	allow, ok := v.allowNull(key)
	if !ok {
		return Interval{}, false
	}
	return Interval{Lo: pair[0], Hi: pair[1], AllowNull: allow}, true
}

func (v *validator) Select(d dataset.Select) Value { return v.text(d.Key) }
func (v *validator) Search(d dataset.Search) Value { return v.text(d.Key) }

func (v *validator) Range(d dataset.Range) Value {
	iv, ok := v.interval(d.Key)
	if !ok {
		return nil
	}
	return iv
}

func (v *validator) GreaterThan(d dataset.GreaterThan) Value {
	iv, ok := v.interval(d.Key)
	if !ok {
		return nil
	}
	if d.MaxVal != nil && iv.Hi > *d.MaxVal {
		return v.fail(d.Key, fmt.Sprintf("maximum exceeds %g", *d.MaxVal))
	}
	return iv
}

func (v *validator) Date(d dataset.Date) Value {
	raw, ok := v.form[d.Key]
	if !ok {
		return v.fail(d.Key, "required")
	}
	var dr struct {
		From *time.Time `json:"from"`
		To   *time.Time `json:"to"`
	}
	if err := json.Unmarshal(raw, &dr); err != nil || dr.From == nil || dr.To == nil {
		return v.fail(d.Key, "expected {from, to} RFC3339 dates")
	}
	if dr.From.After(*dr.To) {
		return v.fail(d.Key, "from is after to")
	}
	allow, ok := v.allowNull(d.Key)
	if !ok {
		return nil
	}
	return DateInterval{From: *dr.From, To: *dr.To, AllowNull: allow}
}
