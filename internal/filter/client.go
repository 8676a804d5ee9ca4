// Package filter compiles dataset filter definitions into everything the
// portal derives from them: the client-safe schema, form validation, default
// form values and SQL predicates.
package filter

import (
	"fmt"

	"github.com/joeblew999/plat-hazard/internal/dataset"
)

// ClientDefinition is the browser-facing view of a filter definition. It has
// no field that could carry a column reference.
type ClientDefinition struct {
	Key          string       `json:"key" doc:"Filter key, unique within the dataset"`
	Kind         dataset.Kind `json:"kind" enum:"select,range,greaterThan,date,search" doc:"Filter widget kind"`
	Label        string       `json:"label" doc:"Display label"`
	Units        string       `json:"units,omitempty" doc:"Display unit suffix"`
	MaxVal       *float64     `json:"maxVal,omitempty" doc:"Upper slider bound for greaterThan filters"`
	AllowNullKey string       `json:"allowNullKey,omitempty" doc:"Form key of the companion allow-null flag"`
	Unset        bool         `json:"unset,omitempty" doc:"Whether the unset category is offered"`
	Partial      bool         `json:"partial,omitempty" doc:"Whether select values match as substrings"`
}

// ToClientSchema projects defs onto their client-safe form. A nil set stays nil.
func ToClientSchema(defs []dataset.Definition) []ClientDefinition {
	if defs == nil {
		return nil
	}
	out := make([]ClientDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, dataset.Visit[ClientDefinition](d, clientProjector{}))
	}
	return out
}

type clientProjector struct{}

func (clientProjector) Select(d dataset.Select) ClientDefinition {
	return ClientDefinition{
		Key:     d.Key,
		Kind:    dataset.KindSelect,
		Label:   d.Label,
		Unset:   d.NullColumn != "",
		Partial: d.Match == dataset.MatchPartial,
	}
}

func (clientProjector) Range(d dataset.Range) ClientDefinition {
	return ClientDefinition{
		Key:          d.Key,
		Kind:         dataset.KindRange,
		Label:        d.Label,
		Units:        d.Units,
		AllowNullKey: dataset.AllowNullKey(d.Key),
	}
}

func (clientProjector) GreaterThan(d dataset.GreaterThan) ClientDefinition {
	var maxVal *float64
	if d.MaxVal != nil {
		v := *d.MaxVal
		maxVal = &v
	}
	return ClientDefinition{
		Key:          d.Key,
		Kind:         dataset.KindGreaterThan,
		Label:        d.Label,
		Units:        d.Units,
		MaxVal:       maxVal,
		AllowNullKey: dataset.AllowNullKey(d.Key),
	}
}

func (clientProjector) Date(d dataset.Date) ClientDefinition {
	return ClientDefinition{
		Key:          d.Key,
		Kind:         dataset.KindDate,
		Label:        d.Label,
		AllowNullKey: dataset.AllowNullKey(d.Key),
	}
}

func (clientProjector) Search(d dataset.Search) ClientDefinition {
	return ClientDefinition{Key: d.Key, Kind: dataset.KindSearch, Label: d.Label}
}

// ClientVisitor handles each kind of client definition. It has one method
// per method of dataset.Visitor; a new filter kind adds a method to both,
// so every form consumer fails to build until it handles the kind.
type ClientVisitor interface {
	Select(ClientDefinition)
	Range(ClientDefinition)
	GreaterThan(ClientDefinition)
	Date(ClientDefinition)
	Search(ClientDefinition)
}

// VisitClient dispatches d on its kind. Client definitions may come back
// from the browser, so an unknown kind is an error rather than a panic.
func VisitClient(d ClientDefinition, v ClientVisitor) error {
	switch d.Kind {
	case dataset.KindSelect:
		v.Select(d)
	case dataset.KindRange:
		v.Range(d)
	case dataset.KindGreaterThan:
		v.GreaterThan(d)
	case dataset.KindDate:
		v.Date(d)
	case dataset.KindSearch:
		v.Search(d)
	default:
		return fmt.Errorf("filter %q: unknown kind %q", d.Key, d.Kind)
	}
	return nil
}
