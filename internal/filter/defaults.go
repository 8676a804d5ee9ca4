package filter

import (
	"time"

	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/populate"
)

// Defaults returns the initial form state of a dataset, seeded from its
// populate snapshot. The result is valid input for Validate. AllowNull flags
// default to true so that a fresh form shows rows with missing values.
func Defaults(snap populate.DatasetSnapshot, defs []dataset.Definition) map[string]any {
	out := make(map[string]any, len(defs)*2)
	for _, d := range defs {
		b := snap[d.FilterKey()]
		out[d.FilterKey()] = dataset.Visit[any](d, defaulter{bounds: b})
		if dataset.HasAllowNull(d.FilterKind()) {
			out[dataset.AllowNullKey(d.FilterKey())] = true
		}
	}
	return out
}

type defaulter struct {
	bounds populate.Bounds
}

func orZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func (defaulter) Select(dataset.Select) any { return dataset.All }
func (defaulter) Search(dataset.Search) any { return "" }

func (d defaulter) Range(dataset.Range) any {
	return []float64{orZero(d.bounds.Min), orZero(d.bounds.Max)}
}

func (d defaulter) GreaterThan(g dataset.GreaterThan) any {
	hi := orZero(d.bounds.Max)
	if g.MaxVal != nil {
		hi = *g.MaxVal
	}
	lo := orZero(d.bounds.Min)
	if lo > hi {
		lo = hi
	}
	return []float64{lo, hi}
}

func (d defaulter) Date(dataset.Date) any {
	epoch := time.Unix(0, 0).UTC()
	dr := DateRange{From: epoch, To: epoch}
	if d.bounds.From != nil && d.bounds.To != nil {
		dr = DateRange{From: d.bounds.From.UTC(), To: d.bounds.To.UTC()}
	}
	return dr
}
