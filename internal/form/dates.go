package form

import "github.com/joeblew999/plat-hazard/internal/filter"

// ReconcileDateRange applies a new calendar selection to the current range.
// A single-day range accepts next as is, so the next click opens a fresh
// range. Otherwise the range collapses to one day: the new "to" when only
// the end moved, the new "from" in every other case.
func ReconcileDateRange(current, next filter.DateRange) filter.DateRange {
	if current.From.Equal(current.To) {
		return next
	}
	if next.From.Equal(current.From) && !next.To.Equal(current.To) {
		return filter.DateRange{From: next.To, To: next.To}
	}
	return filter.DateRange{From: next.From, To: next.From}
}
