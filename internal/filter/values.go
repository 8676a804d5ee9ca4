package filter

import "time"

// Value is one validated form value. The implementations are Text,
// Interval and DateInterval.
type Value interface{ value() }

// Text is the value of a select or search filter.
type Text string

// Interval is the value of a range or greaterThan filter.
type Interval struct {
	Lo, Hi    float64
	AllowNull bool
}

// DateInterval is the value of a date filter.
type DateInterval struct {
	From, To  time.Time
	AllowNull bool
}

func (Text) value()         {}
func (Interval) value()     {}
func (DateInterval) value() {}

// Values holds the validated form state of one dataset, keyed by filter key.
type Values map[string]Value

// DateRange is the wire shape of a date filter value.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}
