package dataset

import "fmt"

// Kind names the filter widget family of a Definition.
type Kind string

const (
	KindSelect      Kind = "select"
	KindRange       Kind = "range"
	KindGreaterThan Kind = "greaterThan"
	KindDate        Kind = "date"
	KindSearch      Kind = "search"
)

// Kinds lists every filter kind.
var Kinds = []Kind{KindSelect, KindRange, KindGreaterThan, KindDate, KindSearch}

// Sentinel select values.
const (
	All   = "All"   // no filtering
	Unset = "unset" // match rows where the null column IS NULL
)

// AllowNullKey returns the form key of the companion "allow null" flag
// carried by range, greaterThan and date filters.
func AllowNullKey(key string) string { return key + "AllowNull" }

// Definition is one filterable attribute of a dataset. The set of
// implementations is closed: Select, Range, GreaterThan, Date and Search.
// Consumers dispatch through Visit so that a new kind fails to compile until
// every Visitor handles it.
type Definition interface {
	FilterKey() string
	FilterLabel() string
	FilterKind() Kind
	// SourceColumn is the SQL expression backing the filter. Server only.
	SourceColumn() string
	definition()
}

// Field holds what every filter kind shares.
type Field struct {
	Key    string
	Label  string
	Column string
}

func (f Field) FilterKey() string    { return f.Key }
func (f Field) FilterLabel() string  { return f.Label }
func (f Field) SourceColumn() string { return f.Column }

// MatchMode selects how a Select value is compared with its column.
type MatchMode int

const (
	// MatchExact compares with "=".
	MatchExact MatchMode = iota
	// MatchPartial is a case-insensitive substring match, used by free-text
	// category columns.
	MatchPartial
)

// Select filters on one category out of the distinct values of Column.
type Select struct {
	Field
	// NullColumn, when set, enables the Unset sentinel which matches rows
	// whose NullColumn IS NULL.
	NullColumn string
	Match      MatchMode
}

// Range filters Column to a closed interval.
type Range struct {
	Field
	Units string
}

// GreaterThan filters Column to values above the lower slider bound.
type GreaterThan struct {
	Field
	Units string
	// MaxVal is the upper slider bound when it is not derived from data.
	MaxVal *float64
}

// Date filters a timestamp Column to a closed interval.
type Date struct {
	Field
}

// Search is a case-insensitive substring match against Column.
type Search struct {
	Field
}

func (Select) FilterKind() Kind      { return KindSelect }
func (Range) FilterKind() Kind       { return KindRange }
func (GreaterThan) FilterKind() Kind { return KindGreaterThan }
func (Date) FilterKind() Kind        { return KindDate }
func (Search) FilterKind() Kind      { return KindSearch }

func (Select) definition()      {}
func (Range) definition()       {}
func (GreaterThan) definition() {}
func (Date) definition()        {}
func (Search) definition()      {}

// Visitor handles each filter kind. Adding a kind adds a method here, which
// breaks the build of every consumer until it is handled.
type Visitor[T any] interface {
	Select(Select) T
	Range(Range) T
	GreaterThan(GreaterThan) T
	Date(Date) T
	Search(Search) T
}

// Visit dispatches d to the matching Visitor method.
func Visit[T any](d Definition, v Visitor[T]) T {
	switch d := d.(type) {
	case Select:
		return v.Select(d)
	case Range:
		return v.Range(d)
	case GreaterThan:
		return v.GreaterThan(d)
	case Date:
		return v.Date(d)
	case Search:
		return v.Search(d)
	default:
		panic(fmt.Sprintf("dataset: unhandled filter definition %T", d))
	}
}

// HasAllowNull reports whether the kind carries an AllowNull companion flag.
func HasAllowNull(k Kind) bool {
	return k == KindRange || k == KindGreaterThan || k == KindDate
}

func float(v float64) *float64 { return &v }
