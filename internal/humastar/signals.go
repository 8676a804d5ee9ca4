package humastar

import (
	"bytes"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
)

// Signals is the decoded signal object Datastar posts with every action.
// Nested signals decode to nested maps and are reached with [Signals.Object].
type Signals map[string]any

// ParseSignals decodes a request body. A blank body has no signals.
func ParseSignals(body []byte) (Signals, error) {
	s := Signals{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func lookup[T any](s Signals, key string) T {
	v, _ := s[key].(T)
	return v
}

// String returns the string at key or "".
func (s Signals) String(key string) string { return lookup[string](s, key) }

// Float returns the number at key or 0.
func (s Signals) Float(key string) float64 { return lookup[float64](s, key) }

// Bool returns the boolean at key or false.
func (s Signals) Bool(key string) bool { return lookup[bool](s, key) }

// Has reports whether key is present, whatever its value.
func (s Signals) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Object returns the nested object at key, nil when key holds anything else.
func (s Signals) Object(key string) Signals {
	if m := lookup[map[string]any](s, key); m != nil {
		return Signals(m)
	}
	return nil
}

// Raw returns the value at key as JSON so it can be decoded into a typed
// struct. Absent and null values return nil.
func (s Signals) Raw(key string) json.RawMessage {
	if s[key] == nil {
		return nil
	}
	b, err := json.Marshal(s[key])
	if err != nil {
		return nil
	}
	return b
}

// SignalsInput captures the raw body of a portal action.
type SignalsInput struct {
	RawBody []byte
}

// MustParse decodes the body, answering 400 when it is not a JSON object.
func (i *SignalsInput) MustParse() (Signals, error) {
	s, err := ParseSignals(i.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid signals: " + err.Error())
	}
	return s, nil
}
