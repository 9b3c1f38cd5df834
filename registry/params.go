package registry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the type a raw form value is coerced to.
type Kind int

const (
	String Kind = iota // trimmed single-line text
	Int
	Float
	Bool
	JSON
	Text // free text kept verbatim
)

var kindNames = [...]string{"string", "int", "float", "bool", "json", "text"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// OnInvalid decides what an unparsable or out-of-range value does.
type OnInvalid int

const (
	UseDefault OnInvalid = iota
	Reject
)

func (o OnInvalid) MarshalText() ([]byte, error) {
	if o == Reject {
		return []byte("reject"), nil
	}
	return []byte("default"), nil
}

// ParamSpec describes one form parameter.
type ParamSpec struct {
	Name      string            `json:"name"`
	Kind      Kind              `json:"kind"`
	Default   any               `json:"default"`
	OnInvalid OnInvalid         `json:"on_invalid"`
	Enum      []string          `json:"enum,omitempty"`
	Aliases   map[string]string `json:"aliases,omitempty"`
	Min       *float64          `json:"min,omitempty"`
	Max       *float64          `json:"max,omitempty"`
	// MultipleOf constrains Int parameters, zero means unconstrained.
	MultipleOf int    `json:"multiple_of,omitempty"`
	Label      string `json:"label,omitempty"`
}

// Bound is a helper for Min and Max.
func Bound(v float64) *float64 { return &v }

// InvalidParamError reports a rejected value.
type InvalidParamError struct {
	Name   string
	Value  string
	Reason string
}

func (e *InvalidParamError) Error() string {
	return fmt.Sprintf("Invalid value for %s: %s", e.Name, e.Reason)
}

// Params holds coerced values keyed by parameter name.
type Params map[string]any

func (p Params) String(name string) string {
	s, _ := p[name].(string)
	return s
}

func (p Params) Int(name string) int {
	switch v := p[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func (p Params) Float(name string) float64 {
	switch v := p[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func (p Params) Bool(name string) bool {
	b, _ := p[name].(bool)
	return b
}

// JSON returns the decoded value of a JSON parameter.
func (p Params) JSON(name string) any { return p[name] }

// Coerce turns raw form values into typed parameters. Missing values take
// their defaults. Invalid values take their defaults or are rejected with
// an *InvalidParamError, per parameter. Unknown raw keys are ignored.
func (s OperationSpec) Coerce(raw map[string]string) (Params, error) {
	out := make(Params, len(s.Params))
	for _, ps := range s.Params {
		val := ps.Default
		if v, present := raw[ps.Name]; present {
			coerced, reason := ps.coerce(v)
			switch {
			case reason == "":
				val = coerced
			case ps.OnInvalid == Reject:
				return nil, &InvalidParamError{Name: ps.Name, Value: v, Reason: reason}
			}
		}
		if val != nil {
			out[ps.Name] = val
		}
	}
	if s.schema != nil {
		if err := s.schema.validate(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// coerce converts one raw value, returning a non-empty reason when it is
// invalid.
func (ps ParamSpec) coerce(v string) (any, string) {
	switch ps.Kind {
	case Text:
		return v, ""
	case String:
		s := strings.TrimSpace(v)
		if len(ps.Enum) == 0 {
			return s, ""
		}
		s = strings.ToLower(s)
		if a, ok := ps.Aliases[s]; ok {
			s = a
		}
		for _, e := range ps.Enum {
			if s == e {
				return s, ""
			}
		}
		return nil, fmt.Sprintf("must be one of %s", strings.Join(ps.Enum, ", "))
	case Int:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			// Form encoders sometimes send integral floats.
			f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if ferr != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
				return nil, "not an integer"
			}
			n = int(f)
		}
		if reason := ps.checkRange(float64(n)); reason != "" {
			return nil, reason
		}
		if ps.MultipleOf != 0 && n%ps.MultipleOf != 0 {
			return nil, fmt.Sprintf("must be a multiple of %d", ps.MultipleOf)
		}
		return n, ""
	case Float:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, "not a number"
		}
		if reason := ps.checkRange(f); reason != "" {
			return nil, reason
		}
		return f, ""
	case Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "on", "yes":
				return true, ""
			case "off", "no", "":
				return false, ""
			}
			return nil, "not a boolean"
		}
		return b, ""
	case JSON:
		var out any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, "not valid JSON"
		}
		return out, ""
	}
	return nil, "unsupported parameter kind"
}

func (ps ParamSpec) checkRange(f float64) string {
	if ps.Min != nil && f < *ps.Min {
		return fmt.Sprintf("must be at least %g", *ps.Min)
	}
	if ps.Max != nil && f > *ps.Max {
		return fmt.Sprintf("must be at most %g", *ps.Max)
	}
	return ""
}
