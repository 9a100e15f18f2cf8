package agentloop

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
)

// Value is one decoded tool argument. The kind is fixed at decode time so
// handlers never have to type-switch on interface{} payloads.
type Value struct {
	kind    Kind
	str     string
	num     float64
	integer bool
	b       bool
	raw     json.RawMessage
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == "" || v.kind == KindNull }

func (v Value) String() string {
	if v.kind == KindString {
		return v.str
	}
	return string(v.raw)
}

func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) Int() (int64, bool) {
	if v.kind != KindNumber || !v.integer {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if v.num < math.MinInt64 || v.num >= math.MaxInt64 {
		return 0, false
	}
	return int64(v.num), true
}

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBoolean
}

func (v Value) Raw() json.RawMessage {
	return v.raw
}

// Matches reports whether the value satisfies a declared schema kind.
// Integers satisfy "number"; whole numbers satisfy "integer".
func (v Value) Matches(kind Kind) bool {
	switch kind {
	case "":
		return true
	case KindInteger:
		return v.kind == KindNumber && v.integer
	default:
		return v.kind == kind
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.raw) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

func parseValue(raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Value{kind: KindNull, raw: json.RawMessage("null")}, nil
	}
	out := Value{raw: json.RawMessage(trimmed)}
	switch trimmed[0] {
	case '"':
		out.kind = KindString
		if err := json.Unmarshal(trimmed, &out.str); err != nil {
			return Value{}, err
		}
	case 't', 'f':
		out.kind = KindBoolean
		if err := json.Unmarshal(trimmed, &out.b); err != nil {
			return Value{}, err
		}
	case 'n':
		out.kind = KindNull
	case '{':
		out.kind = KindObject
		if !json.Valid(trimmed) {
			return Value{}, errors.New("malformed object")
		}
	case '[':
		out.kind = KindArray
		if !json.Valid(trimmed) {
			return Value{}, errors.New("malformed array")
		}
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return Value{}, err
		}
		f, err := n.Float64()
		if err != nil {
			return Value{}, err
		}
		out.kind = KindNumber
		out.num = f
		if _, err := n.Int64(); err == nil {
			out.integer = true
		} else {
			out.integer = f == math.Trunc(f) && !math.IsInf(f, 0)
		}
	}
	return out, nil
}

type Arguments map[string]Value

// ParseArguments decodes the JSON object a model sent for a tool call.
// Empty input and JSON null decode to no arguments.
func ParseArguments(raw json.RawMessage) (Arguments, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Arguments{}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	out := make(Arguments, len(fields))
	for name, rawField := range fields {
		v, err := parseValue(rawField)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func (a Arguments) Has(name string) bool {
	v, ok := a[name]
	return ok && !v.IsNull()
}

func (a Arguments) String(name string) string {
	v, ok := a[name]
	if !ok || v.kind != KindString {
		return ""
	}
	return v.str
}

func (a Arguments) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Value(a))
}

// Decode fills a typed struct from the arguments using their JSON form.
func (a Arguments) Decode(into any) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}

// Validate checks required presence first, then the primitive kind and enum
// membership of every declared property that was supplied.
func (s Schema) Validate(args Arguments) error {
	for _, name := range s.Required {
		if !args.Has(name) {
			return fmt.Errorf("missing required argument: %s", name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(args)) {
		v := args[name]
		prop, ok := s.Properties[name]
		if !ok || v.IsNull() {
			continue
		}
		if !v.Matches(prop.Type) {
			return fmt.Errorf("argument %s: expected %s, got %s", name, prop.Type, v.Kind())
		}
		if len(prop.Enum) > 0 && v.kind == KindString && !slices.Contains(prop.Enum, v.str) {
			return fmt.Errorf("argument %s: %q is not one of %s", name, v.str, strings.Join(prop.Enum, ", "))
		}
	}
	return nil
}
