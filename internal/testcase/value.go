package testcase

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is a sealed interface over the field value shapes a case can carry.
// Only Null, String, Number, Bool, Steps and Opaque implement it.
type Value interface {
	caseValue()
}

// Null is a JSON null or an absent field.
type Null struct{}

func (Null) caseValue() {}

// String is a text field.
type String string

func (String) caseValue() {}

// Number keeps the literal JSON number text so ids and floats round-trip
// exactly as the server sent them.
type Number string

func (Number) caseValue() {}

// Bool is a checkbox field.
type Bool bool

func (Bool) caseValue() {}

// Steps is a separated-steps field.
type Steps []Step

func (Steps) caseValue() {}

// Opaque is any other JSON document, stored in canonical form.
type Opaque []byte

func (Opaque) caseValue() {}

// Shape classifies a Value for merge dispatch.
type Shape int

const (
	// ShapeScalar covers Null, Number, Bool and Opaque.
	ShapeScalar Shape = iota
	// ShapeString is a String value.
	ShapeString
	// ShapeSteps is a Steps value.
	ShapeSteps
)

func (s Shape) String() string {
	switch s {
	case ShapeString:
		return "string"
	case ShapeSteps:
		return "steps"
	default:
		return "scalar"
	}
}

// ShapeOf returns the merge shape of v. A nil Value is a scalar.
func ShapeOf(v Value) Shape {
	switch v.(type) {
	case String:
		return ShapeString
	case Steps:
		return ShapeSteps
	default:
		return ShapeScalar
	}
}

// Equal reports whether two values are the same. Values of different Go
// types are never equal, so Number("1") and String("1") differ.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Steps:
		bv, ok := b.(Steps)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !av[i].Matches(bv[i]) {
				return false
			}
		}
		return true
	case Opaque:
		bv, ok := b.(Opaque)
		return ok && bytes.Equal(av, bv)
	default:
		return false
	}
}

// Text returns the textual form used when a value serves as a template id.
// Only strings and numbers have one; everything else yields "".
func Text(v Value) string {
	switch val := v.(type) {
	case String:
		return string(val)
	case Number:
		return string(val)
	default:
		return ""
	}
}

// CloneValue returns a copy of v that shares no mutable memory with it.
func CloneValue(v Value) Value {
	switch val := v.(type) {
	case Steps:
		out := make(Steps, len(val))
		for i, s := range val {
			out[i] = s.clone()
		}
		return out
	case Opaque:
		return append(Opaque(nil), val...)
	case nil:
		return Null{}
	default:
		return v
	}
}

// DecodeValue decodes one JSON field value.
//
// A non-empty array whose elements are all objects carrying a "content" key
// is decoded as Steps. Every other array or object becomes Opaque.
func DecodeValue(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		return Null{}, nil

	case '[':
		if steps, ok, err := decodeSteps(data); err != nil {
			return nil, err
		} else if ok {
			return steps, nil
		}
		return decodeOpaque(data)

	case '{':
		return decodeOpaque(data)

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		return Number(n.String()), nil
	}
}

func decodeSteps(data []byte) (Steps, bool, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	for _, elem := range raw {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(elem, &obj); err != nil {
			return nil, false, nil
		}
		if _, ok := obj["content"]; !ok {
			return nil, false, nil
		}
	}

	steps := make(Steps, len(raw))
	for i, elem := range raw {
		if err := json.Unmarshal(elem, &steps[i]); err != nil {
			return nil, false, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return steps, true, nil
}

func decodeOpaque(data []byte) (Value, error) {
	canon, err := CanonicalizeJSON(data)
	if err != nil {
		return nil, err
	}
	return Opaque(canon), nil
}

// EncodeValue marshals a value back to the JSON the server expects.
func EncodeValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Number:
		if val == "" {
			return []byte("null"), nil
		}
		return []byte(val), nil
	case Bool:
		return json.Marshal(bool(val))
	case Steps:
		if val == nil {
			return []byte("[]"), nil
		}
		return json.Marshal([]Step(val))
	case Opaque:
		if len(val) == 0 {
			return []byte("null"), nil
		}
		return []byte(val), nil
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// AsSteps views v as a steps sequence. Null and an empty opaque array are the
// empty sequence; any other non-steps value reports false.
func AsSteps(v Value) (Steps, bool) {
	switch val := v.(type) {
	case Steps:
		return val, true
	case nil, Null:
		return Steps{}, true
	case Opaque:
		if string(val) == "[]" {
			return Steps{}, true
		}
	}
	return nil, false
}

// AsString views v as text. Null is the empty string.
func AsString(v Value) (string, bool) {
	switch val := v.(type) {
	case String:
		return string(val), true
	case nil, Null:
		return "", true
	}
	return "", false
}
