package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Scalar holds a JSON scalar payload: null, boolean, number, or string.
// Condition and action values keep their document type until the
// translator decides what shape it needs.
type Scalar struct {
	kind scalarKind
	b    bool
	n    float64
	s    string
}

type scalarKind int

const (
	scalarNull scalarKind = iota
	scalarBool
	scalarNumber
	scalarString
)

// NullScalar is the explicit null value.
func NullScalar() Scalar { return Scalar{} }

// BoolScalar wraps a boolean.
func BoolScalar(v bool) Scalar { return Scalar{kind: scalarBool, b: v} }

// NumberScalar wraps a number.
func NumberScalar(v float64) Scalar { return Scalar{kind: scalarNumber, n: v} }

// StringScalar wraps a string.
func StringScalar(v string) Scalar { return Scalar{kind: scalarString, s: v} }

// IsNull reports whether the value is JSON null (or absent).
func (v Scalar) IsNull() bool { return v.kind == scalarNull }

// Bool returns the boolean payload.
func (v Scalar) Bool() (bool, bool) {
	if v.kind != scalarBool {
		return false, false
	}
	return v.b, true
}

// Float returns a numeric payload, coercing numeric strings.
func (v Scalar) Float() (float64, bool) {
	switch v.kind {
	case scalarNumber:
		return v.n, true
	case scalarString:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Int returns an integer payload. Numbers truncate toward zero; strings
// must parse as integers.
func (v Scalar) Int() (int, bool) {
	switch v.kind {
	case scalarNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return 0, false
		}
		return int(v.n), true
	case scalarString:
		i, err := strconv.Atoi(v.s)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// Text returns the string payload.
func (v Scalar) Text() (string, bool) {
	if v.kind != scalarString {
		return "", false
	}
	return v.s, true
}

// Raw returns the payload as an untyped value for logging.
func (v Scalar) Raw() any {
	switch v.kind {
	case scalarBool:
		return v.b
	case scalarNumber:
		return v.n
	case scalarString:
		return v.s
	}
	return nil
}

// String renders the payload for warning messages.
func (v Scalar) String() string {
	switch v.kind {
	case scalarBool:
		return strconv.FormatBool(v.b)
	case scalarNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case scalarString:
		return v.s
	}
	return "null"
}

func (v Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

func (v *Scalar) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch typed := raw.(type) {
	case nil:
		*v = NullScalar()
	case bool:
		*v = BoolScalar(typed)
	case float64:
		*v = NumberScalar(typed)
	case string:
		*v = StringScalar(typed)
	default:
		return fmt.Errorf("value must be a scalar, got %T", raw)
	}
	return nil
}
