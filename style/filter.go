package style

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyLayerID     = errors.New("tileflow: style layer without id")
	ErrDuplicateLayer   = errors.New("tileflow: duplicate style layer")
	ErrUnknownLayerType = errors.New("tileflow: unknown style layer type")
)

type Op uint8

const (
	OpEqual Op = iota
	OpNotEqual
	OpHas
	OpNotHas
	OpIn
)

// Condition is one test against a feature property.
type Condition struct {
	Op     Op
	Key    string
	Values []any
}

// Filter is a conjunction of conditions. The empty filter matches everything.
type Filter []Condition

func Equal(key string, value any) Condition {
	return Condition{Op: OpEqual, Key: key, Values: []any{value}}
}

func NotEqual(key string, value any) Condition {
	return Condition{Op: OpNotEqual, Key: key, Values: []any{value}}
}

func Has(key string) Condition {
	return Condition{Op: OpHas, Key: key}
}

func NotHas(key string) Condition {
	return Condition{Op: OpNotHas, Key: key}
}

func In(key string, values ...any) Condition {
	return Condition{Op: OpIn, Key: key, Values: values}
}

// Match evaluates the filter against feature properties.
func (f Filter) Match(properties map[string]any) bool {
	for _, c := range f {
		if !c.match(properties) {
			return false
		}
	}
	return true
}

func (c Condition) match(properties map[string]any) bool {
	value, ok := properties[c.Key]
	switch c.Op {
	case OpHas:
		return ok
	case OpNotHas:
		return !ok
	case OpEqual, OpIn:
		return ok && c.contains(value)
	case OpNotEqual:
		return !ok || !c.contains(value)
	}
	return false
}

func (c Condition) contains(value any) bool {
	for _, v := range c.Values {
		if equalValues(v, value) {
			return true
		}
	}
	return false
}

// equalValues compares property values, treating all numeric types as float64 since
// decoded vector tiles do not preserve the integer/float distinction of the style.
func equalValues(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b) && aNum == bNum
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
