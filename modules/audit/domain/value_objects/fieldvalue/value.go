// Package fieldvalue models resource field values as a closed set of JSON-like variants
// and canonicalizes them for change detection.
package fieldvalue

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an immutable tagged value. The zero Value is null.
type Value struct {
	kind Kind
	num  decimal.Decimal
	str  string
	b    bool
	arr  []Value
	obj  *Object
}

func Null() Value {
	return Value{}
}

func Number(d decimal.Decimal) Value {
	return Value{kind: KindNumber, num: d}
}

// Float converts f to a number. NaN and infinities have no decimal form and
// become their string spelling, which is also how they canonicalize.
func Float(f float64) Value {
	switch {
	case math.IsNaN(f):
		return String("NaN")
	case math.IsInf(f, 1):
		return String("Infinity")
	case math.IsInf(f, -1):
		return String("-Infinity")
	}
	return Number(decimal.NewFromFloat(f))
}

func Int(i int64) Value {
	return Number(decimal.NewFromInt(i))
}

func String(s string) Value {
	return Value{kind: KindString, str: s}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// ObjectOf wraps o as a value. A nil object becomes an empty one.
func ObjectOf(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, obj: o}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Decimal() (decimal.Decimal, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) BoolValue() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Items returns a copy of the array elements.
func (v Value) Items() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp, true
}

func (v Value) Object() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// String renders the value the way it appears in diffs and logs.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindNumber:
		return v.num.String()
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return string(b)
}

// FromAny converts decoded JSON and common Go scalars into a Value.
// Plain maps have no key order, so their keys are inserted sorted.
func FromAny(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Object:
		return ObjectOf(t), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return Value{}, fmt.Errorf("fieldvalue: invalid number %q: %w", t, err)
		}
		if _, ok := fixedNumber(d); !ok {
			// beyond float64 range; kept verbatim rather than expanded
			return String(t.String()), nil
		}
		return Number(d), nil
	case decimal.Decimal:
		return Number(t), nil
	case float64:
		return Float(t), nil
	case float32:
		return Float(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(t)), 0)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return Number(decimal.NewFromBigInt(new(big.Int).SetUint64(t), 0)), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Value{kind: KindArray, arr: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			v, err := FromAny(t[k])
			if err != nil {
				return Value{}, err
			}
			obj.Set(k, v)
		}
		return ObjectOf(obj), nil
	}
	return Value{}, fmt.Errorf("fieldvalue: unsupported type %T", in)
}

// Must is FromAny for literals known to be valid; it panics otherwise.
func Must(in any) Value {
	v, err := FromAny(in)
	if err != nil {
		panic(err)
	}
	return v
}
