package fieldvalue

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Normalize canonicalizes v for equality checks:
//   - null and "" become null
//   - numbers and strings holding a number finite as float64 become the number fixed to 2 decimals;
//     out-of-range ones keep their string form
//   - arrays keep their order and are normalized element-wise
//   - objects are normalized value-wise with their keys sorted
//   - booleans become "true" / "false"
func Normalize(v Value) Value {
	switch v.kind {
	case KindNull:
		return Null()
	case KindNumber:
		if fixed, ok := fixedNumber(v.num); ok {
			return String(fixed)
		}
		return String(compactNumber(v.num))
	case KindString:
		if v.str == "" {
			return Null()
		}
		if d, ok := parseNumeric(v.str); ok {
			if fixed, ok := fixedNumber(d); ok {
				return String(fixed)
			}
		}
		return v
	case KindBool:
		if v.b {
			return String("true")
		}
		return String("false")
	case KindArray:
		items := make([]Value, len(v.arr))
		for i, item := range v.arr {
			items[i] = Normalize(item)
		}
		return Value{kind: KindArray, arr: items}
	case KindObject:
		keys := v.obj.Keys()
		sort.Strings(keys)
		out := NewObject()
		for _, k := range keys {
			out.Set(k, Normalize(v.obj.Lookup(k)))
		}
		return ObjectOf(out)
	}
	return String(v.String())
}

// Canonical returns the stable serialization of Normalize(v).
func Canonical(v Value) string {
	b, err := Normalize(v).MarshalJSON()
	if err != nil {
		return v.String()
	}
	return string(b)
}

func Equal(a, b Value) bool {
	return Canonical(a) == Canonical(b)
}

// fixedNumber renders d with 2 decimals when it is finite as a float64.
// Magnitudes are estimated from the coefficient bit length first, so huge
// exponents are rejected without expanding them.
func fixedNumber(d decimal.Decimal) (string, bool) {
	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return "0.00", true
	}
	// upper bound of the decimal digit count
	digits := int64(coef.BitLen())*30103/100000 + 1
	magnitude := digits + int64(d.Exponent())
	switch {
	case magnitude > 310:
		return "", false
	case magnitude < -3:
		return "0.00", true
	}
	if f, err := strconv.ParseFloat(d.String(), 64); err != nil || math.IsInf(f, 0) {
		return "", false
	}
	return d.StringFixed(2), true
}

// compactNumber spells d in exponent form without expanding it.
func compactNumber(d decimal.Decimal) string {
	return d.Coefficient().String() + "e" + strconv.FormatInt(int64(d.Exponent()), 10)
}

// parseNumeric accepts plain decimal literals ("5", " 5.00 ", "-1e3"). Hex, "NaN" and
// "Infinity" are not finite decimals and stay strings.
func parseNumeric(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
