package builder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the dynamic type carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
	KindArray
	KindMapping
	KindFunction
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
	case KindMapping:
		return "mapping"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Function is a callable Value: a built-in or a macro exposed for
// expression-level invocation.
type Function func(args []Value) (Value, error)

// Value is the dynamic runtime value of the expression language: a small
// closed sum of number, string, bool, null, array, mapping and function.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
	arr  []Value
	obj  map[string]Value
	fn   Function
}

func Null() Value            { return Value{kind: KindNull} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func String(s string) Value  { return Value{kind: KindString, str: s} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Array(v []Value) Value  { return Value{kind: KindArray, arr: v} }
func Func(f Function) Value  { return Value{kind: KindFunction, fn: f} }

// Mapping builds a mapping Value, the shape backing structured context
// entries like loop: {index, iteration}. Member access (a.b) reads fields
// off it directly; any other receiver yields Null from member access
// instead of faulting.
func Mapping(fields map[string]Value) Value { return Value{kind: KindMapping, obj: fields} }

func (v Value) Kind() Kind { return v.kind }

// Truthy implements the truthiness rules: Null, false, 0 and "" are falsey;
// everything else (including empty arrays and functions) is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.num != 0
	case KindString:
		return v.str != ""
	default:
		return true
	}
}

func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func (v Value) AsFunction() (Function, bool) {
	if v.kind != KindFunction {
		return nil, false
	}
	return v.fn, true
}

func (v Value) AsMapping() (map[string]Value, bool) {
	if v.kind != KindMapping {
		return nil, false
	}
	return v.obj, true
}

// Field looks up a named field on a mapping Value; absent fields and
// non-mapping receivers both yield Null rather than an error.
func (v Value) Field(name string) Value {
	if v.kind != KindMapping {
		return Null()
	}
	if f, ok := v.obj[name]; ok {
		return f
	}
	return Null()
}

// Stringify renders a Value the way it is emitted into preprocessor output
// (@{...} slots, @error/@warning messages, string concatenation via +).
func (v Value) Stringify() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindNumber:
		return formatNumber(v.num)
	case KindString:
		return v.str
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.Stringify()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMapping:
		names := make([]string, 0, len(v.obj))
		for name := range v.obj {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = name + ": " + v.obj[name].Stringify()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindFunction:
		return "<function>"
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Equal implements the spec's == semantics: same-kind structural equality,
// cross-kind comparisons are always false (so Null equals only Null), and
// functions never compare equal.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindNumber:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindBool:
		return a.b == b.b
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for name, av := range a.obj {
			bv, ok := b.obj[name]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindFunction:
		return false
	default:
		return false
	}
}

func (v Value) GoString() string {
	return fmt.Sprintf("Value{%s %q}", v.kind, v.Stringify())
}
