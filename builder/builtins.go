package builder

import (
	"crypto/sha256"
	"encoding/hex"
	"math"

	"golang.org/x/crypto/sha3"
)

// builtinFuncs is the built-in function table. Call dispatch always checks
// this table before falling back to the context (see callExpr.eval); it is
// also overlaid into the root Context so built-ins are themselves visible
// as ordinary Function values to identifier lookups and defined().
//
// Grounded on asm/builtins.go's builtinMacros dispatch table: that table
// mixed domain built-ins (sha256, keccak256, selector, address — all
// EVM/ABI specific) with generic ones (abs). Here the domain built-ins are
// repurposed for a text preprocessor (content hashing, not address/selector
// validation) and rounded out with the numeric/string helpers the spec's
// expression grammar implies (min/max/abs/defined's sibling functions).
var builtinFuncs = map[string]Function{
	"abs":       builtinAbs,
	"min":       builtinMin,
	"max":       builtinMax,
	"floor":     builtinFloor,
	"ceil":      builtinCeil,
	"len":       builtinLen,
	"sha256":    builtinSHA256,
	"keccak256": builtinKeccak256,
}

func builtinValues() map[string]Value {
	vals := make(map[string]Value, len(builtinFuncs))
	for name, fn := range builtinFuncs {
		vals[name] = Func(fn)
	}
	return vals
}

func checkArgCount(name string, args []Value, n int) error {
	if len(args) != n {
		return newExprError(ecWrongArgCount, "%s() requires exactly %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func numberArg(name string, args []Value, i int) (float64, error) {
	f, ok := args[i].AsNumber()
	if !ok {
		return 0, newExprError(ecWrongArgCount, "%s() argument %d must be a number", name, i)
	}
	return f, nil
}

func builtinAbs(args []Value) (Value, error) {
	if err := checkArgCount("abs", args, 1); err != nil {
		return Value{}, err
	}
	f, err := numberArg("abs", args, 0)
	if err != nil {
		return Value{}, err
	}
	return Number(math.Abs(f)), nil
}

func builtinMin(args []Value) (Value, error) {
	if len(args) == 0 {
		return Value{}, newExprError(ecWrongArgCount, "Wrong number of arguments for min()")
	}
	m, err := numberArg("min", args, 0)
	if err != nil {
		return Value{}, err
	}
	for i := 1; i < len(args); i++ {
		f, err := numberArg("min", args, i)
		if err != nil {
			return Value{}, err
		}
		m = math.Min(m, f)
	}
	return Number(m), nil
}

func builtinMax(args []Value) (Value, error) {
	if len(args) == 0 {
		return Value{}, newExprError(ecWrongArgCount, "Wrong number of arguments for max()")
	}
	m, err := numberArg("max", args, 0)
	if err != nil {
		return Value{}, err
	}
	for i := 1; i < len(args); i++ {
		f, err := numberArg("max", args, i)
		if err != nil {
			return Value{}, err
		}
		m = math.Max(m, f)
	}
	return Number(m), nil
}

func builtinFloor(args []Value) (Value, error) {
	if err := checkArgCount("floor", args, 1); err != nil {
		return Value{}, err
	}
	f, err := numberArg("floor", args, 0)
	if err != nil {
		return Value{}, err
	}
	return Number(math.Floor(f)), nil
}

func builtinCeil(args []Value) (Value, error) {
	if err := checkArgCount("ceil", args, 1); err != nil {
		return Value{}, err
	}
	f, err := numberArg("ceil", args, 0)
	if err != nil {
		return Value{}, err
	}
	return Number(math.Ceil(f)), nil
}

func builtinLen(args []Value) (Value, error) {
	if err := checkArgCount("len", args, 1); err != nil {
		return Value{}, err
	}
	switch args[0].Kind() {
	case KindString:
		s, _ := args[0].AsString()
		return Number(float64(len(s))), nil
	case KindArray:
		arr, _ := args[0].AsArray()
		return Number(float64(len(arr))), nil
	default:
		return Value{}, newExprError(ecWrongArgCount, "len() requires a string or array argument")
	}
}

// builtinSHA256 and builtinKeccak256 hash the stringified argument and
// return a lowercase hex digest. Grounded on asm/builtins.go's sha256Macro
// and keccak256Macro, which hashed the byte encoding of an expression the
// same way for EVM literal/word arguments; here the argument is always
// stringified first since the domain is text, not words.
func builtinSHA256(args []Value) (Value, error) {
	if err := checkArgCount("sha256", args, 1); err != nil {
		return Value{}, err
	}
	sum := sha256.Sum256([]byte(args[0].Stringify()))
	return String(hex.EncodeToString(sum[:])), nil
}

func builtinKeccak256(args []Value) (Value, error) {
	if err := checkArgCount("keccak256", args, 1); err != nil {
		return Value{}, err
	}
	w := sha3.NewLegacyKeccak256()
	w.Write([]byte(args[0].Stringify()))
	return String(hex.EncodeToString(w.Sum(nil))), nil
}
