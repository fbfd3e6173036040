package builder

import (
	"fmt"
	"math"
)

// evaluate parses and evaluates a single expression source string against
// ctx. This is the sole entry point C4 calls from every instruction that
// carries an expr_source operand (@set, @{...}, @if/@elseif, @while,
// @error, @warning, macro-call arguments).
func evaluate(src string, ctx *Context) (Value, error) {
	e, err := parseExpr(src)
	if err != nil {
		return Value{}, err
	}
	return e.eval(ctx)
}

func (e *literalExpr) eval(ctx *Context) (Value, error) { return e.v, nil }

func (e *identExpr) eval(ctx *Context) (Value, error) {
	if v, ok := ctx.Lookup(e.name); ok {
		return v, nil
	}
	return Value{}, newExprError(ecUndefinedVariable, "undefined variable %q", e.name)
}

func (e *definedExpr) eval(ctx *Context) (Value, error) {
	if _, ok := builtinFuncs[e.name]; ok {
		return Bool(true), nil
	}
	_, ok := ctx.Lookup(e.name)
	return Bool(ok), nil
}

func (e *arrayExpr) eval(ctx *Context) (Value, error) {
	vals := make([]Value, len(e.elems))
	for i, el := range e.elems {
		v, err := el.eval(ctx)
		if err != nil {
			return Value{}, err
		}
		vals[i] = v
	}
	return Array(vals), nil
}

// memberExpr.eval never faults: a.b on a mapping yields the named field (or
// Null if absent), and on anything else yields Null. Array keeps its
// "length" pseudo-field, since that predates mappings and nothing in the
// corpus relies on ".length" faulting for non-arrays either.
func (e *memberExpr) eval(ctx *Context) (Value, error) {
	recv, err := e.recv.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	switch recv.Kind() {
	case KindMapping:
		return recv.Field(e.name), nil
	case KindArray:
		if e.name == "length" {
			arr, _ := recv.AsArray()
			return Number(float64(len(arr))), nil
		}
		return Null(), nil
	default:
		return Null(), nil
	}
}

func (e *indexExpr) eval(ctx *Context) (Value, error) {
	recv, err := e.recv.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	idxV, err := e.idx.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	arr, ok := recv.AsArray()
	if !ok {
		return Value{}, newExprError(ecParse, "index operator used on non-array value")
	}
	idxF, ok := idxV.AsNumber()
	if !ok {
		return Value{}, newExprError(ecParse, "array index must be a number")
	}
	idx := int(idxF)
	if idx < 0 || idx >= len(arr) {
		return Null(), nil
	}
	return arr[idx], nil
}

func (e *unaryExpr) eval(ctx *Context) (Value, error) {
	v, err := e.expr.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	switch e.op {
	case etNot:
		return Bool(!v.Truthy()), nil
	case etMinus:
		f, ok := v.AsNumber()
		if !ok {
			return Value{}, newExprError(ecParse, "unary '-' requires a number")
		}
		return Number(-f), nil
	default:
		return Value{}, fmt.Errorf("internal: bad unary op %d", e.op)
	}
}

func (e *ternaryExpr) eval(ctx *Context) (Value, error) {
	c, err := e.cond.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	if c.Truthy() {
		return e.then.eval(ctx)
	}
	return e.els.eval(ctx)
}

func (e *binaryExpr) eval(ctx *Context) (Value, error) {
	// && and || short-circuit: the right side must not be evaluated (and
	// must not error) when the left side already decides the result.
	if e.op == etAnd {
		l, err := e.left.eval(ctx)
		if err != nil {
			return Value{}, err
		}
		if !l.Truthy() {
			return Bool(false), nil
		}
		r, err := e.right.eval(ctx)
		if err != nil {
			return Value{}, err
		}
		return Bool(r.Truthy()), nil
	}
	if e.op == etOr {
		l, err := e.left.eval(ctx)
		if err != nil {
			return Value{}, err
		}
		if l.Truthy() {
			return Bool(true), nil
		}
		r, err := e.right.eval(ctx)
		if err != nil {
			return Value{}, err
		}
		return Bool(r.Truthy()), nil
	}

	l, err := e.left.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	r, err := e.right.eval(ctx)
	if err != nil {
		return Value{}, err
	}

	switch e.op {
	case etEq:
		return Bool(Equal(l, r)), nil
	case etNe:
		return Bool(!Equal(l, r)), nil
	case etPlus:
		return evalPlus(l, r)
	case etMinus, etStar, etSlash, etPercent, etLt, etLe, etGt, etGe:
		lf, ok1 := l.AsNumber()
		rf, ok2 := r.AsNumber()
		if !ok1 || !ok2 {
			return Value{}, newExprError(ecParse, "operator %s requires numbers", exprOpText(e.op))
		}
		switch e.op {
		case etMinus:
			return Number(lf - rf), nil
		case etStar:
			return Number(lf * rf), nil
		case etSlash:
			if rf == 0 {
				return Value{}, newExprError(ecDivisionByZero, "Division by zero")
			}
			return Number(lf / rf), nil
		case etPercent:
			if rf == 0 {
				return Value{}, newExprError(ecDivisionByZero, "Division by zero")
			}
			return Number(math.Mod(lf, rf)), nil
		case etLt:
			return Bool(lf < rf), nil
		case etLe:
			return Bool(lf <= rf), nil
		case etGt:
			return Bool(lf > rf), nil
		case etGe:
			return Bool(lf >= rf), nil
		}
	}
	return Value{}, fmt.Errorf("internal: bad binary op %d", e.op)
}

// evalPlus implements the spec's overload: number+number adds, anything
// involving a string concatenates via Stringify.
func evalPlus(l, r Value) (Value, error) {
	if l.Kind() == KindNumber && r.Kind() == KindNumber {
		lf, _ := l.AsNumber()
		rf, _ := r.AsNumber()
		return Number(lf + rf), nil
	}
	if l.Kind() == KindString || r.Kind() == KindString {
		return String(l.Stringify() + r.Stringify()), nil
	}
	return Value{}, newExprError(ecParse, "operator + requires numbers or a string operand")
}

func exprOpText(op exprTokenType) string {
	switch op {
	case etMinus:
		return "-"
	case etStar:
		return "*"
	case etSlash:
		return "/"
	case etPercent:
		return "%"
	case etLt:
		return "<"
	case etLe:
		return "<="
	case etGt:
		return ">"
	case etGe:
		return ">="
	default:
		return "?"
	}
}

func (e *callExpr) eval(ctx *Context) (Value, error) {
	args := make([]Value, len(e.args))
	for i, a := range e.args {
		v, err := a.eval(ctx)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}

	// Built-in table takes priority over context, even if a local variable
	// shadows the name: call dispatch and identifier lookup are deliberately
	// different paths.
	if e.name != "" {
		if fn, ok := builtinFuncs[e.name]; ok {
			return fn(args)
		}
	}

	callee, err := e.callee.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	fn, ok := callee.AsFunction()
	if !ok {
		return Value{}, newExprError(ecUnknownFunction, "value is not callable")
	}
	return fn(args)
}
