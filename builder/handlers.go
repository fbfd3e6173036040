package builder

import (
	"fmt"
	"strings"
)

// execBlock walks a flat instruction list, dispatching each to its handler.
// file/path identify the document these instructions belong to (for
// __FILE__/__PATH__/line-control); ctx is the scope instructions execute
// against, already layered with whatever the caller (a macro call, a loop
// iteration, an @include) has overlaid.
func (m *Machine) execBlock(instrs []Instruction, file, path string, ctx *Context) error {
	for _, inst := range instrs {
		lineCtx := ctx.With("__LINE__", Number(float64(inst.Line())))
		if err := m.execInstruction(inst, file, path, lineCtx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) execInstruction(inst Instruction, file, path string, ctx *Context) error {
	pos := Position{File: file, Line: inst.Line()}

	switch in := inst.(type) {
	case *OutputInstr:
		return m.execOutput(in, pos, ctx)
	case *SetInstr:
		return m.execSet(in, pos, ctx)
	case *IncludeInstr:
		return m.execInclude(in, pos, ctx)
	case *ConditionalInstr:
		return m.execConditional(in, file, path, pos, ctx)
	case *LoopInstr:
		return m.execLoop(in, file, path, pos, ctx)
	case *MacroInstr:
		return m.execMacroDecl(in, file, path, pos)
	case *ErrorInstr:
		v, err := evaluate(in.Expr, ctx)
		if err != nil {
			return &ExpressionEvaluationError{Pos: pos, Err: err}
		}
		return &UserDefinedError{Pos: pos, Msg: v.Stringify()}
	case *WarningInstr:
		v, err := evaluate(in.Expr, ctx)
		if err != nil {
			return &ExpressionEvaluationError{Pos: pos, Err: err}
		}
		m.warn(&warningError{Pos: pos, Msg: v.Stringify()})
		return nil
	default:
		return fmt.Errorf("internal: unknown instruction type %T", inst)
	}
}

// execOutput writes each part verbatim. An output line's trailing text part
// already carries whatever terminator the source line had (a "\n", or
// nothing for a genuinely final unterminated line) — the lexer embeds it
// rather than this handler synthesizing one, which is what lets
// directive-free input round-trip byte for byte.
func (m *Machine) execOutput(in *OutputInstr, pos Position, ctx *Context) error {
	for _, part := range in.Parts {
		if !part.IsSlot {
			m.out.WriteString(part.Text)
			continue
		}
		v, err := evaluate(part.Expr, ctx)
		if err != nil {
			return &ExpressionEvaluationError{Pos: pos, Err: err}
		}
		m.out.WriteString(v.Stringify())
	}
	return nil
}

func (m *Machine) execSet(in *SetInstr, pos Position, ctx *Context) error {
	v, err := evaluate(in.Expr, ctx)
	if err != nil {
		return &ExpressionEvaluationError{Pos: pos, Err: err}
	}
	m.globals.Set(in.Name, v)
	return nil
}

func (m *Machine) execConditional(in *ConditionalInstr, file, path string, pos Position, ctx *Context) error {
	for _, branch := range in.Branches {
		v, err := evaluate(branch.Test, ctx)
		if err != nil {
			return &ExpressionEvaluationError{Pos: pos, Err: err}
		}
		if v.Truthy() {
			return m.execBlock(branch.Body, file, path, ctx)
		}
	}
	if in.Else != nil {
		return m.execBlock(in.Else, file, path, ctx)
	}
	return nil
}

// loopContext builds the {loop: {index, iteration}} overlay a loop body
// executes against.
func loopContext(ctx *Context, index int) *Context {
	return ctx.With("loop", Mapping(map[string]Value{
		"index":     Number(float64(index)),
		"iteration": Number(float64(index + 1)),
	}))
}

func (m *Machine) execLoop(in *LoopInstr, file, path string, pos Position, ctx *Context) error {
	if in.Repeat {
		index := 0
		for {
			v, err := evaluate(in.Condition, ctx)
			if err != nil {
				return &ExpressionEvaluationError{Pos: pos, Err: err}
			}
			count, ok := v.AsNumber()
			if !ok {
				return &ExpressionEvaluationError{Pos: pos, Err: newExprError(ecParse, "@repeat count must be a number")}
			}
			if float64(index) == count {
				return nil
			}
			iterCtx := loopContext(ctx, index)
			if err := m.execBlock(in.Body, file, path, iterCtx); err != nil {
				return err
			}
			index++
		}
	}

	index := 0
	for {
		v, err := evaluate(in.Condition, ctx)
		if err != nil {
			return &ExpressionEvaluationError{Pos: pos, Err: err}
		}
		if !v.Truthy() {
			return nil
		}
		iterCtx := loopContext(ctx, index)
		if err := m.execBlock(in.Body, file, path, iterCtx); err != nil {
			return err
		}
		index++
	}
}

// execMacroDecl registers the MacroDef and installs a callable Value into
// GlobalContext so the macro can be invoked from an expression, in addition
// to being reachable by name from @include.
func (m *Machine) execMacroDecl(in *MacroInstr, file, path string, pos Position) error {
	def := &MacroDef{
		Name:       in.Name,
		ParamNames: in.Params,
		Body:       in.Body,
		OriginFile: file,
		OriginPath: path,
		OriginLine: in.Line(),
	}
	if err := m.macros.register(def, pos); err != nil {
		return err
	}
	m.globals.Set(in.Name, Func(m.macroFunction(def)))
	return nil
}

// macroFunction returns the expression-callable form of a macro: exact
// argument count required, body executed into a fresh buffer, the captured
// text returned as a String Value.
func (m *Machine) macroFunction(def *MacroDef) Function {
	return func(args []Value) (Value, error) {
		if len(args) != len(def.ParamNames) {
			return Value{}, newExprError(ecWrongArgCount,
				"macro %s() requires exactly %d argument(s), got %d", def.Name, len(def.ParamNames), len(args))
		}
		params := make(map[string]Value, len(args))
		for i, name := range def.ParamNames {
			params[name] = args[i]
		}
		return m.expandMacro(def, params, Position{File: def.OriginFile, Line: def.OriginLine})
	}
}

// expandMacro runs a macro body against its declaration-site scope
// (__FILE__/__PATH__ reflect where the macro was declared, not where it was
// called from, per the invariant), guarded by the shared depth counter.
func (m *Machine) expandMacro(def *MacroDef, params map[string]Value, callPos Position) (Value, error) {
	if err := m.enterDepth(callPos); err != nil {
		return Value{}, err
	}
	defer m.exitDepth()

	ctx := m.rootContext(def.OriginFile, def.OriginPath, true).Overlay(params)

	prevOut := m.out
	m.out = &strings.Builder{}
	err := m.execBlock(def.Body, def.OriginFile, def.OriginPath, ctx)
	result := m.out.String()
	m.out = prevOut

	if err != nil {
		return Value{}, err
	}
	return String(strings.TrimSuffix(result, "\n")), nil
}

// execInclude resolves an @include operand: either a positional macro
// invocation (checked first against the macro table) or a source
// reference, fetched through the Registry/Cache and parsed/executed
// recursively.
func (m *Machine) execInclude(in *IncludeInstr, pos Position, ctx *Context) error {
	if name, argSrcs, ok := parseMacroCall(in.Ref); ok {
		if def, found := m.macros.lookup(name); found {
			return m.execIncludeMacro(def, argSrcs, pos, ctx)
		}
	}
	return m.execIncludeSource(in, pos, ctx)
}

// execIncludeMacro binds arguments positionally; directive-level calls pad
// missing trailing arguments with Null rather than requiring an exact
// count, unlike expression-level macro calls.
func (m *Machine) execIncludeMacro(def *MacroDef, argSrcs []string, pos Position, ctx *Context) error {
	params := make(map[string]Value, len(def.ParamNames))
	for i, name := range def.ParamNames {
		if i < len(argSrcs) {
			v, err := evaluate(argSrcs[i], ctx)
			if err != nil {
				return &ExpressionEvaluationError{Pos: pos, Err: err}
			}
			params[name] = v
		} else {
			params[name] = Null()
		}
	}

	if err := m.enterDepth(pos); err != nil {
		return err
	}
	defer m.exitDepth()

	childCtx := m.rootContext(def.OriginFile, def.OriginPath, true).Overlay(params)
	return m.execBlock(def.Body, def.OriginFile, def.OriginPath, childCtx)
}

func (m *Machine) execIncludeSource(in *IncludeInstr, pos Position, ctx *Context) error {
	ref, err := evaluate(in.Ref, ctx)
	var refText string
	if err != nil {
		// The operand isn't a valid expression; fall back to treating it as
		// a literal reference string, which covers the common case of bare
		// unquoted paths like "@include lib/util.txt".
		refText = in.Ref
	} else if s, ok := ref.AsString(); ok {
		refText = s
	} else {
		refText = ref.Stringify()
	}

	content, file, path, rerr := m.readCached(refText)
	if rerr != nil {
		return &SourceInclusionError{Pos: pos, Err: rerr}
	}

	if in.Once {
		identity := joinPathFile(path, file)
		if m.included.Includes(identity) {
			return nil
		}
		m.included.Add(identity)
	}

	if err := m.enterDepth(pos); err != nil {
		return err
	}
	defer m.exitDepth()

	inline := false
	if v, ok := ctx.Lookup("__INLINE__"); ok {
		inline = v.Truthy()
	}
	lineControl := m.lineControl && !inline
	if lineControl {
		emitLineControl(m.out, 1, path, file)
	}
	instrs, perr := parseDocument(content)
	if perr != nil {
		return &SourceInclusionError{Pos: pos, Err: perr}
	}
	childCtx := m.rootContext(file, path, inline)
	if err := m.execBlock(instrs, file, path, childCtx); err != nil {
		return err
	}
	if lineControl {
		emitLineControl(m.out, pos.Line+1, "", pos.File)
	}
	return nil
}
