package builder

// frame is one layer of a Context chain: either a plain map overlay or a
// live view onto the GlobalContext (so Set-ed globals are visible to every
// Context built before the Set ran, without re-snapshotting anything).
type frame interface {
	lookup(name string) (Value, bool)
}

type mapFrame map[string]Value

func (f mapFrame) lookup(name string) (Value, bool) {
	v, ok := f[name]
	return v, ok
}

type globalFrame struct{ g *GlobalContext }

func (f *globalFrame) lookup(name string) (Value, bool) {
	return f.g.Get(name)
}

// Context is an immutable, chained variable scope. Overlay never mutates
// its receiver; it allocates a new link pointing at the old chain, which is
// what the spec calls "clone the first argument, then shallow-merge the
// rest" — here the clone is structural (a new frame on top) rather than a
// map copy, so overlaying is O(1) instead of O(n).
type Context struct {
	frame  frame
	parent *Context
}

// newRootContext builds the base scope an execute() call starts from, in
// ascending precedence: reserved-key defaults, then built-in functions, then
// a live view of globals on top (so a later @set of a reserved name like
// __FILE__ — unusual, but not forbidden — is visible, matching the order
// the directive language defines for these layers). Per-call overlays
// (__LINE__, loop counters, macro params) are layered on top of this by the
// caller via Overlay/With, which is the "caller context" layer above all of
// these.
func newRootContext(globals *GlobalContext, builtins map[string]Value, defaults map[string]Value) *Context {
	c := &Context{frame: mapFrame(defaults)}
	c = c.Overlay(builtins)
	c = &Context{frame: &globalFrame{g: globals}, parent: c}
	return c
}

// Overlay returns a new Context with vars taking precedence over everything
// already visible through c. c itself is left untouched.
func (c *Context) Overlay(vars map[string]Value) *Context {
	if len(vars) == 0 {
		return c
	}
	cp := make(mapFrame, len(vars))
	for k, v := range vars {
		cp[k] = v
	}
	return &Context{frame: cp, parent: c}
}

// With is a convenience overlay for a single binding, used for loop
// counters and __LINE__ updates where allocating a map literal each call
// would be wasteful boilerplate at call sites.
func (c *Context) With(name string, v Value) *Context {
	return c.Overlay(map[string]Value{name: v})
}

// Lookup walks the chain from most to least specific.
func (c *Context) Lookup(name string) (Value, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		if v, ok := cur.frame.lookup(name); ok {
			return v, true
		}
	}
	return Value{}, false
}

// GlobalContext is the mutable store written by @set and @macro: variables
// assigned outside any local scope, plus macro callables keyed by name.
// Distinct from Context, which is read-only from the evaluator's point of
// view. Mirrors asm/global.go's globalScope, generalized from labels+macros
// to variables+macros.
type GlobalContext struct {
	vars map[string]Value
}

func NewGlobalContext() *GlobalContext {
	return &GlobalContext{vars: make(map[string]Value)}
}

func (g *GlobalContext) Set(name string, v Value) {
	g.vars[name] = v
}

func (g *GlobalContext) Get(name string) (Value, bool) {
	v, ok := g.vars[name]
	return v, ok
}
