package builder

import (
	"strings"

	"github.com/fatih/color"
	"github.com/jayeheffernan/builder/internal/set"
)

// MaxExecutionDepth (declared alongside the error type in error.go) bounds
// combined @include/macro-call recursion: Machine.depth is the single counter
// enterDepth checks against it, per the cycle-detection invariant (one
// shared counter, not one per include chain and a separate one per macro
// chain).

// Machine is the C4 execution engine: it walks a parsed Document, resolving
// @include against a Registry, expanding @macro calls, and appending text to
// an output buffer. Mirrors asm/compiler.go's Compiler, generalized from
// PC-assignment/bytecode-generation to text output, and asm/global.go's
// globalScope, generalized to this spec's single GlobalContext+macroTable.
//
// A Machine is not safe for concurrent use of its own Execute method (the
// depth counter, output buffer and macro table are mutable machine state
// with no locking, by design: the spec only promises a single execute call
// is non-reentrant, not that whole Machines are thread-safe). Multiple
// Machines may safely share one Cache and Registry concurrently.
type Machine struct {
	registry    *Registry
	cache       Cache
	lineControl bool
	warn        func(error)

	globals  *GlobalContext
	macros   *macroTable
	included set.Set[string]
	depth    int
	out      *strings.Builder
}

// Option configures a Machine at construction time.
type Option func(*Machine)

// WithLineControl toggles emission of "#line N \"path/file\"" markers at
// file-inclusion boundaries.
func WithLineControl(enabled bool) Option {
	return func(m *Machine) { m.lineControl = enabled }
}

// WithWarningSink overrides where @warning diagnostics are written. The
// default writes ANSI-yellow to stderr via fatih/color, matching the
// "ANSI-yellow on terminals" requirement.
func WithWarningSink(sink func(error)) Option {
	return func(m *Machine) { m.warn = sink }
}

func NewMachine(registry *Registry, cache Cache, opts ...Option) *Machine {
	m := &Machine{
		registry: registry,
		cache:    cache,
		warn:     defaultWarningSink,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var warnColor = color.New(color.FgYellow)

func defaultWarningSink(err error) {
	warnColor.Fprintln(colorStderr, err.Error())
}

// ExecuteString runs src as the top-level document; file/path seed the
// __FILE__/__PATH__ reserved identifiers and initial are caller-supplied
// starting variables (the CLI's -D NAME=VALUE flags, for instance).
func (m *Machine) ExecuteString(src, file, path string, initial map[string]Value) (string, error) {
	m.globals = NewGlobalContext()
	m.macros = newMacroTable()
	m.included = make(set.Set[string])
	m.depth = 0
	m.out = &strings.Builder{}

	for name, v := range initial {
		m.globals.Set(name, v)
	}

	ctx := m.rootContext(file, path, false)
	instrs, err := parseDocument(src)
	if err != nil {
		return "", err
	}
	if err := m.execBlock(instrs, file, path, ctx); err != nil {
		return "", err
	}
	return m.out.String(), nil
}

// ExecuteRef resolves ref through the Registry/Cache and runs it as the
// top-level document.
func (m *Machine) ExecuteRef(ref string, initial map[string]Value) (string, error) {
	content, file, path, err := m.readCached(ref)
	if err != nil {
		return "", err
	}
	return m.ExecuteString(content, file, path, initial)
}

func (m *Machine) readCached(ref string) (content, file, path string, err error) {
	if lc, ok := m.cache.(*LRUCache); ok {
		// Resolve file/path up front (cheap, reader-local) so the cache key
		// is the reader's parsed identity, not the raw ref text (two refs
		// that resolve to the same file must share a cache entry).
		rd, ferr := m.registry.find(ref)
		if ferr != nil {
			return "", "", "", &SourceReadingError{Ref: ref, Err: ferr}
		}
		file, path = rd.ParsePath(ref)
		content, err = lc.ReadThrough(joinPathFile(path, file), func() (string, error) { return rd.Read(ref) })
		if err != nil {
			return "", "", "", &SourceReadingError{Ref: ref, Err: err}
		}
		return content, file, path, nil
	}
	content, file, path, err = m.registry.Read(ref)
	if err != nil {
		return "", "", "", err
	}
	key := joinPathFile(path, file)
	if cached, ok := m.cache.Get(key); ok {
		return cached, file, path, nil
	}
	m.cache.Put(key, content)
	return content, file, path, nil
}

// rootContext builds the base scope every execute/include/macro frame
// starts from: reserved defaults lowest, then built-ins, then a live view of
// globals on top — so an ordinary global shadows a built-in name, and (in
// the unusual case of a @set to a reserved name like __FILE__) the global
// wins over the file-scoped default. The __FILE__/__PATH__ invariant still
// holds in the ordinary case because nothing sets those names as globals;
// per-call overlays (__LINE__ per instruction, loop counters, macro params)
// sit above all three and are the actual highest-precedence layer.
func (m *Machine) rootContext(file, path string, inline bool) *Context {
	defaults := map[string]Value{
		"__FILE__":   String(file),
		"__PATH__":   String(path),
		"__LINE__":   Number(0),
		"__INLINE__": Bool(inline),
	}
	return newRootContext(m.globals, builtinValues(), defaults)
}

func (m *Machine) enterDepth(pos Position) error {
	if m.depth >= MaxExecutionDepth {
		return &MaxExecutionDepthReachedError{Pos: pos}
	}
	m.depth++
	return nil
}

func (m *Machine) exitDepth() {
	m.depth--
}
