package builder

import (
	"strings"
	"testing"
	"testing/fstest"
)

// nopCache is a Cache that never hits, used where tests don't care about
// memoization but still need something satisfying the interface.
type nopCache struct{}

func (nopCache) Get(string) (string, bool) { return "", false }
func (nopCache) Put(string, string)         {}

func newTestMachine(files map[string]string) *Machine {
	mapFS := fstest.MapFS{}
	for name, content := range files {
		mapFS[name] = &fstest.MapFile{Data: []byte(content)}
	}
	registry := NewRegistry(NewFSReader(mapFS))
	return NewMachine(registry, nopCache{})
}

func TestMachineSetAndOutput(t *testing.T) {
	m := newTestMachine(nil)
	out, err := m.ExecuteString("@set X = 1 + 2\nvalue: @{X}\n", "main", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimRight(out, "\n") != "value: 3" {
		t.Fatalf("got %q", out)
	}
}

func TestMachineIncludeOnceDedup(t *testing.T) {
	m := newTestMachine(map[string]string{
		"lib.txt": "shared\n",
	})
	src := "@include once lib.txt\n@include once lib.txt\n"
	out, err := m.ExecuteString(src, "main", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "shared") != 1 {
		t.Fatalf("expected exactly one inclusion, got %q", out)
	}
}

func TestMachineIncludeWithoutOnceRepeats(t *testing.T) {
	m := newTestMachine(map[string]string{
		"lib.txt": "shared\n",
	})
	src := "@include lib.txt\n@include lib.txt\n"
	out, err := m.ExecuteString(src, "main", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "shared") != 2 {
		t.Fatalf("expected two inclusions, got %q", out)
	}
}

func TestMachineMacroDirectiveCall(t *testing.T) {
	m := newTestMachine(nil)
	src := "@macro greet(name)\nhi @{name}\n@endmacro\n@include greet(\"world\")\n"
	out, err := m.ExecuteString(src, "main", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimRight(out, "\n") != "hi world" {
		t.Fatalf("got %q", out)
	}
}

func TestMachineMacroMissingArgsBindNull(t *testing.T) {
	m := newTestMachine(nil)
	src := "@macro greet(name)\nhi [@{name}]\n@endmacro\n@include greet()\n"
	out, err := m.ExecuteString(src, "main", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimRight(out, "\n") != "hi []" {
		t.Fatalf("got %q", out)
	}
}

func TestMachineMacroExpressionCall(t *testing.T) {
	m := newTestMachine(nil)
	src := "@macro shout(word)\n@{word}!\n@endmacro\n@set X = shout(\"hi\")\nresult: @{X}\n"
	out, err := m.ExecuteString(src, "main", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimRight(out, "\n") != "result: hi!" {
		t.Fatalf("got %q", out)
	}
}

func TestMachineMacroRedeclarationIsFatal(t *testing.T) {
	m := newTestMachine(nil)
	src := "@macro a()\n@endmacro\n@macro a()\n@endmacro\n"
	_, err := m.ExecuteString(src, "main", "", nil)
	if err == nil {
		t.Fatal("expected macro redeclaration error")
	}
	var mad *MacroAlreadyDeclaredError
	if _, ok := err.(*MacroAlreadyDeclaredError); ok {
		mad = err.(*MacroAlreadyDeclaredError)
	}
	if mad == nil {
		t.Fatalf("got %T, want *MacroAlreadyDeclaredError", err)
	}
}

func TestMachineWhileLoop(t *testing.T) {
	m := newTestMachine(nil)
	src := "@set I = 0\n@while I < 3\nn=@{I}\n@set I = I + 1\n@endwhile\n"
	out, err := m.ExecuteString(src, "main", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := "n=0\nn=1\nn=2\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestMachineRepeatLoopExposesLoopVar(t *testing.T) {
	m := newTestMachine(nil)
	src := "@repeat 3\nn=@{loop.index} (@{loop.iteration})\n@endrepeat\n"
	out, err := m.ExecuteString(src, "main", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := "n=0 (1)\nn=1 (2)\nn=2 (3)\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

// TestMachineRepeatReevaluatesCountEachIteration guards against treating the
// repeat count as a one-shot upper bound: the body lowers N on its first
// pass, so a loop that only evaluated the count expression once (read as 5
// up front) would run 5 times instead of stopping once index catches up to
// the now-smaller N.
func TestMachineRepeatReevaluatesCountEachIteration(t *testing.T) {
	m := newTestMachine(nil)
	src := "@set N = 5\n@repeat N\n@if loop.index == 0\n@set N = 2\n@endif\nn=@{loop.index}\n@endrepeat\n"
	out, err := m.ExecuteString(src, "main", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := "n=0\nn=1\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestMachineExecuteRoundTripsPlainText(t *testing.T) {
	m := newTestMachine(nil)
	for _, src := range []string{"hello\nworld\n", "hello\nworld", "", "just one line, no newline"} {
		out, err := m.ExecuteString(src, "main", "", nil)
		if err != nil {
			t.Fatalf("ExecuteString(%q): %v", src, err)
		}
		if out != src {
			t.Fatalf("execute(%q) = %q, want input unchanged", src, out)
		}
	}
}

func TestMachineMaxExecutionDepth(t *testing.T) {
	m := newTestMachine(nil)
	src := "@macro loop()\n@include loop()\n@endmacro\n@include loop()\n"
	_, err := m.ExecuteString(src, "main", "", nil)
	if err == nil {
		t.Fatal("expected max execution depth error")
	}
	if _, ok := err.(*MaxExecutionDepthReachedError); !ok {
		t.Fatalf("got %T (%v), want *MaxExecutionDepthReachedError", err, err)
	}
}

func TestMachineFileAndLineReservedKeys(t *testing.T) {
	m := newTestMachine(nil)
	src := "f=@{__FILE__} l=@{__LINE__}\n"
	out, err := m.ExecuteString(src, "main.txt", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimRight(out, "\n") != "f=main.txt l=1" {
		t.Fatalf("got %q", out)
	}
}

func TestMachineMacroOriginFileNotCallSite(t *testing.T) {
	m := newTestMachine(map[string]string{
		"lib.txt": "@macro whereami()\n@{__FILE__}\n@endmacro\n",
	})
	src := "@include lib.txt\n@include whereami()\n"
	out, err := m.ExecuteString(src, "main.txt", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimRight(out, "\n") != "lib.txt" {
		t.Fatalf("got %q, want macro's declaration file, not the call site", out)
	}
}

func TestMachineUserError(t *testing.T) {
	m := newTestMachine(nil)
	_, err := m.ExecuteString(`@error "boom"`, "main", "", nil)
	if err == nil {
		t.Fatal("expected user error")
	}
	if _, ok := err.(*UserDefinedError); !ok {
		t.Fatalf("got %T, want *UserDefinedError", err)
	}
}

func TestMachineWarningIsNonFatal(t *testing.T) {
	var captured error
	mapFS := fstest.MapFS{}
	registry := NewRegistry(NewFSReader(mapFS))
	m := NewMachine(registry, nopCache{}, WithWarningSink(func(err error) { captured = err }))
	out, err := m.ExecuteString("before\n@warning \"heads up\"\nafter\n", "main", "", nil)
	if err != nil {
		t.Fatalf("warnings must not abort execution: %v", err)
	}
	if !strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Fatalf("got %q", out)
	}
	if captured == nil || !IsWarning(captured) {
		t.Fatalf("expected a warning to be captured, got %v", captured)
	}
}
