package builder

import "testing"

func TestParseRoundTripPlainText(t *testing.T) {
	src := "hello\nworld\n"
	instrs, err := parseDocument(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(instrs) != 2 {
		t.Fatalf("got %d instructions, want 2", len(instrs))
	}
	for i, want := range []string{"hello\n", "world\n"} {
		out, ok := instrs[i].(*OutputInstr)
		if !ok {
			t.Fatalf("instr %d is %T, want *OutputInstr", i, instrs[i])
		}
		if len(out.Parts) != 1 || out.Parts[0].Text != want {
			t.Fatalf("instr %d = %+v, want text %q", i, out.Parts, want)
		}
	}
}

func TestParseRoundTripNoTrailingNewline(t *testing.T) {
	src := "hello\nworld"
	instrs, err := parseDocument(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(instrs) != 2 {
		t.Fatalf("got %d instructions, want 2", len(instrs))
	}
	for i, want := range []string{"hello\n", "world"} {
		out, ok := instrs[i].(*OutputInstr)
		if !ok {
			t.Fatalf("instr %d is %T, want *OutputInstr", i, instrs[i])
		}
		if len(out.Parts) != 1 || out.Parts[0].Text != want {
			t.Fatalf("instr %d = %+v, want text %q", i, out.Parts, want)
		}
	}
}

func TestParseInlineSlot(t *testing.T) {
	instrs, err := parseDocument(`value is @{1 + 2} exactly`)
	if err != nil {
		t.Fatal(err)
	}
	out := instrs[0].(*OutputInstr)
	if len(out.Parts) != 3 {
		t.Fatalf("got %d parts, want 3: %+v", len(out.Parts), out.Parts)
	}
	if out.Parts[0].Text != "value is " || out.Parts[2].Text != " exactly" {
		t.Fatalf("unexpected text parts: %+v", out.Parts)
	}
	if !out.Parts[1].IsSlot || out.Parts[1].Expr != "1 + 2" {
		t.Fatalf("unexpected slot part: %+v", out.Parts[1])
	}
}

func TestParseSlotWithBraceInString(t *testing.T) {
	instrs, err := parseDocument(`@{"a}b"}`)
	if err != nil {
		t.Fatal(err)
	}
	out := instrs[0].(*OutputInstr)
	if out.Parts[0].Expr != `"a}b"` {
		t.Fatalf("got %q, want %q", out.Parts[0].Expr, `"a}b"`)
	}
}

func TestParseIfElseifElse(t *testing.T) {
	src := "@if X\na\n@elseif Y\nb\n@else\nc\n@endif\n"
	instrs, err := parseDocument(src)
	if err != nil {
		t.Fatal(err)
	}
	cond, ok := instrs[0].(*ConditionalInstr)
	if !ok {
		t.Fatalf("got %T, want *ConditionalInstr", instrs[0])
	}
	if len(cond.Branches) != 2 || cond.Else == nil {
		t.Fatalf("unexpected conditional shape: %+v", cond)
	}
	if cond.Branches[0].Test != "X" || cond.Branches[1].Test != "Y" {
		t.Fatalf("unexpected branch tests: %+v", cond.Branches)
	}
}

func TestParseMacroDecl(t *testing.T) {
	src := "@macro greet(name)\nhi @{name}\n@endmacro\n"
	instrs, err := parseDocument(src)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := instrs[0].(*MacroInstr)
	if !ok {
		t.Fatalf("got %T, want *MacroInstr", instrs[0])
	}
	if m.Name != "greet" || len(m.Params) != 1 || m.Params[0] != "name" {
		t.Fatalf("unexpected macro shape: %+v", m)
	}
}

func TestParseUnmatchedBlockIsError(t *testing.T) {
	_, err := parseDocument("@if X\na\n")
	if err == nil {
		t.Fatal("expected error for @if without @endif")
	}
}

func TestParseCommentStripping(t *testing.T) {
	// Comments are stripped from directive operands only; output lines are
	// emitted verbatim.
	instrs, err := parseDocument("@set X = 1 // drop this\nkeep // this\n")
	if err != nil {
		t.Fatal(err)
	}
	set := instrs[0].(*SetInstr)
	if set.Expr != "1" {
		t.Fatalf("got %q, want %q", set.Expr, "1")
	}
	out := instrs[1].(*OutputInstr)
	if out.Parts[0].Text != "keep // this\n" {
		t.Fatalf("got %q, want %q", out.Parts[0].Text, "keep // this\n")
	}
}
