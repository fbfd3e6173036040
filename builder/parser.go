package builder

import (
	"strings"
)

// parser wraps lineLexer with one token of lookahead, the same shape as
// asm/ast.go's parser (next/unread over the channel-fed lexer).
type parser struct {
	lex     *lineLexer
	tok     lineToken
	hasNext bool
	peeked  lineToken
}

func newParser(src string) *parser {
	return &parser{lex: newLineLexer(src)}
}

func (p *parser) next() lineToken {
	if p.hasNext {
		p.hasNext = false
		p.tok = p.peeked
		return p.tok
	}
	p.tok = <-p.lex.tokens
	return p.tok
}

func (p *parser) peek() lineToken {
	if !p.hasNext {
		p.peeked = <-p.lex.tokens
		p.hasNext = true
	}
	return p.peeked
}

// parseDocument parses a whole source string into its top-level instruction
// list. It carries no provenance: the caller (C4) passes the file/path it got
// from the Reader alongside the instructions when executing them.
func parseDocument(src string) ([]Instruction, error) {
	p := newParser(src)
	body, _, err := p.parseBlock(nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// parseBlock parses instructions until EOF or a closer keyword is seen.
// closers, when non-nil, names the keywords that end this block (without
// consuming the terminating line's keyword-specific payload beyond what
// each block type needs — handled by the caller via the returned token).
func (p *parser) parseBlock(closers map[string]bool) ([]Instruction, lineToken, error) {
	var out []Instruction
	for {
		tok := p.peek()
		if tok.typ == ltEOF {
			return out, tok, nil
		}
		if tok.typ == ltDirective && closers[tok.keyword] {
			return out, tok, nil
		}
		p.next()
		switch tok.typ {
		case ltOutput:
			out = append(out, &OutputInstr{baseInstr: baseInstr{tok.line}, Parts: splitOutputLine(tok.operand)})
		case ltDirective:
			inst, err := p.parseDirective(tok)
			if err != nil {
				return nil, lineToken{}, err
			}
			if inst != nil {
				out = append(out, inst)
			}
		}
	}
}

func (p *parser) parseDirective(tok lineToken) (Instruction, error) {
	pos := Position{Line: tok.line}
	switch tok.keyword {
	case "set":
		name, expr, ok := strings.Cut(tok.operand, "=")
		if !ok {
			return nil, newParseError(pos, "@set requires NAME = expression")
		}
		return &SetInstr{baseInstr: baseInstr{tok.line}, Name: strings.TrimSpace(name), Expr: strings.TrimSpace(expr)}, nil

	case "include":
		operand := tok.operand
		once := false
		if strings.HasPrefix(operand, "once ") {
			once = true
			operand = strings.TrimSpace(operand[len("once "):])
		}
		return &IncludeInstr{baseInstr: baseInstr{tok.line}, Once: once, Ref: strings.TrimSpace(operand)}, nil

	case "error":
		return &ErrorInstr{baseInstr: baseInstr{tok.line}, Expr: tok.operand}, nil

	case "warning":
		return &WarningInstr{baseInstr: baseInstr{tok.line}, Expr: tok.operand}, nil

	case "if":
		return p.parseConditional(tok)

	case "while":
		body, end, err := p.parseBlock(map[string]bool{"endwhile": true})
		if err != nil {
			return nil, err
		}
		if end.typ != ltDirective || end.keyword != "endwhile" {
			return nil, newParseError(pos, "@while without matching @endwhile")
		}
		p.next() // consume @endwhile
		return &LoopInstr{baseInstr: baseInstr{tok.line}, Condition: tok.operand, Body: body}, nil

	case "repeat":
		body, end, err := p.parseBlock(map[string]bool{"endrepeat": true})
		if err != nil {
			return nil, err
		}
		if end.typ != ltDirective || end.keyword != "endrepeat" {
			return nil, newParseError(pos, "@repeat without matching @endrepeat")
		}
		p.next() // consume @endrepeat
		return &LoopInstr{baseInstr: baseInstr{tok.line}, Repeat: true, Condition: tok.operand, Body: body}, nil

	case "macro":
		name, params, err := parseMacroDeclaration(tok.operand, pos)
		if err != nil {
			return nil, err
		}
		body, end, err := p.parseBlock(map[string]bool{"endmacro": true})
		if err != nil {
			return nil, err
		}
		if end.typ != ltDirective || end.keyword != "endmacro" {
			return nil, newParseError(pos, "@macro without matching @endmacro")
		}
		p.next() // consume @endmacro
		return &MacroInstr{baseInstr: baseInstr{tok.line}, Name: name, Params: params, Body: body}, nil

	case "elseif", "else", "endif", "endwhile", "endrepeat", "endmacro":
		return nil, newParseError(pos, "unexpected @%s without matching opener", tok.keyword)

	default:
		return nil, newParseError(pos, "unknown directive @%s", tok.keyword)
	}
}

func (p *parser) parseConditional(ifTok lineToken) (Instruction, error) {
	pos := Position{Line: ifTok.line}
	inst := &ConditionalInstr{baseInstr: baseInstr{ifTok.line}}
	test := ifTok.operand
	for {
		body, end, err := p.parseBlock(map[string]bool{"elseif": true, "else": true, "endif": true})
		if err != nil {
			return nil, err
		}
		inst.Branches = append(inst.Branches, condBranch{Test: test, Body: body})
		if end.typ != ltDirective {
			return nil, newParseError(pos, "@if without matching @endif")
		}
		switch end.keyword {
		case "elseif":
			p.next()
			test = end.operand
			continue
		case "else":
			p.next()
			elseBody, end2, err := p.parseBlock(map[string]bool{"endif": true})
			if err != nil {
				return nil, err
			}
			if end2.typ != ltDirective || end2.keyword != "endif" {
				return nil, newParseError(pos, "@else without matching @endif")
			}
			p.next()
			inst.Else = elseBody
			return inst, nil
		case "endif":
			p.next()
			return inst, nil
		}
	}
}

// splitOutputLine segments a plain output line into static text and inline
// @{...} expression slots. Scanning is quote-aware: a '}' inside a string
// literal does not terminate the slot, since the expression grammar has no
// other way for an unmatched '}' to appear.
func splitOutputLine(line string) []OutputPart {
	var parts []OutputPart
	i := 0
	var textStart int
	for i < len(line) {
		if line[i] == '@' && i+1 < len(line) && line[i+1] == '{' {
			if i > textStart {
				parts = append(parts, OutputPart{Text: line[textStart:i]})
			}
			end := findSlotEnd(line, i+2)
			expr := line[i+2 : end]
			parts = append(parts, OutputPart{Expr: expr, IsSlot: true})
			if end < len(line) {
				i = end + 1 // skip closing '}'
			} else {
				i = end
			}
			textStart = i
			continue
		}
		i++
	}
	if textStart < len(line) {
		parts = append(parts, OutputPart{Text: line[textStart:]})
	}
	if len(parts) == 0 {
		parts = append(parts, OutputPart{Text: ""})
	}
	return parts
}

// findSlotEnd returns the index of the '}' that closes an @{ started at
// start-2, or len(line) if unterminated.
func findSlotEnd(line string, start int) int {
	inSingle, inDouble := false, false
	i := start
	for i < len(line) {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line) && (inSingle || inDouble):
			i += 2
			continue
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '}' && !inSingle && !inDouble:
			return i
		}
		i++
	}
	return len(line)
}
