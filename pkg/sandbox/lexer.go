package sandbox

import (
	"strings"
	"unicode"
)

// lexer tokenizes a script into a flat token stream with synthetic
// INDENT and DEDENT tokens, so the parser never tracks whitespace.
type lexer struct {
	src     []rune
	pos     int
	line    int
	col     int
	indents []int
	pending []token
	depth   int // bracket nesting; newlines inside brackets are ignored
	atLine  bool
}

func newLexer(src string) *lexer {
	// normalize line endings so column math stays simple
	src = strings.ReplaceAll(src, "\r\n", "\n")
	return &lexer{src: []rune(src), line: 1, col: 1, indents: []int{0}, atLine: true}
}

func tokenize(src string) ([]token, error) {
	lx := newLexer(src)
	var toks []token
	for {
		t, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) peekRune() rune {
	if lx.pos >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos]
}

func (lx *lexer) peekRuneAt(off int) rune {
	if lx.pos+off >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos+off]
}

func (lx *lexer) advance() rune {
	r := lx.src[lx.pos]
	lx.pos++
	if r == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return r
}

func (lx *lexer) next() (token, error) {
	if len(lx.pending) > 0 {
		t := lx.pending[0]
		lx.pending = lx.pending[1:]
		return t, nil
	}
	if lx.atLine && lx.depth == 0 {
		if t, ok, err := lx.handleIndent(); err != nil {
			return token{}, err
		} else if ok {
			return t, nil
		}
	}
	lx.skipSpaces()
	if lx.pos >= len(lx.src) {
		return lx.finish(), nil
	}
	r := lx.peekRune()
	switch {
	case r == '#':
		for lx.pos < len(lx.src) && lx.peekRune() != '\n' {
			lx.advance()
		}
		return lx.next()
	case r == '\n':
		lx.advance()
		if lx.depth > 0 {
			return lx.next()
		}
		lx.atLine = true
		return token{kind: tokNewline, line: lx.line - 1}, nil
	case r == '\\' && lx.peekRuneAt(1) == '\n':
		lx.advance()
		lx.advance()
		return lx.next()
	case r == '\'' || r == '"':
		return lx.lexString()
	case unicode.IsDigit(r) || (r == '.' && unicode.IsDigit(lx.peekRuneAt(1))):
		return lx.lexNumber()
	case r == '_' || unicode.IsLetter(r):
		return lx.lexName()
	default:
		return lx.lexOp()
	}
}

// handleIndent measures leading whitespace at the start of a logical line
// and emits INDENT/DEDENT tokens against the indentation stack.
func (lx *lexer) handleIndent() (token, bool, error) {
	for {
		width := 0
		for lx.pos < len(lx.src) {
			switch lx.peekRune() {
			case ' ':
				width++
				lx.advance()
			case '\t':
				width += 8 - width%8
				lx.advance()
			default:
				goto measured
			}
		}
	measured:
		// blank lines and comment-only lines do not affect indentation
		if lx.pos >= len(lx.src) {
			lx.atLine = false
			return token{}, false, nil
		}
		if lx.peekRune() == '\n' {
			lx.advance()
			continue
		}
		if lx.peekRune() == '#' {
			for lx.pos < len(lx.src) && lx.peekRune() != '\n' {
				lx.advance()
			}
			continue
		}
		lx.atLine = false
		top := lx.indents[len(lx.indents)-1]
		if width == top {
			return token{}, false, nil
		}
		if width > top {
			lx.indents = append(lx.indents, width)
			return token{kind: tokIndent, line: lx.line}, true, nil
		}
		var dedents []token
		for len(lx.indents) > 1 && lx.indents[len(lx.indents)-1] > width {
			lx.indents = lx.indents[:len(lx.indents)-1]
			dedents = append(dedents, token{kind: tokDedent, line: lx.line})
		}
		if lx.indents[len(lx.indents)-1] != width {
			return token{}, false, &syntaxError{line: lx.line, msg: "unindent does not match any outer indentation level"}
		}
		lx.pending = append(lx.pending, dedents[1:]...)
		return dedents[0], true, nil
	}
}

func (lx *lexer) finish() token {
	// close any open blocks and terminate the last logical line
	var toks []token
	if !lx.atLine {
		toks = append(toks, token{kind: tokNewline, line: lx.line})
	}
	for len(lx.indents) > 1 {
		lx.indents = lx.indents[:len(lx.indents)-1]
		toks = append(toks, token{kind: tokDedent, line: lx.line})
	}
	toks = append(toks, token{kind: tokEOF, line: lx.line})
	lx.atLine = true
	lx.pending = append(lx.pending, toks[1:]...)
	return toks[0]
}

func (lx *lexer) skipSpaces() {
	for lx.pos < len(lx.src) {
		r := lx.peekRune()
		if r == ' ' || r == '\t' {
			lx.advance()
			continue
		}
		return
	}
}

func (lx *lexer) lexString() (token, error) {
	line := lx.line
	quote := lx.advance()
	triple := false
	if lx.peekRune() == quote && lx.peekRuneAt(1) == quote {
		lx.advance()
		lx.advance()
		triple = true
	}
	var sb strings.Builder
	for {
		if lx.pos >= len(lx.src) {
			return token{}, &syntaxError{line: line, msg: "unterminated string literal"}
		}
		r := lx.peekRune()
		if !triple && r == '\n' {
			return token{}, &syntaxError{line: line, msg: "unterminated string literal"}
		}
		if r == quote {
			if !triple {
				lx.advance()
				break
			}
			if lx.peekRuneAt(1) == quote && lx.peekRuneAt(2) == quote {
				lx.advance()
				lx.advance()
				lx.advance()
				break
			}
			sb.WriteRune(lx.advance())
			continue
		}
		if r == '\\' {
			lx.advance()
			if lx.pos >= len(lx.src) {
				return token{}, &syntaxError{line: line, msg: "unterminated string literal"}
			}
			esc := lx.advance()
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			case '\\', '\'', '"':
				sb.WriteRune(esc)
			case '\n':
				// escaped newline inside a string continues it
			default:
				sb.WriteRune('\\')
				sb.WriteRune(esc)
			}
			continue
		}
		sb.WriteRune(lx.advance())
	}
	return token{kind: tokString, text: sb.String(), line: line}, nil
}

func (lx *lexer) lexNumber() (token, error) {
	line := lx.line
	var sb strings.Builder
	isFloat := false
	for lx.pos < len(lx.src) {
		r := lx.peekRune()
		if unicode.IsDigit(r) || r == '_' {
			if r == '_' {
				lx.advance()
				continue
			}
			sb.WriteRune(lx.advance())
			continue
		}
		if r == '.' && !isFloat && unicode.IsDigit(lx.peekRuneAt(1)) {
			isFloat = true
			sb.WriteRune(lx.advance())
			continue
		}
		if (r == 'e' || r == 'E') && sb.Len() > 0 {
			nxt := lx.peekRuneAt(1)
			if unicode.IsDigit(nxt) || ((nxt == '+' || nxt == '-') && unicode.IsDigit(lx.peekRuneAt(2))) {
				isFloat = true
				sb.WriteRune(lx.advance())
				sb.WriteRune(lx.advance())
				continue
			}
		}
		break
	}
	kind := tokInt
	if isFloat {
		kind = tokFloat
	}
	return token{kind: kind, text: sb.String(), line: line}, nil
}

func (lx *lexer) lexName() (token, error) {
	line := lx.line
	var sb strings.Builder
	for lx.pos < len(lx.src) {
		r := lx.peekRune()
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(lx.advance())
			continue
		}
		break
	}
	name := sb.String()
	// string prefixes like f"..." are lexed as a prefixed string
	if (name == "f" || name == "r" || name == "b") && (lx.peekRune() == '"' || lx.peekRune() == '\'') {
		if name != "r" {
			return token{}, &syntaxError{line: line, msg: "string prefix " + name + "-strings are not supported"}
		}
		return lx.lexString()
	}
	if keywords[name] {
		return token{kind: tokKeyword, text: name, line: line}, nil
	}
	return token{kind: tokName, text: name, line: line}, nil
}

var multiOps = []string{
	"**", "//", "==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "->",
}

func (lx *lexer) lexOp() (token, error) {
	line := lx.line
	if lx.pos+1 < len(lx.src) {
		two := string(lx.src[lx.pos : lx.pos+2])
		for _, op := range multiOps {
			if two == op {
				lx.advance()
				lx.advance()
				return token{kind: tokOp, text: op, line: line}, nil
			}
		}
	}
	r := lx.advance()
	switch r {
	case '(', '[', '{':
		lx.depth++
	case ')', ']', '}':
		if lx.depth > 0 {
			lx.depth--
		}
	}
	switch r {
	case '+', '-', '*', '/', '%', '=', '<', '>', '(', ')', '[', ']', '{', '}', ',', ':', '.', ';':
		return token{kind: tokOp, text: string(r), line: line}, nil
	}
	return token{}, &syntaxError{line: line, msg: "unexpected character " + string(r)}
}
