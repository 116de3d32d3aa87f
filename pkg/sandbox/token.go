package sandbox

import "fmt"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokIndent
	tokDedent
	tokName
	tokKeyword
	tokInt
	tokFloat
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNewline:
		return "newline"
	case tokIndent:
		return "indent"
	case tokDedent:
		return "dedent"
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

var keywords = map[string]bool{
	"def": true, "return": true, "if": true, "elif": true, "else": true,
	"for": true, "while": true, "in": true, "not": true, "and": true,
	"or": true, "import": true, "from": true, "as": true, "pass": true,
	"break": true, "continue": true, "True": true, "False": true,
	"None": true, "lambda": true, "is": true,
}

// syntaxError is a parse-time failure of the generated script. It is a
// normal repairable execution error, not a security violation.
type syntaxError struct {
	line int
	msg  string
}

func (e *syntaxError) Error() string {
	return fmt.Sprintf("SyntaxError: line %d: %s", e.line, e.msg)
}
