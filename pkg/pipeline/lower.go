package pipeline

import (
	"regexp"
	"strings"
)

// equalityPattern matches `identifier = 'literal'` (the identifier may be
// qualified). An already-rewritten comparison cannot match again: the
// right-hand side of `LOWER(col) = LOWER('lit')` starts with a function
// call, not a quote, which makes the rewrite idempotent.
var equalityPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_.]*)\s*=\s*('(?:[^'\\]|\\.)*')`)

// ApplyLowerToWhere rewrites every `column = 'literal'` equality inside a
// query's WHERE clause into `LOWER(column) = LOWER('literal')`, making
// string comparisons case-insensitive by construction.
func ApplyLowerToWhere(query string) string {
	idx := findWhere(query)
	if idx < 0 {
		return query
	}
	head, clause := query[:idx], query[idx:]
	rewritten := equalityPattern.ReplaceAllStringFunc(clause, func(m string) string {
		sub := equalityPattern.FindStringSubmatch(m)
		return "LOWER(" + sub[1] + ") = LOWER(" + sub[2] + ")"
	})
	return head + rewritten
}

// findWhere locates the first WHERE keyword outside of string literals.
func findWhere(query string) int {
	upper := strings.ToUpper(query)
	inString := false
	for i := 0; i+5 <= len(upper); i++ {
		if query[i] == '\'' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if upper[i:i+5] == "WHERE" && boundaryAt(upper, i, 5) {
			return i
		}
	}
	return -1
}

func boundaryAt(s string, i, n int) bool {
	if i > 0 && isWordByte(s[i-1]) {
		return false
	}
	if i+n < len(s) && isWordByte(s[i+n]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z'
}
