package sandbox

import (
	"fmt"
	"strconv"
	"strings"
)

type parser struct {
	toks []token
	pos  int
}

func parse(src string) ([]stmt, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var stmts []stmt
	for !p.at(tokEOF) {
		if p.at(tokNewline) {
			p.advance()
			continue
		}
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s...)
	}
	return stmts, nil
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) at(kind tokenKind) bool { return p.cur().kind == kind }

func (p *parser) atOp(text string) bool {
	return p.cur().kind == tokOp && p.cur().text == text
}

func (p *parser) atKeyword(text string) bool {
	return p.cur().kind == tokKeyword && p.cur().text == text
}

func (p *parser) acceptOp(text string) bool {
	if p.atOp(text) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) acceptKeyword(text string) bool {
	if p.atKeyword(text) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectOp(text string) error {
	if !p.acceptOp(text) {
		return p.errorf("expected %q, found %s", text, p.cur())
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &syntaxError{line: p.cur().line, msg: fmt.Sprintf(format, args...)}
}

// statement parses one logical line. Simple statements separated by ";"
// on the same line yield multiple statements.
func (p *parser) statement() ([]stmt, error) {
	switch {
	case p.atKeyword("def"):
		s, err := p.defStatement()
		if err != nil {
			return nil, err
		}
		return []stmt{s}, nil
	case p.atKeyword("if"):
		s, err := p.ifStatement()
		if err != nil {
			return nil, err
		}
		return []stmt{s}, nil
	case p.atKeyword("for"):
		s, err := p.forStatement()
		if err != nil {
			return nil, err
		}
		return []stmt{s}, nil
	case p.atKeyword("while"):
		s, err := p.whileStatement()
		if err != nil {
			return nil, err
		}
		return []stmt{s}, nil
	}
	return p.simpleStatements()
}

func (p *parser) simpleStatements() ([]stmt, error) {
	var stmts []stmt
	for {
		s, err := p.simpleStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if p.acceptOp(";") {
			if p.at(tokNewline) || p.at(tokEOF) {
				break
			}
			continue
		}
		break
	}
	if p.at(tokNewline) {
		p.advance()
	} else if !p.at(tokEOF) && !p.at(tokDedent) {
		return nil, p.errorf("unexpected %s", p.cur())
	}
	return stmts, nil
}

func (p *parser) simpleStatement() (stmt, error) {
	line := p.cur().line
	switch {
	case p.atKeyword("import"):
		return p.importStatement()
	case p.atKeyword("from"):
		return p.fromImportStatement()
	case p.acceptKeyword("return"):
		if p.at(tokNewline) || p.at(tokEOF) || p.atOp(";") {
			return &returnStmt{line: line}, nil
		}
		v, err := p.exprList()
		if err != nil {
			return nil, err
		}
		return &returnStmt{line: line, Value: v}, nil
	case p.acceptKeyword("pass"):
		return &passStmt{line: line}, nil
	case p.acceptKeyword("break"):
		return &breakStmt{line: line}, nil
	case p.acceptKeyword("continue"):
		return &continueStmt{line: line}, nil
	}
	return p.assignOrExpr()
}

func (p *parser) importStatement() (stmt, error) {
	line := p.advance().line
	s := &importStmt{line: line}
	for {
		name, err := p.dottedName()
		if err != nil {
			return nil, err
		}
		alias := name
		if i := strings.LastIndex(name, "."); i >= 0 {
			alias = name[i+1:]
		}
		if p.acceptKeyword("as") {
			if !p.at(tokName) {
				return nil, p.errorf("expected name after 'as'")
			}
			alias = p.advance().text
		}
		s.Modules = append(s.Modules, importAlias{Name: name, Alias: alias})
		if !p.acceptOp(",") {
			return s, nil
		}
	}
}

func (p *parser) fromImportStatement() (stmt, error) {
	line := p.advance().line
	module, err := p.dottedName()
	if err != nil {
		return nil, err
	}
	if !p.acceptKeyword("import") {
		return nil, p.errorf("expected 'import' in from-import")
	}
	s := &fromImportStmt{line: line, Module: module}
	for {
		if !p.at(tokName) {
			return nil, p.errorf("expected name in from-import")
		}
		name := p.advance().text
		alias := name
		if p.acceptKeyword("as") {
			if !p.at(tokName) {
				return nil, p.errorf("expected name after 'as'")
			}
			alias = p.advance().text
		}
		s.Names = append(s.Names, importAlias{Name: name, Alias: alias})
		if !p.acceptOp(",") {
			return s, nil
		}
	}
}

func (p *parser) dottedName() (string, error) {
	if !p.at(tokName) {
		return "", p.errorf("expected module name")
	}
	name := p.advance().text
	for p.acceptOp(".") {
		if !p.at(tokName) {
			return "", p.errorf("expected name after '.'")
		}
		name += "." + p.advance().text
	}
	return name, nil
}

func (p *parser) defStatement() (stmt, error) {
	line := p.advance().line
	if !p.at(tokName) {
		return nil, p.errorf("expected function name")
	}
	name := p.advance().text
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	params, err := p.paramList()
	if err != nil {
		return nil, err
	}
	if p.acceptOp("->") {
		// return annotations are parsed and discarded
		if _, err := p.expression(); err != nil {
			return nil, err
		}
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	doc := ""
	if len(body) > 0 {
		if es, ok := body[0].(*exprStmt); ok {
			if sl, ok := es.Value.(*strLit); ok {
				doc = sl.Value
			}
		}
	}
	return &defStmt{line: line, Name: name, Params: params, Doc: doc, Body: body}, nil
}

func (p *parser) paramList() ([]param, error) {
	var params []param
	for !p.atOp(")") {
		if !p.at(tokName) {
			return nil, p.errorf("expected parameter name")
		}
		pr := param{Name: p.advance().text}
		if p.acceptOp(":") {
			// type annotations are parsed and discarded
			if _, err := p.expression(); err != nil {
				return nil, err
			}
		}
		if p.acceptOp("=") {
			d, err := p.expression()
			if err != nil {
				return nil, err
			}
			pr.Default = d
		}
		params = append(params, pr)
		if !p.acceptOp(",") {
			break
		}
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *parser) ifStatement() (stmt, error) {
	line := p.advance().line
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	s := &ifStmt{line: line, Cond: cond, Body: body}
	switch {
	case p.atKeyword("elif"):
		nested, err := p.ifStatement()
		if err != nil {
			return nil, err
		}
		s.Else = []stmt{nested}
	case p.acceptKeyword("else"):
		s.Else, err = p.suite()
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *parser) forStatement() (stmt, error) {
	line := p.advance().line
	targets, err := p.targetNames()
	if err != nil {
		return nil, err
	}
	if !p.acceptKeyword("in") {
		return nil, p.errorf("expected 'in' in for statement")
	}
	iter, err := p.exprList()
	if err != nil {
		return nil, err
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	return &forStmt{line: line, Targets: targets, Iter: iter, Body: body}, nil
}

func (p *parser) targetNames() ([]expr, error) {
	var targets []expr
	paren := p.acceptOp("(")
	for {
		if !p.at(tokName) {
			return nil, p.errorf("expected loop variable name")
		}
		t := p.advance()
		targets = append(targets, &nameExpr{line: t.line, Name: t.text})
		if !p.acceptOp(",") {
			break
		}
	}
	if paren {
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
	}
	return targets, nil
}

func (p *parser) whileStatement() (stmt, error) {
	line := p.advance().line
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	return &whileStmt{line: line, Cond: cond, Body: body}, nil
}

// suite parses ":" followed by either an inline simple statement list or
// an indented block.
func (p *parser) suite() ([]stmt, error) {
	if err := p.expectOp(":"); err != nil {
		return nil, err
	}
	if !p.at(tokNewline) {
		return p.simpleStatements()
	}
	p.advance()
	if !p.at(tokIndent) {
		return nil, p.errorf("expected an indented block")
	}
	p.advance()
	var body []stmt
	for !p.at(tokDedent) && !p.at(tokEOF) {
		if p.at(tokNewline) {
			p.advance()
			continue
		}
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		body = append(body, s...)
	}
	if p.at(tokDedent) {
		p.advance()
	}
	return body, nil
}

func (p *parser) assignOrExpr() (stmt, error) {
	line := p.cur().line
	first, err := p.exprList()
	if err != nil {
		return nil, err
	}
	if p.cur().kind == tokOp {
		switch p.cur().text {
		case "=":
			targets := []expr{first}
			var value expr
			for p.acceptOp("=") {
				next, err := p.exprList()
				if err != nil {
					return nil, err
				}
				value = next
				if p.atOp("=") {
					targets = append(targets, next)
				}
			}
			for _, t := range targets {
				if err := validTarget(t); err != nil {
					return nil, err
				}
			}
			return &assignStmt{line: line, Targets: targets, Value: value}, nil
		case "+=", "-=", "*=", "/=":
			op := strings.TrimSuffix(p.advance().text, "=")
			if err := validTarget(first); err != nil {
				return nil, err
			}
			value, err := p.exprList()
			if err != nil {
				return nil, err
			}
			return &augAssignStmt{line: line, Target: first, Op: op, Value: value}, nil
		}
	}
	return &exprStmt{line: line, Value: first}, nil
}

func validTarget(e expr) error {
	switch t := e.(type) {
	case *nameExpr, *attrExpr, *indexExpr:
		return nil
	case *tupleLit:
		for _, el := range t.Elems {
			if err := validTarget(el); err != nil {
				return err
			}
		}
		return nil
	}
	return &syntaxError{line: e.Line(), msg: "cannot assign to this expression"}
}

// exprList parses "a, b, c" into a tuple, or a single expression.
func (p *parser) exprList() (expr, error) {
	first, err := p.expression()
	if err != nil {
		return nil, err
	}
	if !p.atOp(",") {
		return first, nil
	}
	elems := []expr{first}
	for p.acceptOp(",") {
		if p.at(tokNewline) || p.at(tokEOF) || p.atOp("=") || p.atOp(")") || p.atOp("]") || p.atOp("}") || p.atOp(":") {
			break
		}
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	return &tupleLit{line: first.Line(), Elems: elems}, nil
}

// Expression grammar, lowest to highest binding:
// ternary, lambda, or, and, not, comparison, add, mul, unary, power, postfix.

func (p *parser) expression() (expr, error) {
	if p.atKeyword("lambda") {
		return p.lambda()
	}
	e, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if p.atKeyword("if") {
		line := p.advance().line
		cond, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		if !p.acceptKeyword("else") {
			return nil, p.errorf("expected 'else' in conditional expression")
		}
		alt, err := p.expression()
		if err != nil {
			return nil, err
		}
		return &condExpr{line: line, Cond: cond, Then: e, Else: alt}, nil
	}
	return e, nil
}

func (p *parser) lambda() (expr, error) {
	line := p.advance().line
	var params []param
	for p.at(tokName) {
		pr := param{Name: p.advance().text}
		if p.acceptOp("=") {
			d, err := p.expression()
			if err != nil {
				return nil, err
			}
			pr.Default = d
		}
		params = append(params, pr)
		if !p.acceptOp(",") {
			break
		}
	}
	if err := p.expectOp(":"); err != nil {
		return nil, err
	}
	body, err := p.expression()
	if err != nil {
		return nil, err
	}
	return &lambdaExpr{line: line, Params: params, Body: body}, nil
}

func (p *parser) orExpr() (expr, error) {
	e, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("or") {
		line := p.advance().line
		rhs, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		e = &boolOpExpr{line: line, Op: "or", X: e, Y: rhs}
	}
	return e, nil
}

func (p *parser) andExpr() (expr, error) {
	e, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("and") {
		line := p.advance().line
		rhs, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		e = &boolOpExpr{line: line, Op: "and", X: e, Y: rhs}
	}
	return e, nil
}

func (p *parser) notExpr() (expr, error) {
	if p.atKeyword("not") {
		line := p.advance().line
		x, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{line: line, Op: "not", X: x}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (expr, error) {
	e, err := p.addExpr()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		line := p.cur().line
		switch {
		case p.cur().kind == tokOp && isCompareOp(p.cur().text):
			op = p.advance().text
		case p.atKeyword("in"):
			p.advance()
			op = "in"
		case p.atKeyword("not"):
			p.advance()
			if !p.acceptKeyword("in") {
				return nil, p.errorf("expected 'in' after 'not'")
			}
			op = "not in"
		case p.atKeyword("is"):
			p.advance()
			op = "is"
			if p.acceptKeyword("not") {
				op = "is not"
			}
		default:
			return e, nil
		}
		rhs, err := p.addExpr()
		if err != nil {
			return nil, err
		}
		e = &binaryExpr{line: line, Op: op, X: e, Y: rhs}
	}
}

func isCompareOp(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func (p *parser) addExpr() (expr, error) {
	e, err := p.mulExpr()
	if err != nil {
		return nil, err
	}
	for p.atOp("+") || p.atOp("-") {
		t := p.advance()
		rhs, err := p.mulExpr()
		if err != nil {
			return nil, err
		}
		e = &binaryExpr{line: t.line, Op: t.text, X: e, Y: rhs}
	}
	return e, nil
}

func (p *parser) mulExpr() (expr, error) {
	e, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.atOp("*") || p.atOp("/") || p.atOp("//") || p.atOp("%") {
		t := p.advance()
		rhs, err := p.unary()
		if err != nil {
			return nil, err
		}
		e = &binaryExpr{line: t.line, Op: t.text, X: e, Y: rhs}
	}
	return e, nil
}

func (p *parser) unary() (expr, error) {
	if p.atOp("-") || p.atOp("+") {
		t := p.advance()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{line: t.line, Op: t.text, X: x}, nil
	}
	return p.power()
}

func (p *parser) power() (expr, error) {
	e, err := p.postfix()
	if err != nil {
		return nil, err
	}
	if p.atOp("**") {
		t := p.advance()
		rhs, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &binaryExpr{line: t.line, Op: "**", X: e, Y: rhs}, nil
	}
	return e, nil
}

func (p *parser) postfix() (expr, error) {
	e, err := p.atom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atOp("."):
			line := p.advance().line
			if !p.at(tokName) && !p.at(tokKeyword) {
				return nil, p.errorf("expected attribute name after '.'")
			}
			e = &attrExpr{line: line, X: e, Name: p.advance().text}
		case p.atOp("("):
			call, err := p.callArgs(e)
			if err != nil {
				return nil, err
			}
			e = call
		case p.atOp("["):
			line := p.advance().line
			var lo expr
			if !p.atOp(":") {
				lo, err = p.expression()
				if err != nil {
					return nil, err
				}
			}
			if p.acceptOp(":") {
				var hi expr
				if !p.atOp("]") {
					hi, err = p.expression()
					if err != nil {
						return nil, err
					}
				}
				if err := p.expectOp("]"); err != nil {
					return nil, err
				}
				e = &sliceExpr{line: line, X: e, Lo: lo, Hi: hi}
			} else {
				if err := p.expectOp("]"); err != nil {
					return nil, err
				}
				e = &indexExpr{line: line, X: e, Index: lo}
			}
		default:
			return e, nil
		}
	}
}

func (p *parser) callArgs(fun expr) (expr, error) {
	line := p.advance().line
	call := &callExpr{line: line, Fun: fun}
	for !p.atOp(")") {
		if p.at(tokName) && p.toks[p.pos+1].kind == tokOp && p.toks[p.pos+1].text == "=" {
			name := p.advance().text
			p.advance()
			v, err := p.expression()
			if err != nil {
				return nil, err
			}
			call.Kwargs = append(call.Kwargs, kwarg{Name: name, Value: v})
		} else {
			if len(call.Kwargs) > 0 {
				return nil, p.errorf("positional argument follows keyword argument")
			}
			a, err := p.expression()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, a)
		}
		if !p.acceptOp(",") {
			break
		}
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *parser) atom() (expr, error) {
	t := p.cur()
	switch t.kind {
	case tokName:
		p.advance()
		return &nameExpr{line: t.line, Name: t.text}, nil
	case tokInt:
		p.advance()
		v, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(t.text, 64)
			if ferr != nil {
				return nil, p.errorf("invalid number %q", t.text)
			}
			return &floatLit{line: t.line, Value: f}, nil
		}
		return &intLit{line: t.line, Value: v}, nil
	case tokFloat:
		p.advance()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", t.text)
		}
		return &floatLit{line: t.line, Value: f}, nil
	case tokString:
		p.advance()
		val := t.text
		// adjacent string literals concatenate
		for p.at(tokString) {
			val += p.advance().text
		}
		return &strLit{line: t.line, Value: val}, nil
	case tokKeyword:
		switch t.text {
		case "True":
			p.advance()
			return &boolLit{line: t.line, Value: true}, nil
		case "False":
			p.advance()
			return &boolLit{line: t.line, Value: false}, nil
		case "None":
			p.advance()
			return &noneLit{line: t.line}, nil
		case "lambda":
			return p.lambda()
		}
	case tokOp:
		switch t.text {
		case "(":
			p.advance()
			if p.acceptOp(")") {
				return &tupleLit{line: t.line}, nil
			}
			e, err := p.exprList()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return e, nil
		case "[":
			return p.listLiteral()
		case "{":
			return p.dictLiteral()
		}
	}
	return nil, p.errorf("unexpected %s", t)
}

func (p *parser) listLiteral() (expr, error) {
	line := p.advance().line
	lit := &listLit{line: line}
	for !p.atOp("]") {
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		if p.atKeyword("for") {
			return nil, p.errorf("comprehensions are not supported; use an explicit loop")
		}
		lit.Elems = append(lit.Elems, e)
		if !p.acceptOp(",") {
			break
		}
	}
	if err := p.expectOp("]"); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *parser) dictLiteral() (expr, error) {
	line := p.advance().line
	lit := &dictLit{line: line}
	for !p.atOp("}") {
		k, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		v, err := p.expression()
		if err != nil {
			return nil, err
		}
		lit.Keys = append(lit.Keys, k)
		lit.Values = append(lit.Values, v)
		if !p.acceptOp(",") {
			break
		}
	}
	if err := p.expectOp("}"); err != nil {
		return nil, err
	}
	return lit, nil
}
