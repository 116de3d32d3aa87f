package sandbox

import "fmt"

// SecurityError reports a script that violates the execution policy. It is
// raised before any statement runs and is never retried with the same code.
type SecurityError struct {
	Message string
}

func (e *SecurityError) Error() string { return e.Message }

func securityErrorf(format string, args ...any) *SecurityError {
	return &SecurityError{Message: fmt.Sprintf(format, args...)}
}

// bannedCalls are callables that reach outside the interpreter: the
// filesystem, dynamic code, or the environment of the host process.
var bannedCalls = map[string]bool{
	"open": true, "exec": true, "eval": true, "compile": true,
	"globals": true, "locals": true, "vars": true, "dir": true,
	"__import__": true, "getattr": true, "setattr": true, "delattr": true,
	"input": true, "breakpoint": true, "memoryview": true,
}

// verifier walks the parsed script before execution. It enforces the module
// allow-list, rejects banned callables, blocks access to private members,
// and bounds the nesting depth of the tree it is willing to analyze.
type verifier struct {
	allowed  map[string]bool
	maxDepth int
	// locals holds underscore-prefixed names the script itself binds as
	// plain variables. Binding such a name is the one permitted use of a
	// leading underscore; reading it back is then allowed too.
	locals map[string]bool
}

func verify(stmts []stmt, allowedImports []string, maxDepth int) error {
	allowed := make(map[string]bool, len(allowedImports))
	for _, m := range allowedImports {
		allowed[m] = true
	}
	v := &verifier{allowed: allowed, maxDepth: maxDepth, locals: map[string]bool{}}
	v.collectLocalBindings(stmts)
	for _, s := range stmts {
		if err := v.stmt(s, 1); err != nil {
			return err
		}
	}
	return nil
}

// collectLocalBindings records every underscore-prefixed name bound by a
// plain assignment, loop target, or function parameter anywhere in the
// script. Only names of the form _[A-Za-z0-9_]* bound this way escape the
// private-member rule.
func (v *verifier) collectLocalBindings(stmts []stmt) {
	for _, s := range stmts {
		switch t := s.(type) {
		case *assignStmt:
			for _, tgt := range t.Targets {
				v.collectTarget(tgt)
			}
		case *augAssignStmt:
			v.collectTarget(t.Target)
		case *forStmt:
			for _, tgt := range t.Targets {
				v.collectTarget(tgt)
			}
			v.collectLocalBindings(t.Body)
		case *ifStmt:
			v.collectLocalBindings(t.Body)
			v.collectLocalBindings(t.Else)
		case *whileStmt:
			v.collectLocalBindings(t.Body)
		case *defStmt:
			for _, p := range t.Params {
				if isPrivateName(p.Name) {
					v.locals[p.Name] = true
				}
			}
			v.collectLocalBindings(t.Body)
		}
	}
}

func (v *verifier) collectTarget(e expr) {
	switch t := e.(type) {
	case *nameExpr:
		if isPrivateName(t.Name) {
			v.locals[t.Name] = true
		}
	case *tupleLit:
		for _, el := range t.Elems {
			v.collectTarget(el)
		}
	}
}

func isPrivateName(name string) bool {
	return len(name) > 0 && name[0] == '_'
}

func (v *verifier) depthCheck(depth int) error {
	if v.maxDepth > 0 && depth > v.maxDepth {
		return securityErrorf("Code is too deeply nested to analyze")
	}
	return nil
}

func (v *verifier) stmt(s stmt, depth int) error {
	if err := v.depthCheck(depth); err != nil {
		return err
	}
	switch t := s.(type) {
	case *importStmt:
		for _, m := range t.Modules {
			if err := v.checkImport(m.Name); err != nil {
				return err
			}
			if isPrivateName(m.Alias) {
				return securityErrorf("Accessing private members is not allowed")
			}
		}
	case *fromImportStmt:
		if err := v.checkImport(t.Module); err != nil {
			return err
		}
		for _, n := range t.Names {
			if isPrivateName(n.Name) || isPrivateName(n.Alias) {
				return securityErrorf("Accessing private members is not allowed")
			}
		}
	case *defStmt:
		if isPrivateName(t.Name) && !v.locals[t.Name] {
			return securityErrorf("Accessing private members is not allowed")
		}
		return v.block(t.Body, depth+1)
	case *returnStmt:
		if t.Value != nil {
			return v.expr(t.Value, depth+1)
		}
	case *assignStmt:
		for _, tgt := range t.Targets {
			if err := v.expr(tgt, depth+1); err != nil {
				return err
			}
		}
		return v.expr(t.Value, depth+1)
	case *augAssignStmt:
		if err := v.expr(t.Target, depth+1); err != nil {
			return err
		}
		return v.expr(t.Value, depth+1)
	case *exprStmt:
		return v.expr(t.Value, depth+1)
	case *ifStmt:
		if err := v.expr(t.Cond, depth+1); err != nil {
			return err
		}
		if err := v.block(t.Body, depth+1); err != nil {
			return err
		}
		return v.block(t.Else, depth+1)
	case *forStmt:
		for _, tgt := range t.Targets {
			if err := v.expr(tgt, depth+1); err != nil {
				return err
			}
		}
		if err := v.expr(t.Iter, depth+1); err != nil {
			return err
		}
		return v.block(t.Body, depth+1)
	case *whileStmt:
		if err := v.expr(t.Cond, depth+1); err != nil {
			return err
		}
		return v.block(t.Body, depth+1)
	}
	return nil
}

func (v *verifier) block(stmts []stmt, depth int) error {
	for _, s := range stmts {
		if err := v.stmt(s, depth); err != nil {
			return err
		}
	}
	return nil
}

func (v *verifier) checkImport(module string) error {
	if !v.allowed[module] {
		return securityErrorf("Importing '%s' is not allowed", module)
	}
	return nil
}

func (v *verifier) expr(e expr, depth int) error {
	if err := v.depthCheck(depth); err != nil {
		return err
	}
	switch t := e.(type) {
	case *nameExpr:
		if isPrivateName(t.Name) && !v.locals[t.Name] {
			return securityErrorf("Accessing private members is not allowed")
		}
	case *attrExpr:
		if isPrivateName(t.Name) {
			return securityErrorf("Accessing private members is not allowed")
		}
		return v.expr(t.X, depth+1)
	case *callExpr:
		if n, ok := t.Fun.(*nameExpr); ok && bannedCalls[n.Name] {
			return securityErrorf("Calling '%s' is not allowed", n.Name)
		}
		if err := v.expr(t.Fun, depth+1); err != nil {
			return err
		}
		for _, a := range t.Args {
			if err := v.expr(a, depth+1); err != nil {
				return err
			}
		}
		for _, kw := range t.Kwargs {
			if isPrivateName(kw.Name) {
				return securityErrorf("Accessing private members is not allowed")
			}
			if err := v.expr(kw.Value, depth+1); err != nil {
				return err
			}
		}
	case *indexExpr:
		if err := v.expr(t.X, depth+1); err != nil {
			return err
		}
		return v.expr(t.Index, depth+1)
	case *sliceExpr:
		if err := v.expr(t.X, depth+1); err != nil {
			return err
		}
		if t.Lo != nil {
			if err := v.expr(t.Lo, depth+1); err != nil {
				return err
			}
		}
		if t.Hi != nil {
			return v.expr(t.Hi, depth+1)
		}
	case *unaryExpr:
		return v.expr(t.X, depth+1)
	case *binaryExpr:
		if err := v.expr(t.X, depth+1); err != nil {
			return err
		}
		return v.expr(t.Y, depth+1)
	case *boolOpExpr:
		if err := v.expr(t.X, depth+1); err != nil {
			return err
		}
		return v.expr(t.Y, depth+1)
	case *condExpr:
		if err := v.expr(t.Cond, depth+1); err != nil {
			return err
		}
		if err := v.expr(t.Then, depth+1); err != nil {
			return err
		}
		return v.expr(t.Else, depth+1)
	case *lambdaExpr:
		for _, p := range t.Params {
			if isPrivateName(p.Name) {
				v.locals[p.Name] = true
			}
			if p.Default != nil {
				if err := v.expr(p.Default, depth+1); err != nil {
					return err
				}
			}
		}
		return v.expr(t.Body, depth+1)
	case *listLit:
		for _, el := range t.Elems {
			if err := v.expr(el, depth+1); err != nil {
				return err
			}
		}
	case *tupleLit:
		for _, el := range t.Elems {
			if err := v.expr(el, depth+1); err != nil {
				return err
			}
		}
	case *dictLit:
		for i := range t.Keys {
			if err := v.expr(t.Keys[i], depth+1); err != nil {
				return err
			}
			if err := v.expr(t.Values[i], depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
