package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// execError is a runtime failure of the script itself. Its message mirrors
// the Python exception style so a repair prompt reads naturally.
type execError struct {
	msg string
}

func (e *execError) Error() string { return e.msg }

func typeErrorf(format string, args ...any) error {
	return &execError{msg: "TypeError: " + fmt.Sprintf(format, args...)}
}

func nameErrorf(name string) error {
	return &execError{msg: fmt.Sprintf("NameError: name '%s' is not defined", name)}
}

func keyErrorf(key Value) error {
	return &execError{msg: "KeyError: " + key.Repr()}
}

func valueErrorf(format string, args ...any) error {
	return &execError{msg: "ValueError: " + fmt.Sprintf(format, args...)}
}

func attrErrorf(typeName, attr string) error {
	return &execError{msg: fmt.Sprintf("AttributeError: '%s' object has no attribute '%s'", typeName, attr)}
}

// environ is a lexical scope. Function bodies get a fresh environ whose
// parent is the module scope, matching flat global/local lookup.
type environ struct {
	vars   map[string]Value
	parent *environ
}

func newEnviron(parent *environ) *environ {
	return &environ{vars: map[string]Value{}, parent: parent}
}

func (e *environ) lookup(name string) (Value, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (e *environ) set(name string, v Value) { e.vars[name] = v }

// control-flow signals, carried as errors
type returnSignal struct{ value Value }
type breakSignal struct{}
type continueSignal struct{}

func (returnSignal) Error() string   { return "'return' outside function" }
func (breakSignal) Error() string    { return "'break' outside loop" }
func (continueSignal) Error() string { return "'continue' outside loop" }

type interp struct {
	globals  *environ
	modules  map[string]*Module
	stdout   *strings.Builder
	steps    int
	maxSteps int
	depth    int // call depth
}

const maxCallDepth = 64

func (in *interp) step() error {
	in.steps++
	if in.maxSteps > 0 && in.steps > in.maxSteps {
		return &execError{msg: "RuntimeError: execution step budget exhausted"}
	}
	return nil
}

func (in *interp) execBlock(stmts []stmt, env *environ) error {
	for _, s := range stmts {
		if err := in.exec(s, env); err != nil {
			return err
		}
	}
	return nil
}

func (in *interp) exec(s stmt, env *environ) error {
	if err := in.step(); err != nil {
		return err
	}
	switch t := s.(type) {
	case *passStmt:
		return nil
	case *breakStmt:
		return breakSignal{}
	case *continueStmt:
		return continueSignal{}
	case *importStmt:
		for _, m := range t.Modules {
			mod, ok := in.modules[m.Name]
			if !ok {
				return &execError{msg: fmt.Sprintf("ModuleNotFoundError: no module named '%s'", m.Name)}
			}
			env.set(m.Alias, mod)
		}
		return nil
	case *fromImportStmt:
		mod, ok := in.modules[t.Module]
		if !ok {
			return &execError{msg: fmt.Sprintf("ModuleNotFoundError: no module named '%s'", t.Module)}
		}
		for _, n := range t.Names {
			attr, ok := mod.Attrs[n.Name]
			if !ok {
				return &execError{msg: fmt.Sprintf("ImportError: cannot import name '%s' from '%s'", n.Name, t.Module)}
			}
			env.set(n.Alias, attr)
		}
		return nil
	case *defStmt:
		env.set(t.Name, &Func{Name: t.Name, Params: t.Params, Body: t.Body, Doc: t.Doc, Globals: in.globals})
		return nil
	case *returnStmt:
		val := Value(None{})
		if t.Value != nil {
			v, err := in.eval(t.Value, env)
			if err != nil {
				return err
			}
			val = v
		}
		return returnSignal{value: val}
	case *exprStmt:
		_, err := in.eval(t.Value, env)
		return err
	case *assignStmt:
		val, err := in.eval(t.Value, env)
		if err != nil {
			return err
		}
		for _, tgt := range t.Targets {
			if err := in.assign(tgt, val, env); err != nil {
				return err
			}
		}
		return nil
	case *augAssignStmt:
		cur, err := in.eval(t.Target, env)
		if err != nil {
			return err
		}
		rhs, err := in.eval(t.Value, env)
		if err != nil {
			return err
		}
		res, err := in.binary(t.Op, cur, rhs)
		if err != nil {
			return err
		}
		return in.assign(t.Target, res, env)
	case *ifStmt:
		cond, err := in.eval(t.Cond, env)
		if err != nil {
			return err
		}
		if cond.Truth() {
			return in.execBlock(t.Body, env)
		}
		return in.execBlock(t.Else, env)
	case *whileStmt:
		for {
			if err := in.step(); err != nil {
				return err
			}
			cond, err := in.eval(t.Cond, env)
			if err != nil {
				return err
			}
			if !cond.Truth() {
				return nil
			}
			if err := in.execBlock(t.Body, env); err != nil {
				switch err.(type) {
				case breakSignal:
					return nil
				case continueSignal:
					continue
				}
				return err
			}
		}
	case *forStmt:
		iter, err := in.eval(t.Iter, env)
		if err != nil {
			return err
		}
		items, err := iterate(iter)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := in.step(); err != nil {
				return err
			}
			if err := in.bindLoopTargets(t.Targets, item, env); err != nil {
				return err
			}
			if err := in.execBlock(t.Body, env); err != nil {
				switch err.(type) {
				case breakSignal:
					return nil
				case continueSignal:
					continue
				}
				return err
			}
		}
		return nil
	}
	return &execError{msg: fmt.Sprintf("RuntimeError: unsupported statement at line %d", s.Line())}
}

func (in *interp) bindLoopTargets(targets []expr, item Value, env *environ) error {
	if len(targets) == 1 {
		return in.assign(targets[0], item, env)
	}
	parts, err := iterate(item)
	if err != nil {
		return err
	}
	if len(parts) != len(targets) {
		return valueErrorf("not enough values to unpack (expected %d, got %d)", len(targets), len(parts))
	}
	for i, tgt := range targets {
		if err := in.assign(tgt, parts[i], env); err != nil {
			return err
		}
	}
	return nil
}

func (in *interp) assign(target expr, val Value, env *environ) error {
	switch t := target.(type) {
	case *nameExpr:
		env.set(t.Name, val)
		return nil
	case *tupleLit:
		parts, err := iterate(val)
		if err != nil {
			return err
		}
		if len(parts) != len(t.Elems) {
			return valueErrorf("not enough values to unpack (expected %d, got %d)", len(t.Elems), len(parts))
		}
		for i, el := range t.Elems {
			if err := in.assign(el, parts[i], env); err != nil {
				return err
			}
		}
		return nil
	case *indexExpr:
		obj, err := in.eval(t.X, env)
		if err != nil {
			return err
		}
		idx, err := in.eval(t.Index, env)
		if err != nil {
			return err
		}
		return in.setIndex(obj, idx, val)
	case *attrExpr:
		return typeErrorf("cannot set attribute '%s'", t.Name)
	}
	return typeErrorf("cannot assign to %s", target)
}

func (in *interp) setIndex(obj, idx, val Value) error {
	switch o := obj.(type) {
	case *List:
		i, ok := idx.(Int)
		if !ok {
			return typeErrorf("list indices must be integers, not %s", idx.TypeName())
		}
		n := int(i)
		if n < 0 {
			n += len(o.Items)
		}
		if n < 0 || n >= len(o.Items) {
			return &execError{msg: "IndexError: list assignment index out of range"}
		}
		o.Items[n] = val
		return nil
	case *Dict:
		o.Set(idx, val)
		return nil
	case *DataFrame:
		col, ok := idx.(Str)
		if !ok {
			return typeErrorf("column label must be a string, not %s", idx.TypeName())
		}
		return frameSetColumn(o, string(col), val)
	}
	return typeErrorf("'%s' object does not support item assignment", obj.TypeName())
}

func iterate(v Value) ([]Value, error) {
	switch t := v.(type) {
	case *List:
		return t.Items, nil
	case *Tuple:
		return t.Items, nil
	case *Dict:
		return t.Keys(), nil
	case *Series:
		return t.Items, nil
	case Str:
		items := make([]Value, 0, len(t))
		for _, r := range string(t) {
			items = append(items, Str(string(r)))
		}
		return items, nil
	case *DataFrame:
		cols := make([]Value, len(t.Frame.Columns))
		for i, c := range t.Frame.Columns {
			cols[i] = Str(c)
		}
		return cols, nil
	}
	return nil, typeErrorf("'%s' object is not iterable", v.TypeName())
}

func (in *interp) eval(e expr, env *environ) (Value, error) {
	if err := in.step(); err != nil {
		return nil, err
	}
	switch t := e.(type) {
	case *intLit:
		return Int(t.Value), nil
	case *floatLit:
		return Float(t.Value), nil
	case *strLit:
		return Str(t.Value), nil
	case *boolLit:
		return Bool(t.Value), nil
	case *noneLit:
		return None{}, nil
	case *nameExpr:
		if v, ok := env.lookup(t.Name); ok {
			return v, nil
		}
		if b, ok := builtins[t.Name]; ok {
			return b, nil
		}
		return nil, nameErrorf(t.Name)
	case *listLit:
		items := make([]Value, len(t.Elems))
		for i, el := range t.Elems {
			v, err := in.eval(el, env)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return &List{Items: items}, nil
	case *tupleLit:
		items := make([]Value, len(t.Elems))
		for i, el := range t.Elems {
			v, err := in.eval(el, env)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return &Tuple{Items: items}, nil
	case *dictLit:
		d := NewDict()
		for i := range t.Keys {
			k, err := in.eval(t.Keys[i], env)
			if err != nil {
				return nil, err
			}
			v, err := in.eval(t.Values[i], env)
			if err != nil {
				return nil, err
			}
			d.Set(k, v)
		}
		return d, nil
	case *condExpr:
		cond, err := in.eval(t.Cond, env)
		if err != nil {
			return nil, err
		}
		if cond.Truth() {
			return in.eval(t.Then, env)
		}
		return in.eval(t.Else, env)
	case *boolOpExpr:
		lhs, err := in.eval(t.X, env)
		if err != nil {
			return nil, err
		}
		if t.Op == "and" {
			if !lhs.Truth() {
				return lhs, nil
			}
			return in.eval(t.Y, env)
		}
		if lhs.Truth() {
			return lhs, nil
		}
		return in.eval(t.Y, env)
	case *unaryExpr:
		x, err := in.eval(t.X, env)
		if err != nil {
			return nil, err
		}
		return unaryOp(t.Op, x)
	case *binaryExpr:
		lhs, err := in.eval(t.X, env)
		if err != nil {
			return nil, err
		}
		rhs, err := in.eval(t.Y, env)
		if err != nil {
			return nil, err
		}
		return in.binary(t.Op, lhs, rhs)
	case *attrExpr:
		x, err := in.eval(t.X, env)
		if err != nil {
			return nil, err
		}
		return in.getAttr(x, t.Name)
	case *indexExpr:
		x, err := in.eval(t.X, env)
		if err != nil {
			return nil, err
		}
		idx, err := in.eval(t.Index, env)
		if err != nil {
			return nil, err
		}
		return in.getIndex(x, idx)
	case *sliceExpr:
		x, err := in.eval(t.X, env)
		if err != nil {
			return nil, err
		}
		return in.getSlice(x, t, env)
	case *lambdaExpr:
		return &Func{Name: "<lambda>", Params: t.Params, Expr: t.Body, Globals: in.globals}, nil
	case *callExpr:
		return in.evalCall(t, env)
	}
	return nil, &execError{msg: fmt.Sprintf("RuntimeError: unsupported expression at line %d", e.Line())}
}

func (in *interp) evalCall(t *callExpr, env *environ) (Value, error) {
	fun, err := in.eval(t.Fun, env)
	if err != nil {
		return nil, err
	}
	args := make([]Value, len(t.Args))
	for i, a := range t.Args {
		v, err := in.eval(a, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	var kwargs map[string]Value
	if len(t.Kwargs) > 0 {
		kwargs = make(map[string]Value, len(t.Kwargs))
		for _, kw := range t.Kwargs {
			v, err := in.eval(kw.Value, env)
			if err != nil {
				return nil, err
			}
			kwargs[kw.Name] = v
		}
	}
	return in.call(fun, args, kwargs)
}

func (in *interp) call(fun Value, args []Value, kwargs map[string]Value) (Value, error) {
	switch f := fun.(type) {
	case *Builtin:
		return f.Call(in, args, kwargs)
	case *Func:
		return in.callFunc(f, args, kwargs)
	}
	return nil, typeErrorf("'%s' object is not callable", fun.TypeName())
}

func (in *interp) callFunc(f *Func, args []Value, kwargs map[string]Value) (Value, error) {
	if in.depth >= maxCallDepth {
		return nil, &execError{msg: "RecursionError: maximum recursion depth exceeded"}
	}
	local := newEnviron(f.Globals)
	if len(args) > len(f.Params) {
		return nil, typeErrorf("%s() takes %d positional arguments but %d were given", f.Name, len(f.Params), len(args))
	}
	for i, p := range f.Params {
		switch {
		case i < len(args):
			local.set(p.Name, args[i])
		default:
			if v, ok := kwargs[p.Name]; ok {
				local.set(p.Name, v)
				delete(kwargs, p.Name)
				continue
			}
			if p.Default == nil {
				return nil, typeErrorf("%s() missing required argument: '%s'", f.Name, p.Name)
			}
			dv, err := in.eval(p.Default, local)
			if err != nil {
				return nil, err
			}
			local.set(p.Name, dv)
		}
	}
	for name := range kwargs {
		return nil, typeErrorf("%s() got an unexpected keyword argument '%s'", f.Name, name)
	}
	in.depth++
	defer func() { in.depth-- }()
	if f.Expr != nil {
		return in.eval(f.Expr, local)
	}
	err := in.execBlock(f.Body, local)
	if err != nil {
		if ret, ok := err.(returnSignal); ok {
			return ret.value, nil
		}
		return nil, err
	}
	return None{}, nil
}

func unaryOp(op string, x Value) (Value, error) {
	switch op {
	case "not":
		return Bool(!x.Truth()), nil
	case "-":
		switch n := x.(type) {
		case Int:
			return Int(-n), nil
		case Float:
			return Float(-n), nil
		case Bool:
			if n {
				return Int(-1), nil
			}
			return Int(0), nil
		}
		return nil, typeErrorf("bad operand type for unary -: '%s'", x.TypeName())
	case "+":
		switch x.(type) {
		case Int, Float, Bool:
			return x, nil
		}
		return nil, typeErrorf("bad operand type for unary +: '%s'", x.TypeName())
	}
	return nil, typeErrorf("unsupported unary operator %s", op)
}

func (in *interp) binary(op string, lhs, rhs Value) (Value, error) {
	// series operands broadcast elementwise
	if _, ok := lhs.(*Series); ok {
		return seriesBinary(in, op, lhs, rhs)
	}
	if _, ok := rhs.(*Series); ok {
		if op != "in" && op != "not in" {
			return seriesBinary(in, op, lhs, rhs)
		}
	}
	return in.scalarBinary(op, lhs, rhs)
}

func (in *interp) scalarBinary(op string, lhs, rhs Value) (Value, error) {
	switch op {
	case "==":
		return Bool(valueEqual(lhs, rhs)), nil
	case "!=":
		return Bool(!valueEqual(lhs, rhs)), nil
	case "is":
		return Bool(lhs == rhs || valueEqual(lhs, rhs) && isNoneOrBool(lhs)), nil
	case "is not":
		eq := lhs == rhs || valueEqual(lhs, rhs) && isNoneOrBool(lhs)
		return Bool(!eq), nil
	case "<", "<=", ">", ">=":
		c, err := valueCompare(lhs, rhs)
		if err != nil {
			return nil, err
		}
		switch op {
		case "<":
			return Bool(c < 0), nil
		case "<=":
			return Bool(c <= 0), nil
		case ">":
			return Bool(c > 0), nil
		default:
			return Bool(c >= 0), nil
		}
	case "in", "not in":
		found, err := contains(rhs, lhs)
		if err != nil {
			return nil, err
		}
		if op == "not in" {
			return Bool(!found), nil
		}
		return Bool(found), nil
	}
	return arith(op, lhs, rhs)
}

func isNoneOrBool(v Value) bool {
	switch v.(type) {
	case None, Bool:
		return true
	}
	return false
}

func contains(container, item Value) (bool, error) {
	switch c := container.(type) {
	case *List:
		for _, it := range c.Items {
			if valueEqual(it, item) {
				return true, nil
			}
		}
		return false, nil
	case *Tuple:
		for _, it := range c.Items {
			if valueEqual(it, item) {
				return true, nil
			}
		}
		return false, nil
	case *Dict:
		_, ok := c.Get(item)
		return ok, nil
	case *Series:
		for _, it := range c.Items {
			if valueEqual(it, item) {
				return true, nil
			}
		}
		return false, nil
	case Str:
		s, ok := item.(Str)
		if !ok {
			return false, typeErrorf("'in <string>' requires string as left operand, not %s", item.TypeName())
		}
		return strings.Contains(string(c), string(s)), nil
	case *DataFrame:
		s, ok := item.(Str)
		if !ok {
			return false, nil
		}
		return c.Frame.HasColumn(string(s)), nil
	}
	return false, typeErrorf("argument of type '%s' is not iterable", container.TypeName())
}

func arith(op string, lhs, rhs Value) (Value, error) {
	// string and sequence forms first
	if ls, ok := lhs.(Str); ok {
		switch op {
		case "+":
			if rs, ok := rhs.(Str); ok {
				return ls + rs, nil
			}
			return nil, typeErrorf("can only concatenate str (not \"%s\") to str", rhs.TypeName())
		case "*":
			if n, ok := rhs.(Int); ok {
				return Str(strings.Repeat(string(ls), max(0, int(n)))), nil
			}
		case "%":
			return formatPercent(string(ls), rhs)
		}
	}
	if ll, ok := lhs.(*List); ok {
		switch op {
		case "+":
			if rl, ok := rhs.(*List); ok {
				items := make([]Value, 0, len(ll.Items)+len(rl.Items))
				items = append(items, ll.Items...)
				items = append(items, rl.Items...)
				return &List{Items: items}, nil
			}
		case "*":
			if n, ok := rhs.(Int); ok {
				items := make([]Value, 0, len(ll.Items)*max(0, int(n)))
				for i := 0; i < int(n); i++ {
					items = append(items, ll.Items...)
				}
				return &List{Items: items}, nil
			}
		}
	}
	lf, lok := numeric(lhs)
	rf, rok := numeric(rhs)
	if !lok || !rok {
		return nil, typeErrorf("unsupported operand type(s) for %s: '%s' and '%s'", op, lhs.TypeName(), rhs.TypeName())
	}
	bothInt := isIntLike(lhs) && isIntLike(rhs)
	switch op {
	case "+":
		if bothInt {
			return Int(int64(lf) + int64(rf)), nil
		}
		return Float(lf + rf), nil
	case "-":
		if bothInt {
			return Int(int64(lf) - int64(rf)), nil
		}
		return Float(lf - rf), nil
	case "*":
		if bothInt {
			return Int(int64(lf) * int64(rf)), nil
		}
		return Float(lf * rf), nil
	case "/":
		if rf == 0 {
			return nil, &execError{msg: "ZeroDivisionError: division by zero"}
		}
		return Float(lf / rf), nil
	case "//":
		if rf == 0 {
			return nil, &execError{msg: "ZeroDivisionError: integer division or modulo by zero"}
		}
		q := math.Floor(lf / rf)
		if bothInt {
			return Int(int64(q)), nil
		}
		return Float(q), nil
	case "%":
		if rf == 0 {
			return nil, &execError{msg: "ZeroDivisionError: integer division or modulo by zero"}
		}
		m := math.Mod(lf, rf)
		if m != 0 && (m < 0) != (rf < 0) {
			m += rf
		}
		if bothInt {
			return Int(int64(m)), nil
		}
		return Float(m), nil
	case "**":
		p := math.Pow(lf, rf)
		if bothInt && rf >= 0 && p == math.Trunc(p) && math.Abs(p) < 1e15 {
			return Int(int64(p)), nil
		}
		return Float(p), nil
	}
	return nil, typeErrorf("unsupported operand type(s) for %s", op)
}

func isIntLike(v Value) bool {
	switch v.(type) {
	case Int, Bool:
		return true
	}
	return false
}

// formatPercent supports the %s, %d and %f verbs of old-style string
// formatting; generated code still occasionally uses it.
func formatPercent(format string, arg Value) (Value, error) {
	args := []Value{arg}
	if t, ok := arg.(*Tuple); ok {
		args = t.Items
	}
	var sb strings.Builder
	argIdx := 0
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			sb.WriteByte(format[i])
			continue
		}
		if i+1 < len(format) && format[i+1] == '%' {
			sb.WriteByte('%')
			i++
			continue
		}
		// scan verb, allowing width/precision like %.2f
		j := i + 1
		for j < len(format) && strings.ContainsRune("0123456789.-+ ", rune(format[j])) {
			j++
		}
		if j >= len(format) || argIdx >= len(args) {
			return nil, typeErrorf("not enough arguments for format string")
		}
		verb := format[j]
		spec := format[i : j+1]
		v := args[argIdx]
		argIdx++
		switch verb {
		case 's':
			sb.WriteString(v.Str())
		case 'd':
			f, ok := numeric(v)
			if !ok {
				return nil, typeErrorf("%%d format: a number is required, not %s", v.TypeName())
			}
			fmt.Fprintf(&sb, strings.TrimSuffix(spec, "d")+"d", int64(f))
		case 'f':
			f, ok := numeric(v)
			if !ok {
				return nil, typeErrorf("%%f format: a number is required, not %s", v.TypeName())
			}
			fmt.Fprintf(&sb, spec, f)
		default:
			return nil, typeErrorf("unsupported format character '%c'", verb)
		}
		i = j
	}
	return Str(sb.String()), nil
}

func (in *interp) getIndex(x, idx Value) (Value, error) {
	switch o := x.(type) {
	case *List:
		return seqIndex(o.Items, idx, "list")
	case *Tuple:
		return seqIndex(o.Items, idx, "tuple")
	case Str:
		runes := []rune(string(o))
		v, err := seqIndexRunes(runes, idx)
		if err != nil {
			return nil, err
		}
		return v, nil
	case *Dict:
		v, ok := o.Get(idx)
		if !ok {
			return nil, keyErrorf(idx)
		}
		return v, nil
	case *DataFrame:
		switch sel := idx.(type) {
		case Str:
			return frameColumn(o, string(sel))
		case *Series:
			return frameMask(o, sel)
		case *List:
			// column projection
			cols := make([]string, len(sel.Items))
			for i, it := range sel.Items {
				c, ok := it.(Str)
				if !ok {
					return nil, typeErrorf("column labels must be strings")
				}
				if !o.Frame.HasColumn(string(c)) {
					return nil, keyErrorf(c)
				}
				cols[i] = string(c)
			}
			return frameProject(o, cols)
		}
		return nil, typeErrorf("column label must be a string, not %s", idx.TypeName())
	case *Series:
		if mask, ok := idx.(*Series); ok {
			return seriesMask(o, mask)
		}
		return seqIndex(o.Items, idx, "series")
	case *GroupBy:
		col, ok := idx.(Str)
		if !ok {
			return nil, typeErrorf("grouped selection must be a column name")
		}
		if !o.Frame.HasColumn(string(col)) {
			return nil, keyErrorf(col)
		}
		return &GroupBy{Frame: o.Frame, Keys: o.Keys, Only: string(col)}, nil
	}
	return nil, typeErrorf("'%s' object is not subscriptable", x.TypeName())
}

func seqIndex(items []Value, idx Value, kind string) (Value, error) {
	i, ok := idx.(Int)
	if !ok {
		return nil, typeErrorf("%s indices must be integers, not %s", kind, idx.TypeName())
	}
	n := int(i)
	if n < 0 {
		n += len(items)
	}
	if n < 0 || n >= len(items) {
		return nil, &execError{msg: "IndexError: " + kind + " index out of range"}
	}
	return items[n], nil
}

func seqIndexRunes(runes []rune, idx Value) (Value, error) {
	i, ok := idx.(Int)
	if !ok {
		return nil, typeErrorf("string indices must be integers, not %s", idx.TypeName())
	}
	n := int(i)
	if n < 0 {
		n += len(runes)
	}
	if n < 0 || n >= len(runes) {
		return nil, &execError{msg: "IndexError: string index out of range"}
	}
	return Str(string(runes[n])), nil
}

func (in *interp) getSlice(x Value, t *sliceExpr, env *environ) (Value, error) {
	bound := func(e expr, def int, length int) (int, error) {
		if e == nil {
			return def, nil
		}
		v, err := in.eval(e, env)
		if err != nil {
			return 0, err
		}
		i, ok := v.(Int)
		if !ok {
			return 0, typeErrorf("slice indices must be integers, not %s", v.TypeName())
		}
		n := int(i)
		if n < 0 {
			n += length
		}
		if n < 0 {
			n = 0
		}
		if n > length {
			n = length
		}
		return n, nil
	}
	slice := func(length int) (int, int, error) {
		lo, err := bound(t.Lo, 0, length)
		if err != nil {
			return 0, 0, err
		}
		hi, err := bound(t.Hi, length, length)
		if err != nil {
			return 0, 0, err
		}
		if hi < lo {
			hi = lo
		}
		return lo, hi, nil
	}
	switch o := x.(type) {
	case *List:
		lo, hi, err := slice(len(o.Items))
		if err != nil {
			return nil, err
		}
		out := make([]Value, hi-lo)
		copy(out, o.Items[lo:hi])
		return &List{Items: out}, nil
	case Str:
		runes := []rune(string(o))
		lo, hi, err := slice(len(runes))
		if err != nil {
			return nil, err
		}
		return Str(string(runes[lo:hi])), nil
	case *Series:
		lo, hi, err := slice(len(o.Items))
		if err != nil {
			return nil, err
		}
		out := make([]Value, hi-lo)
		copy(out, o.Items[lo:hi])
		return &Series{Name: o.Name, Items: out}, nil
	}
	return nil, typeErrorf("'%s' object is not sliceable", x.TypeName())
}

func (in *interp) print(args []Value, kwargs map[string]Value) {
	sep := " "
	end := "\n"
	if v, ok := kwargs["sep"]; ok {
		sep = v.Str()
	}
	if v, ok := kwargs["end"]; ok {
		end = v.Str()
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Str()
	}
	in.stdout.WriteString(strings.Join(parts, sep))
	in.stdout.WriteString(end)
}

func sortValues(items []Value, reverse bool) error {
	var sortErr error
	sort.SliceStable(items, func(i, j int) bool {
		c, err := valueCompare(items[i], items[j])
		if err != nil && sortErr == nil {
			sortErr = err
		}
		if reverse {
			return c > 0
		}
		return c < 0
	})
	return sortErr
}
