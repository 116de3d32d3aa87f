package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/answerlake/answerlake/pkg/frame"
)

// Value is a runtime value inside the interpreter. Values deliberately do
// not expose host Go objects; everything a script can touch is one of the
// concrete types in this file.
type Value interface {
	TypeName() string
	// Repr is the quoted, container-style rendering.
	Repr() string
	// Str is the human rendering used by print and str().
	Str() string
	Truth() bool
}

type Int int64

func (v Int) TypeName() string { return "int" }
func (v Int) Repr() string     { return strconv.FormatInt(int64(v), 10) }
func (v Int) Str() string      { return v.Repr() }
func (v Int) Truth() bool      { return v != 0 }

type Float float64

func (v Float) TypeName() string { return "float" }
func (v Float) Repr() string {
	f := float64(v)
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e16 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
func (v Float) Str() string { return v.Repr() }
func (v Float) Truth() bool { return v != 0 }

type Str string

func (v Str) TypeName() string { return "str" }
func (v Str) Repr() string     { return "'" + strings.ReplaceAll(string(v), "'", "\\'") + "'" }
func (v Str) Str() string      { return string(v) }
func (v Str) Truth() bool      { return v != "" }

type Bool bool

func (v Bool) TypeName() string { return "bool" }
func (v Bool) Repr() string {
	if v {
		return "True"
	}
	return "False"
}
func (v Bool) Str() string { return v.Repr() }
func (v Bool) Truth() bool { return bool(v) }

type None struct{}

func (None) TypeName() string { return "NoneType" }
func (None) Repr() string     { return "None" }
func (None) Str() string      { return "None" }
func (None) Truth() bool      { return false }

type List struct {
	Items []Value
}

func NewList(items ...Value) *List { return &List{Items: items} }

func (v *List) TypeName() string { return "list" }
func (v *List) Repr() string {
	parts := make([]string, len(v.Items))
	for i, it := range v.Items {
		parts[i] = it.Repr()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (v *List) Str() string { return v.Repr() }
func (v *List) Truth() bool { return len(v.Items) > 0 }

type Tuple struct {
	Items []Value
}

func (v *Tuple) TypeName() string { return "tuple" }
func (v *Tuple) Repr() string {
	parts := make([]string, len(v.Items))
	for i, it := range v.Items {
		parts[i] = it.Repr()
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
func (v *Tuple) Str() string { return v.Repr() }
func (v *Tuple) Truth() bool { return len(v.Items) > 0 }

type dictEntry struct {
	Key Value
	Val Value
}

// Dict preserves insertion order so rendered output is deterministic.
type Dict struct {
	entries []dictEntry
}

func NewDict() *Dict { return &Dict{} }

func (v *Dict) TypeName() string { return "dict" }
func (v *Dict) Repr() string {
	parts := make([]string, len(v.entries))
	for i, e := range v.entries {
		parts[i] = e.Key.Repr() + ": " + e.Val.Repr()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (v *Dict) Str() string { return v.Repr() }
func (v *Dict) Truth() bool { return len(v.entries) > 0 }
func (v *Dict) Len() int    { return len(v.entries) }

func (v *Dict) Get(key Value) (Value, bool) {
	for _, e := range v.entries {
		if valueEqual(e.Key, key) {
			return e.Val, true
		}
	}
	return nil, false
}

func (v *Dict) Set(key, val Value) {
	for i, e := range v.entries {
		if valueEqual(e.Key, key) {
			v.entries[i].Val = val
			return
		}
	}
	v.entries = append(v.entries, dictEntry{Key: key, Val: val})
}

func (v *Dict) Keys() []Value {
	out := make([]Value, len(v.entries))
	for i, e := range v.entries {
		out[i] = e.Key
	}
	return out
}

func (v *Dict) Values() []Value {
	out := make([]Value, len(v.entries))
	for i, e := range v.entries {
		out[i] = e.Val
	}
	return out
}

// Func is a script-defined function or lambda.
type Func struct {
	Name    string
	Params  []param
	Body    []stmt    // nil for lambdas
	Expr    expr      // lambda body
	Doc     string
	Globals *environ
}

func (v *Func) TypeName() string { return "function" }
func (v *Func) Repr() string     { return "<function " + v.Name + ">" }
func (v *Func) Str() string      { return v.Repr() }
func (v *Func) Truth() bool      { return true }

// Builtin is a host-provided function exposed to scripts.
type Builtin struct {
	Name string
	Call func(in *interp, args []Value, kwargs map[string]Value) (Value, error)
}

func (v *Builtin) TypeName() string { return "builtin_function_or_method" }
func (v *Builtin) Repr() string     { return "<built-in function " + v.Name + ">" }
func (v *Builtin) Str() string      { return v.Repr() }
func (v *Builtin) Truth() bool      { return true }

// Module is a named bag of attributes behind an import.
type Module struct {
	Name  string
	Attrs map[string]Value
}

func (v *Module) TypeName() string { return "module" }
func (v *Module) Repr() string     { return "<module '" + v.Name + "'>" }
func (v *Module) Str() string      { return v.Repr() }
func (v *Module) Truth() bool      { return true }

// DataFrame wraps a tabular result. Mutating methods act on the wrapped
// frame in place, matching the semantics scripts expect from a dataframe.
type DataFrame struct {
	Frame *frame.Frame
	Index string // column promoted to the index, empty when unset
}

func (v *DataFrame) TypeName() string { return "DataFrame" }
func (v *DataFrame) Repr() string     { return v.Frame.Format(20) }
func (v *DataFrame) Str() string      { return v.Repr() }
func (v *DataFrame) Truth() bool      { return v.Frame.Count() > 0 }

// Series is a single named column of values.
type Series struct {
	Name  string
	Items []Value
}

func (v *Series) TypeName() string { return "Series" }
func (v *Series) Repr() string {
	var sb strings.Builder
	for i, it := range v.Items {
		fmt.Fprintf(&sb, "%d    %s\n", i, it.Str())
	}
	fmt.Fprintf(&sb, "Name: %s, dtype: object", v.Name)
	return sb.String()
}
func (v *Series) Str() string { return v.Repr() }
func (v *Series) Truth() bool { return len(v.Items) > 0 }

// GroupBy is the intermediate of DataFrame.groupby, consumed by an
// aggregation method.
type GroupBy struct {
	Frame *frame.Frame
	Keys  []string
	Only  string // restrict aggregation to one value column
}

func (v *GroupBy) TypeName() string { return "DataFrameGroupBy" }
func (v *GroupBy) Repr() string     { return "<grouped by " + strings.Join(v.Keys, ", ") + ">" }
func (v *GroupBy) Str() string      { return v.Repr() }
func (v *GroupBy) Truth() bool      { return true }

// Chart is a declarative figure produced by the plotting module.
type Chart struct {
	Kind  string // bar, line, scatter, pie, histogram
	X     string
	Y     string
	Names string
	Vals  string
	Title string
	Color string
	Data  *frame.Frame
}

func (v *Chart) TypeName() string { return "Figure" }
func (v *Chart) Repr() string     { return "<figure kind=" + v.Kind + ">" }
func (v *Chart) Str() string      { return v.Repr() }
func (v *Chart) Truth() bool      { return true }

// valueEqual follows loose numeric equality: 1 == 1.0 is true.
func valueEqual(a, b Value) bool {
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			return af == bf
		}
		return false
	}
	switch av := a.(type) {
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case None:
		_, ok := b.(None)
		return ok
	case *List:
		bv, ok := b.(*List)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !valueEqual(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *Tuple:
		bv, ok := b.(*Tuple)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !valueEqual(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *Dict:
		bv, ok := b.(*Dict)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for _, e := range av.entries {
			other, found := bv.Get(e.Key)
			if !found || !valueEqual(e.Val, other) {
				return false
			}
		}
		return true
	}
	return a == b
}

// numeric unwraps int, float and bool to a float64.
func numeric(v Value) (float64, bool) {
	switch n := v.(type) {
	case Int:
		return float64(n), true
	case Float:
		return float64(n), true
	case Bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// valueCompare orders two values, or reports that they are unordered.
func valueCompare(a, b Value) (int, error) {
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			}
			return 0, nil
		}
	}
	if as, aok := a.(Str); aok {
		if bs, bok := b.(Str); bok {
			return strings.Compare(string(as), string(bs)), nil
		}
	}
	return 0, typeErrorf("'<' not supported between instances of '%s' and '%s'", a.TypeName(), b.TypeName())
}

// FromNative converts common Go values into interpreter values. It backs
// both the host-provided locals and dataframe cell access.
func FromNative(v any) Value {
	switch n := v.(type) {
	case nil:
		return None{}
	case Value:
		return n
	case bool:
		return Bool(n)
	case int:
		return Int(n)
	case int32:
		return Int(n)
	case int64:
		return Int(n)
	case uint64:
		return Int(int64(n))
	case float32:
		return Float(n)
	case float64:
		return Float(n)
	case string:
		return Str(n)
	case []any:
		items := make([]Value, len(n))
		for i, it := range n {
			items[i] = FromNative(it)
		}
		return &List{Items: items}
	case map[string]any:
		d := NewDict()
		for _, k := range sortedKeys(n) {
			d.Set(Str(k), FromNative(n[k]))
		}
		return d
	case *frame.Frame:
		return &DataFrame{Frame: n}
	}
	return Str(fmt.Sprint(v))
}

// ToNative converts an interpreter value back into a plain Go value
// suitable for JSON serialization.
func ToNative(v Value) any {
	switch n := v.(type) {
	case None:
		return nil
	case Bool:
		return bool(n)
	case Int:
		return int64(n)
	case Float:
		return float64(n)
	case Str:
		return string(n)
	case *List:
		out := make([]any, len(n.Items))
		for i, it := range n.Items {
			out[i] = ToNative(it)
		}
		return out
	case *Tuple:
		out := make([]any, len(n.Items))
		for i, it := range n.Items {
			out[i] = ToNative(it)
		}
		return out
	case *Dict:
		out := make(map[string]any, n.Len())
		for _, e := range n.entries {
			out[e.Key.Str()] = ToNative(e.Val)
		}
		return out
	case *DataFrame:
		return n.Frame
	case *Series:
		out := make([]any, len(n.Items))
		for i, it := range n.Items {
			out[i] = ToNative(it)
		}
		return out
	case *Chart:
		return map[string]any{
			"kind": n.Kind, "x": n.X, "y": n.Y, "names": n.Names,
			"values": n.Vals, "title": n.Title, "color": n.Color, "data": n.Data,
		}
	}
	return v.Str()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
