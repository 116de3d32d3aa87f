package sandbox

import (
	"strings"
)

// getAttr resolves attribute access. Methods are materialized as builtins
// bound to the receiver, so `df.head` is itself callable.
func (in *interp) getAttr(x Value, name string) (Value, error) {
	switch o := x.(type) {
	case *Module:
		if v, ok := o.Attrs[name]; ok {
			return v, nil
		}
		return nil, attrErrorf("module '"+o.Name+"'", name)
	case Str:
		return strAttr(o, name)
	case *List:
		return listAttr(o, name)
	case *Dict:
		return dictAttr(o, name)
	case *DataFrame:
		return frameAttr(o, name)
	case *Series:
		return seriesAttr(o, name)
	case *GroupBy:
		return groupAttr(o, name)
	case *Chart:
		return chartAttr(o, name)
	case *Func:
		if name == "__doc__" {
			return Str(o.Doc), nil
		}
	}
	return nil, attrErrorf(x.TypeName(), name)
}

func method(name string, fn func(in *interp, args []Value, kwargs map[string]Value) (Value, error)) (Value, error) {
	return &Builtin{Name: name, Call: fn}, nil
}

func strAttr(s Str, name string) (Value, error) {
	switch name {
	case "upper":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return Str(strings.ToUpper(string(s))), nil
		})
	case "lower":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return Str(strings.ToLower(string(s))), nil
		})
	case "strip":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if len(args) == 1 {
				cut, ok := args[0].(Str)
				if !ok {
					return nil, typeErrorf("strip arg must be a str")
				}
				return Str(strings.Trim(string(s), string(cut))), nil
			}
			return Str(strings.TrimSpace(string(s))), nil
		})
	case "split":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			sep := ""
			if len(args) == 1 {
				sp, ok := args[0].(Str)
				if !ok {
					return nil, typeErrorf("split sep must be a str")
				}
				sep = string(sp)
			}
			var parts []string
			if sep == "" {
				parts = strings.Fields(string(s))
			} else {
				parts = strings.Split(string(s), sep)
			}
			items := make([]Value, len(parts))
			for i, p := range parts {
				items[i] = Str(p)
			}
			return &List{Items: items}, nil
		})
	case "join":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("join", args, 1, 1); err != nil {
				return nil, err
			}
			items, err := iterate(args[0])
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(items))
			for i, it := range items {
				part, ok := it.(Str)
				if !ok {
					return nil, typeErrorf("sequence item %d: expected str instance, %s found", i, it.TypeName())
				}
				parts[i] = string(part)
			}
			return Str(strings.Join(parts, string(s))), nil
		})
	case "replace":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("replace", args, 2, 2); err != nil {
				return nil, err
			}
			oldS, ok1 := args[0].(Str)
			newS, ok2 := args[1].(Str)
			if !ok1 || !ok2 {
				return nil, typeErrorf("replace arguments must be str")
			}
			return Str(strings.ReplaceAll(string(s), string(oldS), string(newS))), nil
		})
	case "startswith":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("startswith", args, 1, 1); err != nil {
				return nil, err
			}
			p, ok := args[0].(Str)
			if !ok {
				return nil, typeErrorf("startswith arg must be a str")
			}
			return Bool(strings.HasPrefix(string(s), string(p))), nil
		})
	case "endswith":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("endswith", args, 1, 1); err != nil {
				return nil, err
			}
			p, ok := args[0].(Str)
			if !ok {
				return nil, typeErrorf("endswith arg must be a str")
			}
			return Bool(strings.HasSuffix(string(s), string(p))), nil
		})
	case "format":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return strFormat(string(s), args, kwargs)
		})
	case "title":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return Str(titleCase(string(s))), nil
		})
	case "capitalize":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			str := string(s)
			if str == "" {
				return s, nil
			}
			return Str(strings.ToUpper(str[:1]) + strings.ToLower(str[1:])), nil
		})
	}
	return nil, attrErrorf("str", name)
}

func titleCase(s string) string {
	var sb strings.Builder
	startWord := true
	for _, r := range s {
		switch {
		case r == ' ' || r == '_' || r == '-':
			startWord = true
			sb.WriteRune(r)
		case startWord:
			sb.WriteString(strings.ToUpper(string(r)))
			startWord = false
		default:
			sb.WriteString(strings.ToLower(string(r)))
		}
	}
	return sb.String()
}

// strFormat handles {} and {name} placeholders. Format specs after a
// colon are not supported; generated code rarely needs them and an error
// is clearer than silent misformatting.
func strFormat(format string, args []Value, kwargs map[string]Value) (Value, error) {
	var sb strings.Builder
	auto := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c == '{' {
			if i+1 < len(format) && format[i+1] == '{' {
				sb.WriteByte('{')
				i++
				continue
			}
			j := strings.IndexByte(format[i:], '}')
			if j < 0 {
				return nil, valueErrorf("single '{' encountered in format string")
			}
			name := format[i+1 : i+j]
			if strings.ContainsRune(name, ':') {
				return nil, valueErrorf("format specs are not supported; use round() instead")
			}
			var v Value
			if name == "" {
				if auto >= len(args) {
					return nil, &execError{msg: "IndexError: Replacement index out of range for positional args tuple"}
				}
				v = args[auto]
				auto++
			} else if kv, ok := kwargs[name]; ok {
				v = kv
			} else {
				return nil, keyErrorf(Str(name))
			}
			sb.WriteString(v.Str())
			i += j
			continue
		}
		if c == '}' {
			if i+1 < len(format) && format[i+1] == '}' {
				sb.WriteByte('}')
				i++
				continue
			}
			return nil, valueErrorf("single '}' encountered in format string")
		}
		sb.WriteByte(c)
	}
	return Str(sb.String()), nil
}

func listAttr(l *List, name string) (Value, error) {
	switch name {
	case "append":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("append", args, 1, 1); err != nil {
				return nil, err
			}
			l.Items = append(l.Items, args[0])
			return None{}, nil
		})
	case "extend":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("extend", args, 1, 1); err != nil {
				return nil, err
			}
			items, err := iterate(args[0])
			if err != nil {
				return nil, err
			}
			l.Items = append(l.Items, items...)
			return None{}, nil
		})
	case "pop":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if len(l.Items) == 0 {
				return nil, &execError{msg: "IndexError: pop from empty list"}
			}
			n := len(l.Items) - 1
			if len(args) == 1 {
				i, ok := args[0].(Int)
				if !ok {
					return nil, typeErrorf("'%s' object cannot be interpreted as an integer", args[0].TypeName())
				}
				n = int(i)
				if n < 0 {
					n += len(l.Items)
				}
				if n < 0 || n >= len(l.Items) {
					return nil, &execError{msg: "IndexError: pop index out of range"}
				}
			}
			v := l.Items[n]
			l.Items = append(l.Items[:n], l.Items[n+1:]...)
			return v, nil
		})
	case "sort":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			reverse := false
			if v, ok := kwargs["reverse"]; ok {
				reverse = v.Truth()
			}
			if err := sortValues(l.Items, reverse); err != nil {
				return nil, err
			}
			return None{}, nil
		})
	case "reverse":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			for i, j := 0, len(l.Items)-1; i < j; i, j = i+1, j-1 {
				l.Items[i], l.Items[j] = l.Items[j], l.Items[i]
			}
			return None{}, nil
		})
	case "index":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("index", args, 1, 1); err != nil {
				return nil, err
			}
			for i, it := range l.Items {
				if valueEqual(it, args[0]) {
					return Int(i), nil
				}
			}
			return nil, valueErrorf("%s is not in list", args[0].Repr())
		})
	case "count":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("count", args, 1, 1); err != nil {
				return nil, err
			}
			n := 0
			for _, it := range l.Items {
				if valueEqual(it, args[0]) {
					n++
				}
			}
			return Int(n), nil
		})
	}
	return nil, attrErrorf("list", name)
}

func dictAttr(d *Dict, name string) (Value, error) {
	switch name {
	case "get":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("get", args, 1, 2); err != nil {
				return nil, err
			}
			if v, ok := d.Get(args[0]); ok {
				return v, nil
			}
			if len(args) == 2 {
				return args[1], nil
			}
			return None{}, nil
		})
	case "keys":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return &List{Items: d.Keys()}, nil
		})
	case "values":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return &List{Items: d.Values()}, nil
		})
	case "items":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			items := make([]Value, 0, d.Len())
			for _, k := range d.Keys() {
				v, _ := d.Get(k)
				items = append(items, &Tuple{Items: []Value{k, v}})
			}
			return &List{Items: items}, nil
		})
	case "update":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("update", args, 1, 1); err != nil {
				return nil, err
			}
			src, ok := args[0].(*Dict)
			if !ok {
				return nil, typeErrorf("update argument must be a dict, not '%s'", args[0].TypeName())
			}
			for _, k := range src.Keys() {
				v, _ := src.Get(k)
				d.Set(k, v)
			}
			return None{}, nil
		})
	case "pop":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("pop", args, 1, 2); err != nil {
				return nil, err
			}
			for i, e := range d.entries {
				if valueEqual(e.Key, args[0]) {
					v := e.Val
					d.entries = append(d.entries[:i], d.entries[i+1:]...)
					return v, nil
				}
			}
			if len(args) == 2 {
				return args[1], nil
			}
			return nil, keyErrorf(args[0])
		})
	}
	return nil, attrErrorf("dict", name)
}

func frameColumn(df *DataFrame, col string) (Value, error) {
	if !df.Frame.HasColumn(col) {
		return nil, keyErrorf(Str(col))
	}
	items := make([]Value, 0, df.Frame.Count())
	for _, cell := range df.Frame.Column(col) {
		items = append(items, FromNative(cell))
	}
	return &Series{Name: col, Items: items}, nil
}

func frameSetColumn(df *DataFrame, col string, val Value) error {
	n := df.Frame.Count()
	switch v := val.(type) {
	case *Series:
		if len(v.Items) != n {
			return valueErrorf("Length of values (%d) does not match length of index (%d)", len(v.Items), n)
		}
		for i, row := range df.Frame.Rows {
			row[col] = ToNative(v.Items[i])
		}
	case *List:
		if len(v.Items) != n {
			return valueErrorf("Length of values (%d) does not match length of index (%d)", len(v.Items), n)
		}
		for i, row := range df.Frame.Rows {
			row[col] = ToNative(v.Items[i])
		}
	default:
		scalar := ToNative(val)
		for _, row := range df.Frame.Rows {
			row[col] = scalar
		}
	}
	if !df.Frame.HasColumn(col) {
		df.Frame.Columns = append(df.Frame.Columns, col)
	}
	return nil
}

func chartAttr(c *Chart, name string) (Value, error) {
	switch name {
	case "update_layout":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if v, ok := kwargs["title"]; ok {
				c.Title = v.Str()
			}
			return c, nil
		})
	case "show":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return None{}, nil
		})
	}
	return nil, attrErrorf("Figure", name)
}

func seriesToFloats(s *Series) ([]float64, error) {
	out := make([]float64, 0, len(s.Items))
	for _, it := range s.Items {
		if _, ok := it.(None); ok {
			continue
		}
		f, ok := numeric(it)
		if !ok {
			return nil, typeErrorf("could not convert value of type '%s' to numeric", it.TypeName())
		}
		out = append(out, f)
	}
	return out, nil
}
