package sandbox

import (
	"fmt"
	"math"
	"strings"

	"github.com/answerlake/answerlake/pkg/frame"
)

func frameAttr(df *DataFrame, name string) (Value, error) {
	switch name {
	case "columns":
		items := make([]Value, len(df.Frame.Columns))
		for i, c := range df.Frame.Columns {
			items[i] = Str(c)
		}
		return &List{Items: items}, nil
	case "shape":
		return &Tuple{Items: []Value{Int(df.Frame.Count()), Int(len(df.Frame.Columns))}}, nil
	case "empty":
		return Bool(df.Frame.Empty()), nil
	case "index":
		if df.Index != "" {
			return frameColumn(df, df.Index)
		}
		items := make([]Value, df.Frame.Count())
		for i := range items {
			items[i] = Int(i)
		}
		return &List{Items: items}, nil
	case "head":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			n, err := intArg("head", args, 5)
			if err != nil {
				return nil, err
			}
			return &DataFrame{Frame: df.Frame.Head(n), Index: df.Index}, nil
		})
	case "tail":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			n, err := intArg("tail", args, 5)
			if err != nil {
				return nil, err
			}
			total := df.Frame.Count()
			if n > total {
				n = total
			}
			out := frame.New(df.Frame.Columns)
			for _, row := range df.Frame.Rows[total-n:] {
				out.Append(row)
			}
			return &DataFrame{Frame: out, Index: df.Index}, nil
		})
	case "sort_values":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			by := kwargs["by"]
			if by == nil {
				if len(args) == 0 {
					return nil, typeErrorf("sort_values() missing required argument: 'by'")
				}
				by = args[0]
			}
			col, ok := by.(Str)
			if !ok {
				if l, isList := by.(*List); isList && len(l.Items) > 0 {
					col, ok = l.Items[0].(Str)
				}
				if !ok {
					return nil, typeErrorf("sort_values() 'by' must be a column name")
				}
			}
			if !df.Frame.HasColumn(string(col)) {
				return nil, keyErrorf(col)
			}
			ascending := true
			if v, ok := kwargs["ascending"]; ok {
				ascending = v.Truth()
			}
			return &DataFrame{Frame: df.Frame.SortBy(string(col), ascending), Index: df.Index}, nil
		})
	case "set_index":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("set_index", args, 1, 1); err != nil {
				return nil, err
			}
			col, ok := args[0].(Str)
			if !ok {
				return nil, typeErrorf("set_index() column must be a string")
			}
			if !df.Frame.HasColumn(string(col)) {
				return nil, keyErrorf(col)
			}
			// mutates the receiver; callers relying on the original
			// column order must copy first
			df.Index = string(col)
			cols := make([]string, 0, len(df.Frame.Columns))
			for _, c := range df.Frame.Columns {
				if c != string(col) {
					cols = append(cols, c)
				}
			}
			df.Frame.Columns = cols
			return df, nil
		})
	case "reset_index":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if df.Index != "" {
				df.Frame.Columns = append([]string{df.Index}, df.Frame.Columns...)
				df.Index = ""
			}
			return df, nil
		})
	case "groupby":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("groupby", args, 1, 1); err != nil {
				return nil, err
			}
			var keys []string
			switch by := args[0].(type) {
			case Str:
				keys = []string{string(by)}
			case *List:
				for _, it := range by.Items {
					k, ok := it.(Str)
					if !ok {
						return nil, typeErrorf("groupby() keys must be column names")
					}
					keys = append(keys, string(k))
				}
			default:
				return nil, typeErrorf("groupby() by must be a column name or list of column names")
			}
			for _, k := range keys {
				if !df.Frame.HasColumn(k) {
					return nil, keyErrorf(Str(k))
				}
			}
			return &GroupBy{Frame: df.Frame, Keys: keys}, nil
		})
	case "rename":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			mapping, ok := kwargs["columns"].(*Dict)
			if !ok {
				return nil, typeErrorf("rename() requires a columns= mapping")
			}
			out := df.Frame.Clone()
			for i, c := range out.Columns {
				if nv, found := mapping.Get(Str(c)); found {
					newName, ok := nv.(Str)
					if !ok {
						return nil, typeErrorf("rename() target names must be strings")
					}
					out.Columns[i] = string(newName)
					for _, row := range out.Rows {
						row[string(newName)] = row[c]
						delete(row, c)
					}
				}
			}
			return &DataFrame{Frame: out, Index: df.Index}, nil
		})
	case "drop":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			var drop []string
			switch cols := kwargs["columns"].(type) {
			case Str:
				drop = []string{string(cols)}
			case *List:
				for _, it := range cols.Items {
					k, ok := it.(Str)
					if !ok {
						return nil, typeErrorf("drop() column names must be strings")
					}
					drop = append(drop, string(k))
				}
			default:
				return nil, typeErrorf("drop() requires a columns= argument")
			}
			dropSet := make(map[string]bool, len(drop))
			for _, c := range drop {
				if !df.Frame.HasColumn(c) {
					return nil, keyErrorf(Str(c))
				}
				dropSet[c] = true
			}
			keep := make([]string, 0, len(df.Frame.Columns))
			for _, c := range df.Frame.Columns {
				if !dropSet[c] {
					keep = append(keep, c)
				}
			}
			out := frame.New(keep)
			for _, row := range df.Frame.Rows {
				nr := make(map[string]any, len(keep))
				for _, c := range keep {
					nr[c] = row[c]
				}
				out.Append(nr)
			}
			return &DataFrame{Frame: out, Index: df.Index}, nil
		})
	case "dropna":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			out := frame.New(df.Frame.Columns)
			for _, row := range df.Frame.Rows {
				hasNull := false
				for _, c := range df.Frame.Columns {
					if row[c] == nil {
						hasNull = true
						break
					}
				}
				if !hasNull {
					out.Append(row)
				}
			}
			return &DataFrame{Frame: out, Index: df.Index}, nil
		})
	case "fillna":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("fillna", args, 1, 1); err != nil {
				return nil, err
			}
			fill := ToNative(args[0])
			out := df.Frame.Clone()
			for _, row := range out.Rows {
				for _, c := range out.Columns {
					if row[c] == nil {
						row[c] = fill
					}
				}
			}
			return &DataFrame{Frame: out, Index: df.Index}, nil
		})
	case "nlargest":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return frameRank(df, args, false)
		})
	case "nsmallest":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return frameRank(df, args, true)
		})
	case "to_dict":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			items := make([]Value, 0, df.Frame.Count())
			for _, row := range df.Frame.Rows {
				d := NewDict()
				for _, c := range df.Frame.Columns {
					d.Set(Str(c), FromNative(row[c]))
				}
				items = append(items, d)
			}
			return &List{Items: items}, nil
		})
	case "iterrows":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			items := make([]Value, 0, df.Frame.Count())
			for i, row := range df.Frame.Rows {
				d := NewDict()
				for _, c := range df.Frame.Columns {
					d.Set(Str(c), FromNative(row[c]))
				}
				items = append(items, &Tuple{Items: []Value{Int(i), d}})
			}
			return &List{Items: items}, nil
		})
	case "copy":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return &DataFrame{Frame: df.Frame.Clone(), Index: df.Index}, nil
		})
	}
	return nil, attrErrorf("DataFrame", name)
}

func intArg(name string, args []Value, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, ok := args[0].(Int)
	if !ok {
		return 0, typeErrorf("%s() argument must be an integer, not '%s'", name, args[0].TypeName())
	}
	return int(n), nil
}

func frameRank(df *DataFrame, args []Value, ascending bool) (Value, error) {
	if len(args) != 2 {
		return nil, typeErrorf("expected arguments (n, column)")
	}
	n, ok := args[0].(Int)
	if !ok {
		return nil, typeErrorf("n must be an integer")
	}
	col, ok := args[1].(Str)
	if !ok {
		return nil, typeErrorf("column must be a string")
	}
	if !df.Frame.HasColumn(string(col)) {
		return nil, keyErrorf(col)
	}
	sorted := df.Frame.SortBy(string(col), ascending)
	return &DataFrame{Frame: sorted.Head(int(n)), Index: df.Index}, nil
}

func seriesAttr(s *Series, name string) (Value, error) {
	switch name {
	case "values":
		return &List{Items: append([]Value(nil), s.Items...)}, nil
	case "name":
		return Str(s.Name), nil
	case "sum":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			fs, err := seriesToFloats(s)
			if err != nil {
				return nil, err
			}
			total := 0.0
			for _, f := range fs {
				total += f
			}
			return floatOrInt(total, s), nil
		})
	case "mean":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			fs, err := seriesToFloats(s)
			if err != nil {
				return nil, err
			}
			if len(fs) == 0 {
				return Float(math.NaN()), nil
			}
			total := 0.0
			for _, f := range fs {
				total += f
			}
			return Float(total / float64(len(fs))), nil
		})
	case "min":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return seriesExtremum(s, -1)
		})
	case "max":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return seriesExtremum(s, 1)
		})
	case "count":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			n := 0
			for _, it := range s.Items {
				if _, isNone := it.(None); !isNone {
					n++
				}
			}
			return Int(n), nil
		})
	case "nunique":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return Int(len(seriesUnique(s))), nil
		})
	case "unique":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return &List{Items: seriesUnique(s)}, nil
		})
	case "tolist", "to_list":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return &List{Items: append([]Value(nil), s.Items...)}, nil
		})
	case "round":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			nd, err := intArg("round", args, 0)
			if err != nil {
				return nil, err
			}
			scale := math.Pow(10, float64(nd))
			out := make([]Value, len(s.Items))
			for i, it := range s.Items {
				if f, ok := numeric(it); ok {
					out[i] = Float(math.Round(f*scale) / scale)
				} else {
					out[i] = it
				}
			}
			return &Series{Name: s.Name, Items: out}, nil
		})
	case "astype":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("astype", args, 1, 1); err != nil {
				return nil, err
			}
			target := ""
			switch t := args[0].(type) {
			case Str:
				target = string(t)
			case *Builtin:
				target = t.Name
			default:
				return nil, typeErrorf("astype() target must be a type name")
			}
			out := make([]Value, len(s.Items))
			for i, it := range s.Items {
				conv, err := convertScalar(it, target)
				if err != nil {
					return nil, err
				}
				out[i] = conv
			}
			return &Series{Name: s.Name, Items: out}, nil
		})
	case "head":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			n, err := intArg("head", args, 5)
			if err != nil {
				return nil, err
			}
			if n > len(s.Items) {
				n = len(s.Items)
			}
			return &Series{Name: s.Name, Items: append([]Value(nil), s.Items[:n]...)}, nil
		})
	case "value_counts":
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			counts := NewDict()
			for _, it := range s.Items {
				if cur, ok := counts.Get(it); ok {
					counts.Set(it, cur.(Int)+1)
				} else {
					counts.Set(it, Int(1))
				}
			}
			return counts, nil
		})
	}
	return nil, attrErrorf("Series", name)
}

func convertScalar(v Value, target string) (Value, error) {
	switch target {
	case "str":
		return Str(v.Str()), nil
	case "int":
		f, ok := numeric(v)
		if !ok {
			return nil, valueErrorf("cannot convert '%s' to int", v.TypeName())
		}
		return Int(int64(f)), nil
	case "float":
		f, ok := numeric(v)
		if !ok {
			return nil, valueErrorf("cannot convert '%s' to float", v.TypeName())
		}
		return Float(f), nil
	}
	return nil, valueErrorf("unsupported astype target '%s'", target)
}

func floatOrInt(f float64, s *Series) Value {
	allInt := true
	for _, it := range s.Items {
		if _, isNone := it.(None); isNone {
			continue
		}
		if !isIntLike(it) {
			allInt = false
			break
		}
	}
	if allInt && f == math.Trunc(f) {
		return Int(int64(f))
	}
	return Float(f)
}

func seriesExtremum(s *Series, want int) (Value, error) {
	var best Value
	for _, it := range s.Items {
		if _, isNone := it.(None); isNone {
			continue
		}
		if best == nil {
			best = it
			continue
		}
		c, err := valueCompare(it, best)
		if err != nil {
			return nil, err
		}
		if c == want {
			best = it
		}
	}
	if best == nil {
		return None{}, nil
	}
	return best, nil
}

func seriesUnique(s *Series) []Value {
	var out []Value
	for _, it := range s.Items {
		seen := false
		for _, u := range out {
			if valueEqual(u, it) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, it)
		}
	}
	return out
}

func groupAttr(g *GroupBy, name string) (Value, error) {
	switch name {
	case "sum", "mean", "count", "min", "max":
		agg := name
		return method(name, func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			only := g.Only
			if len(args) == 1 {
				col, ok := args[0].(Str)
				if !ok {
					return nil, typeErrorf("aggregation column must be a string")
				}
				only = string(col)
			}
			return groupAggregate(g, agg, only)
		})
	}
	return nil, attrErrorf("DataFrameGroupBy", name)
}

// groupAggregate folds rows by key columns, preserving the order in which
// each key first appears. Non-numeric value columns are dropped except
// under count.
func groupAggregate(g *GroupBy, agg, only string) (Value, error) {
	type bucket struct {
		keyVals map[string]any
		rows    []map[string]any
	}
	var order []string
	buckets := map[string]*bucket{}
	for _, row := range g.Frame.Rows {
		var kb strings.Builder
		for _, k := range g.Keys {
			fmt.Fprintf(&kb, "%v\x00", row[k])
		}
		key := kb.String()
		b, ok := buckets[key]
		if !ok {
			kv := make(map[string]any, len(g.Keys))
			for _, k := range g.Keys {
				kv[k] = row[k]
			}
			b = &bucket{keyVals: kv}
			buckets[key] = b
			order = append(order, key)
		}
		b.rows = append(b.rows, row)
	}

	keySet := make(map[string]bool, len(g.Keys))
	for _, k := range g.Keys {
		keySet[k] = true
	}
	var valueCols []string
	for _, c := range g.Frame.Columns {
		if keySet[c] {
			continue
		}
		if only != "" && c != only {
			continue
		}
		valueCols = append(valueCols, c)
	}
	if only != "" && len(valueCols) == 0 {
		return nil, keyErrorf(Str(only))
	}

	outCols := append(append([]string{}, g.Keys...), valueCols...)
	out := frame.New(outCols)
	for _, key := range order {
		b := buckets[key]
		row := make(map[string]any, len(outCols))
		for k, v := range b.keyVals {
			row[k] = v
		}
		for _, c := range valueCols {
			val, ok := aggregateColumn(b.rows, c, agg)
			if !ok && agg != "count" {
				continue
			}
			row[c] = val
		}
		out.Append(row)
	}
	if agg != "count" {
		// drop value columns that had no numeric data anywhere
		kept := append([]string{}, g.Keys...)
		for _, c := range valueCols {
			present := false
			for _, row := range out.Rows {
				if _, ok := row[c]; ok {
					present = true
					break
				}
			}
			if present {
				kept = append(kept, c)
			}
		}
		out.Columns = kept
	}
	return &DataFrame{Frame: out}, nil
}

// seriesBinary broadcasts an operator over series operands. A scalar on
// either side is repeated; two series must agree on length.
func seriesBinary(in *interp, op string, lhs, rhs Value) (Value, error) {
	ls, lok := lhs.(*Series)
	rs, rok := rhs.(*Series)
	var n int
	var name string
	switch {
	case lok && rok:
		if len(ls.Items) != len(rs.Items) {
			return nil, valueErrorf("cannot align series of lengths %d and %d", len(ls.Items), len(rs.Items))
		}
		n = len(ls.Items)
		name = ls.Name
	case lok:
		n = len(ls.Items)
		name = ls.Name
	default:
		n = len(rs.Items)
		name = rs.Name
	}
	out := make([]Value, n)
	for i := 0; i < n; i++ {
		a, b := lhs, rhs
		if lok {
			a = ls.Items[i]
		}
		if rok {
			b = rs.Items[i]
		}
		v, err := in.scalarBinary(op, a, b)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return &Series{Name: name, Items: out}, nil
}

// frameMask filters rows by a boolean series aligned with the frame.
func frameMask(df *DataFrame, mask *Series) (Value, error) {
	if len(mask.Items) != df.Frame.Count() {
		return nil, valueErrorf("boolean index has wrong length: %d instead of %d", len(mask.Items), df.Frame.Count())
	}
	out := frame.New(df.Frame.Columns)
	for i, row := range df.Frame.Rows {
		if mask.Items[i].Truth() {
			out.Append(row)
		}
	}
	return &DataFrame{Frame: out, Index: df.Index}, nil
}

func seriesMask(s *Series, mask *Series) (Value, error) {
	if len(mask.Items) != len(s.Items) {
		return nil, valueErrorf("boolean index has wrong length: %d instead of %d", len(mask.Items), len(s.Items))
	}
	var out []Value
	for i, it := range s.Items {
		if mask.Items[i].Truth() {
			out = append(out, it)
		}
	}
	return &Series{Name: s.Name, Items: out}, nil
}

func frameProject(df *DataFrame, cols []string) (Value, error) {
	out := frame.New(cols)
	for _, row := range df.Frame.Rows {
		nr := make(map[string]any, len(cols))
		for _, c := range cols {
			nr[c] = row[c]
		}
		out.Append(nr)
	}
	return &DataFrame{Frame: out, Index: df.Index}, nil
}

func aggregateColumn(rows []map[string]any, col, agg string) (any, bool) {
	if agg == "count" {
		n := 0
		for _, row := range rows {
			if row[col] != nil {
				n++
			}
		}
		return int64(n), true
	}
	var vals []float64
	for _, row := range rows {
		if f, ok := frame.Float(row[col]); ok {
			vals = append(vals, f)
		}
	}
	if len(vals) == 0 {
		return nil, false
	}
	switch agg {
	case "sum":
		total := 0.0
		for _, f := range vals {
			total += f
		}
		return total, true
	case "mean":
		total := 0.0
		for _, f := range vals {
			total += f
		}
		return total / float64(len(vals)), true
	case "min":
		m := vals[0]
		for _, f := range vals[1:] {
			if f < m {
				m = f
			}
		}
		return m, true
	case "max":
		m := vals[0]
		for _, f := range vals[1:] {
			if f > m {
				m = f
			}
		}
		return m, true
	}
	return nil, false
}
