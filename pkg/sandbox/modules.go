package sandbox

import (
	"math"
	"sort"

	"github.com/answerlake/answerlake/pkg/frame"
)

// DefaultModules returns the standard set of importable modules. The map
// keys double as the import allow-list unless the caller narrows it.
func DefaultModules() map[string]*Module {
	express := plotlyExpressModule()
	return map[string]*Module{
		"pandas":         pandasModule(),
		"plotly":         {Name: "plotly", Attrs: map[string]Value{"express": express}},
		"plotly.express": express,
		"math":           mathModule(),
		"statistics":     statisticsModule(),
	}
}

func pandasModule() *Module {
	return &Module{Name: "pandas", Attrs: map[string]Value{
		"DataFrame": &Builtin{Name: "DataFrame", Call: newDataFrame},
		"isna": &Builtin{Name: "isna", Call: func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("isna", args, 1, 1); err != nil {
				return nil, err
			}
			_, isNone := args[0].(None)
			return Bool(isNone), nil
		}},
		"notna": &Builtin{Name: "notna", Call: func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("notna", args, 1, 1); err != nil {
				return nil, err
			}
			_, isNone := args[0].(None)
			return Bool(!isNone), nil
		}},
	}}
}

// newDataFrame accepts a dict of column lists or a list of row dicts,
// the two shapes generated code builds frames from.
func newDataFrame(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	var src Value
	if len(args) == 1 {
		src = args[0]
	} else if v, ok := kwargs["data"]; ok {
		src = v
	} else if len(args) == 0 {
		return &DataFrame{Frame: frame.New(nil)}, nil
	} else {
		return nil, typeErrorf("DataFrame() takes at most 1 argument (%d given)", len(args))
	}
	switch d := src.(type) {
	case *Dict:
		var cols []string
		var colItems [][]Value
		n := -1
		for _, k := range d.Keys() {
			name, ok := k.(Str)
			if !ok {
				return nil, typeErrorf("column labels must be strings")
			}
			v, _ := d.Get(k)
			items, err := iterate(v)
			if err != nil {
				return nil, err
			}
			if n >= 0 && len(items) != n {
				return nil, valueErrorf("All arrays must be of the same length")
			}
			n = len(items)
			cols = append(cols, string(name))
			colItems = append(colItems, items)
		}
		f := frame.New(cols)
		for i := 0; i < n; i++ {
			row := make(map[string]any, len(cols))
			for j, c := range cols {
				row[c] = ToNative(colItems[j][i])
			}
			f.Append(row)
		}
		return &DataFrame{Frame: f}, nil
	case *List:
		var cols []string
		seen := map[string]bool{}
		rows := make([]map[string]any, 0, len(d.Items))
		for _, it := range d.Items {
			rd, ok := it.(*Dict)
			if !ok {
				return nil, typeErrorf("DataFrame rows must be dicts, not '%s'", it.TypeName())
			}
			row := make(map[string]any, rd.Len())
			for _, k := range rd.Keys() {
				name, ok := k.(Str)
				if !ok {
					return nil, typeErrorf("column labels must be strings")
				}
				if !seen[string(name)] {
					seen[string(name)] = true
					cols = append(cols, string(name))
				}
				v, _ := rd.Get(k)
				row[string(name)] = ToNative(v)
			}
			rows = append(rows, row)
		}
		f := frame.New(cols)
		for _, row := range rows {
			f.Append(row)
		}
		return &DataFrame{Frame: f}, nil
	case *DataFrame:
		return &DataFrame{Frame: d.Frame.Clone(), Index: d.Index}, nil
	}
	return nil, typeErrorf("DataFrame() data must be a dict or a list of dicts, not '%s'", src.TypeName())
}

func plotlyExpressModule() *Module {
	attrs := map[string]Value{}
	for _, kind := range []string{"bar", "line", "scatter", "pie", "histogram"} {
		k := kind
		attrs[k] = &Builtin{Name: k, Call: func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			return newChart(k, args, kwargs)
		}}
	}
	return &Module{Name: "plotly.express", Attrs: attrs}
}

func newChart(kind string, args []Value, kwargs map[string]Value) (Value, error) {
	var df *DataFrame
	if len(args) > 0 {
		d, ok := args[0].(*DataFrame)
		if !ok {
			return nil, typeErrorf("%s() data_frame must be a DataFrame, not '%s'", kind, args[0].TypeName())
		}
		df = d
	} else if v, ok := kwargs["data_frame"]; ok {
		d, ok := v.(*DataFrame)
		if !ok {
			return nil, typeErrorf("%s() data_frame must be a DataFrame, not '%s'", kind, v.TypeName())
		}
		df = d
	}
	if df == nil {
		return nil, typeErrorf("%s() missing required argument: 'data_frame'", kind)
	}
	c := &Chart{Kind: kind, Data: df.Frame.Clone()}
	str := func(key string) (string, error) {
		v, ok := kwargs[key]
		if !ok {
			return "", nil
		}
		s, ok := v.(Str)
		if !ok {
			return "", typeErrorf("%s() argument '%s' must be a string", kind, key)
		}
		return string(s), nil
	}
	var err error
	if c.X, err = str("x"); err != nil {
		return nil, err
	}
	if c.Y, err = str("y"); err != nil {
		return nil, err
	}
	if c.Names, err = str("names"); err != nil {
		return nil, err
	}
	if c.Vals, err = str("values"); err != nil {
		return nil, err
	}
	if c.Title, err = str("title"); err != nil {
		return nil, err
	}
	if c.Color, err = str("color"); err != nil {
		return nil, err
	}
	for _, ref := range []string{c.X, c.Y, c.Names, c.Vals, c.Color} {
		if ref != "" && !df.Frame.HasColumn(ref) {
			return nil, valueErrorf("Value of '%s' is not the name of a column in 'data_frame'", ref)
		}
	}
	return c, nil
}

func mathModule() *Module {
	unary := func(name string, fn func(float64) float64) Value {
		return &Builtin{Name: name, Call: func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs(name, args, 1, 1); err != nil {
				return nil, err
			}
			f, ok := numeric(args[0])
			if !ok {
				return nil, typeErrorf("must be real number, not %s", args[0].TypeName())
			}
			return Float(fn(f)), nil
		}}
	}
	return &Module{Name: "math", Attrs: map[string]Value{
		"sqrt":  unary("sqrt", math.Sqrt),
		"floor": unary("floor", math.Floor),
		"ceil":  unary("ceil", math.Ceil),
		"fabs":  unary("fabs", math.Abs),
		"log":   unary("log", math.Log),
		"log10": unary("log10", math.Log10),
		"exp":   unary("exp", math.Exp),
		"pi":    Float(math.Pi),
		"e":     Float(math.E),
		"pow": &Builtin{Name: "pow", Call: func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			if err := wantArgs("pow", args, 2, 2); err != nil {
				return nil, err
			}
			a, aok := numeric(args[0])
			b, bok := numeric(args[1])
			if !aok || !bok {
				return nil, typeErrorf("must be real number")
			}
			return Float(math.Pow(a, b)), nil
		}},
	}}
}

func statisticsModule() *Module {
	collect := func(name string, args []Value) ([]float64, error) {
		if err := wantArgs(name, args, 1, 1); err != nil {
			return nil, err
		}
		items, err := iterate(args[0])
		if err != nil {
			return nil, err
		}
		out := make([]float64, 0, len(items))
		for _, it := range items {
			f, ok := numeric(it)
			if !ok {
				return nil, typeErrorf("can't convert type '%s' to numerator/denominator", it.TypeName())
			}
			out = append(out, f)
		}
		if len(out) == 0 {
			return nil, &execError{msg: "StatisticsError: " + name + " requires at least one data point"}
		}
		return out, nil
	}
	return &Module{Name: "statistics", Attrs: map[string]Value{
		"mean": &Builtin{Name: "mean", Call: func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			vals, err := collect("mean", args)
			if err != nil {
				return nil, err
			}
			total := 0.0
			for _, f := range vals {
				total += f
			}
			return Float(total / float64(len(vals))), nil
		}},
		"median": &Builtin{Name: "median", Call: func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			vals, err := collect("median", args)
			if err != nil {
				return nil, err
			}
			sortFloats(vals)
			n := len(vals)
			if n%2 == 1 {
				return Float(vals[n/2]), nil
			}
			return Float((vals[n/2-1] + vals[n/2]) / 2), nil
		}},
		"stdev": &Builtin{Name: "stdev", Call: func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			vals, err := collect("stdev", args)
			if err != nil {
				return nil, err
			}
			if len(vals) < 2 {
				return nil, &execError{msg: "StatisticsError: stdev requires at least two data points"}
			}
			mean := 0.0
			for _, f := range vals {
				mean += f
			}
			mean /= float64(len(vals))
			var ss float64
			for _, f := range vals {
				ss += (f - mean) * (f - mean)
			}
			return Float(math.Sqrt(ss / float64(len(vals)-1))), nil
		}},
	}}
}

func sortFloats(vals []float64) { sort.Float64s(vals) }
