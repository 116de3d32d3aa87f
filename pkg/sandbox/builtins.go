package sandbox

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

var builtins map[string]*Builtin

func init() {
	builtins = map[string]*Builtin{
		"print": {Name: "print", Call: func(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
			in.print(args, kwargs)
			return None{}, nil
		}},
		"len":       {Name: "len", Call: builtinLen},
		"sum":       {Name: "sum", Call: builtinSum},
		"min":       {Name: "min", Call: builtinMin},
		"max":       {Name: "max", Call: builtinMax},
		"abs":       {Name: "abs", Call: builtinAbs},
		"round":     {Name: "round", Call: builtinRound},
		"sorted":    {Name: "sorted", Call: builtinSorted},
		"range":     {Name: "range", Call: builtinRange},
		"str":       {Name: "str", Call: builtinStr},
		"int":       {Name: "int", Call: builtinInt},
		"float":     {Name: "float", Call: builtinFloat},
		"bool":      {Name: "bool", Call: builtinBool},
		"list":      {Name: "list", Call: builtinList},
		"dict":      {Name: "dict", Call: builtinDict},
		"tuple":     {Name: "tuple", Call: builtinTuple},
		"enumerate": {Name: "enumerate", Call: builtinEnumerate},
		"zip":       {Name: "zip", Call: builtinZip},
		"type":      {Name: "type", Call: builtinType},
	}
}

func wantArgs(name string, args []Value, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return typeErrorf("%s() takes exactly %d argument(s) (%d given)", name, lo, len(args))
		}
		return typeErrorf("%s() takes %d to %d arguments (%d given)", name, lo, hi, len(args))
	}
	return nil
}

func builtinLen(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if err := wantArgs("len", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case Str:
		return Int(len([]rune(string(v)))), nil
	case *List:
		return Int(len(v.Items)), nil
	case *Tuple:
		return Int(len(v.Items)), nil
	case *Dict:
		return Int(v.Len()), nil
	case *Series:
		return Int(len(v.Items)), nil
	case *DataFrame:
		return Int(v.Frame.Count()), nil
	}
	return nil, typeErrorf("object of type '%s' has no len()", args[0].TypeName())
}

func builtinSum(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if err := wantArgs("sum", args, 1, 2); err != nil {
		return nil, err
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	total := 0.0
	allInt := true
	if len(args) == 2 {
		f, ok := numeric(args[1])
		if !ok {
			return nil, typeErrorf("sum() start must be a number")
		}
		total = f
		allInt = isIntLike(args[1])
	}
	for _, it := range items {
		f, ok := numeric(it)
		if !ok {
			return nil, typeErrorf("unsupported operand type(s) for +: '%s'", it.TypeName())
		}
		if !isIntLike(it) {
			allInt = false
		}
		total += f
	}
	if allInt {
		return Int(int64(total)), nil
	}
	return Float(total), nil
}

func extremum(name string, args []Value, want int) (Value, error) {
	var items []Value
	if len(args) == 1 {
		var err error
		items, err = iterate(args[0])
		if err != nil {
			return nil, err
		}
	} else {
		items = args
	}
	if len(items) == 0 {
		return nil, valueErrorf("%s() arg is an empty sequence", name)
	}
	best := items[0]
	for _, it := range items[1:] {
		c, err := valueCompare(it, best)
		if err != nil {
			return nil, err
		}
		if c == want {
			best = it
		}
	}
	return best, nil
}

func builtinMin(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if len(args) == 0 {
		return nil, typeErrorf("min expected at least 1 argument, got 0")
	}
	return extremum("min", args, -1)
}

func builtinMax(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if len(args) == 0 {
		return nil, typeErrorf("max expected at least 1 argument, got 0")
	}
	return extremum("max", args, 1)
}

func builtinAbs(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if err := wantArgs("abs", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case Int:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case Float:
		return Float(math.Abs(float64(v))), nil
	}
	return nil, typeErrorf("bad operand type for abs(): '%s'", args[0].TypeName())
}

func builtinRound(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if err := wantArgs("round", args, 1, 2); err != nil {
		return nil, err
	}
	f, ok := numeric(args[0])
	if !ok {
		return nil, typeErrorf("type %s doesn't define __round__ method", args[0].TypeName())
	}
	if len(args) == 1 {
		return Int(int64(math.RoundToEven(f))), nil
	}
	nd, ok := args[1].(Int)
	if !ok {
		return nil, typeErrorf("'%s' object cannot be interpreted as an integer", args[1].TypeName())
	}
	scale := math.Pow(10, float64(nd))
	return Float(math.Round(f*scale) / scale), nil
}

func builtinSorted(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if err := wantArgs("sorted", args, 1, 1); err != nil {
		return nil, err
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(items))
	copy(out, items)
	reverse := false
	if v, ok := kwargs["reverse"]; ok {
		reverse = v.Truth()
	}
	if keyFn, ok := kwargs["key"]; ok {
		type keyed struct {
			key Value
			val Value
		}
		pairs := make([]keyed, len(out))
		for i, it := range out {
			k, err := in.call(keyFn, []Value{it}, nil)
			if err != nil {
				return nil, err
			}
			pairs[i] = keyed{key: k, val: it}
		}
		var sortErr error
		sort.SliceStable(pairs, func(i, j int) bool {
			c, err := valueCompare(pairs[i].key, pairs[j].key)
			if err != nil && sortErr == nil {
				sortErr = err
			}
			if reverse {
				return c > 0
			}
			return c < 0
		})
		if sortErr != nil {
			return nil, sortErr
		}
		for i := range pairs {
			out[i] = pairs[i].val
		}
		return &List{Items: out}, nil
	}
	if err := sortValues(out, reverse); err != nil {
		return nil, err
	}
	return &List{Items: out}, nil
}

func builtinRange(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if err := wantArgs("range", args, 1, 3); err != nil {
		return nil, err
	}
	nums := make([]int64, len(args))
	for i, a := range args {
		n, ok := a.(Int)
		if !ok {
			return nil, typeErrorf("'%s' object cannot be interpreted as an integer", a.TypeName())
		}
		nums[i] = int64(n)
	}
	start, stop, step := int64(0), int64(0), int64(1)
	switch len(nums) {
	case 1:
		stop = nums[0]
	case 2:
		start, stop = nums[0], nums[1]
	case 3:
		start, stop, step = nums[0], nums[1], nums[2]
	}
	if step == 0 {
		return nil, valueErrorf("range() arg 3 must not be zero")
	}
	var items []Value
	if step > 0 {
		for i := start; i < stop; i += step {
			items = append(items, Int(i))
		}
	} else {
		for i := start; i > stop; i += step {
			items = append(items, Int(i))
		}
	}
	return &List{Items: items}, nil
}

func builtinStr(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if len(args) == 0 {
		return Str(""), nil
	}
	if err := wantArgs("str", args, 1, 1); err != nil {
		return nil, err
	}
	return Str(args[0].Str()), nil
}

func builtinInt(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if len(args) == 0 {
		return Int(0), nil
	}
	if err := wantArgs("int", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case Int:
		return v, nil
	case Float:
		return Int(int64(math.Trunc(float64(v)))), nil
	case Bool:
		if v {
			return Int(1), nil
		}
		return Int(0), nil
	case Str:
		n, err := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		if err != nil {
			return nil, valueErrorf("invalid literal for int() with base 10: %s", v.Repr())
		}
		return Int(n), nil
	}
	return nil, typeErrorf("int() argument must be a string or a number, not '%s'", args[0].TypeName())
}

func builtinFloat(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if len(args) == 0 {
		return Float(0), nil
	}
	if err := wantArgs("float", args, 1, 1); err != nil {
		return nil, err
	}
	if f, ok := numeric(args[0]); ok {
		return Float(f), nil
	}
	if s, ok := args[0].(Str); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
		if err != nil {
			return nil, valueErrorf("could not convert string to float: %s", s.Repr())
		}
		return Float(f), nil
	}
	return nil, typeErrorf("float() argument must be a string or a number, not '%s'", args[0].TypeName())
}

func builtinBool(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if len(args) == 0 {
		return Bool(false), nil
	}
	if err := wantArgs("bool", args, 1, 1); err != nil {
		return nil, err
	}
	return Bool(args[0].Truth()), nil
}

func builtinList(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if len(args) == 0 {
		return &List{}, nil
	}
	if err := wantArgs("list", args, 1, 1); err != nil {
		return nil, err
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(items))
	copy(out, items)
	return &List{Items: out}, nil
}

func builtinDict(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	d := NewDict()
	if len(args) == 1 {
		src, ok := args[0].(*Dict)
		if !ok {
			return nil, typeErrorf("dict() argument must be a dict, not '%s'", args[0].TypeName())
		}
		for _, k := range src.Keys() {
			v, _ := src.Get(k)
			d.Set(k, v)
		}
	} else if len(args) > 1 {
		return nil, typeErrorf("dict expected at most 1 argument, got %d", len(args))
	}
	for k, v := range kwargs {
		d.Set(Str(k), v)
	}
	return d, nil
}

func builtinTuple(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if len(args) == 0 {
		return &Tuple{}, nil
	}
	if err := wantArgs("tuple", args, 1, 1); err != nil {
		return nil, err
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(items))
	copy(out, items)
	return &Tuple{Items: out}, nil
}

func builtinEnumerate(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if err := wantArgs("enumerate", args, 1, 2); err != nil {
		return nil, err
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	start := int64(0)
	if len(args) == 2 {
		n, ok := args[1].(Int)
		if !ok {
			return nil, typeErrorf("'%s' object cannot be interpreted as an integer", args[1].TypeName())
		}
		start = int64(n)
	}
	out := make([]Value, len(items))
	for i, it := range items {
		out[i] = &Tuple{Items: []Value{Int(start + int64(i)), it}}
	}
	return &List{Items: out}, nil
}

func builtinZip(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if len(args) == 0 {
		return &List{}, nil
	}
	seqs := make([][]Value, len(args))
	shortest := -1
	for i, a := range args {
		items, err := iterate(a)
		if err != nil {
			return nil, err
		}
		seqs[i] = items
		if shortest < 0 || len(items) < shortest {
			shortest = len(items)
		}
	}
	out := make([]Value, shortest)
	for i := 0; i < shortest; i++ {
		row := make([]Value, len(seqs))
		for j := range seqs {
			row[j] = seqs[j][i]
		}
		out[i] = &Tuple{Items: row}
	}
	return &List{Items: out}, nil
}

func builtinType(in *interp, args []Value, kwargs map[string]Value) (Value, error) {
	if err := wantArgs("type", args, 1, 1); err != nil {
		return nil, err
	}
	return Str("<class '" + args[0].TypeName() + "'>"), nil
}

