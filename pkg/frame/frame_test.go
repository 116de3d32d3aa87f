package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sample() *Frame {
	f := New([]string{"name", "total", "note"})
	f.Append(map[string]any{"name": "alpha", "total": int64(12), "note": nil})
	f.Append(map[string]any{"name": "beta", "total": int64(30), "note": "big"})
	f.Append(map[string]any{"name": "gamma", "total": int64(5), "note": nil})
	return f
}

func TestFrame_CloneIsolatesMutation(t *testing.T) {
	orig := sample()
	cp := orig.Clone()

	cp.Rows[0]["name"] = "changed"
	cp.Append(map[string]any{"name": "delta", "total": int64(1), "note": nil})

	require.Equal(t, "alpha", orig.Rows[0]["name"])
	require.Equal(t, 3, orig.Count())
	require.Equal(t, 4, cp.Count())
}

func TestFrame_CloneCopiesNestedValues(t *testing.T) {
	f := New([]string{"tags"})
	f.Append(map[string]any{"tags": []any{"a", "b"}})

	cp := f.Clone()
	cp.Rows[0]["tags"].([]any)[0] = "z"

	require.Equal(t, "a", f.Rows[0]["tags"].([]any)[0])
}

func TestFrame_DropNullRows(t *testing.T) {
	f := New([]string{"a", "b"})
	f.Append(map[string]any{"a": nil, "b": nil})
	f.Append(map[string]any{"a": int64(1), "b": nil})
	f.Append(map[string]any{"a": nil, "b": nil})

	out := f.DropNullRows()
	require.Equal(t, 1, out.Count())
	require.Equal(t, int64(1), out.Rows[0]["a"])
	require.Equal(t, 3, f.Count(), "original is untouched")

	allNull := New([]string{"a"})
	allNull.Append(map[string]any{"a": nil})
	require.True(t, allNull.DropNullRows().Empty())
}

func TestFrame_Describe(t *testing.T) {
	desc := sample().Describe()
	require.Contains(t, desc, "- name (string) e.g. alpha")
	require.Contains(t, desc, "- total (int) e.g. 12")
	require.Contains(t, desc, "- note (string) e.g. big")
}

func TestFrame_DType(t *testing.T) {
	f := New([]string{"i", "f", "s", "b", "empty"})
	f.Append(map[string]any{"i": int32(1), "f": 1.5, "s": "x", "b": true, "empty": nil})

	require.Equal(t, "int", f.DType("i"))
	require.Equal(t, "float", f.DType("f"))
	require.Equal(t, "string", f.DType("s"))
	require.Equal(t, "bool", f.DType("b"))
	require.Equal(t, "unknown", f.DType("empty"))
}

func TestFrame_SortBy(t *testing.T) {
	sorted := sample().SortBy("total", false)
	require.Equal(t, "beta", sorted.Rows[0]["name"])
	require.Equal(t, "gamma", sorted.Rows[2]["name"])

	asc := sample().SortBy("total", true)
	require.Equal(t, "gamma", asc.Rows[0]["name"])
}

func TestFrame_SortBy_NilsLast(t *testing.T) {
	f := New([]string{"v"})
	f.Append(map[string]any{"v": nil})
	f.Append(map[string]any{"v": int64(2)})
	f.Append(map[string]any{"v": int64(1)})

	sorted := f.SortBy("v", true)
	require.Equal(t, int64(1), sorted.Rows[0]["v"])
	require.Nil(t, sorted.Rows[2]["v"])
}

func TestFrame_Head(t *testing.T) {
	require.Equal(t, 2, sample().Head(2).Count())
	require.Equal(t, 3, sample().Head(10).Count())
	require.Equal(t, 0, sample().Head(-1).Count())
}

func TestFrame_Format(t *testing.T) {
	out := sample().Format(2)
	require.Contains(t, out, "name")
	require.Contains(t, out, "alpha")
	require.NotContains(t, out, "gamma", "rows beyond the limit are omitted")

	require.Equal(t, "Query returned no results.", New([]string{"a"}).Format(5))
}
