// Package frame holds the tabular result structure passed between the SQL
// and analysis stages. A Frame is column-ordered and row-major, with values
// kept as the loosely typed results of database/sql scanning.
package frame

import (
	"fmt"
	"sort"
	"strings"
)

// Frame is an in-memory tabular result set.
type Frame struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// New creates an empty frame with the given column order.
func New(columns []string) *Frame {
	return &Frame{Columns: append([]string(nil), columns...)}
}

// Count returns the number of rows.
func (f *Frame) Count() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Empty reports whether the frame has no rows.
func (f *Frame) Empty() bool {
	return f.Count() == 0
}

// Append adds a row. Keys not present in Columns are ignored by formatting
// but kept in the row map.
func (f *Frame) Append(row map[string]any) {
	f.Rows = append(f.Rows, row)
}

// Clone returns a deep copy of the frame. Row maps are copied so that
// in-place mutation of the clone is never visible through the original.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	out := New(f.Columns)
	out.Rows = make([]map[string]any, 0, len(f.Rows))
	for _, row := range f.Rows {
		cp := make(map[string]any, len(row))
		for k, v := range row {
			cp[k] = cloneValue(v)
		}
		out.Rows = append(out.Rows, cp)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []any:
		cp := make([]any, len(val))
		for i, e := range val {
			cp[i] = cloneValue(e)
		}
		return cp
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, e := range val {
			cp[k] = cloneValue(e)
		}
		return cp
	default:
		return v
	}
}

// DropNullRows returns a copy of the frame with rows removed where every
// column is nil. A query whose surviving row count is zero is treated as
// having produced no usable result.
func (f *Frame) DropNullRows() *Frame {
	out := New(f.Columns)
	for _, row := range f.Rows {
		allNull := true
		for _, col := range f.Columns {
			if row[col] != nil {
				allNull = false
				break
			}
		}
		if !allNull {
			out.Append(row)
		}
	}
	return out
}

// DType reports the value type of a column, derived from the first non-nil
// value. Returns "unknown" for columns with no usable values.
func (f *Frame) DType(column string) string {
	for _, row := range f.Rows {
		v := row[column]
		if v == nil {
			continue
		}
		switch v.(type) {
		case bool:
			return "bool"
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return "int"
		case float32, float64:
			return "float"
		case string:
			return "string"
		default:
			return fmt.Sprintf("%T", v)
		}
	}
	return "unknown"
}

// Example returns a printable example value for a column, used when
// describing the frame to the model.
func (f *Frame) Example(column string) string {
	for _, row := range f.Rows {
		if v := row[column]; v != nil {
			s := fmt.Sprintf("%v", v)
			if len(s) > 60 {
				s = s[:57] + "..."
			}
			return s
		}
	}
	return "null"
}

// Describe renders a one-line-per-column description of the frame: name,
// dtype, and one example value. Used as LLM context for the analysis stage.
func (f *Frame) Describe() string {
	var sb strings.Builder
	for _, col := range f.Columns {
		fmt.Fprintf(&sb, "- %s (%s) e.g. %s\n", col, f.DType(col), f.Example(col))
	}
	return sb.String()
}

// Column returns the values of one column in row order.
func (f *Frame) Column(name string) []any {
	out := make([]any, 0, len(f.Rows))
	for _, row := range f.Rows {
		out = append(out, row[name])
	}
	return out
}

// HasColumn reports whether the frame has the named column.
func (f *Frame) HasColumn(name string) bool {
	for _, c := range f.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Head returns a copy limited to the first n rows.
func (f *Frame) Head(n int) *Frame {
	if n < 0 {
		n = 0
	}
	if n > len(f.Rows) {
		n = len(f.Rows)
	}
	out := New(f.Columns)
	for _, row := range f.Rows[:n] {
		out.Append(row)
	}
	return out
}

// SortBy returns a copy sorted by the given column. The sort is stable and
// orders nil values last.
func (f *Frame) SortBy(column string, ascending bool) *Frame {
	out := f.Clone()
	sort.SliceStable(out.Rows, func(i, j int) bool {
		less := compareValues(out.Rows[i][column], out.Rows[j][column]) < 0
		if ascending {
			return less
		}
		return compareValues(out.Rows[i][column], out.Rows[j][column]) > 0
	})
	return out
}

func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Float converts a value to float64 where possible.
func Float(v any) (float64, bool) { return toFloat(v) }

// Format renders the frame in a compact text format for model context:
// a column header line followed by pipe-separated rows, truncated to
// maxRows with a continuation notice.
func (f *Frame) Format(maxRows int) string {
	if f.Empty() {
		return "Query returned no results."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Columns: %s\n", strings.Join(f.Columns, ", "))
	display := len(f.Rows)
	if maxRows > 0 && display > maxRows {
		display = maxRows
	}
	fmt.Fprintf(&sb, "Rows (%d total, showing %d):\n", len(f.Rows), display)
	for i := 0; i < display; i++ {
		values := make([]string, len(f.Columns))
		for j, col := range f.Columns {
			values[j] = formatCell(f.Rows[i][col])
		}
		sb.WriteString(strings.Join(values, " | ") + "\n")
	}
	if len(f.Rows) > display {
		fmt.Fprintf(&sb, "... and %d more rows\n", len(f.Rows)-display)
	}
	return sb.String()
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case float32:
		return formatCell(float64(val))
	default:
		s := fmt.Sprintf("%v", v)
		if len(s) > 100 {
			s = s[:97] + "..."
		}
		return s
	}
}
