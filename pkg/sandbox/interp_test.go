package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/answerlake/answerlake/pkg/frame"
)

func testFrame() *frame.Frame {
	f := frame.New([]string{"name", "value"})
	f.Append(map[string]any{"name": "alpha", "value": int64(10)})
	f.Append(map[string]any{"name": "beta", "value": int64(25)})
	f.Append(map[string]any{"name": "gamma", "value": int64(7)})
	return f
}

func TestSandbox_Run_PrintCapture(t *testing.T) {
	exec, err := Run("print('Hello World!')\n", Options{})
	require.NoError(t, err)
	require.Equal(t, "Hello World!\n", exec.Stdout())
}

func TestSandbox_Run_TrailingExpressionIsResult(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Value
	}{
		{name: "int arithmetic", src: "x = 40\nx + 2\n", want: Int(42)},
		{name: "float division", src: "10 / 4\n", want: Float(2.5)},
		{name: "string concat", src: "'an' + 'swer'\n", want: Str("answer")},
		{name: "bool comparison", src: "3 > 2\n", want: Bool(true)},
		{name: "conditional expression", src: "x = 5\n'big' if x > 3 else 'small'\n", want: Str("big")},
		{name: "chained compare via and", src: "n = 7\nn > 5 and n < 10\n", want: Bool(true)},
		{name: "floor division", src: "7 // 2\n", want: Int(3)},
		{name: "modulo", src: "7 % 3\n", want: Int(1)},
		{name: "power", src: "2 ** 10\n", want: Int(1024)},
		{name: "negative modulo follows sign of divisor", src: "-7 % 3\n", want: Int(2)},
		{name: "f-less format", src: "'total: {}'.format(42)\n", want: Str("total: 42")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, err := Run(tt.src, Options{})
			require.NoError(t, err)
			require.Equal(t, tt.want, exec.Value)
		})
	}
}

func TestSandbox_Run_NoTrailingExpression(t *testing.T) {
	exec, err := Run("x = 1\ny = 2\n", Options{})
	require.NoError(t, err)
	require.Nil(t, exec.Value)
	require.Equal(t, Int(1), exec.Locals["x"])
	require.Equal(t, Int(2), exec.Locals["y"])
}

func TestSandbox_Run_SemicolonSeparatedStatements(t *testing.T) {
	exec, err := Run("a = 1; b = 2\na + b\n", Options{})
	require.NoError(t, err)
	require.Equal(t, Int(3), exec.Value)

	exec, err = Run("x = 10; x = x * 2;\nx\n", Options{})
	require.NoError(t, err)
	require.Equal(t, Int(20), exec.Value)
}

func TestSandbox_Run_ControlFlow(t *testing.T) {
	src := `total = 0
for i in range(1, 11):
    if i % 2 == 0:
        total += i
total
`
	exec, err := Run(src, Options{})
	require.NoError(t, err)
	require.Equal(t, Int(30), exec.Value)
}

func TestSandbox_Run_WhileWithBreak(t *testing.T) {
	src := `n = 1
while True:
    n = n * 2
    if n > 100:
        break
n
`
	exec, err := Run(src, Options{})
	require.NoError(t, err)
	require.Equal(t, Int(128), exec.Value)
}

func TestSandbox_Run_FunctionDefinitionAndCall(t *testing.T) {
	src := `def describe(df):
    """Summarize the value column."""
    total = df["value"].sum()
    return "sum=" + str(total)
`
	exec, err := Run(src, Options{})
	require.NoError(t, err)
	require.True(t, exec.Defined("describe"))

	out, err := exec.Call("describe", &DataFrame{Frame: testFrame()})
	require.NoError(t, err)
	require.Equal(t, Str("sum=42"), out)
}

func TestSandbox_Run_CallPrintsToSharedStdout(t *testing.T) {
	src := `def announce(name):
    print("running", name)
    return name
`
	exec, err := Run(src, Options{})
	require.NoError(t, err)
	_, err = exec.Call("announce", Str("report"))
	require.NoError(t, err)
	require.Equal(t, "running report\n", exec.Stdout())
}

func TestSandbox_Run_DataFrameLocals(t *testing.T) {
	exec, err := Run("df.shape\n", Options{
		Locals: map[string]Value{"df": &DataFrame{Frame: testFrame()}},
	})
	require.NoError(t, err)
	require.Equal(t, &Tuple{Items: []Value{Int(3), Int(2)}}, exec.Value)
}

func TestSandbox_Run_SetIndexMutatesReceiver(t *testing.T) {
	f := testFrame()
	_, err := Run("df.set_index('name')\n", Options{
		Locals: map[string]Value{"df": &DataFrame{Frame: f}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"value"}, f.Columns)
}

func TestSandbox_Run_GroupBySum(t *testing.T) {
	f := frame.New([]string{"cat", "n"})
	f.Append(map[string]any{"cat": "a", "n": int64(1)})
	f.Append(map[string]any{"cat": "b", "n": int64(5)})
	f.Append(map[string]any{"cat": "a", "n": int64(2)})

	src := "result = df.groupby('cat').sum()\nresult\n"
	exec, err := Run(src, Options{
		Locals: map[string]Value{"df": &DataFrame{Frame: f}},
	})
	require.NoError(t, err)

	out, ok := exec.Value.(*DataFrame)
	require.True(t, ok)
	require.Equal(t, []string{"cat", "n"}, out.Frame.Columns)
	require.Len(t, out.Frame.Rows, 2)
	require.Equal(t, "a", out.Frame.Rows[0]["cat"])
	require.Equal(t, 3.0, out.Frame.Rows[0]["n"])
	require.Equal(t, "b", out.Frame.Rows[1]["cat"])
	require.Equal(t, 5.0, out.Frame.Rows[1]["n"])
}

func TestSandbox_Run_BooleanMaskFilter(t *testing.T) {
	src := "high = df[df['value'] > 9]\nlen(high)\n"
	exec, err := Run(src, Options{
		Locals: map[string]Value{"df": &DataFrame{Frame: testFrame()}},
	})
	require.NoError(t, err)
	require.Equal(t, Int(2), exec.Value)
}

func TestSandbox_Run_PandasConstructor(t *testing.T) {
	src := `import pandas as pd
df = pd.DataFrame({"x": [1, 2, 3], "y": ["a", "b", "c"]})
df.shape
`
	exec, err := Run(src, Options{})
	require.NoError(t, err)
	require.Equal(t, &Tuple{Items: []Value{Int(3), Int(2)}}, exec.Value)
}

func TestSandbox_Run_PlotlyExpressChart(t *testing.T) {
	src := `import plotly.express as px
fig = px.bar(df, x="name", y="value", title="Values by name")
fig
`
	exec, err := Run(src, Options{
		Locals: map[string]Value{"df": &DataFrame{Frame: testFrame()}},
	})
	require.NoError(t, err)

	chart, ok := exec.Value.(*Chart)
	require.True(t, ok)
	require.Equal(t, "bar", chart.Kind)
	require.Equal(t, "name", chart.X)
	require.Equal(t, "value", chart.Y)
	require.Equal(t, "Values by name", chart.Title)
	require.Equal(t, 3, chart.Data.Count())
}

func TestSandbox_Run_ChartRejectsUnknownColumn(t *testing.T) {
	src := "import plotly.express as px\npx.bar(df, x='missing', y='value')\n"
	_, err := Run(src, Options{
		Locals: map[string]Value{"df": &DataFrame{Frame: testFrame()}},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
}

func TestSandbox_Run_SortedWithLambdaKey(t *testing.T) {
	src := "words = ['bb', 'a', 'ccc']\nsorted(words, key=lambda w: len(w), reverse=True)\n"
	exec, err := Run(src, Options{})
	require.NoError(t, err)
	require.Equal(t, &List{Items: []Value{Str("ccc"), Str("bb"), Str("a")}}, exec.Value)
}

func TestSandbox_Run_RuntimeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "undefined name", src: "y = x + 1\n", want: "NameError: name 'x' is not defined"},
		{name: "division by zero", src: "1 / 0\n", want: "ZeroDivisionError"},
		{name: "bad operands", src: "'a' - 1\n", want: "TypeError"},
		{name: "missing dict key", src: "d = {'a': 1}\nd['b']\n", want: "KeyError: 'b'"},
		{name: "list index", src: "xs = [1]\nxs[5]\n", want: "IndexError"},
		{name: "missing column", src: "df['nope']\n", want: "KeyError: 'nope'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(tt.src, Options{
				Locals: map[string]Value{"df": &DataFrame{Frame: testFrame()}},
			})
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSandbox_Run_StepBudgetStopsRunawayLoop(t *testing.T) {
	_, err := Run("while True:\n    pass\n", Options{MaxSteps: 10_000})
	require.Error(t, err)
	require.Contains(t, err.Error(), "step budget")
}

func TestSandbox_Run_SyntaxErrorSurfaces(t *testing.T) {
	_, err := Run("def broken(:\n", Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "SyntaxError")
}

func TestSandbox_Run_CommentsAndBlankLines(t *testing.T) {
	src := `# compute the answer
x = 41

# add one
x + 1
`
	exec, err := Run(src, Options{})
	require.NoError(t, err)
	require.Equal(t, Int(42), exec.Value)
}
