package pipeline

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/answerlake/answerlake/pkg/frame"
	"github.com/answerlake/answerlake/pkg/llm"
)

func codeProposal(code string) llm.CodeProposal {
	return llm.CodeProposal{Docstring: "Analyze the result.", Code: code}
}

func TestPipeline_CodeStage_TypedAnswer(t *testing.T) {
	oracle := &mockOracle{codeProposals: []llm.CodeProposal{
		codeProposal("def answer_question(df):\n    return 1 + 1\n"),
	}}
	stage := NewCodeStage(oracle, clockwork.NewFakeClock(), nil)

	res, err := stage.Run(context.Background(), question("?"), salesFrame(), Config{}, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	require.Equal(t, 1, oracle.codeCalls)

	// code text, then the typed answer; nothing was printed
	require.Len(t, res.Outputs, 2)
	require.Equal(t, OutputPythonCode, res.Outputs[0].Type)
	require.Equal(t, OutputInt, res.Outputs[1].Type)
	require.Equal(t, int64(2), res.Outputs[1].Value)
}

func TestPipeline_CodeStage_CapturedStdout(t *testing.T) {
	oracle := &mockOracle{codeProposals: []llm.CodeProposal{
		codeProposal("def answer_question(df):\n    print(\"Hello World!\")\n    return 'done'\n"),
	}}
	stage := NewCodeStage(oracle, clockwork.NewFakeClock(), nil)

	res, err := stage.Run(context.Background(), question("?"), salesFrame(), Config{}, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	require.Len(t, res.Outputs, 3)
	require.Equal(t, OutputPythonOutput, res.Outputs[1].Type)
	require.Equal(t, "Hello World!", res.Outputs[1].Value)
	require.Equal(t, OutputString, res.Outputs[2].Type)
	require.Equal(t, "done", res.Outputs[2].Value)
}

func TestPipeline_CodeStage_InsecureImportRejected(t *testing.T) {
	oracle := &mockOracle{codeProposals: []llm.CodeProposal{
		codeProposal("import os\n\ndef answer_question(df):\n    return 1\n"),
		codeProposal("def answer_question(df):\n    return 1\n"),
	}}
	stage := NewCodeStage(oracle, clockwork.NewFakeClock(), nil)

	res, err := stage.Run(context.Background(), question("?"), salesFrame(), Config{}, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	require.Len(t, res.Attempts, 2)

	first := res.Attempts[0]
	require.Len(t, first.Errors, 1)
	require.Equal(t, ErrorInsecure, first.Errors[0].Type)
	require.Equal(t, "Importing 'os' is not allowed", first.Errors[0].Value)
	// verification runs before execution, so nothing beyond the code text
	// is recorded for the rejected attempt
	require.Len(t, first.Outputs, 1)
	require.Equal(t, OutputPythonCode, first.Outputs[0].Type)
}

func TestPipeline_CodeStage_UnacceptedResultType(t *testing.T) {
	oracle := &mockOracle{codeProposals: []llm.CodeProposal{
		codeProposal("def answer_question(df):\n    return [1, 2]\n"),
	}}
	stage := NewCodeStage(oracle, clockwork.NewFakeClock(), nil)

	res, err := stage.Run(context.Background(), question("?"), salesFrame(), Config{MaxAttempts: 1}, nil)
	require.NoError(t, err)
	require.False(t, res.Succeeded)
	require.Len(t, res.Attempts, 1)
	require.Equal(t, ErrorExecution, res.Attempts[0].Errors[0].Type)
	require.Contains(t, res.Attempts[0].Errors[0].Value, "returned value of type 'list' is not an accepted result type")
}

func TestPipeline_CodeStage_RequestedOutputTypeMismatch(t *testing.T) {
	oracle := &mockOracle{codeProposals: []llm.CodeProposal{
		codeProposal("def answer_question(df):\n    return 5\n"),
		codeProposal("def answer_question(df):\n    return 'five'\n"),
	}}
	stage := NewCodeStage(oracle, clockwork.NewFakeClock(), nil)

	res, err := stage.Run(context.Background(), question("?"), salesFrame(), Config{OutputType: OutputString}, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	require.Len(t, res.Attempts, 2)
	require.Contains(t, res.Attempts[0].Errors[0].Value,
		"returned value of type 'int' does not match the requested output type 'string'")
	require.Equal(t, "five", res.Outputs[1].Value)
}

func TestPipeline_CodeStage_FreshCopyPerAttempt(t *testing.T) {
	// the first attempt mutates its input in place and then fails; the
	// second attempt must still see the original two columns
	oracle := &mockOracle{codeProposals: []llm.CodeProposal{
		codeProposal("df.set_index('name')\n\ndef answer_question(df):\n    return [1]\n"),
		codeProposal("def answer_question(df):\n    return len(df.columns)\n"),
	}}
	stage := NewCodeStage(oracle, clockwork.NewFakeClock(), nil)

	data := salesFrame()
	res, err := stage.Run(context.Background(), question("?"), data, Config{}, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	require.Equal(t, int64(2), res.Outputs[1].Value)
	require.Equal(t, []string{"name", "total"}, data.Columns)
}

func TestPipeline_CodeStage_MissingAnswerFunction(t *testing.T) {
	oracle := &mockOracle{codeProposals: []llm.CodeProposal{
		codeProposal("x = 1\n"),
		codeProposal("def answer_question(df):\n    return True\n"),
	}}
	stage := NewCodeStage(oracle, clockwork.NewFakeClock(), nil)

	res, err := stage.Run(context.Background(), question("?"), salesFrame(), Config{}, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	require.Equal(t, "Code does not define a function named 'answer_question'.",
		res.Attempts[0].Errors[0].Value)
	require.Equal(t, OutputBool, res.Outputs[1].Type)
	require.Equal(t, true, res.Outputs[1].Value)
}

func TestPipeline_CodeStage_DataFrameAnswer(t *testing.T) {
	oracle := &mockOracle{codeProposals: []llm.CodeProposal{
		codeProposal("def answer_question(df):\n    return df.sort_values(by='total', ascending=False).head(2)\n"),
	}}
	stage := NewCodeStage(oracle, clockwork.NewFakeClock(), nil)

	res, err := stage.Run(context.Background(), question("?"), salesFrame(), Config{OutputType: OutputDataFrame}, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	require.Equal(t, OutputDataFrame, res.Outputs[1].Type)
	out, ok := res.Outputs[1].Value.(*frame.Frame)
	require.True(t, ok)
	require.Equal(t, 2, out.Count())
	require.Equal(t, "beta", out.Rows[0]["name"])
}

func TestPipeline_CodeStage_ContextLengthIsTerminal(t *testing.T) {
	oracle := &mockOracle{codeErr: llm.ErrContextLength}
	stage := NewCodeStage(oracle, clockwork.NewFakeClock(), nil)

	res, err := stage.Run(context.Background(), question("?"), salesFrame(), Config{}, nil)
	require.NoError(t, err)
	require.False(t, res.Succeeded)
	require.NotNil(t, res.Terminal)
	require.Equal(t, ErrorContextLength, res.Terminal.Type)
	require.Equal(t, 1, oracle.codeCalls)
}
