package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/answerlake/answerlake/pkg/frame"
	"github.com/answerlake/answerlake/pkg/llm"
)

func question(q string) []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: q}}
}

func TestPipeline_SQLStage_RepairAfterValidationError(t *testing.T) {
	oracle := &mockOracle{sqlProposals: []llm.SQLProposal{
		{Description: "first try", Query: "SELECT nmae FROM sales"},
		{Description: "fixed", Query: "SELECT name, total FROM sales"},
	}}
	conn := newMockConnector()
	conn.dryRun = func(query string) ([]string, error) {
		if strings.Contains(query, "nmae") {
			return []string{`column "nmae" not found in table "sales"`}, nil
		}
		return nil, nil
	}

	stage := NewSQLStage(oracle, conn, clockwork.NewFakeClock(), nil)
	res, err := stage.Run(context.Background(), question("top items?"), "schema", Config{}, nil)
	require.NoError(t, err)

	require.True(t, res.Succeeded)
	require.Equal(t, 2, oracle.sqlCalls)
	require.Len(t, res.Attempts, 2)
	require.NotEmpty(t, res.Attempts[0].Errors)
	require.Equal(t, ErrorValidation, res.Attempts[0].Errors[0].Type)
	require.Empty(t, res.Attempts[1].Errors)
	require.Equal(t, 3, res.Frame.Count())
}

func TestPipeline_SQLStage_ExhaustsAfterExactlyMaxAttempts(t *testing.T) {
	oracle := &mockOracle{sqlProposals: []llm.SQLProposal{
		{Description: "always broken", Query: "SELECT broken FROM sales"},
	}}
	conn := newMockConnector()
	conn.dryRun = func(string) ([]string, error) {
		return []string{"syntax error near broken"}, nil
	}

	stage := NewSQLStage(oracle, conn, clockwork.NewFakeClock(), nil)
	res, err := stage.Run(context.Background(), question("?"), "schema", Config{MaxAttempts: 10}, nil)
	require.NoError(t, err)

	require.False(t, res.Succeeded)
	require.Nil(t, res.Terminal)
	require.Equal(t, 10, oracle.sqlCalls, "exactly max_attempts generation calls")
	require.Len(t, res.Attempts, 10)
	// last attempt's error text is preserved
	last := res.Attempts[9]
	require.NotEmpty(t, last.Errors)
	require.Contains(t, last.Errors[0].Value, "syntax error")
	require.Equal(t, "SELECT broken FROM sales", res.Query)
}

func TestPipeline_SQLStage_ContextLengthIsTerminal(t *testing.T) {
	oracle := &mockOracle{sqlErr: llm.ErrContextLength}
	stage := NewSQLStage(oracle, newMockConnector(), clockwork.NewFakeClock(), nil)

	res, err := stage.Run(context.Background(), question("?"), "schema", Config{}, nil)
	require.NoError(t, err)
	require.False(t, res.Succeeded)
	require.NotNil(t, res.Terminal)
	require.Equal(t, ErrorContextLength, res.Terminal.Type)
	require.Equal(t, 1, oracle.sqlCalls, "context length is not retried")
	require.Empty(t, res.Attempts)
}

func TestPipeline_SQLStage_AppliesLoweringToCandidates(t *testing.T) {
	oracle := &mockOracle{sqlProposals: []llm.SQLProposal{
		{Description: "filtered", Query: "SELECT * FROM sales WHERE name = 'Alpha'"},
	}}
	conn := newMockConnector()
	var validated string
	conn.dryRun = func(query string) ([]string, error) {
		validated = query
		return nil, nil
	}

	stage := NewSQLStage(oracle, conn, clockwork.NewFakeClock(), nil)
	res, err := stage.Run(context.Background(), question("?"), "schema", Config{}, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	require.Contains(t, validated, "WHERE LOWER(name) = LOWER('Alpha')")
	require.Equal(t, validated, res.Query)
	require.Equal(t, validated, res.Attempts[0].Outputs[0].Value)
}

func TestPipeline_SQLStage_EmptyResultTriggersRepair(t *testing.T) {
	oracle := &mockOracle{sqlProposals: []llm.SQLProposal{
		{Query: "SELECT name FROM sales WHERE 1 = 0"},
		{Query: "SELECT name FROM sales"},
	}}
	conn := newMockConnector()
	calls := 0
	conn.execute = func(string) (*frame.Frame, error) {
		calls++
		if calls == 1 {
			return frame.New([]string{"name"}), nil
		}
		return salesFrame(), nil
	}

	stage := NewSQLStage(oracle, conn, clockwork.NewFakeClock(), nil)
	res, err := stage.Run(context.Background(), question("?"), "schema", Config{}, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	require.Len(t, res.Attempts, 2)
	require.Equal(t, ErrorNoResult, res.Attempts[0].Errors[0].Type)
	require.Equal(t, "Query returned no results, please try again.", res.Attempts[0].Errors[0].Value)
}

func TestPipeline_SQLStage_AllowEmptyResults(t *testing.T) {
	oracle := &mockOracle{sqlProposals: []llm.SQLProposal{
		{Query: "SELECT name FROM sales WHERE 1 = 0"},
	}}
	conn := newMockConnector()
	conn.execute = func(string) (*frame.Frame, error) {
		return frame.New([]string{"name"}), nil
	}

	stage := NewSQLStage(oracle, conn, clockwork.NewFakeClock(), nil)
	res, err := stage.Run(context.Background(), question("?"), "schema", Config{AllowEmptyResults: true}, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	require.Equal(t, 1, oracle.sqlCalls)
	require.True(t, res.Frame.Empty())
}

func TestPipeline_SQLStage_AllNullRowsCountAsEmpty(t *testing.T) {
	oracle := &mockOracle{sqlProposals: []llm.SQLProposal{
		{Query: "SELECT name FROM sales"},
	}}
	conn := newMockConnector()
	conn.execute = func(string) (*frame.Frame, error) {
		f := frame.New([]string{"name", "total"})
		f.Append(map[string]any{"name": nil, "total": nil})
		return f, nil
	}

	stage := NewSQLStage(oracle, conn, clockwork.NewFakeClock(), nil)
	res, err := stage.Run(context.Background(), question("?"), "schema", Config{MaxAttempts: 2}, nil)
	require.NoError(t, err)
	require.False(t, res.Succeeded)
	require.Equal(t, ErrorNoResult, res.Attempts[0].Errors[0].Type)
}
