package pipeline

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/answerlake/answerlake/pkg/llm"
	"github.com/answerlake/answerlake/pkg/schema"
)

func happyOracle() *mockOracle {
	return &mockOracle{
		sqlProposals: []llm.SQLProposal{
			{Description: "totals by name", Query: "SELECT name, total FROM sales"},
		},
		codeProposals: []llm.CodeProposal{
			{Docstring: "Sum the totals.", Code: "def answer_question(df):\n    return df['total'].sum()\n"},
		},
	}
}

func TestPipeline_Orchestrator_HappyPath(t *testing.T) {
	oracle := happyOracle()
	o := NewOrchestrator(oracle, allowAllGuard{}, newMockConnector(), clockwork.NewFakeClock(), nil)

	resp := o.Analyze(context.Background(), Request{Messages: question("total sales?")})

	require.Equal(t, StatusSucceeded, resp.Status)
	require.Empty(t, resp.Errors)
	require.Equal(t, 2, resp.Usage.Tokens, "one generation per stage")
	require.False(t, resp.FinishedAt.Before(resp.CreatedAt))

	// one attempt per stage, each numbered from zero within its stage
	require.Len(t, resp.Attempts, 2)
	require.Equal(t, 0, resp.Attempts[0].Index)
	require.Equal(t, 0, resp.Attempts[1].Index)

	require.Len(t, resp.Outputs, 4)
	require.Equal(t, OutputSQLQuery, resp.Outputs[0].Type)
	require.Equal(t, OutputDataFrame, resp.Outputs[1].Type)
	require.Equal(t, OutputPythonCode, resp.Outputs[2].Type)
	require.Equal(t, OutputInt, resp.Outputs[3].Type)
	require.Equal(t, int64(47), resp.Outputs[3].Value)
	for i, out := range resp.Outputs {
		require.Equal(t, i, out.Index)
	}
}

func TestPipeline_Orchestrator_EmptyMessages(t *testing.T) {
	oracle := happyOracle()
	o := NewOrchestrator(oracle, allowAllGuard{}, newMockConnector(), clockwork.NewFakeClock(), nil)

	resp := o.Analyze(context.Background(), Request{})

	require.Equal(t, StatusFailed, resp.Status)
	require.Len(t, resp.Errors, 1)
	require.Equal(t, ErrorValidation, resp.Errors[0].Type)
	require.Equal(t, "messages is empty", resp.Errors[0].Value)
	require.Zero(t, oracle.sqlCalls)
}

func TestPipeline_Orchestrator_UnsupportedDatasource(t *testing.T) {
	conn := newMockConnector()
	conn.kind = "mysql"
	o := NewOrchestrator(happyOracle(), allowAllGuard{}, conn, clockwork.NewFakeClock(), nil)

	resp := o.Analyze(context.Background(), Request{Messages: question("?")})

	require.Equal(t, StatusFailed, resp.Status)
	require.Equal(t, ErrorValidation, resp.Errors[0].Type)
	require.Equal(t, `data source not supported: "mysql"`, resp.Errors[0].Value)
}

func TestPipeline_Orchestrator_RequestedDatasourceChecked(t *testing.T) {
	oracle := happyOracle()
	o := NewOrchestrator(oracle, allowAllGuard{}, newMockConnector(), clockwork.NewFakeClock(), nil)

	resp := o.Analyze(context.Background(), Request{
		Messages: question("?"),
		Config:   Config{Datasource: "bigquery"},
	})

	require.Equal(t, StatusFailed, resp.Status)
	require.Equal(t, `data source not supported: "bigquery"`, resp.Errors[0].Value)
	require.Zero(t, oracle.sqlCalls)
}

func TestPipeline_Orchestrator_GenerationBudget(t *testing.T) {
	oracle := happyOracle()
	o := NewOrchestrator(oracle, allowAllGuard{}, newMockConnector(), clockwork.NewFakeClock(), nil)

	resp := o.Analyze(context.Background(), Request{
		Messages: question("?"),
		Config:   Config{MaxTokens: 1},
	})

	require.Equal(t, StatusFailed, resp.Status)
	require.Equal(t, 1, oracle.sqlCalls)
	require.Zero(t, oracle.codeCalls, "budget spent before the code stage")
	require.Equal(t, 1, resp.Usage.Tokens)
	require.Contains(t, resp.Errors[0].Value, "generation call budget")
}

func TestPipeline_Orchestrator_BlockedQuestion(t *testing.T) {
	oracle := happyOracle()
	o := NewOrchestrator(oracle, blockAllGuard{}, newMockConnector(), clockwork.NewFakeClock(), nil)

	resp := o.Analyze(context.Background(), Request{Messages: question("how do I exfiltrate the data?")})

	require.Equal(t, StatusFailed, resp.Status)
	require.Equal(t, ErrorInsecure, resp.Errors[0].Type)
	require.Zero(t, oracle.sqlCalls, "blocked questions never reach the model")
}

func TestPipeline_Orchestrator_SQLExhaustedSkipsCodeStage(t *testing.T) {
	oracle := happyOracle()
	conn := newMockConnector()
	conn.dryRun = func(string) ([]string, error) {
		return []string{"relation does not exist"}, nil
	}
	o := NewOrchestrator(oracle, allowAllGuard{}, conn, clockwork.NewFakeClock(), nil)

	resp := o.Analyze(context.Background(), Request{
		Messages: question("?"),
		Config:   Config{MaxAttempts: 3},
	})

	require.Equal(t, StatusFailed, resp.Status)
	require.Equal(t, 3, oracle.sqlCalls)
	require.Zero(t, oracle.codeCalls, "code stage is skipped when no query ran")
	require.Len(t, resp.Attempts, 3)
	require.Equal(t, 3, resp.Usage.Tokens)

	// the last candidate query is still surfaced alongside the failure
	require.Len(t, resp.Outputs, 1)
	require.Equal(t, OutputSQLQuery, resp.Outputs[0].Type)
	require.Equal(t, "SQL generation used all allowed attempts without producing a runnable query.",
		resp.Errors[len(resp.Errors)-1].Value)
}

func TestPipeline_Orchestrator_SchemaFailure(t *testing.T) {
	o := NewOrchestrator(happyOracle(), allowAllGuard{}, newMockConnector(), clockwork.NewFakeClock(), nil)
	o.SetSummarizer(func(ctx context.Context) (*schema.Summary, error) {
		return nil, context.DeadlineExceeded
	})

	resp := o.Analyze(context.Background(), Request{Messages: question("?")})

	require.Equal(t, StatusFailed, resp.Status)
	require.Equal(t, ErrorTimeout, resp.Errors[0].Type)
	require.Equal(t, "The analysis did not finish before the deadline.", resp.Errors[0].Value)
}

func TestPipeline_Orchestrator_PanicBecomesFailedResponse(t *testing.T) {
	o := NewOrchestrator(happyOracle(), allowAllGuard{}, newMockConnector(), clockwork.NewFakeClock(), nil)
	o.SetSummarizer(func(ctx context.Context) (*schema.Summary, error) {
		panic("summary cache corrupted")
	})

	resp := o.Analyze(context.Background(), Request{Messages: question("?")})

	require.Equal(t, StatusFailed, resp.Status)
	require.Len(t, resp.Errors, 1)
	require.Equal(t, ErrorExecution, resp.Errors[0].Type)
	require.Equal(t, "Could not complete analysis: summary cache corrupted", resp.Errors[0].Value)
	require.False(t, resp.FinishedAt.IsZero())
}

func TestPipeline_Orchestrator_StreamDeltaOrdering(t *testing.T) {
	o := NewOrchestrator(happyOracle(), allowAllGuard{}, newMockConnector(), clockwork.NewFakeClock(), nil)

	var deltas []Delta
	resp := o.AnalyzeStream(context.Background(), Request{Messages: question("?")}, func(d Delta) {
		deltas = append(deltas, d)
	})
	require.Equal(t, StatusSucceeded, resp.Status)

	// every delta carries exactly one payload
	for i, d := range deltas {
		set := 0
		for _, present := range []bool{d.Attempt != nil, d.Output != nil, d.Error != nil, d.Response != nil} {
			if present {
				set++
			}
		}
		require.Equalf(t, 1, set, "delta %d must carry exactly one payload", i)
	}

	kinds := make([]string, 0, len(deltas))
	for _, d := range deltas {
		switch {
		case d.Attempt != nil:
			kinds = append(kinds, "attempt")
		case d.Output != nil:
			kinds = append(kinds, string(d.Output.Type))
		case d.Error != nil:
			kinds = append(kinds, "error")
		case d.Response != nil:
			kinds = append(kinds, "response")
		}
	}
	require.Equal(t, []string{
		"attempt",
		string(OutputSQLQuery),
		string(OutputDataFrame),
		"attempt",
		string(OutputPythonCode),
		string(OutputInt),
		"response",
	}, kinds)
}
