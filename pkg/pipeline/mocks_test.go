package pipeline

import (
	"context"
	"errors"

	"github.com/answerlake/answerlake/pkg/frame"
	"github.com/answerlake/answerlake/pkg/llm"
	"github.com/answerlake/answerlake/pkg/warehouse"
)

// mockOracle replays scripted proposals. When the script runs out the last
// entry repeats, which keeps exhaustion tests simple.
type mockOracle struct {
	sqlProposals  []llm.SQLProposal
	codeProposals []llm.CodeProposal
	sqlErr        error
	codeErr       error
	sqlCalls      int
	codeCalls     int
}

func (m *mockOracle) ProposeSQL(ctx context.Context, conversation []llm.Message) (*llm.SQLProposal, error) {
	m.sqlCalls++
	if m.sqlErr != nil {
		return nil, m.sqlErr
	}
	if len(m.sqlProposals) == 0 {
		return nil, errors.New("no scripted sql proposal")
	}
	i := m.sqlCalls - 1
	if i >= len(m.sqlProposals) {
		i = len(m.sqlProposals) - 1
	}
	p := m.sqlProposals[i]
	return &p, nil
}

func (m *mockOracle) ProposeCode(ctx context.Context, conversation []llm.Message) (*llm.CodeProposal, error) {
	m.codeCalls++
	if m.codeErr != nil {
		return nil, m.codeErr
	}
	if len(m.codeProposals) == 0 {
		return nil, errors.New("no scripted code proposal")
	}
	i := m.codeCalls - 1
	if i >= len(m.codeProposals) {
		i = len(m.codeProposals) - 1
	}
	p := m.codeProposals[i]
	return &p, nil
}

// mockConnector is an in-memory warehouse with scriptable dry-run and
// execute behavior.
type mockConnector struct {
	kind    string
	dryRun  func(query string) ([]string, error)
	execute func(query string) (*frame.Frame, error)
}

func newMockConnector() *mockConnector {
	return &mockConnector{
		kind:   "duckdb",
		dryRun: func(string) ([]string, error) { return nil, nil },
		execute: func(string) (*frame.Frame, error) {
			return salesFrame(), nil
		},
	}
}

func salesFrame() *frame.Frame {
	f := frame.New([]string{"name", "total"})
	f.Append(map[string]any{"name": "alpha", "total": int64(12)})
	f.Append(map[string]any{"name": "beta", "total": int64(30)})
	f.Append(map[string]any{"name": "gamma", "total": int64(5)})
	return f
}

func (c *mockConnector) Kind() string { return c.kind }

func (c *mockConnector) DryRun(ctx context.Context, query string) ([]string, error) {
	return c.dryRun(query)
}

func (c *mockConnector) Execute(ctx context.Context, query string) (*frame.Frame, error) {
	return c.execute(query)
}

func (c *mockConnector) ListDatasets(ctx context.Context) ([]string, error) {
	return []string{"main"}, nil
}

func (c *mockConnector) ListTables(ctx context.Context, dataset string) ([]string, error) {
	return []string{"sales"}, nil
}

func (c *mockConnector) GetSchema(ctx context.Context, dataset, table string) ([]warehouse.Column, error) {
	return []warehouse.Column{
		{Name: "name", Type: "VARCHAR", Description: "item name"},
		{Name: "total", Type: "BIGINT"},
	}, nil
}

func (c *mockConnector) Close() error { return nil }

// allowAllGuard never blocks.
type allowAllGuard struct{}

func (allowAllGuard) IsBlocked(ctx context.Context, question string) bool { return false }

// blockAllGuard always blocks.
type blockAllGuard struct{}

func (blockAllGuard) IsBlocked(ctx context.Context, question string) bool { return true }
