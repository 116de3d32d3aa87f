package schema

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/answerlake/answerlake/pkg/frame"
	"github.com/answerlake/answerlake/pkg/warehouse"
)

// fakeConn returns datasets and tables in unsorted order to exercise the
// deterministic ordering guarantee.
type fakeConn struct{}

func (fakeConn) Kind() string { return "duckdb" }

func (fakeConn) DryRun(ctx context.Context, query string) ([]string, error) { return nil, nil }

func (fakeConn) Execute(ctx context.Context, query string) (*frame.Frame, error) {
	return frame.New(nil), nil
}

func (fakeConn) ListDatasets(ctx context.Context) ([]string, error) {
	return []string{"sales", "analytics"}, nil
}

func (fakeConn) ListTables(ctx context.Context, dataset string) ([]string, error) {
	if dataset == "analytics" {
		return []string{"events", "daily"}, nil
	}
	return []string{"orders"}, nil
}

func (fakeConn) GetSchema(ctx context.Context, dataset, table string) ([]warehouse.Column, error) {
	return []warehouse.Column{
		{Name: "id", Type: "BIGINT"},
		{Name: "label", Type: "VARCHAR", Nullable: true, Description: "display label"},
	}, nil
}

func (fakeConn) Close() error { return nil }

func TestSchema_SummarizeIsDeterministic(t *testing.T) {
	s := New(fakeConn{})

	first, err := s.Summarize(context.Background(), Options{IncludeTypes: true})
	require.NoError(t, err)
	second, err := s.Summarize(context.Background(), Options{IncludeTypes: true})
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("summaries differ between runs (-first +second):\n%s", diff)
	}
	require.Equal(t, first.Render(true), second.Render(true))

	// datasets and tables come back sorted regardless of connector order
	require.Equal(t, "analytics", first.Datasets[0].Name)
	require.Equal(t, "sales", first.Datasets[1].Name)
	require.Equal(t, "daily", first.Datasets[0].Tables[0].Name)
	require.Equal(t, "events", first.Datasets[0].Tables[1].Name)
}

func TestSchema_SummarizeFilters(t *testing.T) {
	s := New(fakeConn{})

	summary, err := s.Summarize(context.Background(), Options{
		IncludeTypes: true,
		Datasets:     []string{"analytics"},
		Tables:       []string{"events"},
	})
	require.NoError(t, err)
	require.Len(t, summary.Datasets, 1)
	require.Len(t, summary.Datasets[0].Tables, 1)
	require.Equal(t, "events", summary.Datasets[0].Tables[0].Name)
}

func TestSchema_Render(t *testing.T) {
	s := New(fakeConn{})
	summary, err := s.Summarize(context.Background(), Options{
		IncludeTypes: true,
		Datasets:     []string{"sales"},
	})
	require.NoError(t, err)

	rendered := summary.Render(true)
	require.Contains(t, rendered, "## Dataset: sales")
	require.Contains(t, rendered, "### Table: orders")
	require.Contains(t, rendered, "CREATE TABLE sales.orders (")
	require.Contains(t, rendered, "id BIGINT NOT NULL,")
	require.Contains(t, rendered, "label VARCHAR -- display label")

	// omitting types keeps only column names
	bare := summary.Render(false)
	require.NotContains(t, bare, "BIGINT")
	require.Contains(t, bare, "id,")
}

func TestSchema_HasColumn(t *testing.T) {
	s := New(fakeConn{})
	summary, err := s.Summarize(context.Background(), Options{})
	require.NoError(t, err)
	require.True(t, summary.HasColumn("label"))
	require.False(t, summary.HasColumn("missing"))
}
