package warehouse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "datasources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestWarehouse_LoadConfig(t *testing.T) {
	path := writeConfig(t, `
datasources:
  - name: local
    kind: duckdb
    dsn: warehouse.db
  - name: events
    kind: clickhouse
    addr: localhost:9000
    database: analytics
    username: reader
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Datasources, 2)

	ds, ok := cfg.Datasource("events")
	require.True(t, ok)
	require.Equal(t, "clickhouse", ds.Kind)
	require.Equal(t, "analytics", ds.Database)

	_, ok = cfg.Datasource("missing")
	require.False(t, ok)
}

func TestWarehouse_LoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{
			name:    "unsupported kind",
			content: "datasources:\n  - name: legacy\n    kind: oracle\n",
			errText: `data source not supported: "oracle"`,
		},
		{
			name:    "duplicate name",
			content: "datasources:\n  - name: a\n    kind: duckdb\n  - name: a\n    kind: duckdb\n",
			errText: `duplicate datasource name "a"`,
		},
		{
			name:    "empty name",
			content: "datasources:\n  - kind: duckdb\n",
			errText: "empty name",
		},
		{
			name:    "no datasources",
			content: "datasources: []\n",
			errText: "defines no datasources",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestWarehouse_SupportedKind(t *testing.T) {
	require.True(t, SupportedKind("duckdb"))
	require.True(t, SupportedKind("ClickHouse"))
	require.False(t, SupportedKind("bigquery"))
	require.False(t, SupportedKind(""))
}
