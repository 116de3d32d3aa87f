// Package warehouse provides connectors to the analytics warehouses the
// pipeline can query. A Connector is a long-lived, shared handle; the
// pipeline only reads through it (SELECT-only by prompt guardrail).
package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/answerlake/answerlake/pkg/frame"
)

// Column describes one column of a warehouse table.
type Column struct {
	Name        string
	Type        string
	Nullable    bool
	Description string
}

// Connector is the warehouse interface the pipeline consumes.
type Connector interface {
	// Kind returns the connector kind, e.g. "duckdb" or "clickhouse".
	Kind() string

	// DryRun validates a query without executing it and returns any
	// validation error messages. An empty slice means the query is valid.
	DryRun(ctx context.Context, query string) ([]string, error)

	// Execute runs a query and returns the result set.
	Execute(ctx context.Context, query string) (*frame.Frame, error)

	// ListDatasets returns the queryable dataset (schema) names.
	ListDatasets(ctx context.Context) ([]string, error)

	// ListTables returns the table names within a dataset.
	ListTables(ctx context.Context, dataset string) ([]string, error)

	// GetSchema returns the columns of a table in ordinal position order.
	GetSchema(ctx context.Context, dataset, table string) ([]Column, error)

	Close() error
}

// DatasourceConfig describes one configured datasource.
type DatasourceConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	DSN      string `yaml:"dsn,omitempty"`
	Addr     string `yaml:"addr,omitempty"`
	Database string `yaml:"database,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Config is the top-level datasource configuration file.
type Config struct {
	Datasources []DatasourceConfig `yaml:"datasources"`
}

// LoadConfig reads and validates a YAML datasource configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read datasource config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse datasource config: %w", err)
	}
	if len(cfg.Datasources) == 0 {
		return nil, fmt.Errorf("datasource config %q defines no datasources", path)
	}
	seen := make(map[string]bool)
	for _, ds := range cfg.Datasources {
		if ds.Name == "" {
			return nil, fmt.Errorf("datasource with empty name in %q", path)
		}
		if seen[ds.Name] {
			return nil, fmt.Errorf("duplicate datasource name %q", ds.Name)
		}
		seen[ds.Name] = true
		if !SupportedKind(ds.Kind) {
			return nil, fmt.Errorf("datasource %q: data source not supported: %q", ds.Name, ds.Kind)
		}
	}
	return &cfg, nil
}

// Datasource returns the named datasource config.
func (c *Config) Datasource(name string) (DatasourceConfig, bool) {
	for _, ds := range c.Datasources {
		if ds.Name == name {
			return ds, true
		}
	}
	return DatasourceConfig{}, false
}

// SupportedKind reports whether the connector kind is supported.
func SupportedKind(kind string) bool {
	switch strings.ToLower(kind) {
	case "duckdb", "clickhouse":
		return true
	default:
		return false
	}
}

// Open constructs a connector for the datasource. Unsupported kinds are
// rejected with a "data source not supported" error.
func Open(ctx context.Context, log *slog.Logger, ds DatasourceConfig) (Connector, error) {
	switch strings.ToLower(ds.Kind) {
	case "duckdb":
		return NewDuckDB(ctx, log, ds.DSN)
	case "clickhouse":
		return NewClickHouse(ctx, log, ds.Addr, ds.Database, ds.Username, ds.Password)
	default:
		return nil, fmt.Errorf("data source not supported: %q", ds.Kind)
	}
}
