package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/answerlake/answerlake/pkg/frame"
)

// DuckDB is a Connector backed by an embedded DuckDB database.
type DuckDB struct {
	log *slog.Logger
	db  *sql.DB
}

// NewDuckDB opens a DuckDB database. An empty dsn opens an in-memory
// database.
func NewDuckDB(ctx context.Context, log *slog.Logger, dsn string) (*DuckDB, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}
	if log != nil {
		log.Info("duckdb connector initialized", "dsn", dsn)
	}
	return &DuckDB{log: log, db: db}, nil
}

// NewDuckDBFromDB wraps an existing database handle. Used by tests.
func NewDuckDBFromDB(log *slog.Logger, db *sql.DB) *DuckDB {
	return &DuckDB{log: log, db: db}
}

func (d *DuckDB) Kind() string { return "duckdb" }

// DryRun validates a query via EXPLAIN. Planner and binder errors come back
// as validation messages rather than a connector error.
func (d *DuckDB) DryRun(ctx context.Context, query string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "EXPLAIN "+stripTrailingSemicolon(query))
	if err != nil {
		return []string{err.Error()}, nil
	}
	defer rows.Close()
	// Drain the plan; a failed plan surfaces through rows.Err.
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return []string{err.Error()}, nil
	}
	return nil, nil
}

func (d *DuckDB) Execute(ctx context.Context, query string) (*frame.Frame, error) {
	rows, err := d.db.QueryContext(ctx, stripTrailingSemicolon(query))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (d *DuckDB) ListDatasets(ctx context.Context) ([]string, error) {
	const q = `SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema', 'pg_catalog')
		ORDER BY schema_name`
	return scanStrings(ctx, d.db, q)
}

func (d *DuckDB) ListTables(ctx context.Context, dataset string) ([]string, error) {
	const q = `SELECT table_name FROM information_schema.tables
		WHERE table_schema = ? ORDER BY table_name`
	return scanStrings(ctx, d.db, q, dataset)
}

func (d *DuckDB) GetSchema(ctx context.Context, dataset, table string) ([]Column, error) {
	const q = `SELECT column_name, data_type, is_nullable FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position`
	rows, err := d.db.QueryContext(ctx, q, dataset, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var name, typ, nullable string
		if err := rows.Scan(&name, &typ, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan column row: %w", err)
		}
		cols = append(cols, Column{
			Name:     name,
			Type:     typ,
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return cols, nil
}

func (d *DuckDB) Close() error { return d.db.Close() }

func stripTrailingSemicolon(query string) string {
	return strings.TrimSuffix(strings.TrimSpace(query), ";")
}

// scanRows converts a database/sql result set into a frame, normalizing
// []byte values to strings.
func scanRows(rows *sql.Rows) (*frame.Frame, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	f := frame.New(columns)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			default:
				row[col] = values[i]
			}
		}
		f.Append(row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return f, nil
}

func scanStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
