package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/answerlake/answerlake/pkg/frame"
)

// ClickHouse is a Connector backed by the ClickHouse native protocol.
type ClickHouse struct {
	log      *slog.Logger
	conn     driver.Conn
	database string
}

// NewClickHouse opens a ClickHouse connection.
func NewClickHouse(ctx context.Context, log *slog.Logger, addr, database, username, password string) (*ClickHouse, error) {
	if database == "" {
		database = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
			"readonly":           1,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if log != nil {
		log.Info("clickhouse connector initialized", "addr", addr, "database", database)
	}
	return &ClickHouse{log: log, conn: conn, database: database}, nil
}

func (c *ClickHouse) Kind() string { return "clickhouse" }

// DryRun validates a query via EXPLAIN SYNTAX. Analyzer errors come back as
// validation messages.
func (c *ClickHouse) DryRun(ctx context.Context, query string) ([]string, error) {
	rows, err := c.conn.Query(ctx, "EXPLAIN SYNTAX "+stripTrailingSemicolon(query))
	if err != nil {
		return []string{err.Error()}, nil
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return []string{err.Error()}, nil
	}
	return nil, nil
}

func (c *ClickHouse) Execute(ctx context.Context, query string) (*frame.Frame, error) {
	rows, err := c.conn.Query(ctx, stripTrailingSemicolon(query))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns := rows.Columns()
	types := rows.ColumnTypes()
	f := frame.New(columns)
	for rows.Next() {
		dests := make([]any, len(columns))
		for i := range dests {
			dests[i] = reflect.New(types[i].ScanType()).Interface()
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeClickHouseValue(reflect.ValueOf(dests[i]).Elem().Interface())
		}
		f.Append(row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return f, nil
}

func (c *ClickHouse) ListDatasets(ctx context.Context) ([]string, error) {
	// The connection is scoped to a single database; ClickHouse has no
	// schema level below it.
	return []string{c.database}, nil
}

func (c *ClickHouse) ListTables(ctx context.Context, dataset string) ([]string, error) {
	rows, err := c.conn.Query(ctx,
		`SELECT name FROM system.tables WHERE database = ? ORDER BY name`, dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return out, nil
}

func (c *ClickHouse) GetSchema(ctx context.Context, dataset, table string) ([]Column, error) {
	rows, err := c.conn.Query(ctx,
		`SELECT name, type, comment FROM system.columns
		 WHERE database = ? AND table = ? ORDER BY position`, dataset, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var name, typ, comment string
		if err := rows.Scan(&name, &typ, &comment); err != nil {
			return nil, fmt.Errorf("failed to scan column row: %w", err)
		}
		cols = append(cols, Column{
			Name:        name,
			Type:        typ,
			Nullable:    isNullableClickHouseType(typ),
			Description: comment,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return cols, nil
}

func (c *ClickHouse) Close() error { return c.conn.Close() }

func isNullableClickHouseType(typ string) bool {
	return len(typ) > 9 && typ[:9] == "Nullable("
}

// normalizeClickHouseValue flattens pointer scan targets from Nullable
// columns and converts times to their string form.
func normalizeClickHouseValue(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return normalizeClickHouseValue(rv.Elem().Interface())
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return v
}
