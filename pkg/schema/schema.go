// Package schema summarizes the queryable warehouse schema for use as model
// context. The summary is a pure read-through of the connector: no caching,
// no retries, and stable ordering so that identical warehouse state renders
// to byte-identical text.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/answerlake/answerlake/pkg/warehouse"
)

// ColumnSummary is one column of a summarized table.
type ColumnSummary struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Nullable    bool   `json:"nullable,omitempty"`
	Description string `json:"description,omitempty"`
}

// TableSummary is one table of a summarized dataset.
type TableSummary struct {
	Name    string          `json:"name"`
	Columns []ColumnSummary `json:"columns"`
}

// DatasetSummary groups the tables of one dataset.
type DatasetSummary struct {
	Name   string         `json:"name"`
	Tables []TableSummary `json:"tables"`
}

// Summary is the ordered description of everything the pipeline may query.
// It is built once per orchestration run and never mutated afterwards.
type Summary struct {
	Datasets []DatasetSummary `json:"datasets"`
}

// Options scope a summarization run.
type Options struct {
	// Datasets restricts the summary to these dataset names. Empty means all.
	Datasets []string
	// Tables restricts the summary to these table names. Empty means all.
	Tables []string
	// IncludeTypes controls whether column types appear in the rendering.
	IncludeTypes bool
}

// Summarizer reads schema information through a warehouse connector.
type Summarizer struct {
	conn warehouse.Connector
}

// New creates a Summarizer over the given connector.
func New(conn warehouse.Connector) *Summarizer {
	return &Summarizer{conn: conn}
}

// Summarize introspects the warehouse and builds an ordered summary.
// Connector errors propagate unchanged.
func (s *Summarizer) Summarize(ctx context.Context, opts Options) (*Summary, error) {
	datasets, err := s.conn.ListDatasets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	sort.Strings(datasets)

	summary := &Summary{}
	for _, ds := range datasets {
		if len(opts.Datasets) > 0 && !contains(opts.Datasets, ds) {
			continue
		}
		tables, err := s.conn.ListTables(ctx, ds)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables for %q: %w", ds, err)
		}
		sort.Strings(tables)

		dsSummary := DatasetSummary{Name: ds}
		for _, table := range tables {
			if len(opts.Tables) > 0 && !contains(opts.Tables, table) {
				continue
			}
			cols, err := s.conn.GetSchema(ctx, ds, table)
			if err != nil {
				return nil, fmt.Errorf("failed to get schema for %s.%s: %w", ds, table, err)
			}
			tSummary := TableSummary{Name: table}
			for _, col := range cols {
				tSummary.Columns = append(tSummary.Columns, ColumnSummary{
					Name:        col.Name,
					Type:        col.Type,
					Nullable:    col.Nullable,
					Description: col.Description,
				})
			}
			dsSummary.Tables = append(dsSummary.Tables, tSummary)
		}
		if len(dsSummary.Tables) > 0 {
			summary.Datasets = append(summary.Datasets, dsSummary)
		}
	}
	return summary, nil
}

// HasColumn reports whether any summarized table has the named column.
func (s *Summary) HasColumn(name string) bool {
	for _, ds := range s.Datasets {
		for _, t := range ds.Tables {
			for _, c := range t.Columns {
				if c.Name == name {
					return true
				}
			}
		}
	}
	return false
}

// Render produces the textual form embedded in the model prompt: a markdown
// header per dataset and table, each table rendered as a CREATE TABLE
// statement with column descriptions as trailing comments.
func (s *Summary) Render(includeTypes bool) string {
	var sb strings.Builder
	for _, ds := range s.Datasets {
		fmt.Fprintf(&sb, "## Dataset: %s\n\n", ds.Name)
		for _, t := range ds.Tables {
			fmt.Fprintf(&sb, "### Table: %s\n\n", t.Name)
			fmt.Fprintf(&sb, "```sql\nCREATE TABLE %s.%s (\n", ds.Name, t.Name)
			for i, col := range t.Columns {
				sb.WriteString("    " + col.Name)
				if includeTypes && col.Type != "" {
					sb.WriteString(" " + col.Type)
					if !col.Nullable {
						sb.WriteString(" NOT NULL")
					}
				}
				if i < len(t.Columns)-1 {
					sb.WriteString(",")
				}
				if col.Description != "" {
					sb.WriteString(" -- " + col.Description)
				}
				sb.WriteString("\n")
			}
			sb.WriteString(");\n```\n\n")
		}
	}
	return sb.String()
}

func contains(xs []string, x string) bool {
	for _, e := range xs {
		if e == x {
			return true
		}
	}
	return false
}
