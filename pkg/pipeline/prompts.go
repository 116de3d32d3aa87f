package pipeline

import (
	"fmt"
	"strings"
)

const sqlGuardrails = `Rules:
- Generate a single SELECT statement. Never generate INSERT, UPDATE, DELETE, DROP, ALTER, CREATE or any other statement that modifies data or schema.
- Only reference tables and columns that appear in the schema below.
- String comparisons must be case-insensitive; prefer equality forms that tolerate casing differences.
- When the question implies a time range but does not state one, default to the most recent 90 days.
- Add a LIMIT clause (at most 1000 rows) to any query that could return a large result set.
- Aggregate and order results so the answer is directly readable.`

func sqlSystemPrompt(schemaSummary string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert analytics engineer. Given a question about the data warehouse described below, produce a SQL query that answers it, together with a one-sentence description of what the query does.\n\n")
	sb.WriteString(sqlGuardrails)
	sb.WriteString("\n\n# Warehouse schema\n\n")
	sb.WriteString(schemaSummary)
	return sb.String()
}

func sqlRepairMessage(errs []Error) string {
	var sb strings.Builder
	sb.WriteString("The query failed:\n")
	for _, e := range errs {
		fmt.Fprintf(&sb, "- %s\n", e.Value)
	}
	sb.WriteString("Provide a corrected query that fixes these errors.")
	return sb.String()
}

const codePreamble = `Allowed imports (nothing else can be imported):
- pandas (as pd)
- plotly.express (as px)
- math
- statistics

The code runs in a restricted interpreter. Do not use file, network or
process facilities; do not access names or attributes beginning with an
underscore; do not use comprehensions (write explicit loops).`

func codeSystemPrompt(resultSchema string, outputType OutputType) string {
	var sb strings.Builder
	sb.WriteString("You are an expert data analyst. Write analysis code that answers the user's question using the query result bound to the variable `df`.\n\n")
	sb.WriteString("The code must define a function named `answer_question(df)` that returns the answer.\n")
	switch outputType {
	case OutputAny, "":
		sb.WriteString("The return value must be an int, float, string, bool, DataFrame, or plotly figure.\n")
	case OutputChart:
		sb.WriteString("The return value must be a plotly figure built with plotly.express.\n")
	case OutputDataFrame:
		sb.WriteString("The return value must be a DataFrame.\n")
	default:
		fmt.Fprintf(&sb, "The return value must be of type %s.\n", outputType)
	}
	sb.WriteString("\n")
	sb.WriteString(codePreamble)
	sb.WriteString("\n\n# Query result\n\n")
	sb.WriteString(resultSchema)
	return sb.String()
}

func codeRepairMessage(errs []Error) string {
	var sb strings.Builder
	sb.WriteString("The code failed:\n")
	for _, e := range errs {
		fmt.Fprintf(&sb, "- %s\n", e.Value)
	}
	sb.WriteString("Provide corrected code that fixes these errors.")
	return sb.String()
}
