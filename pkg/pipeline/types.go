// Package pipeline implements the generate-validate-execute-repair loop
// that turns model completions into working SQL and analysis code. The SQL
// stage and the code stage share the attempt/output/error record shapes and
// the bounded-retry structure; the orchestrator sequences them and packages
// the externally visible response.
package pipeline

import (
	"time"
)

// OutputType classifies a single result unit on the wire.
type OutputType string

const (
	OutputSQLQuery     OutputType = "sql-query"
	OutputPythonCode   OutputType = "python-code"
	OutputPythonOutput OutputType = "python-output"
	OutputDataFrame    OutputType = "pandas-dataframe"
	OutputChart        OutputType = "plotly-chart"
	OutputInt          OutputType = "int"
	OutputFloat        OutputType = "float"
	OutputString       OutputType = "string"
	OutputBool         OutputType = "bool"

	// OutputAny accepts whatever type the analysis code returns.
	OutputAny OutputType = "any"
)

// ErrorType classifies a recorded failure.
type ErrorType string

const (
	ErrorValidation    ErrorType = "validation-error"
	ErrorExecution     ErrorType = "execution-error"
	ErrorNoResult      ErrorType = "no-result"
	ErrorContextLength ErrorType = "context-length"
	// ErrorInsecure covers both content-policy rejections and generated
	// code that violated the sandbox policy.
	ErrorInsecure ErrorType = "insecure-request"
	ErrorTimeout  ErrorType = "timeout"
)

// Output is one typed, described result unit.
type Output struct {
	Index       int        `json:"index"`
	CreatedAt   time.Time  `json:"created_at"`
	Description string     `json:"description,omitempty"`
	Type        OutputType `json:"type"`
	Value       any        `json:"value"`
}

// Error is one recorded failure.
type Error struct {
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"created_at"`
	Type      ErrorType `json:"type"`
	Value     string    `json:"value"`
}

// Attempt is one generate->validate->execute cycle within a stage.
type Attempt struct {
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"created_at"`
	Outputs   []Output  `json:"outputs"`
	Errors    []Error   `json:"errors"`
}

// Usage is the per-request accounting record. Tokens is a generation-call
// count, not a model token count.
type Usage struct {
	Tokens int `json:"tokens"`
}

// Status is the terminal state of a request.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Response is the assembled result of one orchestration run.
type Response struct {
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
	Attempts   []Attempt `json:"attempts"`
	Outputs    []Output  `json:"outputs"`
	Errors     []Error   `json:"errors"`
	Usage      Usage     `json:"usage"`
}

// Delta is one increment of a streaming response: an attempt as it
// completes, an output as it is produced, or the final response.
type Delta struct {
	Attempt  *Attempt  `json:"attempt,omitempty"`
	Output   *Output   `json:"output,omitempty"`
	Error    *Error    `json:"error,omitempty"`
	Response *Response `json:"response,omitempty"`
}

// DefaultMaxAttempts bounds each stage's repair loop.
const DefaultMaxAttempts = 10

// Config carries the per-run parameters. The zero value plus withDefaults
// is a usable configuration.
type Config struct {
	// MaxAttempts is the exact upper bound on generation calls per stage.
	MaxAttempts int `json:"max_attempts,omitempty"`
	// MaxOutputs caps the flattened outputs list; zero means unlimited.
	MaxOutputs int `json:"max_outputs,omitempty"`
	// MaxTokens caps total generation calls across both stages; zero
	// means the per-stage attempt bounds are the only limit.
	MaxTokens int `json:"max_tokens,omitempty"`
	// OutputType constrains the analysis result type; empty means any.
	OutputType OutputType `json:"output_type,omitempty"`
	// Stream selects incremental delivery.
	Stream bool `json:"stream,omitempty"`
	// AllowEmptyResults disables the empty-result repair trigger for
	// questions where zero rows is a legitimate answer.
	AllowEmptyResults bool `json:"allow_empty_results,omitempty"`
	// Datasource names the configured data source to query.
	Datasource string `json:"datasource,omitempty"`
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.OutputType == "" {
		c.OutputType = OutputAny
	}
	return c
}

// stage states
type stageState int

const (
	stateGenerating stageState = iota
	stateValidating
	stateExecuting
	stateSucceeded
	stateRepairing
	stateExhausted
)

func (s stageState) String() string {
	switch s {
	case stateGenerating:
		return "GENERATING"
	case stateValidating:
		return "VALIDATING"
	case stateExecuting:
		return "EXECUTING"
	case stateSucceeded:
		return "SUCCEEDED"
	case stateRepairing:
		return "REPAIRING"
	case stateExhausted:
		return "EXHAUSTED"
	}
	return "UNKNOWN"
}
