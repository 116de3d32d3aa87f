package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/answerlake/answerlake/pkg/llm"
	"github.com/answerlake/answerlake/pkg/schema"
	"github.com/answerlake/answerlake/pkg/warehouse"
)

// Orchestrator sequences schema summarization, the SQL stage and the code
// stage, and assembles the externally visible response. All handles are
// long-lived and shared; per-request state lives on the stack of Analyze.
type Orchestrator struct {
	oracle llm.Oracle
	guard  llm.Guard
	conn   warehouse.Connector
	kind   string
	clock  clockwork.Clock
	log    *slog.Logger

	sqlStage  *SQLStage
	codeStage *CodeStage

	summarize SummaryFunc
}

// SummaryFunc produces the schema summary for a request. The default
// re-reads the warehouse; servers may install a caching wrapper.
type SummaryFunc func(ctx context.Context) (*schema.Summary, error)

// NewOrchestrator wires the stages. kind is the connector's datasource
// kind, checked against the supported set per request. The logger may be
// nil.
func NewOrchestrator(oracle llm.Oracle, guard llm.Guard, conn warehouse.Connector, clock clockwork.Clock, log *slog.Logger) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	o := &Orchestrator{
		oracle:    oracle,
		guard:     guard,
		conn:      conn,
		kind:      conn.Kind(),
		clock:     clock,
		log:       log,
		sqlStage:  NewSQLStage(oracle, conn, clock, log),
		codeStage: NewCodeStage(oracle, clock, log),
	}
	o.summarize = func(ctx context.Context) (*schema.Summary, error) {
		return schema.New(o.conn).Summarize(ctx, schema.Options{IncludeTypes: true})
	}
	return o
}

// SetSummarizer replaces the schema summary source, typically with a
// caching wrapper. Must be called before the first request.
func (o *Orchestrator) SetSummarizer(fn SummaryFunc) {
	if fn != nil {
		o.summarize = fn
	}
}

// Request is one analysis question: a conversation whose last message is
// the user's question, plus the per-run configuration.
type Request struct {
	Messages []llm.Message `json:"messages"`
	Config   Config        `json:"config"`
}

// Analyze runs the full pipeline synchronously. Every failure mode yields
// a structured response; the method never panics outward.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) *Response {
	return o.run(ctx, req, nil)
}

// AnalyzeStream runs the pipeline, emitting a delta per attempt and per
// flattened output as they are produced. Deltas for the SQL stage complete
// before any code stage delta; within a stage they arrive in attempt-index
// order. The final response is both emitted as a delta and returned.
func (o *Orchestrator) AnalyzeStream(ctx context.Context, req Request, emit func(Delta)) *Response {
	resp := o.run(ctx, req, emit)
	if emit != nil {
		emit(Delta{Response: resp})
	}
	return resp
}

func (o *Orchestrator) run(ctx context.Context, req Request, emit func(Delta)) (resp *Response) {
	cfg := req.Config.withDefaults()
	resp = &Response{
		Status:    StatusFailed,
		CreatedAt: o.clock.Now().UTC(),
		Attempts:  []Attempt{},
		Outputs:   []Output{},
		Errors:    []Error{},
	}
	finish := func() *Response {
		resp.FinishedAt = o.clock.Now().UTC()
		if cfg.MaxOutputs > 0 && len(resp.Outputs) > cfg.MaxOutputs {
			resp.Outputs = resp.Outputs[:cfg.MaxOutputs]
		}
		reindex(resp)
		return resp
	}

	// a generation bug must surface as a failed response, not a crash
	defer func() {
		if r := recover(); r != nil {
			if o.log != nil {
				o.log.Error("analysis panicked", "panic", fmt.Sprint(r))
			}
			o.appendError(resp, emit, ErrorExecution, fmt.Sprintf("Could not complete analysis: %v", r))
			resp = finish()
		}
	}()

	// preconditions
	if len(req.Messages) == 0 {
		o.appendError(resp, emit, ErrorValidation, "messages is empty")
		return finish()
	}
	question := req.Messages[len(req.Messages)-1].Content
	requested := cfg.Datasource
	if requested == "" {
		requested = o.kind
	}
	if !warehouse.SupportedKind(requested) {
		o.appendError(resp, emit, ErrorValidation, fmt.Sprintf("data source not supported: %q", requested))
		return finish()
	}
	if o.guard != nil && o.guard.IsBlocked(ctx, question) {
		o.appendError(resp, emit, ErrorInsecure, "The question was blocked by the content policy.")
		return finish()
	}

	// schema summary
	summary, err := o.summarize(ctx)
	if err != nil {
		o.recordFailure(resp, emit, err, "Could not read the warehouse schema")
		return finish()
	}

	// SQL stage
	sqlRes, err := o.sqlStage.Run(ctx, req.Messages, summary.Render(true), stageConfig(cfg, 0), emit)
	o.mergeAttempts(resp, sqlRes.Attempts)
	resp.Usage.Tokens += sqlRes.Generations
	if err != nil {
		o.recordFailure(resp, emit, err, "Could not complete analysis")
		return finish()
	}
	if sqlRes.Terminal != nil {
		o.appendRecordedError(resp, emit, *sqlRes.Terminal)
		return finish()
	}
	if !sqlRes.Succeeded {
		// exhausted: package the failed attempts, skip the code stage
		o.appendOutput(resp, emit, Output{
			Description: sqlRes.Description,
			Type:        OutputSQLQuery,
			Value:       sqlRes.Query,
		})
		o.appendError(resp, emit, ErrorExecution, "SQL generation used all allowed attempts without producing a runnable query.")
		return finish()
	}

	o.appendOutput(resp, emit, Output{
		Description: sqlRes.Description,
		Type:        OutputSQLQuery,
		Value:       sqlRes.Query,
	})
	o.appendOutput(resp, emit, Output{
		Description: "Query result",
		Type:        OutputDataFrame,
		Value:       sqlRes.Frame,
	})

	// code stage
	if cfg.MaxTokens > 0 && resp.Usage.Tokens >= cfg.MaxTokens {
		o.appendError(resp, emit, ErrorExecution, "The generation call budget was used before analysis code could be produced.")
		return finish()
	}
	codeRes, err := o.codeStage.Run(ctx, req.Messages, sqlRes.Frame, stageConfig(cfg, resp.Usage.Tokens), emit)
	o.mergeAttempts(resp, codeRes.Attempts)
	resp.Usage.Tokens += codeRes.Generations
	if err != nil {
		o.recordFailure(resp, emit, err, "Could not complete analysis")
		return finish()
	}
	if codeRes.Terminal != nil {
		o.appendRecordedError(resp, emit, *codeRes.Terminal)
		return finish()
	}
	if !codeRes.Succeeded {
		o.appendError(resp, emit, ErrorExecution, "Analysis code generation used all allowed attempts without producing a working answer.")
		return finish()
	}

	for _, out := range codeRes.Outputs {
		o.appendOutput(resp, emit, out)
	}
	resp.Status = StatusSucceeded
	return finish()
}

// stageConfig applies the remaining generation-call budget to a stage's
// attempt bound. used counts generation calls already made this run.
func stageConfig(cfg Config, used int) Config {
	if cfg.MaxTokens > 0 {
		remaining := cfg.MaxTokens - used
		if remaining < cfg.MaxAttempts {
			cfg.MaxAttempts = remaining
		}
	}
	return cfg
}

// recordFailure classifies an unexpected stage error. A deadline expiry is
// recorded as a timeout on the partial response; anything else is wrapped
// in a generic failure message.
func (o *Orchestrator) recordFailure(resp *Response, emit func(Delta), err error, prefix string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		o.appendError(resp, emit, ErrorTimeout, "The analysis did not finish before the deadline.")
	case errors.Is(err, context.Canceled):
		o.appendError(resp, emit, ErrorTimeout, "The analysis was canceled.")
	default:
		o.appendError(resp, emit, ErrorExecution, fmt.Sprintf("%s: %v", prefix, err))
	}
}

func (o *Orchestrator) mergeAttempts(resp *Response, attempts []Attempt) {
	resp.Attempts = append(resp.Attempts, attempts...)
}

func (o *Orchestrator) appendOutput(resp *Response, emit func(Delta), out Output) {
	out.Index = len(resp.Outputs)
	out.CreatedAt = o.clock.Now().UTC()
	resp.Outputs = append(resp.Outputs, out)
	if emit != nil {
		emit(Delta{Output: &out})
	}
}

func (o *Orchestrator) appendError(resp *Response, emit func(Delta), typ ErrorType, msg string) {
	o.appendRecordedError(resp, emit, Error{Type: typ, Value: msg})
}

func (o *Orchestrator) appendRecordedError(resp *Response, emit func(Delta), e Error) {
	e.Index = len(resp.Errors)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = o.clock.Now().UTC()
	}
	resp.Errors = append(resp.Errors, e)
	if emit != nil {
		emit(Delta{Error: &e})
	}
}

// reindex renumbers the flattened output and error lists. Attempt indices
// stay 0-based per stage and are left untouched.
func reindex(resp *Response) {
	for i := range resp.Outputs {
		resp.Outputs[i].Index = i
	}
	for i := range resp.Errors {
		resp.Errors[i].Index = i
	}
}
