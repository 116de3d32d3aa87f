package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/answerlake/answerlake/pkg/frame"
	"github.com/answerlake/answerlake/pkg/llm"
	"github.com/answerlake/answerlake/pkg/warehouse"
)

// SQLStage converts a question plus a schema summary into a validated,
// non-empty result set, repairing the query on failure up to the attempt
// bound.
type SQLStage struct {
	oracle llm.Oracle
	conn   warehouse.Connector
	clock  clockwork.Clock
	log    *slog.Logger
}

// NewSQLStage builds the stage. The logger may be nil.
func NewSQLStage(oracle llm.Oracle, conn warehouse.Connector, clock clockwork.Clock, log *slog.Logger) *SQLStage {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SQLStage{oracle: oracle, conn: conn, clock: clock, log: log}
}

// SQLResult is the stage outcome. Exhaustion is a normal terminal state:
// Succeeded is false, the last attempted query and description are kept,
// and Attempts holds the full record.
type SQLResult struct {
	Succeeded   bool
	Description string
	Query       string
	Frame       *frame.Frame
	Attempts    []Attempt
	Generations int
	// Terminal is set for failures that must not be retried, such as an
	// exceeded model context window.
	Terminal *Error
}

// Run drives the GENERATING -> VALIDATING -> EXECUTING loop. conversation
// must end with the user's question; summary is the rendered warehouse
// schema. emit, when non-nil, receives a delta per finished attempt.
func (s *SQLStage) Run(ctx context.Context, conversation []llm.Message, summary string, cfg Config, emit func(Delta)) (*SQLResult, error) {
	cfg = cfg.withDefaults()
	res := &SQLResult{}

	msgs := make([]llm.Message, 0, len(conversation)+1+2*cfg.MaxAttempts)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: sqlSystemPrompt(summary)})
	msgs = append(msgs, conversation...)

	state := stateGenerating
	for attemptIdx := 0; attemptIdx < cfg.MaxAttempts; attemptIdx++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		// GENERATING
		proposal, err := s.oracle.ProposeSQL(ctx, msgs)
		if err != nil {
			if errors.Is(err, llm.ErrContextLength) {
				res.Terminal = &Error{
					CreatedAt: s.clock.Now().UTC(),
					Type:      ErrorContextLength,
					Value:     "Model context length exceeded while generating SQL.",
				}
				return res, nil
			}
			return res, fmt.Errorf("propose sql: %w", err)
		}
		res.Generations++

		query := ApplyLowerToWhere(proposal.Query)
		res.Query = query
		res.Description = proposal.Description

		attempt := Attempt{Index: attemptIdx, CreatedAt: s.clock.Now().UTC()}
		attempt.Outputs = append(attempt.Outputs, Output{
			Index:       0,
			CreatedAt:   attempt.CreatedAt,
			Description: proposal.Description,
			Type:        OutputSQLQuery,
			Value:       query,
		})
		if s.log != nil {
			s.log.Debug("sql attempt generated", "attempt", attemptIdx, "query", query)
		}

		// VALIDATING
		state = stateValidating
		var attemptErrs []Error
		validationMsgs, err := s.conn.DryRun(ctx, query)
		switch {
		case err != nil:
			attemptErrs = append(attemptErrs, s.newError(len(attemptErrs), ErrorExecution, err.Error()))
		case len(validationMsgs) > 0:
			for _, m := range validationMsgs {
				attemptErrs = append(attemptErrs, s.newError(len(attemptErrs), ErrorValidation, m))
			}
		default:
			// EXECUTING
			state = stateExecuting
			f, execErr := s.conn.Execute(ctx, query)
			switch {
			case execErr != nil:
				attemptErrs = append(attemptErrs, s.newError(len(attemptErrs), ErrorExecution, execErr.Error()))
			case f.DropNullRows().Empty() && !cfg.AllowEmptyResults:
				attemptErrs = append(attemptErrs, s.newError(len(attemptErrs), ErrorNoResult, "Query returned no results, please try again."))
			default:
				state = stateSucceeded
				res.Frame = f
			}
		}

		attempt.Errors = attemptErrs
		res.Attempts = append(res.Attempts, attempt)
		if emit != nil {
			emit(Delta{Attempt: &attempt})
		}

		if state == stateSucceeded {
			res.Succeeded = true
			if s.log != nil {
				s.log.Info("sql stage succeeded", "attempts", attemptIdx+1, "rows", res.Frame.Count())
			}
			return res, nil
		}

		// REPAIRING
		state = stateRepairing
		msgs = append(msgs,
			llm.Message{Role: llm.RoleAssistant, Content: query},
			llm.Message{Role: llm.RoleUser, Content: sqlRepairMessage(attemptErrs)},
		)
		if s.log != nil {
			s.log.Debug("sql attempt failed", "attempt", attemptIdx, "state", state.String(), "errors", len(attemptErrs))
		}
	}

	state = stateExhausted
	if s.log != nil {
		s.log.Warn("sql stage exhausted", "attempts", cfg.MaxAttempts, "state", state.String())
	}
	return res, nil
}

func (s *SQLStage) newError(index int, typ ErrorType, msg string) Error {
	return Error{Index: index, CreatedAt: s.clock.Now().UTC(), Type: typ, Value: msg}
}
