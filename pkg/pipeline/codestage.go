package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/answerlake/answerlake/pkg/frame"
	"github.com/answerlake/answerlake/pkg/llm"
	"github.com/answerlake/answerlake/pkg/sandbox"
)

// answerFunc is the function name the generated module must define.
const answerFunc = "answer_question"

// CodeStage converts a question plus a query result into analysis output,
// running generated code through the restricted interpreter and repairing
// on failure up to the attempt bound.
type CodeStage struct {
	oracle llm.Oracle
	clock  clockwork.Clock
	log    *slog.Logger
}

// NewCodeStage builds the stage. The logger may be nil.
func NewCodeStage(oracle llm.Oracle, clock clockwork.Clock, log *slog.Logger) *CodeStage {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CodeStage{oracle: oracle, clock: clock, log: log}
}

// CodeResult is the stage outcome.
type CodeResult struct {
	Succeeded   bool
	Code        string
	Docstring   string
	Outputs     []Output // code text, captured stdout, and the typed answer
	Attempts    []Attempt
	Generations int
	Terminal    *Error
}

// Run drives the generate -> execute -> repair loop. data is the SQL
// stage's result; every attempt executes against a fresh deep copy so an
// in-place mutation in one attempt can never leak into the next.
func (s *CodeStage) Run(ctx context.Context, conversation []llm.Message, data *frame.Frame, cfg Config, emit func(Delta)) (*CodeResult, error) {
	cfg = cfg.withDefaults()
	res := &CodeResult{}

	msgs := make([]llm.Message, 0, len(conversation)+1+2*cfg.MaxAttempts)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: codeSystemPrompt(data.Describe(), cfg.OutputType)})
	msgs = append(msgs, conversation...)

	for attemptIdx := 0; attemptIdx < cfg.MaxAttempts; attemptIdx++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		proposal, err := s.oracle.ProposeCode(ctx, msgs)
		if err != nil {
			if errors.Is(err, llm.ErrContextLength) {
				res.Terminal = &Error{
					CreatedAt: s.clock.Now().UTC(),
					Type:      ErrorContextLength,
					Value:     "Model context length exceeded while generating analysis code.",
				}
				return res, nil
			}
			return res, fmt.Errorf("propose code: %w", err)
		}
		res.Generations++
		res.Code = proposal.Code
		res.Docstring = proposal.Docstring

		attempt := Attempt{Index: attemptIdx, CreatedAt: s.clock.Now().UTC()}
		attempt.Outputs = append(attempt.Outputs, Output{
			Index:       0,
			CreatedAt:   attempt.CreatedAt,
			Description: proposal.Docstring,
			Type:        OutputPythonCode,
			Value:       proposal.Code,
		})

		outputs, attemptErrs := s.execute(proposal.Code, data, cfg)
		attempt.Outputs = append(attempt.Outputs, outputs...)
		attempt.Errors = attemptErrs
		res.Attempts = append(res.Attempts, attempt)
		if emit != nil {
			emit(Delta{Attempt: &attempt})
		}

		if len(attemptErrs) == 0 {
			res.Succeeded = true
			res.Outputs = attempt.Outputs
			if s.log != nil {
				s.log.Info("code stage succeeded", "attempts", attemptIdx+1)
			}
			return res, nil
		}

		msgs = append(msgs,
			llm.Message{Role: llm.RoleAssistant, Content: proposal.Code},
			llm.Message{Role: llm.RoleUser, Content: codeRepairMessage(attemptErrs)},
		)
		if s.log != nil {
			s.log.Debug("code attempt failed", "attempt", attemptIdx, "errors", len(attemptErrs))
		}
	}

	if s.log != nil {
		s.log.Warn("code stage exhausted", "attempts", cfg.MaxAttempts)
	}
	return res, nil
}

// execute runs one candidate module and calls its answer function. The
// returned outputs start at index 1; index 0 is the code text recorded by
// the caller.
func (s *CodeStage) execute(code string, data *frame.Frame, cfg Config) ([]Output, []Error) {
	newErr := func(index int, typ ErrorType, msg string) []Error {
		return []Error{{Index: index, CreatedAt: s.clock.Now().UTC(), Type: typ, Value: msg}}
	}

	// fresh copy per attempt
	input := &sandbox.DataFrame{Frame: data.Clone()}
	exec, err := sandbox.Run(code, sandbox.Options{
		Locals: map[string]sandbox.Value{"df": input},
	})
	if err != nil {
		var secErr *sandbox.SecurityError
		if errors.As(err, &secErr) {
			return nil, newErr(0, ErrorInsecure, secErr.Message)
		}
		return nil, newErr(0, ErrorExecution, err.Error())
	}

	if !exec.Defined(answerFunc) {
		return nil, newErr(0, ErrorExecution, fmt.Sprintf("Code does not define a function named '%s'.", answerFunc))
	}
	result, err := exec.Call(answerFunc, input)
	if err != nil {
		return nil, newErr(0, ErrorExecution, err.Error())
	}

	typ, ok := resultType(result)
	if !ok {
		return nil, newErr(0, ErrorExecution,
			fmt.Sprintf("TypeError: returned value of type '%s' is not an accepted result type (int, float, string, bool, DataFrame, or figure).", result.TypeName()))
	}
	if cfg.OutputType != OutputAny && typ != cfg.OutputType {
		return nil, newErr(0, ErrorExecution,
			fmt.Sprintf("TypeError: returned value of type '%s' does not match the requested output type '%s'.", result.TypeName(), cfg.OutputType))
	}

	var outputs []Output
	now := s.clock.Now().UTC()
	if stdout := strings.TrimSuffix(exec.Stdout(), "\n"); stdout != "" {
		outputs = append(outputs, Output{
			Index:       len(outputs) + 1,
			CreatedAt:   now,
			Description: "Captured output",
			Type:        OutputPythonOutput,
			Value:       stdout,
		})
	}
	outputs = append(outputs, Output{
		Index:     len(outputs) + 1,
		CreatedAt: now,
		Type:      typ,
		Value:     sandbox.ToNative(result),
	})
	return outputs, nil
}

// resultType maps an interpreter value onto the accepted output type set.
func resultType(v sandbox.Value) (OutputType, bool) {
	switch v.(type) {
	case sandbox.Int:
		return OutputInt, true
	case sandbox.Float:
		return OutputFloat, true
	case sandbox.Str:
		return OutputString, true
	case sandbox.Bool:
		return OutputBool, true
	case *sandbox.DataFrame:
		return OutputDataFrame, true
	case *sandbox.Chart:
		return OutputChart, true
	}
	return "", false
}
