package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"
)

const (
	sqlToolName  = "submit_query"
	codeToolName = "submit_analysis"

	maxAPIRetries = 3
)

// AnthropicOracle implements Oracle and Completer against the Anthropic API.
// Structured proposals are obtained by forcing a tool call with one of two
// fixed input schemas.
type AnthropicOracle struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       *slog.Logger
}

// NewAnthropicOracle creates an oracle using the given client and model.
func NewAnthropicOracle(client anthropic.Client, model anthropic.Model, maxTokens int64, log *slog.Logger) *AnthropicOracle {
	return &AnthropicOracle{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		log:       log,
	}
}

var sqlTool = anthropic.ToolParam{
	Name:        sqlToolName,
	Description: anthropic.Opt("Submit a SQL query answering the data question, with a short natural-language description of what it computes."),
	InputSchema: anthropic.ToolInputSchemaParam{
		Type: "object",
		Properties: map[string]any{
			"description": map[string]any{
				"type":        "string",
				"description": "One or two sentences describing what the query computes.",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "The SQL query. SELECT statements only.",
			},
		},
		Required: []string{"description", "query"},
	},
}

var codeTool = anthropic.ToolParam{
	Name:        codeToolName,
	Description: anthropic.Opt("Submit an analysis script that defines answer_question(data), with a docstring summarizing the approach."),
	InputSchema: anthropic.ToolInputSchemaParam{
		Type: "object",
		Properties: map[string]any{
			"docstring": map[string]any{
				"type":        "string",
				"description": "One or two sentences describing what the analysis does.",
			},
			"code": map[string]any{
				"type":        "string",
				"description": "The analysis script. Must define answer_question(data).",
			},
		},
		Required: []string{"docstring", "code"},
	},
}

// ProposeSQL forces a submit_query tool call and returns its arguments.
func (o *AnthropicOracle) ProposeSQL(ctx context.Context, conversation []Message) (*SQLProposal, error) {
	input, err := o.forcedToolCall(ctx, conversation, sqlTool)
	if err != nil {
		return nil, err
	}
	var proposal SQLProposal
	if err := json.Unmarshal(input, &proposal); err != nil {
		return nil, fmt.Errorf("failed to parse %s arguments: %w", sqlToolName, err)
	}
	if strings.TrimSpace(proposal.Query) == "" {
		return nil, fmt.Errorf("%s returned an empty query", sqlToolName)
	}
	return &proposal, nil
}

// ProposeCode forces a submit_analysis tool call and returns its arguments.
func (o *AnthropicOracle) ProposeCode(ctx context.Context, conversation []Message) (*CodeProposal, error) {
	input, err := o.forcedToolCall(ctx, conversation, codeTool)
	if err != nil {
		return nil, err
	}
	var proposal CodeProposal
	if err := json.Unmarshal(input, &proposal); err != nil {
		return nil, fmt.Errorf("failed to parse %s arguments: %w", codeToolName, err)
	}
	if strings.TrimSpace(proposal.Code) == "" {
		return nil, fmt.Errorf("%s returned an empty script", codeToolName)
	}
	return &proposal, nil
}

// Complete sends a plain prompt and returns the response text.
func (o *AnthropicOracle) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	msg, err := o.call(ctx, anthropic.MessageNewParams{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", err
	}
	for _, block := range msg.Content {
		text := block.AsText()
		if text.Text != "" {
			return text.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}

func (o *AnthropicOracle) forcedToolCall(ctx context.Context, conversation []Message, tool anthropic.ToolParam) (json.RawMessage, error) {
	system, msgs := splitConversation(conversation)

	params := anthropic.MessageNewParams{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Messages:  msgs,
		Tools:     []anthropic.ToolUnionParam{{OfTool: &tool}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: tool.Name},
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := o.call(ctx, params)
	if err != nil {
		return nil, err
	}
	if msg.StopReason == "max_tokens" {
		return nil, ErrContextLength
	}
	for _, block := range msg.Content {
		tu := block.AsToolUse()
		if tu.Name == tool.Name {
			return tu.Input, nil
		}
	}
	return nil, fmt.Errorf("no %s tool call in response", tool.Name)
}

// call issues a Messages.New request with backoff on transient API errors.
// Context-length and other permanent failures are never retried.
func (o *AnthropicOracle) call(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	start := time.Now()
	var msg *anthropic.Message

	op := func() error {
		var err error
		msg, err = o.client.Messages.New(ctx, params)
		if err == nil {
			return nil
		}
		if isTransientAPIError(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAPIRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if o.log != nil {
			o.log.Error("anthropic call failed", "duration", time.Since(start), "error", err)
		}
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}
	if o.log != nil {
		o.log.Debug("anthropic call completed", "duration", time.Since(start), "stopReason", msg.StopReason)
	}
	return msg, nil
}

func splitConversation(conversation []Message) (string, []anthropic.MessageParam) {
	var system strings.Builder
	msgs := make([]anthropic.MessageParam, 0, len(conversation))
	for _, m := range conversation {
		switch m.Role {
		case RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Content)
		case RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system.String(), msgs
}

func isTransientAPIError(err error) bool {
	s := err.Error()
	return strings.Contains(s, "overloaded") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "429") ||
		strings.Contains(s, "529") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection reset")
}
