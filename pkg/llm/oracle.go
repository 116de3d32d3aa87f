// Package llm wraps the text-completion oracle behind typed interfaces. The
// oracle returns exactly one of two structured shapes, a SQL proposal or a
// code proposal, validated at this boundary and never passed onward as an
// untyped map.
package llm

import (
	"context"
	"errors"
)

// Role tags a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged message of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ErrContextLength reports that the model ran out of context window while
// producing a response. Callers must not retry.
var ErrContextLength = errors.New("model context length exceeded")

// SQLProposal is the oracle's structured answer for the SQL stage.
type SQLProposal struct {
	Description string `json:"description"`
	Query       string `json:"query"`
}

// CodeProposal is the oracle's structured answer for the analysis stage.
type CodeProposal struct {
	Docstring string `json:"docstring"`
	Code      string `json:"code"`
}

// Oracle produces structured proposals from a conversation. Both calls
// block on network I/O and honor context cancellation.
type Oracle interface {
	ProposeSQL(ctx context.Context, conversation []Message) (*SQLProposal, error)
	ProposeCode(ctx context.Context, conversation []Message) (*CodeProposal, error)
}

// Completer is the plain-text completion surface, used by the policy guard
// and other callers that do not need structured output.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
