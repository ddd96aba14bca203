// Package llm provides the chat-completion client used for relationship
// classification and conversation extraction, plus the circuit breaker shared
// with the embedding client.
package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// All prompts use single-string completion style (not chat history).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}
