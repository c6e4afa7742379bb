package schema

import "context"

// ChatOptions configures a single LLM completion request.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

func NewChatOptions(model string, maxTokens int, temperature float64) ChatOptions {
	return ChatOptions{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// Completion is the normalised result of a completion call.
// Usage keys: "prompt_tokens", "completion_tokens", "total_tokens".
type Completion struct {
	Text  string
	Usage map[string]int
}

// Completer is the interface every LLM backend must satisfy. The memory core
// only ever consumes the final text and, optionally, usage counters; whether
// the backend streams is none of its business.
type Completer interface {
	Complete(ctx context.Context, messages Messages, opts ChatOptions) (Completion, error)
	DefaultModel() string
}
