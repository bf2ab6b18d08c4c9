package domain

import "context"

// TextGenerator is the generative text provider contract. Responses may be
// empty or malformed; callers parse defensively and never trust structure.
type TextGenerator interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// CompletionRequest holds the parameters of one generation call.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// CompletionResult carries the raw generated text and token usage.
type CompletionResult struct {
	Text         string
	PromptTokens int
	TotalTokens  int
}
