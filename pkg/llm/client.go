// Package llm provides the text generation backends moex calls for replies,
// plus the retry policy wrapped around them.
package llm

import "context"

// Request is a single generation call.
type Request struct {
	System      string  // System instruction
	Prompt      string  // User prompt
	Model       string  // Overrides the backend's default model when set
	Temperature float64 // Sampling temperature
	MaxTokens   int     // Output token cap; 0 leaves the backend default
}

// Generator produces reply text. Implementations make exactly one attempt and
// report failures as *Error so callers can decide whether to retry.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
