package llm

import (
	"context"
	"fmt"
)

// Request is a single text completion call.
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider turns a prompt into generated text.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GenerationError is returned for every failed completion regardless of the
// underlying cause.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("llm generation with model %q failed: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (string, error)

func (f ProviderFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
