package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// EchoInvoker is a local invoker for development and tests. It answers every
// prompt with a canned completion derived from the prompt, so the full
// collaboration loop can run without network access or an API key.
type EchoInvoker struct {
	model string
}

// NewEchoInvoker creates an echo invoker reporting the given default model
func NewEchoInvoker(model string) *EchoInvoker {
	if model == "" {
		model = "echo/local"
	}
	return &EchoInvoker{model: model}
}

// Invoke returns a canned completion for the prompt
func (p *EchoInvoker) Invoke(ctx context.Context, model string, prompt string, opts Options) (*Result, error) {
	if model == "" {
		model = p.model
	}

	select {
	case <-ctx.Done():
		return nil, &ProviderError{
			Model:   model,
			Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:     ctx.Err(),
		}
	default:
	}

	content := fmt.Sprintf("[%s] %s", model, truncate(prompt, 120))
	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(strings.Fields(content))

	return &Result{
		Content: content,
		Model:   model,
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

// DefaultModel returns the default model for the echo invoker
func (p *EchoInvoker) DefaultModel() string {
	return p.model
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
