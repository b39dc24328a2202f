package llm

import (
	"context"
	"fmt"
	"time"
)

// Invoker defines the interface for model backends (OpenRouter direct API,
// local echo, etc.)
type Invoker interface {
	// Invoke sends a single prompt to the named model and returns the full
	// response. An empty model falls back to the invoker default.
	Invoke(ctx context.Context, model string, prompt string, opts Options) (*Result, error)

	// DefaultModel returns the default model for this invoker
	DefaultModel() string
}

// Options carries per-call generation parameters
type Options struct {
	Temperature *float64
	MaxTokens   int
}

// Usage reports token consumption for a single invocation
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Result is the outcome of a successful invocation
type Result struct {
	Content string
	Model   string
	Usage   Usage
	Cost    float64
	Latency time.Duration
}

// ProviderError describes a failed invocation. Timeout marks deadline
// expiry so callers can tell slow backends apart from broken ones.
type ProviderError struct {
	Model   string
	Status  int
	Timeout bool
	Err     error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("model %s timed out: %v", e.Model, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("model %s returned status %d: %v", e.Model, e.Status, e.Err)
	default:
		return fmt.Sprintf("model %s failed: %v", e.Model, e.Err)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
