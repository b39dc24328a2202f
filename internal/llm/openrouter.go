package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wombat2006/wallbounce/internal/config"
	"github.com/wombat2006/wallbounce/internal/logger"
)

const chatCompletionsPath = "/chat/completions"
const generationPath = "/generation"

// OpenRouterInvoker implements Invoker using direct OpenRouter API calls
type OpenRouterInvoker struct {
	cfg        config.InvokerConfig
	models     *config.ModelsConfig
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
}

// NewOpenRouterInvoker creates a new OpenRouter invoker with config
func NewOpenRouterInvoker(cfg config.InvokerConfig, models *config.ModelsConfig) *OpenRouterInvoker {
	settings := gobreaker.Settings{
		Name:        "openrouter",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &OpenRouterInvoker{
		cfg:        cfg,
		models:     models,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		tracer:     otel.Tracer("openrouter-invoker"),
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type ResponseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage *ResponseUsage `json:"usage,omitempty"`
}

// Invoke sends a single prompt to the named model and returns the full response
func (p *OpenRouterInvoker) Invoke(ctx context.Context, model string, prompt string, opts Options) (*Result, error) {
	if p.cfg.APIKey == "" {
		return nil, &ProviderError{Model: model, Err: fmt.Errorf("OPENROUTER_API_KEY not configured")}
	}

	if model == "" {
		model = p.DefaultModel()
	}

	ctx, span := p.tracer.Start(ctx, "openrouter.invoke")
	defer span.End()
	span.SetAttributes(attribute.String("model", model))

	tempStr := "nil"
	if opts.Temperature != nil {
		tempStr = fmt.Sprintf("%.2f", *opts.Temperature)
	}
	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"temperature":   tempStr,
		"prompt_length": len(prompt),
	}).Info("Calling OpenRouter API")

	start := time.Now()
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.invokeInternal(ctx, model, prompt, opts)
	})
	if err != nil {
		span.RecordError(err)
		return nil, p.classifyError(model, err)
	}

	res := result.(*Result)
	res.Latency = time.Since(start)

	span.SetAttributes(
		attribute.Int("total_tokens", res.Usage.TotalTokens),
		attribute.Int64("latency_ms", res.Latency.Milliseconds()),
	)
	logger.Log.WithFields(logrus.Fields{
		"model":          model,
		"content_length": len(res.Content),
		"total_tokens":   res.Usage.TotalTokens,
	}).Debug("Extracted content from response")

	return res, nil
}

// classifyError folds transport errors into ProviderError, marking timeouts
// so callers can tell slow backends apart from broken ones.
func (p *OpenRouterInvoker) classifyError(model string, err error) error {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}

	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())

	return &ProviderError{Model: model, Timeout: timeout, Err: err}
}

func (p *OpenRouterInvoker) invokeInternal(ctx context.Context, model string, prompt string, opts Options) (*Result, error) {
	reqBody := ChatRequest{
		Model:       model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Stream:      false,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+chatCompletionsPath, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("HTTP-Referer", "http://localhost:3000")
	req.Header.Set("X-Title", p.cfg.AppTitle)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{
			Model:  model,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	logger.Log.WithField("response_length", len(body)).Debug("Received raw response")

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no response from API")
	}

	res := &Result{
		Content: chatResp.Choices[0].Message.Content,
		Model:   model,
	}
	if chatResp.Usage != nil {
		res.Usage = Usage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		}
	}

	if p.cfg.CostLookup && chatResp.ID != "" {
		if gen, err := p.fetchGenerationCost(ctx, chatResp.ID); err != nil {
			logger.Log.WithError(err).Debug("Cost lookup failed")
		} else {
			res.Cost = gen.TotalCost
		}
	}

	return res, nil
}

// GenerationData represents cost and usage information from OpenRouter
type GenerationData struct {
	ID                     string  `json:"id"`
	TotalCost              float64 `json:"total_cost"`
	NativeTokensPrompt     int     `json:"native_tokens_prompt"`
	NativeTokensCompletion int     `json:"native_tokens_completion"`
	Latency                int     `json:"latency"` // Time to first token in milliseconds
}

type GenerationResponse struct {
	Data GenerationData `json:"data"`
}

// fetchGenerationCost fetches cost information for a generation from OpenRouter
// with retry logic to handle timing delays in data availability
func (p *OpenRouterInvoker) fetchGenerationCost(ctx context.Context, generationID string) (*GenerationData, error) {
	if generationID == "" {
		return nil, fmt.Errorf("generation ID is empty")
	}

	url := fmt.Sprintf("%s%s?id=%s", p.cfg.BaseURL, generationPath, generationID)

	// Retry configuration: 3 attempts with exponential backoff (500ms, 1s, 2s)
	maxRetries := 3
	baseDelay := 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1)) // Exponential: 500ms, 1s, 2s
			logger.Log.WithFields(logrus.Fields{"delay": delay, "attempt": attempt + 1, "max_retries": maxRetries}).Info("Retrying cost fetch")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, fmt.Errorf("error creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("error sending request: %w", err)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			// 404 means data not ready yet, retry
			lastErr = fmt.Errorf("generation not found yet (status 404)")
			continue
		} else if resp.StatusCode != http.StatusOK {
			// Other errors are not retryable
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}

		var genResp GenerationResponse
		if err := json.Unmarshal(body, &genResp); err != nil {
			return nil, fmt.Errorf("error decoding response: %w", err)
		}

		logger.Log.WithFields(logrus.Fields{
			"cost":              genResp.Data.TotalCost,
			"prompt_tokens":     genResp.Data.NativeTokensPrompt,
			"completion_tokens": genResp.Data.NativeTokensCompletion,
			"latency_ms":        genResp.Data.Latency,
		}).Info("Fetched generation cost data")

		return &genResp.Data, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %v", maxRetries, lastErr)
}

// DefaultModel returns the default model for the OpenRouter invoker
func (p *OpenRouterInvoker) DefaultModel() string {
	return p.models.GetDefaultModel()
}
