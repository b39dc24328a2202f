package llm

import (
	"fmt"
	"log"

	"github.com/wombat2006/wallbounce/internal/config"
)

// InvokerType represents the type of model invoker
type InvokerType string

const (
	InvokerOpenRouter InvokerType = "openrouter"
	InvokerEcho       InvokerType = "echo"
)

// ParseInvokerType parses a string into an InvokerType
func ParseInvokerType(s string) (InvokerType, error) {
	switch s {
	case "openrouter", "":
		return InvokerOpenRouter, nil
	case "echo":
		return InvokerEcho, nil
	default:
		return "", fmt.Errorf("unknown invoker type: %s", s)
	}
}

// NewInvoker creates a new invoker based on the specified type
func NewInvoker(invokerType InvokerType, cfg config.InvokerConfig, models *config.ModelsConfig) (Invoker, error) {
	switch invokerType {
	case InvokerOpenRouter:
		log.Printf("[Factory] Creating OpenRouter invoker")
		return NewOpenRouterInvoker(cfg, models), nil
	case InvokerEcho:
		log.Printf("[Factory] Creating echo invoker")
		defaultModel := ""
		if models != nil {
			defaultModel = models.GetDefaultModel()
		}
		return NewEchoInvoker(defaultModel), nil
	default:
		return nil, fmt.Errorf("unsupported invoker type: %s", invokerType)
	}
}

// InvokerFromConfig creates an invoker from configuration
// Returns an OpenRouter invoker by default if the type is empty or invalid
func InvokerFromConfig(cfg config.InvokerConfig, models *config.ModelsConfig) Invoker {
	invokerType, err := ParseInvokerType(cfg.Type)
	if err != nil {
		log.Printf("[Factory] Invalid invoker '%s', defaulting to OpenRouter: %v", cfg.Type, err)
		invokerType = InvokerOpenRouter
	}

	invoker, err := NewInvoker(invokerType, cfg, models)
	if err != nil {
		log.Printf("[Factory] Error creating %s invoker, falling back to OpenRouter: %v", invokerType, err)
		return NewOpenRouterInvoker(cfg, models)
	}

	return invoker
}
