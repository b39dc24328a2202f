package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Model represents an available backend model
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Tier     string `json:"tier"`
}

// ModelsConfig holds the available models configuration
type ModelsConfig struct {
	models []Model
}

// NewModelsConfig creates a new models configuration from a file
func NewModelsConfig(configPath string) (*ModelsConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var models []Model
	err = json.Unmarshal(data, &models)
	if err != nil {
		return nil, err
	}

	return &ModelsConfig{models: models}, nil
}

// GetAvailableModels returns the list of available models
func (mc *ModelsConfig) GetAvailableModels() []Model {
	return mc.models
}

// IsValidModel checks if a model ID is in the list of available models
func (mc *ModelsConfig) IsValidModel(modelID string) bool {
	for _, model := range mc.models {
		if model.ID == modelID {
			return true
		}
	}
	return false
}

// GetDefaultModel returns the first model as the default
func (mc *ModelsConfig) GetDefaultModel() string {
	if len(mc.models) > 0 {
		return mc.models[0].ID
	}
	// Fallback in case no models are configured (shouldn't happen)
	return "openai/gpt-4o-mini"
}

// ValidateCandidates checks that every requested candidate model is known.
// An empty registry skips the check so tests can run without a models file.
func (mc *ModelsConfig) ValidateCandidates(modelIDs []string) error {
	if len(modelIDs) == 0 {
		return fmt.Errorf("at least one candidate model is required")
	}
	if len(mc.models) == 0 {
		return nil
	}
	for _, id := range modelIDs {
		if !mc.IsValidModel(id) {
			return fmt.Errorf("unknown model: %s", id)
		}
	}
	return nil
}
