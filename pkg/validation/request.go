package validation

import (
	"errors"
	"fmt"
)

// CollabRequestValidator validates collaboration requests
type CollabRequestValidator struct{}

// NewCollabRequestValidator creates a new CollabRequestValidator
func NewCollabRequestValidator() *CollabRequestValidator {
	return &CollabRequestValidator{}
}

// ValidateQuery validates the query text
func (v *CollabRequestValidator) ValidateQuery(query string) error {
	if query == "" {
		return errors.New("query cannot be empty")
	}
	return nil
}

// ValidateModels validates the candidate model list
func (v *CollabRequestValidator) ValidateModels(models []string) error {
	if len(models) == 0 {
		return errors.New("at least one model is required")
	}

	for i, model := range models {
		if model == "" {
			return fmt.Errorf("model at position %d cannot be empty", i)
		}
	}
	return nil
}

// ValidateBounceRange validates the optional wall-bounce bounds. Zero means
// unset and falls back to the engine defaults.
func (v *CollabRequestValidator) ValidateBounceRange(minBounces, maxBounces int) error {
	if minBounces < 0 || maxBounces < 0 {
		return fmt.Errorf("bounce counts cannot be negative, got min %d and max %d", minBounces, maxBounces)
	}

	if minBounces > 0 && maxBounces > 0 && minBounces > maxBounces {
		return fmt.Errorf("min_wall_bounces %d cannot exceed max_wall_bounces %d", minBounces, maxBounces)
	}
	return nil
}

// ValidateVerbosity validates the verbosity option
func (v *CollabRequestValidator) ValidateVerbosity(verbosity string) error {
	if verbosity == "" {
		return nil // Verbosity is optional
	}

	validValues := map[string]bool{
		"low":    true,
		"medium": true,
		"high":   true,
	}

	if !validValues[verbosity] {
		return fmt.Errorf("verbosity must be one of: low, medium, high; got %s", verbosity)
	}
	return nil
}

// ValidateEffort validates the effort option
func (v *CollabRequestValidator) ValidateEffort(effort string) error {
	if effort == "" {
		return nil // Effort is optional
	}

	validValues := map[string]bool{
		"minimal": true,
		"low":     true,
		"medium":  true,
		"high":    true,
	}

	if !validValues[effort] {
		return fmt.Errorf("effort must be one of: minimal, low, medium, high; got %s", effort)
	}
	return nil
}

// ValidateCollabRequest validates a complete collaboration request
func (v *CollabRequestValidator) ValidateCollabRequest(query string, models []string, minBounces, maxBounces int, verbosity, effort string) error {
	if err := v.ValidateQuery(query); err != nil {
		return err
	}

	if err := v.ValidateModels(models); err != nil {
		return err
	}

	if err := v.ValidateBounceRange(minBounces, maxBounces); err != nil {
		return err
	}

	if err := v.ValidateVerbosity(verbosity); err != nil {
		return err
	}

	if err := v.ValidateEffort(effort); err != nil {
		return err
	}

	return nil
}
