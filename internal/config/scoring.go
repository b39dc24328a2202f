package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ScoringConfig holds the critique severity scoring table. Keyword matching
// is plain substring search over the lower-cased critique text, so the
// default lists are curated to avoid cross-bucket substring collisions.
type ScoringConfig struct {
	CriticalWeight int `yaml:"critical_weight"`
	HighWeight     int `yaml:"high_weight"`
	MediumWeight   int `yaml:"medium_weight"`
	LowWeight      int `yaml:"low_weight"`

	CriticalKeywords []string `yaml:"critical_keywords"`
	HighKeywords     []string `yaml:"high_keywords"`
	MediumKeywords   []string `yaml:"medium_keywords"`
	LowKeywords      []string `yaml:"low_keywords"`
	PositiveKeywords []string `yaml:"positive_keywords"`

	// PositiveThreshold is the number of positive indicators that triggers
	// the PositiveReduction discount on the weighted score.
	PositiveThreshold int `yaml:"positive_threshold"`
	PositiveReduction int `yaml:"positive_reduction"`

	// Critiques shorter than ShortTextChars characters are discounted by
	// ShortTextReduction.
	ShortTextChars     int `yaml:"short_text_chars"`
	ShortTextReduction int `yaml:"short_text_reduction"`

	// RevisionThreshold is the minimum final score that requests a
	// revision pass.
	RevisionThreshold int `yaml:"revision_threshold"`
}

// DefaultScoringConfig returns the built-in severity scoring table.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		CriticalWeight: 25,
		HighWeight:     15,
		MediumWeight:   5,
		LowWeight:      1,

		CriticalKeywords: []string{
			"critical", "fatal", "severe", "security vulnerability",
			"data loss", "crash", "unusable", "catastrophic",
		},
		HighKeywords: []string{
			"major", "significant", "incorrect", "bug",
			"fails", "missing", "misleading", "flawed",
		},
		MediumKeywords: []string{
			"should", "consider", "improve", "unclear",
			"confusing", "suboptimal", "incomplete", "inefficient",
		},
		LowKeywords: []string{
			"nitpick", "typo", "cosmetic", "stylistic", "optional", "polish",
		},
		PositiveKeywords: []string{
			"looks good", "accurate", "well-structured", "no issues",
			"solid", "excellent", "comprehensive", "thorough",
		},

		PositiveThreshold: 3,
		PositiveReduction: 20,

		ShortTextChars:     200,
		ShortTextReduction: 15,

		RevisionThreshold: 30,
	}
}

// LoadScoringConfig returns the default table overlaid with any fields set
// in the YAML file at path. An empty path returns the defaults unchanged.
func LoadScoringConfig(path string) (ScoringConfig, error) {
	cfg := DefaultScoringConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ScoringConfig{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ScoringConfig{}, fmt.Errorf("failed to parse scoring config: %w", err)
	}
	return cfg, nil
}
