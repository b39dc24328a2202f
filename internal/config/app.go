package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wombat2006/wallbounce/internal/logger"
)

// AppConfig holds all application configuration
type AppConfig struct {
	// Region identifies the region this process writes session state from.
	// Replica reconciliation keeps it as provenance on merged records.
	Region  string
	Engine  EngineConfig
	Invoker InvokerConfig
	Store   StoreConfig
	Session SessionConfig
	Models  *ModelsConfig
	Scoring ScoringConfig
}

// EngineConfig holds wall-bounce orchestration configuration
type EngineConfig struct {
	// MaxPasses bounds the number of completed phases per collaboration.
	// MinPasses is the configured floor; propose and critique always run
	// when at least one backend is reachable.
	MaxPasses int
	MinPasses int
	// MinSuccesses is the fan-in threshold for concurrent proposals:
	// the engine proceeds once this many backends answered.
	MinSuccesses int
	// PhaseTimeout bounds every single backend invocation.
	PhaseTimeout time.Duration
}

// InvokerConfig holds model invoker configuration
type InvokerConfig struct {
	Type           string // "openrouter" or "echo"
	BaseURL        string
	APIKey         string
	AppTitle       string
	Temperature    float64
	RequestTimeout time.Duration
	// CostLookup enables the per-call generation cost fetch. It adds a
	// second round trip per invocation, so it is off by default.
	CostLookup bool
}

// StoreConfig selects and configures the versioned state store backend
type StoreConfig struct {
	Backend  string // "memory", "bolt" or "postgres"
	BoltPath string
	Database DatabaseConfig
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// SessionConfig holds session manager configuration
type SessionConfig struct {
	CacheSize    int
	CacheTTL     time.Duration
	MaxHistory   int
	MaxRetries   int
	RetryBackoff time.Duration
	// TTL is the store-native expiry attached to session records.
	TTL time.Duration
	// PromptWindow is how many recent exchanges feed the contextual prompt.
	PromptWindow int
}

// LoadConfig loads and validates application configuration from environment
func LoadConfig() (*AppConfig, error) {
	config := &AppConfig{}

	config.Region = getEnvOrDefault("WALLBOUNCE_REGION", "local")

	// Load Engine config
	config.Engine = EngineConfig{
		MaxPasses:    getEnvAsInt("WALLBOUNCE_MAX_PASSES", 3),
		MinPasses:    getEnvAsInt("WALLBOUNCE_MIN_PASSES", 2),
		MinSuccesses: getEnvAsInt("WALLBOUNCE_MIN_SUCCESSES", 2),
		PhaseTimeout: getEnvAsDuration("WALLBOUNCE_PHASE_TIMEOUT", 90*time.Second),
	}

	// Load Invoker config
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		logger.Log.Warn("OPENROUTER_API_KEY environment variable not set")
	}

	config.Invoker = InvokerConfig{
		Type:           getEnvOrDefault("INVOKER_TYPE", "openrouter"),
		BaseURL:        getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		APIKey:         apiKey,
		AppTitle:       getEnvOrDefault("INVOKER_APP_TITLE", "Wall Bounce"),
		Temperature:    getEnvAsFloat("INVOKER_TEMPERATURE", 0.7),
		RequestTimeout: getEnvAsDuration("INVOKER_REQUEST_TIMEOUT", 120*time.Second),
		CostLookup:     getEnvAsBool("INVOKER_COST_LOOKUP", false),
	}

	// Load Store config
	config.Store = StoreConfig{
		Backend:  getEnvOrDefault("STORE_BACKEND", "memory"),
		BoltPath: getEnvOrDefault("STORE_BOLT_PATH", "data/wallbounce.db"),
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "postgres"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
			Name:     getEnvOrDefault("DB_NAME", "wallbounce"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		},
	}

	// Load Session config
	config.Session = SessionConfig{
		CacheSize:    getEnvAsInt("SESSION_CACHE_SIZE", 1024),
		CacheTTL:     getEnvAsDuration("SESSION_CACHE_TTL", 5*time.Minute),
		MaxHistory:   getEnvAsInt("SESSION_MAX_HISTORY", 1000),
		MaxRetries:   getEnvAsInt("SESSION_MAX_RETRIES", 3),
		RetryBackoff: getEnvAsDuration("SESSION_RETRY_BACKOFF", 100*time.Millisecond),
		TTL:          getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		PromptWindow: getEnvAsInt("SESSION_PROMPT_WINDOW", 5),
	}

	// Load Models config
	modelsConfigPath := getEnvOrDefault("MODELS_CONFIG_PATH", "config/models.json")
	modelsConfig, err := NewModelsConfig(modelsConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load models config: %w", err)
	}
	config.Models = modelsConfig

	// Load Scoring config; canonical defaults apply unless a file is given
	scoring, err := LoadScoringConfig(os.Getenv("SCORING_CONFIG_PATH"))
	if err != nil {
		return nil, fmt.Errorf("failed to load scoring config: %w", err)
	}
	config.Scoring = scoring

	return config, nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid integer value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid boolean value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid float value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid duration value, using default")
		return defaultValue
	}
	return value
}
