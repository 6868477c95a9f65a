package config

// Config represents the main conductor configuration
type Config struct {
	// Server holds HTTP gateway settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Reasoning holds reasoning engine settings
	Reasoning ReasoningConfig `json:"reasoning" mapstructure:"reasoning"`

	// Store holds session store settings
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Logging holds logger settings
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ServerConfig holds HTTP gateway configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// ReasoningConfig holds reasoning engine configuration
type ReasoningConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"` // e.g. OpenRouter
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// StoreConfig holds session store configuration
type StoreConfig struct {
	Backend          string `json:"backend" mapstructure:"backend"` // memory, sqlite
	Path             string `json:"path" mapstructure:"path"`       // sqlite database path
	RetentionHours   int    `json:"retention_hours" mapstructure:"retention_hours"`
	CleanupSchedule  string `json:"cleanup_schedule" mapstructure:"cleanup_schedule"`
	CleanupEnabled   bool   `json:"cleanup_enabled" mapstructure:"cleanup_enabled"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Reasoning: ReasoningConfig{
			Provider:    "openai",
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "openai/gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Store: StoreConfig{
			Backend:         "memory",
			RetentionHours:  24,
			CleanupSchedule: "@every 1h",
			CleanupEnabled:  false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}
