package config

import "fmt"

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Reasoning.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported reasoning provider: %s", c.Reasoning.Provider)
	}

	if c.Reasoning.Model == "" {
		return fmt.Errorf("reasoning model cannot be empty")
	}
	if c.Reasoning.Temperature < 0 || c.Reasoning.Temperature > 2 {
		return fmt.Errorf("reasoning temperature must be between 0 and 2, got %v", c.Reasoning.Temperature)
	}
	if c.Reasoning.MaxTokens < 0 {
		return fmt.Errorf("reasoning max tokens cannot be negative")
	}

	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}

	if c.Store.RetentionHours < 0 {
		return fmt.Errorf("store retention hours cannot be negative")
	}

	return nil
}
