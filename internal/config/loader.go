package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file and environment
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".conductor", "conductor.json")
	}

	v := viper.New()
	v.SetEnvPrefix("CONDUCTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// No config file; environment variables still apply below.
		l.bindEnv(v)
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
		return cfg, nil
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	l.bindEnv(v)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// bindEnv binds the environment variables viper should consider during unmarshal.
func (l *Loader) bindEnv(v *viper.Viper) {
	keys := []string{
		"server.host",
		"server.port",
		"reasoning.provider",
		"reasoning.api_key",
		"reasoning.base_url",
		"reasoning.model",
		"reasoning.temperature",
		"reasoning.max_tokens",
		"store.backend",
		"store.path",
		"store.retention_hours",
		"store.cleanup_schedule",
		"store.cleanup_enabled",
		"logging.level",
		"logging.file",
		"logging.console",
		"logging.pretty",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}
