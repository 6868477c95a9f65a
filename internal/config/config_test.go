package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.Reasoning.Provider)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Reasoning.BaseURL)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server port",
		},
		{
			name:    "bad provider",
			mutate:  func(c *Config) { c.Reasoning.Provider = "cohere" },
			wantErr: "unsupported reasoning provider",
		},
		{
			name:    "empty model",
			mutate:  func(c *Config) { c.Reasoning.Model = "" },
			wantErr: "model cannot be empty",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.Reasoning.Temperature = 2.5 },
			wantErr: "temperature",
		},
		{
			name:    "negative max tokens",
			mutate:  func(c *Config) { c.Reasoning.MaxTokens = -1 },
			wantErr: "max tokens",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Store.Backend = "sqlite" },
			wantErr: "store path is required",
		},
		{
			name: "sqlite with path",
			mutate: func(c *Config) {
				c.Store.Backend = "sqlite"
				c.Store.Path = "/tmp/conductor.db"
			},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "redis" },
			wantErr: "unsupported store backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
