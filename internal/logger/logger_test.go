package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToInfo(t *testing.T) {
	l, err := New(Config{Level: "bogus"})
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, zerolog.InfoLevel, l.Zerolog().GetLevel())
}

func TestNewWithFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "conductor.log")

	l, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	scoped := l.Module("test")
	scoped.Info().Msg("hello from test")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
	assert.Contains(t, string(data), `"module":"test"`)
}

func TestModuleScoping(t *testing.T) {
	l, err := New(Config{Level: "error"})
	require.NoError(t, err)
	defer l.Close()

	scoped := l.Module("gateway")
	assert.Equal(t, zerolog.ErrorLevel, scoped.GetLevel())
}
