package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitorValidation(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	_, err := NewJanitor(nil, time.Hour, "@every 1h", logger)
	assert.Error(t, err)

	_, err = NewJanitor(NewMemoryStore(), time.Hour, "not a schedule", logger)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cleanup schedule")
}

func TestJanitorRunOnce(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "stale")
	require.NoError(t, err)
	store.mu.Lock()
	store.sessions["stale"].UpdatedAt = time.Now().Add(-2 * time.Hour)
	store.mu.Unlock()

	j, err := NewJanitor(store, time.Hour, "@every 1h", logger)
	require.NoError(t, err)

	pruned, err := j.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	assert.Equal(t, 0, store.Len())
}

func TestJanitorStartStop(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	j, err := NewJanitor(NewMemoryStore(), time.Hour, "@every 1h", logger)
	require.NoError(t, err)

	j.Start()
	j.Stop()
}
