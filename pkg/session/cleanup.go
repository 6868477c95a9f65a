package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultRetention is how long an idle session is kept when no policy is configured
const DefaultRetention = 24 * time.Hour

// Pruner is implemented by stores that support retention sweeps
type Pruner interface {
	PruneIdle(ctx context.Context, maxIdle time.Duration) (int, error)
}

// Janitor periodically removes idle sessions from a store. Retention is a
// policy layered beside the store; the orchestrator never deletes sessions.
type Janitor struct {
	store    Pruner
	maxIdle  time.Duration
	schedule string
	cron     *cron.Cron
	logger   zerolog.Logger
}

// NewJanitor creates a retention janitor. The schedule uses cron syntax,
// including descriptors like "@every 1h".
func NewJanitor(store Pruner, maxIdle time.Duration, schedule string, logger zerolog.Logger) (*Janitor, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if maxIdle <= 0 {
		maxIdle = DefaultRetention
	}
	if schedule == "" {
		schedule = "@every 1h"
	}

	j := &Janitor{
		store:    store,
		maxIdle:  maxIdle,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With().Str("module", "session-janitor").Logger(),
	}

	if _, err := j.cron.AddFunc(schedule, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.logger.Error().Err(err).Msg("Retention sweep failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	return j, nil
}

// Start begins scheduled sweeps
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info().
		Dur("max_idle", j.maxIdle).
		Str("schedule", j.schedule).
		Msg("Session retention janitor started")
}

// Stop halts scheduled sweeps and waits for a running sweep to finish
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info().Msg("Session retention janitor stopped")
}

// RunOnce performs a single retention sweep
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	pruned, err := j.store.PruneIdle(ctx, j.maxIdle)
	if err != nil {
		return 0, fmt.Errorf("failed to prune idle sessions: %w", err)
	}
	if pruned > 0 {
		j.logger.Info().Int("pruned", pruned).Msg("Retention sweep completed")
	}
	return pruned, nil
}
