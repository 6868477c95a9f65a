package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalmusic/conductor/internal/config"
	"github.com/signalmusic/conductor/internal/logger"
	"github.com/signalmusic/conductor/internal/tracing"
	"github.com/signalmusic/conductor/pkg/catalog"
	"github.com/signalmusic/conductor/pkg/composer"
	"github.com/signalmusic/conductor/pkg/gateway"
	"github.com/signalmusic/conductor/pkg/laneq"
	"github.com/signalmusic/conductor/pkg/reasoning"
	"github.com/signalmusic/conductor/pkg/session"
	"github.com/signalmusic/conductor/pkg/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conductor HTTP server",
	Long: `Run the conductor HTTP server. Serves the turn orchestration API,
health checks, and metrics until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	if err := tracing.InitOpenTelemetry("conductor", GetVersion()); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.ShutdownOpenTelemetry(ctx)
	}()

	store, janitor, closeStore, err := buildStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if janitor != nil {
		janitor.Start()
		defer janitor.Stop()
	}

	factory := &reasoning.Factory{}
	client, err := factory.NewClient(reasoning.Config{
		Provider: cfg.Reasoning.Provider,
		APIKey:   cfg.Reasoning.APIKey,
		BaseURL:  cfg.Reasoning.BaseURL,
		Options: reasoning.Options{
			Model:       cfg.Reasoning.Model,
			Temperature: cfg.Reasoning.Temperature,
			MaxTokens:   cfg.Reasoning.MaxTokens,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create reasoning client: %w", err)
	}

	cat, err := catalog.New()
	if err != nil {
		return fmt.Errorf("failed to build action catalog: %w", err)
	}

	queue := laneq.New()
	defer queue.Close()

	orch, err := composer.New(composer.Config{
		Store:   store,
		Client:  client,
		Catalog: cat,
		Queue:   queue,
		Logger:  log.Module("composer"),
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	pipeline := stream.NewPipeline(orch, log.Module("stream"))

	server, err := gateway.NewServer(gateway.Options{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, orch, pipeline, log.Module("gateway"))
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		rootLogger := log.Zerolog()
		rootLogger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	return server.Stop()
}

// buildStore constructs the configured session store and its retention
// janitor. The returned close function is a no-op for the in-memory backend.
func buildStore(cfg *config.Config, log *logger.Logger) (session.Store, *session.Janitor, func(), error) {
	retention := time.Duration(cfg.Store.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = session.DefaultRetention
	}

	switch cfg.Store.Backend {
	case "sqlite":
		store, err := session.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open session store: %w", err)
		}
		janitor, err := newJanitor(cfg, store, retention, log)
		if err != nil {
			store.Close()
			return nil, nil, nil, err
		}
		return store, janitor, func() { store.Close() }, nil
	default:
		store := session.NewMemoryStore()
		janitor, err := newJanitor(cfg, store, retention, log)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, janitor, func() {}, nil
	}
}

func newJanitor(cfg *config.Config, store session.Pruner, retention time.Duration, log *logger.Logger) (*session.Janitor, error) {
	if !cfg.Store.CleanupEnabled {
		return nil, nil
	}
	janitor, err := session.NewJanitor(store, retention, cfg.Store.CleanupSchedule, log.Module("janitor"))
	if err != nil {
		return nil, fmt.Errorf("failed to create session janitor: %w", err)
	}
	return janitor, nil
}
