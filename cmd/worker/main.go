package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/saveplus/saveplus/internal/assistant"
	bq "github.com/saveplus/saveplus/internal/bigquery"
	"github.com/saveplus/saveplus/internal/batch"
	"github.com/saveplus/saveplus/internal/config"
	"github.com/saveplus/saveplus/internal/infra"
	"github.com/saveplus/saveplus/internal/logger"
	"github.com/saveplus/saveplus/internal/pipeline"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("SAVEPLUS_CONFIG"), "Path to YAML config (or set SAVEPLUS_CONFIG env)")
		once       = flag.Bool("once", false, "Run a single pass and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log, err := logger.NewWithOptions(os.Stderr, logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		log.Warn().Err(err).Msg("Invalid logging options, using defaults")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	store, err := infra.OpenStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	w := &worker{
		store: store,
		deps:  newDeps(ctx, cfg, store, log),
		runner: batch.Runner{
			Concurrency: cfg.Worker.Concurrency,
			MaxAttempts: cfg.Worker.MaxAttempts,
			Backoff:     2 * time.Second,
		},
		activeWithin: cfg.GetActiveWithin(),
		log:          log,
	}

	if *once {
		if !w.runOnce(ctx) {
			os.Exit(1)
		}
		return
	}

	interval := cfg.GetWorkerInterval()
	log.Info().Dur("interval", interval).Msg("Worker service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		w.runOnce(ctx)
		select {
		case <-ctx.Done():
			log.Info().Msg("Worker service stopped")
			return
		case <-ticker.C:
		}
	}
}

type worker struct {
	store        bq.Store
	deps         pipeline.Deps
	runner       batch.Runner
	activeWithin time.Duration
	log          zerolog.Logger
}

// runOnce re-detects and then scores every recently active user. It
// reports whether every user succeeded.
func (w *worker) runOnce(ctx context.Context) bool {
	now := time.Now().UTC()
	userIDs, err := w.store.ListActiveUserIDs(ctx, now.Add(-w.activeWithin))
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to list active users")
		return false
	}

	report := w.runner.RunAll(ctx, userIDs, func(ctx context.Context, userID string) error {
		if _, err := pipeline.RunDetection(ctx, w.deps, userID, now); err != nil {
			return err
		}
		_, err := pipeline.RunZombieScoring(ctx, w.deps, userID, now)
		return err
	})

	for _, f := range report.Failed {
		w.log.Error().Err(f.Err).Str("user_id", f.UserID).Int("attempts", f.Attempts).Msg("User run failed")
	}
	w.log.Info().
		Int("users", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", len(report.Failed)).
		Dur("duration", report.Duration).
		Msg("Batch run finished")
	return report.OK()
}

func newDeps(ctx context.Context, cfg *config.Config, store bq.Store, log zerolog.Logger) pipeline.Deps {
	var composer pipeline.NudgeComposer
	if cfg.Assistant.Enabled {
		gen, err := assistant.NewGeminiGenerator(ctx, cfg.Assistant.Model, cfg.Assistant.APIKey)
		if err != nil {
			log.Warn().Err(err).Msg("Assistant unavailable, using template nudges")
		} else {
			composer = assistant.NewNudgeComposer(gen)
		}
	}

	deps := pipeline.NewDeps(store, composer)
	deps.Detector = cfg.DetectorOptions()
	deps.LookbackMonths = cfg.Detector.LookbackMonths
	return deps
}
