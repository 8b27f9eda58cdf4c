package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/saveplus/saveplus/internal/api"
	"github.com/saveplus/saveplus/internal/api/handlers"
	"github.com/saveplus/saveplus/internal/api/middleware"
	"github.com/saveplus/saveplus/internal/assistant"
	"github.com/saveplus/saveplus/internal/config"
	"github.com/saveplus/saveplus/internal/gcsuploader"
	"github.com/saveplus/saveplus/internal/infra"
	"github.com/saveplus/saveplus/internal/jobs/inmemory"
	"github.com/saveplus/saveplus/internal/logger"
	"github.com/saveplus/saveplus/internal/pipeline"
	"github.com/saveplus/saveplus/internal/voice"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("SAVEPLUS_CONFIG"), "Path to YAML config (or set SAVEPLUS_CONFIG env)")
		port       = flag.String("port", "", "HTTP server port (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *port != "" {
		cfg.HTTP.Port = *port
	}

	log, err := logger.NewWithOptions(os.Stderr, logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		log.Warn().Err(err).Msg("Invalid logging options, using defaults")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx := logger.WithContext(context.Background(), log)

	store, err := infra.OpenStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	deps := pipeline.NewDeps(store, newComposer(ctx, cfg, log))
	deps.Detector = cfg.DetectorOptions()
	deps.LookbackMonths = cfg.Detector.LookbackMonths

	// Job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.Options{
		BufferSize: cfg.Worker.QueueSize,
		Workers:    cfg.Worker.QueueWorkers,
		MaxRetries: cfg.Worker.MaxAttempts,
	}, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, pipeline.NewJobHandler(deps, nil)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job queue")
	}

	var bankSync *handlers.BankSyncHandler
	if cfg.Storage.Bucket == "" {
		log.Warn().Msg("No GCS bucket configured - bank-sync exports will not be archived")
		bankSync = handlers.NewBankSyncHandler(store, nil, "", log)
	} else {
		uploader, err := gcsuploader.NewService(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer uploader.Close()
		bankSync = handlers.NewBankSyncHandler(store, uploader, cfg.Storage.Bucket, log)
	}

	mux := api.NewRouter(api.Handlers{
		Subscriptions: handlers.NewSubscriptionsHandler(store, jobQueue, log),
		Nudges:        handlers.NewNudgesHandler(store, log),
		Transactions:  handlers.NewTransactionsHandler(store, voice.NewParser(), cfg.AnomalyOptions(), cfg.Anomaly.LookbackDays, log),
		BankSync:      bankSync,
		Jobs:          handlers.NewJobsHandler(jobStore, log),
	})

	if cfg.HTTP.APIKey == "" {
		log.Warn().Msg("No API key configured - /api routes are unauthenticated")
	}

	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      middleware.Chain(mux, log, cfg.HTTP.APIKey),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTP.Port).Str("store", cfg.Store.Driver).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

// newComposer returns nil (template copy) unless the assistant is enabled
// and its client can be created.
func newComposer(ctx context.Context, cfg *config.Config, log zerolog.Logger) pipeline.NudgeComposer {
	if !cfg.Assistant.Enabled {
		return nil
	}
	gen, err := assistant.NewGeminiGenerator(ctx, cfg.Assistant.Model, cfg.Assistant.APIKey)
	if err != nil {
		log.Warn().Err(err).Msg("Assistant unavailable, using template nudges")
		return nil
	}
	return assistant.NewNudgeComposer(gen)
}
