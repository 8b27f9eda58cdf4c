package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/saveplus/saveplus/internal/banksync"
	"github.com/saveplus/saveplus/internal/config"
	"github.com/saveplus/saveplus/internal/gcsuploader"
	"github.com/saveplus/saveplus/internal/infra"
	"github.com/saveplus/saveplus/internal/logger"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	configPath := flag.String("config", os.Getenv("SAVEPLUS_CONFIG"), "Path to YAML config (or set SAVEPLUS_CONFIG env)")
	gcsURI := flag.String("gcs-uri", "", "GCS URI of a bank-sync export, or a prefix ending in / (e.g. gs://bucket/bank-sync/u1/)")
	userID := flag.String("user", "", "User ID for records that do not carry one (required)")
	flag.Parse()

	if *gcsURI == "" {
		log.Fatal().Msg("Error: --gcs-uri is required")
	}
	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := infra.OpenStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	storage, err := gcsuploader.NewService(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer storage.Close()

	log.Info().Str("gcs_uri", *gcsURI).Str("user_id", *userID).Msg("Starting ingestion")

	res, err := banksync.IngestFromGCS(ctx, storage, store, *gcsURI, *userID, time.Now().UTC())
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	fmt.Printf("Ingestion completed: %d file(s), %d inserted, %d skipped, %d pending.\n", res.Files, res.Inserted, res.Skipped, res.Pending)
}
