package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/saveplus/saveplus/internal/config"
	"github.com/saveplus/saveplus/internal/infra"
	"github.com/saveplus/saveplus/internal/logger"
	"github.com/saveplus/saveplus/internal/notionsync"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	configPath := flag.String("config", os.Getenv("SAVEPLUS_CONFIG"), "Path to YAML config (or set SAVEPLUS_CONFIG env)")
	userID := flag.String("user", "", "User whose subscriptions are mirrored (required)")
	notionToken := flag.String("notion-token", "", "Notion API token (default from config)")
	notionDBID := flag.String("notion-db-id", "", "Notion database ID (default from config)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	if *notionToken == "" {
		*notionToken = cfg.Notion.Token
	}
	if *notionDBID == "" {
		*notionDBID = cfg.Notion.DatabaseID
	}

	// Validate required flags
	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token or NOTION_TOKEN is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id or SAVEPLUS_NOTION_DATABASE_ID is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("user_id", *userID).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	store, err := infra.OpenStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	notionClient := notionsync.NewNotionClient(*notionToken)

	res, err := notionsync.SyncSubscriptions(ctx, store, notionClient, *notionDBID, *userID, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d archived, %d failed.\n", res.Created, res.Updated, res.Archived, res.Failed)
}
