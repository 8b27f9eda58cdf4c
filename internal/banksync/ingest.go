package banksync

import (
	"context"
	"fmt"
	"time"

	bq "github.com/saveplus/saveplus/internal/bigquery"
	"github.com/saveplus/saveplus/internal/gcs"
	"github.com/saveplus/saveplus/internal/logger"
)

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	Files    int `json:"files"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Pending  int `json:"pending"`
}

// Ingest parses an export already in memory and inserts its rows.
func Ingest(ctx context.Context, repo bq.TransactionRepository, data []byte, userID string, now time.Time) (*IngestResult, error) {
	log := logger.FromContext(ctx)

	parsed, err := Parse(data, userID, now)
	if err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}
	for _, p := range parsed.Problems {
		log.Warn().Str("problem", p).Msg("Skipping bank-sync record")
	}

	if len(parsed.Rows) > 0 {
		if err := repo.InsertTransactions(ctx, parsed.Rows); err != nil {
			return nil, fmt.Errorf("Ingest: inserting %d rows: %w", len(parsed.Rows), err)
		}
	}

	return &IngestResult{
		Files:    1,
		Inserted: len(parsed.Rows),
		Skipped:  parsed.Skipped,
		Pending:  parsed.Pending,
	}, nil
}

// IngestFromGCS ingests one export object, or every object under a
// gs://bucket/prefix/ URI. A file that fails to download or parse stops
// the run; rows from earlier files stay inserted.
func IngestFromGCS(ctx context.Context, storage gcs.StorageService, repo bq.TransactionRepository, uri, userID string, now time.Time) (*IngestResult, error) {
	log := logger.FromContext(ctx)

	uris := []string{uri}
	if gcs.IsPrefix(uri) {
		bucket, prefix, err := gcs.ParseURI(uri)
		if err != nil {
			return nil, fmt.Errorf("IngestFromGCS: %w", err)
		}
		uris, err = storage.List(ctx, bucket, prefix)
		if err != nil {
			return nil, fmt.Errorf("IngestFromGCS: listing: %w", err)
		}
	}

	total := &IngestResult{}
	for _, u := range uris {
		data, err := storage.Fetch(ctx, u)
		if err != nil {
			return total, fmt.Errorf("IngestFromGCS: fetching %s: %w", u, err)
		}

		res, err := Ingest(ctx, repo, data, userID, now)
		if err != nil {
			return total, fmt.Errorf("IngestFromGCS: %s: %w", u, err)
		}

		log.Info().
			Str("gcs_uri", u).
			Int("inserted", res.Inserted).
			Int("skipped", res.Skipped).
			Int("pending", res.Pending).
			Msg("Ingested bank-sync export")

		total.Files++
		total.Inserted += res.Inserted
		total.Skipped += res.Skipped
		total.Pending += res.Pending
	}
	return total, nil
}
