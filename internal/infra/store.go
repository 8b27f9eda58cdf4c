// Package infra picks the storage backend for a configuration.
package infra

import (
	"context"
	"fmt"

	bq "github.com/saveplus/saveplus/internal/bigquery"
	"github.com/saveplus/saveplus/internal/config"
	infraBQ "github.com/saveplus/saveplus/internal/infra/bigquery"
	"github.com/saveplus/saveplus/internal/infra/sqlite"
)

// OpenStore opens the store named by cfg.Driver. The caller closes it.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (bq.Store, error) {
	switch cfg.Driver {
	case config.DriverBigQuery:
		repo, err := infraBQ.NewRepository(ctx, cfg.ProjectID, cfg.DatasetID)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return repo, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("OpenStore: unknown driver %q", cfg.Driver)
	}
}
