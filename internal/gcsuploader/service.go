// Package gcsuploader moves bank-sync exports in and out of Cloud Storage.
package gcsuploader

import (
	"context"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/saveplus/saveplus/internal/gcs"
)

// StorageService is re-exported so callers only import this package.
type StorageService = gcs.StorageService

// Service is the Cloud Storage implementation of StorageService. It owns
// one client shared by every call.
type Service struct {
	client *storage.Client
}

var _ StorageService = (*Service)(nil)

// NewService creates a client using Application Default Credentials.
func NewService(ctx context.Context) (*Service, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewService: create storage client: %w", err)
	}
	return &Service{client: client}, nil
}

// NewServiceWithClient wraps an existing client.
func NewServiceWithClient(client *storage.Client) *Service {
	return &Service{client: client}
}

// Close releases the client.
func (s *Service) Close() error {
	return s.client.Close()
}

// ExportObjectName is where a user's bank-sync export is stored:
// bank-sync/<user>/<yyyy-mm-dd>/<file>.
func ExportObjectName(userID, filename string, now time.Time) string {
	return path.Join("bank-sync", userID, now.UTC().Format("2006-01-02"), path.Base(filename))
}
