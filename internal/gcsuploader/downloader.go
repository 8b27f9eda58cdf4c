package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"sort"

	"cloud.google.com/go/storage"
	"github.com/saveplus/saveplus/internal/gcs"
	"google.golang.org/api/iterator"
)

// Fetch downloads the object bytes from the given GCS URI.
func (s *Service) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucketName, objectPath, err := gcs.ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	if objectPath == "" {
		return nil, fmt.Errorf("Fetch: invalid GCS URI (no object path): %s", uri)
	}

	rc, err := s.client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// List returns the URIs of every object under prefix. Folder placeholder
// objects (names ending in "/") are skipped.
func (s *Service) List(ctx context.Context, bucketName, prefix string) ([]string, error) {
	it := s.client.Bucket(bucketName).Objects(ctx, &storage.Query{Prefix: prefix})

	var uris []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: iterating %s/%s: %w", bucketName, prefix, err)
		}
		if attrs.Name == "" || attrs.Name[len(attrs.Name)-1] == '/' {
			continue
		}
		uris = append(uris, gcs.URI(bucketName, attrs.Name))
	}

	sort.Strings(uris)
	return uris, nil
}
