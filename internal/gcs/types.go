// Package gcs defines the Cloud Storage operations the service depends on
// and helpers for gs:// URIs.
package gcs

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// StorageService provides an interface for cloud storage operations.
// gcsuploader.Service implements it; tests use function-field mocks.
type StorageService interface {
	// UploadFile uploads a local file to a storage bucket under the given object name.
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error

	// Fetch downloads the object at a gs:// URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)

	// List returns gs:// URIs of the objects under prefix, sorted by name.
	List(ctx context.Context, bucketName, prefix string) ([]string, error)
}

// ParseURI splits gs://bucket/path/to/object into bucket and object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %s", uri)
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], parts[1], nil
}

// URI builds a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// Filename returns the last path element of a URI.
// e.g., "gs://bucket/folder/file.json" → "file.json"
func Filename(uri string) string {
	_, object, err := ParseURI(uri)
	if err != nil || object == "" {
		return strings.TrimPrefix(uri, "gs://")
	}
	return path.Base(object)
}

// IsPrefix reports whether the URI names a folder rather than an object.
func IsPrefix(uri string) bool {
	_, object, err := ParseURI(uri)
	return err == nil && (object == "" || strings.HasSuffix(object, "/"))
}
