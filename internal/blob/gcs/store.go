package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/spendiq/internal/blob"
)

// Store archives uploads in a Google Cloud Storage bucket. It holds a shared client;
// call Close when done.
// It assumes Application Default Credentials are configured.
type Store struct {
	client *storage.Client
	bucket string
}

// NewStore creates a Cloud Storage backed blob store for bucket.
func NewStore(ctx context.Context, bucket string) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewStore: bucket is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewStore: create storage client: %w", err)
	}

	return &Store{client: client, bucket: bucket}, nil
}

// Close closes the storage client.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Put implements blob.Store.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Put: write to GCS: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Put: finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

// Get implements blob.Store.
func (s *Store) Get(ctx context.Context, uri string) ([]byte, error) {
	bucketName, objectPath, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Get: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Get: reading bytes: %w", err)
	}

	return data, nil
}

// Delete implements blob.Store.
func (s *Store) Delete(ctx context.Context, uri string) error {
	bucketName, objectPath, err := ParseURI(uri)
	if err != nil {
		return err
	}

	err = s.client.Bucket(bucketName).Object(objectPath).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("Delete: deleting object %s/%s: %w", bucketName, objectPath, err)
	}
	return nil
}

// ParseURI splits "gs://bucket/path/to/file.pdf" into bucket and object path.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}

	return parts[0], parts[1], nil
}

// FileName extracts the file name from a GCS URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func FileName(uri string) string {
	_, object, err := ParseURI(uri)
	if err != nil {
		return path.Base(strings.TrimPrefix(uri, "gs://"))
	}
	return path.Base(object)
}

var _ blob.Store = (*Store)(nil)
