package blob

import (
	"context"
	"fmt"
	"time"
)

// Store archives uploaded statements so that a detached pipeline run, or a later
// reanalysis, can read them back.
type Store interface {
	// Put stores data under key and returns the URI to read it back.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get returns the bytes stored at uri.
	Get(ctx context.Context, uri string) ([]byte, error)

	// Delete removes the object at uri. Deleting a missing object is not an error.
	Delete(ctx context.Context, uri string) error
}

// UploadKey builds the object key for an upload, e.g. "uploads/u1/2024/01/05/<id>.pdf".
func UploadKey(userID, analysisID string, at time.Time) string {
	return fmt.Sprintf("uploads/%s/%s/%s.pdf", userID, at.UTC().Format("2006/01/02"), analysisID)
}
