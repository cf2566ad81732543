package pipeline

import (
	"context"
	"time"
)

// BlobStore persists raw artifacts under an object key.
type BlobStore interface {
	Save(ctx context.Context, objectName string, data []byte) error
	Download(ctx context.Context, objectName string) ([]byte, error)
}

// MediaService is the opaque transform-and-host collaborator.
type MediaService interface {
	Upload(ctx context.Context, path string, opts MediaUploadOptions) (UploadResult, error)
	DeriveURL(publicID string, preset string) (string, error)
}

// MediaUploadOptions controls folder placement and tagging on upload.
type MediaUploadOptions struct {
	Folder string
	Tags   []string
}

// RecordStore persists structured media records, last write wins.
type RecordStore interface {
	PutItem(ctx context.Context, item MediaItem) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record and event IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
