// Package storage defines the interfaces for a blob storage provider.
// The abstraction keeps the pipelines independent of a specific backend
// (Google Cloud Storage or the local filesystem).
package storage

import (
	"context"
	"fmt"
)

// Provider is the common interface for a blob storage backend.
type Provider interface {
	// Save uploads data under the given object name.
	Save(ctx context.Context, objectName string, data []byte) error
	// Download returns the bytes stored under the given object name.
	Download(ctx context.Context, objectName string) ([]byte, error)
}

// NoOpProvider accepts every write and holds nothing. Useful for dry runs
// where images are processed but not durably stored.
type NoOpProvider struct{}

// Save does nothing and always succeeds.
func (NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}

// Download always fails: a NoOpProvider retains nothing.
func (NoOpProvider) Download(_ context.Context, objectName string) ([]byte, error) {
	return nil, fmt.Errorf("object %s not available from no-op store", objectName)
}
