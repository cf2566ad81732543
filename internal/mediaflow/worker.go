// Package mediaflow reacts to new storage objects: it pushes each object
// through the transform-and-host service, records the hosted asset, and
// publishes a completion event.
package mediaflow

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/metrics"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
)

// Config controls the worker.
type Config struct {
	// Folder is the hosted folder every upload lands in.
	Folder string
	// CompletionTopic receives one event per processed object. Empty
	// disables publishing.
	CompletionTopic string
}

// Deps are the worker's collaborators. All but Publisher are required.
type Deps struct {
	Blobs     pipeline.BlobStore
	Media     pipeline.MediaService
	Records   pipeline.RecordStore
	Publisher pipeline.Publisher
	Hasher    pipeline.Hasher
	IDs       pipeline.IDGenerator
	Clock     pipeline.Clock
	Logger    *zap.Logger
}

// Worker processes one storage object per call.
type Worker struct {
	cfg  Config
	deps Deps
}

// New validates deps and builds a Worker.
func New(cfg Config, deps Deps) (*Worker, error) {
	if deps.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if deps.Media == nil {
		return nil, fmt.Errorf("media service is required")
	}
	if deps.Records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if deps.Hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if deps.IDs == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.CompletionTopic != "" && deps.Publisher == nil {
		return nil, fmt.Errorf("completion topic %q set without a publisher", cfg.CompletionTopic)
	}
	return &Worker{cfg: cfg, deps: deps}, nil
}

// Process handles one object end to end. Any stage failure returns a
// wrapped error and leaves retry policy to the caller's event loop.
func (w *Worker) Process(ctx context.Context, bucket, key string) error {
	log := w.deps.Logger.With(
		zap.String("bucket", bucket),
		zap.String("key", key),
	)
	log.Info("processing storage object")

	data, err := w.deps.Blobs.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}

	contentHash, err := w.deps.Hasher.Hash(data)
	if err != nil {
		return fmt.Errorf("hash %s: %w", key, err)
	}

	// The hosting API uploads from a file path, so stage the object locally.
	staged, err := w.stageObject(key, data)
	if err != nil {
		return err
	}
	defer os.Remove(staged)

	result, err := w.deps.Media.Upload(ctx, staged, pipeline.MediaUploadOptions{
		Folder: w.cfg.Folder,
		Tags:   tagsForKey(key),
	})
	if err != nil {
		metrics.ObserveUpload("failure")
		return fmt.Errorf("hosted upload %s: %w", key, err)
	}
	metrics.ObserveUpload("success")

	item := pipeline.MediaItem{
		ImageID:     imageID(key),
		HostedURL:   result.SecureURL,
		Format:      result.Format,
		Bytes:       result.Bytes,
		Width:       result.Width,
		Height:      result.Height,
		ContentHash: contentHash,
		ProcessedAt: w.deps.Clock.Now(),
	}
	if err := w.deps.Records.PutItem(ctx, item); err != nil {
		return fmt.Errorf("record media item %s: %w", item.ImageID, err)
	}

	if err := w.publishCompletion(ctx, item); err != nil {
		return err
	}

	log.Info("object processed",
		zap.String("image_id", item.ImageID),
		zap.String("hosted_url", item.HostedURL),
	)
	return nil
}

func (w *Worker) publishCompletion(ctx context.Context, item pipeline.MediaItem) error {
	if w.cfg.CompletionTopic == "" {
		return nil
	}
	eventID, err := w.deps.IDs.NewID()
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}
	event := map[string]any{
		"event_id":   eventID,
		"image_id":   item.ImageID,
		"hosted_url": item.HostedURL,
		"timestamp":  w.deps.Clock.Now().Format(time.RFC3339),
	}
	if _, err := w.deps.Publisher.Publish(ctx, w.cfg.CompletionTopic, event); err != nil {
		return fmt.Errorf("publish completion event for %s: %w", item.ImageID, err)
	}
	return nil
}

func (w *Worker) stageObject(key string, data []byte) (string, error) {
	f, err := os.CreateTemp("", "mediaflow-*"+filepath.Ext(key))
	if err != nil {
		return "", fmt.Errorf("stage object %s: %w", key, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("stage object %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("stage object %s: %w", key, err)
	}
	return f.Name(), nil
}

// imageID strips the extension from the object key; the key's directory
// structure (category/filename) stays part of the ID.
func imageID(key string) string {
	return strings.TrimSuffix(key, path.Ext(key))
}

// tagsForKey tags the hosted asset with its category (the key's first path
// segment) when one exists.
func tagsForKey(key string) []string {
	dir := path.Dir(key)
	if dir == "." || dir == "/" {
		return nil
	}
	return []string{path.Base(dir)}
}
