// Package ingest drives the local image ingestion pipeline: walk category
// folders, normalize each image, upload accepted ones to blob storage, and
// flush per-category metadata artifacts.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/metadata"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/metrics"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/normalizer"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/runner"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/storage"
)

// The two recognized input extensions: one lossy, one lossless.
var imageExtensions = map[string]struct{}{
	".jpg": {},
	".png": {},
}

// Config controls a local ingestion run.
type Config struct {
	// InputDir holds one subdirectory per category.
	InputDir string
	// Workers caps concurrent image normalization. Defaults to NumCPU.
	Workers int
	// PublishTopic, when set together with a Publisher, receives one
	// completion event per category.
	PublishTopic string
}

// Deps are the collaborators of the pipeline. Normalizer, Blobs,
// Aggregator, and Logger are required; Publisher, IDs, and Clock are
// optional (events are skipped without a Publisher).
type Deps struct {
	Normalizer *normalizer.Normalizer
	Blobs      storage.Provider
	Aggregator *metadata.Aggregator
	Publisher  pipeline.Publisher
	IDs        pipeline.IDGenerator
	Clock      pipeline.Clock
	Logger     *zap.Logger
}

// Pipeline orchestrates one ingestion run over a directory tree.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New validates dependencies and builds a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if strings.TrimSpace(cfg.InputDir) == "" {
		return nil, fmt.Errorf("input directory is required")
	}
	if deps.Normalizer == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if deps.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if deps.Aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Pipeline{cfg: cfg, deps: deps}, nil
}

// Run processes every category folder under InputDir. Per-item failures
// are contained: the run completes and each category's artifact reflects
// whatever its successes warrant.
func (p *Pipeline) Run(ctx context.Context) error {
	entries, err := os.ReadDir(p.cfg.InputDir)
	if err != nil {
		return fmt.Errorf("read input dir %s: %w", p.cfg.InputDir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingestion interrupted: %w", err)
		}
		p.processCategory(ctx, entry.Name())
	}
	return nil
}

func (p *Pipeline) processCategory(ctx context.Context, category string) {
	log := p.deps.Logger.With(zap.String("category", category))
	log.Info("processing category")

	paths, err := collectImages(filepath.Join(p.cfg.InputDir, category))
	if err != nil {
		log.Error("enumerating images failed", zap.Error(err))
		return
	}

	tasks := make([]runner.Task[normalizer.Result], len(paths))
	for i, path := range paths {
		imagePath := path
		tasks[i] = runner.Task[normalizer.Result]{
			Label: imagePath,
			Fn: func(taskCtx context.Context) (normalizer.Result, error) {
				metrics.IncActiveTasks()
				defer metrics.DecActiveTasks()
				return p.processImage(taskCtx, category, imagePath)
			},
		}
	}

	outcomes, err := runner.Run(ctx, p.cfg.Workers, tasks)
	if err != nil {
		log.Error("category batch failed to start", zap.Error(err))
		return
	}

	records := make([]pipeline.ImageRecord, 0, len(outcomes))
	for _, o := range outcomes {
		switch {
		case o.Failed():
			metrics.ObserveImage(category, "failed")
			log.Error("image processing failed",
				zap.String("path", o.Label),
				zap.Error(o.Err),
			)
		case o.Value.Accepted:
			metrics.ObserveImage(category, "accepted")
			records = append(records, o.Value.Record)
		default:
			metrics.ObserveImage(category, "rejected")
			log.Debug("image rejected",
				zap.String("path", o.Label),
				zap.String("reason", o.Value.Reason),
			)
		}
	}

	// Zero accepted images still yields an (empty) artifact: a missing file
	// would be indistinguishable from a category never processed.
	if err := p.deps.Aggregator.WriteCategory(category, records); err != nil {
		log.Error("writing category metadata failed", zap.Error(err))
		return
	}

	p.publishCategoryEvent(ctx, category, len(records))
}

// processImage normalizes one file and uploads the accepted output. Upload
// failures are logged and do not discard the record: the local processed
// copy is the durable fallback.
func (p *Pipeline) processImage(ctx context.Context, category, path string) (normalizer.Result, error) {
	res, err := p.deps.Normalizer.Normalize(path)
	if err != nil {
		return normalizer.Result{}, fmt.Errorf("normalize %s: %w", path, err)
	}
	if !res.Accepted {
		return res, nil
	}

	data, err := os.ReadFile(res.Record.ProcessedPath)
	if err != nil {
		return normalizer.Result{}, fmt.Errorf("read processed image %s: %w", res.Record.ProcessedPath, err)
	}
	if err := p.deps.Blobs.Save(ctx, res.Record.StorageKey, data); err != nil {
		metrics.ObserveUpload("failure")
		p.deps.Logger.Error("blob upload failed",
			zap.String("category", category),
			zap.String("key", res.Record.StorageKey),
			zap.Error(err),
		)
		return res, nil
	}
	metrics.ObserveUpload("success")
	return res, nil
}

func (p *Pipeline) publishCategoryEvent(ctx context.Context, category string, accepted int) {
	if p.deps.Publisher == nil || p.cfg.PublishTopic == "" {
		return
	}
	payload := map[string]any{
		"category": category,
		"accepted": accepted,
	}
	if p.deps.IDs != nil {
		if id, err := p.deps.IDs.NewID(); err == nil {
			payload["event_id"] = id
		}
	}
	if p.deps.Clock != nil {
		payload["timestamp"] = p.deps.Clock.Now().Format(time.RFC3339)
	}
	if _, err := p.deps.Publisher.Publish(ctx, p.cfg.PublishTopic, payload); err != nil {
		p.deps.Logger.Warn("category event publish failed",
			zap.String("category", category),
			zap.Error(err),
		)
	}
}

// collectImages recursively gathers recognized image files under dir.
func collectImages(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]; ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return paths, nil
}
