package cmd

import (
	"context"
	"fmt"

	gcspubsub "cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/clock/system"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/config"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/id/uuid"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/ingest"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/metadata"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/normalizer"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/publisher/pubsub"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/storage"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/storage/gcs"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/storage/local"
)

// newIngestCmd creates the 'ingest' subcommand: the local image pass.
func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Normalize local category folders into a processed dataset",
		Long: `Walks the configured input directory (one subdirectory per jewelry
category), converts each image to a normalized JPEG, uploads accepted
images to blob storage, and writes one metadata artifact per category.`,
		RunE: runIngestCommand,
	}
}

func runIngestCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stderr sync is best effort

	norm, err := normalizer.New(normalizer.Config{
		OutputDir: cfg.Ingest.OutputDir,
		MinSize:   cfg.Ingest.MinImageSize,
		Quality:   cfg.Ingest.JPEGQuality,
	}, logger)
	if err != nil {
		return fmt.Errorf("init normalizer: %w", err)
	}

	agg, err := metadata.New(cfg.Ingest.OutputDir, logger)
	if err != nil {
		return fmt.Errorf("init aggregator: %w", err)
	}

	blobs, err := buildBlobStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	var pub pipeline.Publisher
	if cfg.PubSub.IngestTopic != "" && cfg.PubSub.ProjectID != "" {
		client, err := gcspubsub.NewClient(cmd.Context(), cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		defer client.Close() //nolint:errcheck // shutdown path
		pub, err = pubsub.New(client)
		if err != nil {
			return fmt.Errorf("init publisher: %w", err)
		}
	}

	p, err := ingest.New(ingest.Config{
		InputDir:     cfg.Ingest.InputDir,
		Workers:      cfg.Ingest.Workers,
		PublishTopic: cfg.PubSub.IngestTopic,
	}, ingest.Deps{
		Normalizer: norm,
		Blobs:      blobs,
		Aggregator: agg,
		Publisher:  pub,
		IDs:        uuid.NewUUIDGenerator(),
		Clock:      system.New(),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init ingestion pipeline: %w", err)
	}

	if err := p.Run(cmd.Context()); err != nil {
		return fmt.Errorf("run ingestion: %w", err)
	}
	logger.Info("ingestion complete")
	return nil
}

// buildBlobStore selects the configured storage backend.
func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Provider, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	case "local":
		return local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
	default:
		logger.Info("blob storage disabled; processed images stay local only")
		return storage.NoOpProvider{}, nil
	}
}
