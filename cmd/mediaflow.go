package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	gcspubsub "cloud.google.com/go/pubsub"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/clock/system"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/hash/sha256"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/id/uuid"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/media"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/mediaflow"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/publisher/pubsub"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/records"
)

// storageEvent is the shape of a storage object notification.
type storageEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// newMediaflowCmd creates the 'mediaflow' subcommand: the event-driven
// hosting worker.
func newMediaflowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mediaflow",
		Short: "Push new storage objects through the media hosting flow",
		Long: `Subscribes to storage object notifications and, for each new image,
uploads it to the media hosting service, records the hosted asset in
Postgres, and publishes a completion event.`,
		RunE: runMediaflowCommand,
	}
}

func runMediaflowCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stderr sync is best effort

	if cfg.PubSub.ProjectID == "" || cfg.PubSub.EventSubscription == "" {
		return fmt.Errorf("pubsub.project_id and pubsub.event_subscription are required")
	}
	if cfg.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	mediaClient, err := media.New(media.Config{
		CloudName: cfg.Media.CloudName,
		APIKey:    cfg.Media.APIKey,
		APISecret: cfg.Media.APISecret,
	}, logger)
	if err != nil {
		return fmt.Errorf("init media client: %w", err)
	}

	store, err := records.NewStore(ctx, records.StoreConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("init record store: %w", err)
	}
	defer store.Close()

	client, err := gcspubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	defer client.Close() //nolint:errcheck // shutdown path

	pub, err := pubsub.New(client)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}

	worker, err := mediaflow.New(mediaflow.Config{
		Folder:          cfg.Media.Folder,
		CompletionTopic: cfg.PubSub.CompletionTopic,
	}, mediaflow.Deps{
		Blobs:     blobs,
		Media:     mediaClient,
		Records:   store,
		Publisher: pub,
		Hasher:    sha256.New(),
		IDs:       uuid.NewUUIDGenerator(),
		Clock:     system.New(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("init mediaflow worker: %w", err)
	}

	sub := client.Subscription(cfg.PubSub.EventSubscription)
	logger.Info("mediaflow worker listening",
		zap.String("subscription", cfg.PubSub.EventSubscription),
	)

	err = sub.Receive(ctx, func(msgCtx context.Context, msg *gcspubsub.Message) {
		var event storageEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Warn("unparseable storage event dropped", zap.Error(err))
			msg.Ack()
			return
		}
		if err := worker.Process(msgCtx, event.Bucket, event.Name); err != nil {
			logger.Error("mediaflow processing failed",
				zap.String("key", event.Name),
				zap.Error(err),
			)
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive events: %w", err)
	}
	logger.Info("mediaflow worker stopped")
	return nil
}
