// Package records provides Postgres-backed persistence for media items.
package records

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// StoreConfig controls the Postgres connection pool used for media items.
type StoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store upserts media item rows into Postgres.
type Store struct {
	pool  execCloser
	table string
}

var _ pipeline.RecordStore = (*Store)(nil)

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "media_items"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{
		pool:  pool,
		table: table,
	}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool execCloser, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "media_items"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// PutItem upserts one media item row keyed by image_id. A repeated image_id
// overwrites the previous row, so reprocessing an image is idempotent.
func (s *Store) PutItem(ctx context.Context, item pipeline.MediaItem) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if item.ImageID == "" {
		return fmt.Errorf("image id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	image_id,
	hosted_url,
	format,
	bytes,
	width,
	height,
	content_hash,
	processed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (image_id) DO UPDATE SET
	hosted_url = EXCLUDED.hosted_url,
	format = EXCLUDED.format,
	bytes = EXCLUDED.bytes,
	width = EXCLUDED.width,
	height = EXCLUDED.height,
	content_hash = EXCLUDED.content_hash,
	processed_at = EXCLUDED.processed_at`, s.table)

	args := []any{
		item.ImageID,
		item.HostedURL,
		item.Format,
		item.Bytes,
		item.Width,
		item.Height,
		item.ContentHash,
		item.ProcessedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert media item: %w", err)
	}
	return nil
}
