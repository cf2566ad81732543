// Package pipeline defines core types shared across subsystems.
package pipeline

import "time"

// ImageRecord is the metadata produced for each accepted local image.
// Immutable once created; owned by the ingestion pipeline until it is
// flushed into the per-category metadata artifact.
type ImageRecord struct {
	OriginalPath  string `json:"original_path"`
	ProcessedPath string `json:"processed_path"`
	Category      string `json:"category"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	StorageKey    string `json:"storage_key"`
}

// ScrapeSelectors holds the CSS selectors used to extract product fields.
type ScrapeSelectors struct {
	Image string `json:"image" mapstructure:"image"`
	Title string `json:"title" mapstructure:"title"`
	Price string `json:"price" mapstructure:"price"`
}

// ScrapeTarget is the read-only configuration for one site.
type ScrapeTarget struct {
	BaseURL         string          `json:"base_url" mapstructure:"base_url"`
	Selectors       ScrapeSelectors `json:"selectors" mapstructure:"selectors"`
	Discovery       string          `json:"discovery" mapstructure:"discovery"`
	ListingSelector string          `json:"listing_selector" mapstructure:"listing_selector"`
	MaxProducts     int             `json:"max_products" mapstructure:"max_products"`
}

// ProductRecord is produced by a fully successful per-product scrape.
type ProductRecord struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Price         string `json:"price"`
	ImageFilename string `json:"image_filename"`
}

// MediaItem is the record persisted after an image passes through the
// transform-and-host service. Keyed by ImageID with last-write-wins
// semantics in the record store.
type MediaItem struct {
	ImageID     string    `json:"image_id"`
	HostedURL   string    `json:"hosted_url"`
	Format      string    `json:"format"`
	Bytes       int64     `json:"bytes"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	ContentHash string    `json:"content_hash"`
	ProcessedAt time.Time `json:"processed_at"`
}

// UploadResult is returned by the media service after a hosted upload.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Bytes     int64  `json:"bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
}
