// Package metadata collects per-item outcomes into per-group artifacts.
package metadata

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
)

// Aggregator writes JSON (and, for sites, CSV) artifacts under one output
// directory. Each run is authoritative: a pre-existing artifact of the same
// name is overwritten, never merged.
type Aggregator struct {
	outputDir string
	logger    *zap.Logger
}

// New returns an Aggregator rooted at outputDir, creating it if absent.
func New(outputDir string, logger *zap.Logger) (*Aggregator, error) {
	if strings.TrimSpace(outputDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", outputDir, err)
	}
	return &Aggregator{outputDir: outputDir, logger: logger}, nil
}

// WriteCategory persists the accepted records for one category as
// <category>_metadata.json. An empty record set still writes a complete
// empty-array artifact: absence of the file would be indistinguishable from
// a category that was never processed.
func (a *Aggregator) WriteCategory(category string, records []pipeline.ImageRecord) error {
	if records == nil {
		records = []pipeline.ImageRecord{}
	}
	target := filepath.Join(a.outputDir, fmt.Sprintf("%s_metadata.json", category))
	if err := a.writeJSON(target, records); err != nil {
		return err
	}
	a.logger.Info("category metadata written",
		zap.String("category", category),
		zap.Int("records", len(records)),
		zap.String("path", target),
	)
	return nil
}

// WriteSite persists the successful product records for one site as a JSON
// artifact plus a tabular CSV export, both named after the site's host.
func (a *Aggregator) WriteSite(siteURL string, records []pipeline.ProductRecord) error {
	if records == nil {
		records = []pipeline.ProductRecord{}
	}
	slug := SiteSlug(siteURL)

	jsonPath := filepath.Join(a.outputDir, fmt.Sprintf("%s_results.json", slug))
	if err := a.writeJSON(jsonPath, records); err != nil {
		return err
	}

	csvPath := filepath.Join(a.outputDir, fmt.Sprintf("%s_results.csv", slug))
	if err := a.writeCSV(csvPath, records); err != nil {
		return err
	}

	a.logger.Info("site results written",
		zap.String("site", siteURL),
		zap.Int("records", len(records)),
		zap.String("json", jsonPath),
		zap.String("csv", csvPath),
	)
	return nil
}

func (a *Aggregator) writeJSON(target string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", target, err)
	}
	if err := os.WriteFile(target, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

func (a *Aggregator) writeCSV(target string, records []pipeline.ProductRecord) error {
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	w := csv.NewWriter(f)
	rows := [][]string{{"url", "title", "price", "image_filename"}}
	for _, rec := range records {
		rows = append(rows, []string{rec.URL, rec.Title, rec.Price, rec.ImageFilename})
	}
	if err := w.WriteAll(rows); err != nil {
		closeErr := f.Close()
		if closeErr != nil {
			return fmt.Errorf("write %s: %w (close: %v)", target, err, closeErr)
		}
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	return nil
}

// SiteSlug reduces a site URL to a filesystem-friendly artifact stem.
// Invalid URLs fall back to "unknown".
func SiteSlug(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	// Keep the port: two sites on one host must not share an artifact.
	host := strings.ToLower(u.Host)
	return strings.NewReplacer(".", "_", ":", "_").Replace(host)
}
