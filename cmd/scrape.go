package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/metadata"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/scraper"
)

// newScrapeCmd creates the 'scrape' subcommand: the polite site pass.
func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Scrape configured product sites for images and metadata",
		Long: `Visits each configured site, discovers product page URLs, fetches
them under a concurrency cap with randomized politeness delays, extracts
the configured image/title/price selectors, and writes per-site JSON and
CSV result artifacts plus the downloaded images.`,
		RunE: runScrapeCommand,
	}
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stderr sync is best effort

	if len(cfg.Targets) == 0 {
		return fmt.Errorf("no scrape targets configured")
	}

	agg, err := metadata.New(cfg.Scraper.OutputDir, logger)
	if err != nil {
		return fmt.Errorf("init aggregator: %w", err)
	}

	delayMin, delayMax := cfg.ScrapeDelayRange()
	s, err := scraper.New(scraper.Config{
		OutputDir:          cfg.Scraper.OutputDir,
		ConcurrentRequests: cfg.Scraper.ConcurrentRequests,
		DelayMin:           delayMin,
		DelayMax:           delayMax,
		UserAgents:         cfg.Scraper.UserAgents,
		RequestTimeout:     cfg.RequestTimeout(),
	}, agg, logger)
	if err != nil {
		return fmt.Errorf("init scraper: %w", err)
	}

	if err := s.Run(cmd.Context(), cfg.Targets); err != nil {
		return fmt.Errorf("run scraper: %w", err)
	}
	logger.Info("scrape complete")
	return nil
}
