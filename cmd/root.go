// Package cmd defines the CLI commands for the jewelry-dataset executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/config"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/logging"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/metrics"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jewelry-dataset",
		Short: "Builds jewelry image datasets from local folders and product sites.",
		Long: `jewelry-dataset normalizes locally collected jewelry photos into
training-ready JPEGs and politely scrapes configured product sites for
additional images and metadata. Accepted images can be uploaded to blob
storage and pushed through the media hosting flow.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./jewelry-dataset.yaml)")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMediaflowCmd())

	return cmd
}

// loadEnvironment loads configuration and builds the logger. Every
// subcommand starts here.
func loadEnvironment() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
