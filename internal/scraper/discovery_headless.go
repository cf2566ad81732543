package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
)

// HeadlessConfig controls the browser-backed discoverer.
type HeadlessConfig struct {
	UserAgent         string
	NavigationTimeout time.Duration
}

// HeadlessDiscoverer renders the listing page in headless Chrome before
// extracting product links. Needed for storefronts that assemble their
// product grid client-side.
type HeadlessDiscoverer struct {
	cfg         HeadlessConfig
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewHeadlessDiscoverer creates a chromedp-backed discoverer.
func NewHeadlessDiscoverer(cfg HeadlessConfig, logger *zap.Logger) *HeadlessDiscoverer {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &HeadlessDiscoverer{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}
}

// Close cancels the allocator context.
func (d *HeadlessDiscoverer) Close() {
	d.allocCancel()
}

// Discover renders the base URL and extracts product links from the fully
// rendered DOM using the listing selector.
func (d *HeadlessDiscoverer) Discover(ctx context.Context, target pipeline.ScrapeTarget) ([]string, error) {
	if target.ListingSelector == "" {
		return nil, fmt.Errorf("headless discovery for %s requires a listing_selector", target.BaseURL)
	}

	taskCtx, taskCancel := chromedp.NewContext(d.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, d.cfg.NavigationTimeout)
	defer cancel()

	go func() {
		// Propagate caller cancellation into the browser context.
		select {
		case <-ctx.Done():
			cancel()
		case <-taskCtx.Done():
		}
	}()

	var html string
	actions := []chromedp.Action{
		emulation.SetUserAgentOverride(d.userAgent()),
		chromedp.Navigate(target.BaseURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("render listing page %s: %w", target.BaseURL, err)
	}

	urls, err := extractLinks([]byte(html), target.BaseURL, target.ListingSelector)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("rendered listing selector %q matched no links on %s", target.ListingSelector, target.BaseURL)
	}
	d.logger.Debug("headless discovery complete",
		zap.String("site", target.BaseURL),
		zap.Int("urls", len(urls)),
	)
	return capURLs(urls, target.MaxProducts), nil
}

func (d *HeadlessDiscoverer) userAgent() string {
	if d.cfg.UserAgent != "" {
		return d.cfg.UserAgent
	}
	return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
}
