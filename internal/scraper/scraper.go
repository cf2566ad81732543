package scraper

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/metadata"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/metrics"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/runner"
)

const (
	defaultConcurrentRequests = 5
	defaultDelayMin           = 1 * time.Second
	defaultDelayMax           = 3 * time.Second
)

// defaultUserAgents is the rotation pool used when none is configured.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
}

// Config controls scraping behavior across all sites of a run.
type Config struct {
	// OutputDir receives downloaded images (under images/) and, via the
	// aggregator, per-site result artifacts.
	OutputDir string
	// ConcurrentRequests caps in-flight product fetches per site run.
	ConcurrentRequests int
	// DelayMin/DelayMax bound the random politeness delay drawn once per
	// product task, before its request.
	DelayMin time.Duration
	DelayMax time.Duration
	// UserAgents is the rotation pool; one is drawn per request.
	UserAgents []string
	// RequestTimeout bounds every page and image fetch.
	RequestTimeout time.Duration
}

// Scraper runs the Discover -> Fetch&Parse -> Aggregate -> Persist pass
// for each configured site.
type Scraper struct {
	cfg        Config
	fetcher    *Fetcher
	aggregator *metadata.Aggregator
	logger     *zap.Logger
}

// New validates cfg and builds a Scraper.
func New(cfg Config, aggregator *metadata.Aggregator, logger *zap.Logger) (*Scraper, error) {
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.ConcurrentRequests <= 0 {
		cfg.ConcurrentRequests = defaultConcurrentRequests
	}
	if cfg.DelayMin == 0 && cfg.DelayMax == 0 {
		cfg.DelayMin = defaultDelayMin
		cfg.DelayMax = defaultDelayMax
	}
	if cfg.DelayMin < 0 || cfg.DelayMax < cfg.DelayMin {
		return nil, fmt.Errorf("delay range [%s, %s] is invalid", cfg.DelayMin, cfg.DelayMax)
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}
	if err := os.MkdirAll(filepath.Join(cfg.OutputDir, "images"), 0o750); err != nil {
		return nil, fmt.Errorf("create image output dir: %w", err)
	}

	return &Scraper{
		cfg:        cfg,
		fetcher:    NewFetcher(cfg.RequestTimeout),
		aggregator: aggregator,
		logger:     logger,
	}, nil
}

// Run scrapes each target in order. A failed site never stops the
// multi-site run; the concurrency cap applies within a single site's
// batch, not across sites.
func (s *Scraper) Run(ctx context.Context, targets []pipeline.ScrapeTarget) error {
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scrape run interrupted: %w", err)
		}
		s.scrapeSite(ctx, target)
	}
	return nil
}

// scrapeSite is a single forward pass; a discovery error aborts the site
// with no partial output.
func (s *Scraper) scrapeSite(ctx context.Context, target pipeline.ScrapeTarget) {
	log := s.logger.With(zap.String("site", target.BaseURL))
	log.Info("scraping site")

	discoverer, err := s.discovererFor(target)
	if err != nil {
		log.Error("no discovery strategy", zap.Error(err))
		return
	}
	if closer, ok := discoverer.(interface{ Close() }); ok {
		defer closer.Close()
	}

	urls, err := discoverer.Discover(ctx, target)
	if err != nil {
		log.Error("url discovery failed", zap.Error(err))
		return
	}
	log.Info("discovered product urls", zap.Int("count", len(urls)))

	tasks := make([]runner.Task[pipeline.ProductRecord], len(urls))
	for i, productURL := range urls {
		u := productURL
		tasks[i] = runner.Task[pipeline.ProductRecord]{
			Label: u,
			Fn: func(taskCtx context.Context) (pipeline.ProductRecord, error) {
				metrics.IncActiveTasks()
				defer metrics.DecActiveTasks()
				return s.scrapeProduct(taskCtx, target, u)
			},
		}
	}

	outcomes, err := runner.Run(ctx, s.cfg.ConcurrentRequests, tasks)
	if err != nil {
		log.Error("site batch failed to start", zap.Error(err))
		return
	}

	site := metadata.SiteSlug(target.BaseURL)
	for _, o := range outcomes {
		if o.Failed() {
			metrics.ObserveProduct(site, "failure")
			log.Warn("product scrape failed",
				zap.String("url", o.Label),
				zap.Error(o.Err),
			)
			continue
		}
		metrics.ObserveProduct(site, "success")
	}

	records := runner.Successes(outcomes)
	if err := s.aggregator.WriteSite(target.BaseURL, records); err != nil {
		log.Error("writing site results failed", zap.Error(err))
		return
	}
	log.Info("site complete",
		zap.Int("succeeded", len(records)),
		zap.Int("failed", runner.CountFailed(outcomes)),
	)
}

// scrapeProduct fetches one product page after its politeness delay,
// extracts the three configured fields, downloads the product image, and
// returns a record only when every step succeeded.
func (s *Scraper) scrapeProduct(ctx context.Context, target pipeline.ScrapeTarget, productURL string) (pipeline.ProductRecord, error) {
	var zero pipeline.ProductRecord

	if err := s.politenessDelay(ctx); err != nil {
		return zero, err
	}

	resp, err := s.fetcher.Fetch(ctx, productURL, s.randomUserAgent())
	if err != nil {
		return zero, fmt.Errorf("fetch product page: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("product page status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return zero, fmt.Errorf("parse product page: %w", err)
	}

	imageSel := doc.Find(target.Selectors.Image).First()
	if imageSel.Length() == 0 {
		return zero, fmt.Errorf("image selector %q matched nothing", target.Selectors.Image)
	}
	imageSrc, ok := imageSel.Attr("src")
	if !ok || strings.TrimSpace(imageSrc) == "" {
		return zero, fmt.Errorf("image selector %q matched an element without src", target.Selectors.Image)
	}

	titleSel := doc.Find(target.Selectors.Title).First()
	if titleSel.Length() == 0 {
		return zero, fmt.Errorf("title selector %q matched nothing", target.Selectors.Title)
	}
	priceSel := doc.Find(target.Selectors.Price).First()
	if priceSel.Length() == 0 {
		return zero, fmt.Errorf("price selector %q matched nothing", target.Selectors.Price)
	}

	imageURL, err := resolveURL(resp.URL, imageSrc)
	if err != nil {
		return zero, fmt.Errorf("resolve image url %q: %w", imageSrc, err)
	}

	imageResp, err := s.fetcher.Fetch(ctx, imageURL, s.randomUserAgent())
	if err != nil {
		return zero, fmt.Errorf("download image: %w", err)
	}

	filename := imageFilename(productURL)
	targetPath := filepath.Join(s.cfg.OutputDir, "images", filename)
	if err := os.WriteFile(targetPath, imageResp.Body, 0o600); err != nil {
		return zero, fmt.Errorf("save image %s: %w", targetPath, err)
	}

	return pipeline.ProductRecord{
		URL:           productURL,
		Title:         strings.TrimSpace(titleSel.Text()),
		Price:         strings.TrimSpace(priceSel.Text()),
		ImageFilename: filename,
	}, nil
}

// politenessDelay sleeps a duration drawn uniformly from the configured
// range, once per task. The cap and delay together set the effective
// site-wide rate at roughly cap/mean_delay requests per second.
func (s *Scraper) politenessDelay(ctx context.Context) error {
	span := s.cfg.DelayMax - s.cfg.DelayMin
	delay := s.cfg.DelayMin
	if span > 0 {
		delay += rand.N(span)
	}
	metrics.ObserveScrapeDelay(delay)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("delay interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (s *Scraper) discovererFor(target pipeline.ScrapeTarget) (Discoverer, error) {
	switch target.Discovery {
	case "", "listing":
		return NewListingDiscoverer(s.fetcher, s.randomUserAgent(), s.logger), nil
	case "sitemap":
		return NewSitemapDiscoverer(s.fetcher, s.randomUserAgent(), s.logger), nil
	case "headless":
		return NewHeadlessDiscoverer(HeadlessConfig{
			UserAgent:         s.randomUserAgent(),
			NavigationTimeout: s.cfg.RequestTimeout,
		}, s.logger), nil
	default:
		return nil, fmt.Errorf("unknown discovery strategy %q", target.Discovery)
	}
}

func (s *Scraper) randomUserAgent() string {
	return s.cfg.UserAgents[rand.IntN(len(s.cfg.UserAgents))]
}

func resolveURL(pageURL, ref string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	target, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(target).String(), nil
}

// imageFilename derives the stored image name from the last path segment
// of the product URL.
func imageFilename(productURL string) string {
	segment := "product"
	if u, err := url.Parse(productURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
			segment = base
		}
	}
	segment = strings.TrimSuffix(segment, path.Ext(segment))
	return segment + ".jpg"
}
