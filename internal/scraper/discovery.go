package scraper

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
)

// Discoverer enumerates the product page URLs to visit for one site.
// Site structure varies, so each site selects a strategy by configuration.
type Discoverer interface {
	Discover(ctx context.Context, target pipeline.ScrapeTarget) ([]string, error)
}

// ListingDiscoverer extracts product links from the site's listing page
// using the configured listing selector.
type ListingDiscoverer struct {
	fetcher   *Fetcher
	userAgent string
	logger    *zap.Logger
}

// NewListingDiscoverer builds a listing-page discoverer.
func NewListingDiscoverer(fetcher *Fetcher, userAgent string, logger *zap.Logger) *ListingDiscoverer {
	return &ListingDiscoverer{
		fetcher:   fetcher,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Discover fetches the base URL and returns the resolved, deduplicated
// product links matched by the listing selector, in document order.
func (d *ListingDiscoverer) Discover(ctx context.Context, target pipeline.ScrapeTarget) ([]string, error) {
	if strings.TrimSpace(target.ListingSelector) == "" {
		return nil, fmt.Errorf("listing discovery for %s requires a listing_selector", target.BaseURL)
	}
	resp, err := d.fetcher.Fetch(ctx, target.BaseURL, d.userAgent)
	if err != nil {
		return nil, fmt.Errorf("fetch listing page: %w", err)
	}
	urls, err := extractLinks(resp.Body, resp.URL, target.ListingSelector)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("listing selector %q matched no links on %s", target.ListingSelector, target.BaseURL)
	}
	return capURLs(urls, target.MaxProducts), nil
}

// SitemapDiscoverer reads <base_url>/sitemap.xml and returns its entries.
type SitemapDiscoverer struct {
	fetcher   *Fetcher
	userAgent string
	logger    *zap.Logger
}

// NewSitemapDiscoverer builds a sitemap-based discoverer.
func NewSitemapDiscoverer(fetcher *Fetcher, userAgent string, logger *zap.Logger) *SitemapDiscoverer {
	return &SitemapDiscoverer{
		fetcher:   fetcher,
		userAgent: userAgent,
		logger:    logger,
	}
}

type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// Discover fetches and parses the site's sitemap.
func (d *SitemapDiscoverer) Discover(ctx context.Context, target pipeline.ScrapeTarget) ([]string, error) {
	sitemapURL := strings.TrimRight(target.BaseURL, "/") + "/sitemap.xml"
	resp, err := d.fetcher.Fetch(ctx, sitemapURL, d.userAgent)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(resp.Body, &set); err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", sitemapURL, err)
	}

	urls := make([]string, 0, len(set.URLs))
	seen := make(map[string]struct{}, len(set.URLs))
	for _, entry := range set.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		urls = append(urls, loc)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("sitemap %s contains no URLs", sitemapURL)
	}
	return capURLs(urls, target.MaxProducts), nil
}

// extractLinks parses html and returns href targets of the selector's
// matches, resolved against pageURL, deduplicated, in document order.
func extractLinks(html []byte, pageURL, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url %s: %w", pageURL, err)
	}

	var urls []string
	seen := make(map[string]struct{})
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref).String()
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		urls = append(urls, resolved)
	})
	return urls, nil
}

func capURLs(urls []string, max int) []string {
	if max > 0 && len(urls) > max {
		return urls[:max]
	}
	return urls
}
