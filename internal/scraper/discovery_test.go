package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
)

func TestListingDiscoverer_ResolvesAndDeduplicates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
<a class="product-link" href="/products/a">A</a>
<a class="product-link" href="/products/b">B</a>
<a class="product-link" href="/products/a">A again</a>
<a class="product-link" href="https://cdn.example/products/c">C absolute</a>
<a class="other" href="/not-a-product">skip</a>
</body></html>`))
	}))
	t.Cleanup(srv.Close)

	d := NewListingDiscoverer(NewFetcher(0), "test-agent", zap.NewNop())
	urls, err := d.Discover(context.Background(), pipeline.ScrapeTarget{
		BaseURL:         srv.URL,
		ListingSelector: "a.product-link",
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		srv.URL + "/products/a",
		srv.URL + "/products/b",
		"https://cdn.example/products/c",
	}, urls)
}

func TestListingDiscoverer_MaxProductsCapsResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
<a class="p" href="/1">1</a><a class="p" href="/2">2</a><a class="p" href="/3">3</a>
</body></html>`))
	}))
	t.Cleanup(srv.Close)

	d := NewListingDiscoverer(NewFetcher(0), "test-agent", zap.NewNop())
	urls, err := d.Discover(context.Background(), pipeline.ScrapeTarget{
		BaseURL:         srv.URL,
		ListingSelector: "a.p",
		MaxProducts:     2,
	})
	require.NoError(t, err)
	require.Len(t, urls, 2)
	require.Equal(t, srv.URL+"/1", urls[0])
}

func TestListingDiscoverer_NoMatchesIsAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>nothing here</body></html>"))
	}))
	t.Cleanup(srv.Close)

	d := NewListingDiscoverer(NewFetcher(0), "test-agent", zap.NewNop())
	_, err := d.Discover(context.Background(), pipeline.ScrapeTarget{
		BaseURL:         srv.URL,
		ListingSelector: "a.product-link",
	})
	require.Error(t, err)
}

func TestListingDiscoverer_RequiresSelector(t *testing.T) {
	t.Parallel()

	d := NewListingDiscoverer(NewFetcher(0), "test-agent", zap.NewNop())
	_, err := d.Discover(context.Background(), pipeline.ScrapeTarget{BaseURL: "http://example.com"})
	require.Error(t, err)
}

func TestSitemapDiscoverer_ParsesURLSet(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://shop.example/products/a</loc></url>
  <url><loc>https://shop.example/products/b</loc></url>
  <url><loc>https://shop.example/products/a</loc></url>
  <url><loc>  </loc></url>
</urlset>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d := NewSitemapDiscoverer(NewFetcher(0), "test-agent", zap.NewNop())
	urls, err := d.Discover(context.Background(), pipeline.ScrapeTarget{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://shop.example/products/a",
		"https://shop.example/products/b",
	}, urls)
}

func TestSitemapDiscoverer_MissingSitemapFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	d := NewSitemapDiscoverer(NewFetcher(0), "test-agent", zap.NewNop())
	_, err := d.Discover(context.Background(), pipeline.ScrapeTarget{BaseURL: srv.URL})
	require.Error(t, err)
}
