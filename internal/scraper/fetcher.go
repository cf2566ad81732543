// Package scraper implements the bounded per-site web scraper: URL
// discovery, throttled product-page fetching, selector extraction, and
// image download.
package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultRequestTimeout = 15 * time.Second

// FetchResponse is the result of a single GET.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Fetcher executes single HTTP GETs using the Colly collector. Each fetch
// clones the base collector so per-request settings (user agent, timeout)
// never leak between requests.
type Fetcher struct {
	timeout       time.Duration
	baseCollector *colly.Collector
}

// NewFetcher builds a Fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		timeout:       timeout,
		baseCollector: c,
	}
}

// Fetch GETs url with the provided User-Agent. A non-2xx status or a
// transport error is returned as an error; the caller decides whether that
// fails the owning task.
func (f *Fetcher) Fetch(ctx context.Context, url, userAgent string) (FetchResponse, error) {
	var (
		result   FetchResponse
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	if userAgent != "" {
		collector.UserAgent = userAgent
	}
	collector.SetRequestTimeout(f.timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return FetchResponse{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		if err != nil {
			return FetchResponse{}, fmt.Errorf("visit %s: %w", url, err)
		}
		return result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
