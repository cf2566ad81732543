// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	imagesProcessedTotal *prometheus.CounterVec
	scrapeProductsTotal  *prometheus.CounterVec
	uploadsTotal         *prometheus.CounterVec
	activeTasks          prometheus.Gauge
	scrapeDelaySeconds   prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		imagesProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_images_processed_total",
				Help: "Local images processed, labeled by category and outcome.",
			},
			[]string{"category", "outcome"},
		)

		scrapeProductsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_scrape_products_total",
				Help: "Product pages scraped, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		uploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_uploads_total",
				Help: "Blob storage uploads, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_active_tasks",
				Help: "Tasks currently in flight across bounded batches.",
			},
		)

		scrapeDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_scrape_delay_seconds",
				Help:    "Histogram of per-task politeness delays.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveImage increments the local-image counter.
func ObserveImage(category, outcome string) {
	if imagesProcessedTotal != nil {
		imagesProcessedTotal.WithLabelValues(category, outcome).Inc()
	}
}

// ObserveProduct increments the per-site product counter.
func ObserveProduct(site, outcome string) {
	if scrapeProductsTotal != nil {
		scrapeProductsTotal.WithLabelValues(site, outcome).Inc()
	}
}

// ObserveUpload increments the upload counter.
func ObserveUpload(outcome string) {
	if uploadsTotal != nil {
		uploadsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncActiveTasks increments the in-flight task gauge.
func IncActiveTasks() {
	if activeTasks != nil {
		activeTasks.Inc()
	}
}

// DecActiveTasks decrements the in-flight task gauge.
func DecActiveTasks() {
	if activeTasks != nil {
		activeTasks.Dec()
	}
}

// ObserveScrapeDelay records one politeness delay.
func ObserveScrapeDelay(d time.Duration) {
	if scrapeDelaySeconds != nil {
		scrapeDelaySeconds.Observe(d.Seconds())
	}
}
