// Package metrics holds the prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrollframes_uploads_total",
		Help: "Total number of uploads, by result",
	}, []string{"result"})

	UploadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scrollframes_uploaded_bytes_total",
		Help: "Total bytes of accepted source videos",
	})

	ExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrollframes_extractions_total",
		Help: "Total number of extractions, by status",
	}, []string{"status"})

	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scrollframes_extraction_duration_seconds",
		Help:    "Wall time of frame extraction",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
	})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scrollframes_frames_extracted_total",
		Help: "Total number of frames extracted across all jobs",
	})

	FrameCountMismatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scrollframes_frame_count_mismatch_total",
		Help: "Extractions whose frame count differed from the probe estimate",
	})

	ActiveExtractions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scrollframes_active_extractions",
		Help: "Number of extractions currently running",
	})

	PagesEncodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scrollframes_pages_encoded_total",
		Help: "Total number of encoded frame pages",
	})

	EncodedImagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scrollframes_encoded_images_total",
		Help: "Total number of frames encoded as data URIs",
	})

	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrollframes_exports_total",
		Help: "Total number of export bundles, by format and destination",
	}, []string{"format", "destination"})

	CleanupsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scrollframes_cleanups_total",
		Help: "Total number of cleanup requests",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrollframes_http_requests_total",
		Help: "Total number of HTTP requests, by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scrollframes_http_request_duration_seconds",
		Help:    "HTTP request latency, by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Handler returns the exposition handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
