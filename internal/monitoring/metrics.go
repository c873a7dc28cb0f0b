package monitoring

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TracksTotal counts track imports by final status (imported, failed, timeout)
	TracksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mfutil_tracks_total",
			Help: "Total number of tracks processed by status",
		},
		[]string{"status"},
	)

	// TrackStageDuration tracks time spent per pipeline stage
	TrackStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mfutil_track_stage_duration_seconds",
			Help:    "Time spent in each per-track stage",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4min
		},
		[]string{"stage"},
	)

	// SectorsReadTotal counts CD sectors read from the drive
	SectorsReadTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mfutil_sectors_read_total",
			Help: "Total number of CD sectors read",
		},
	)

	// ActiveImports tracks imports currently running
	ActiveImports = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mfutil_active_imports",
			Help: "Number of disc imports in progress",
		},
	)

	// APIRequestsTotal tracks API requests by endpoint and status
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mfutil_api_requests_total",
			Help: "Total number of remote metadata requests",
		},
		[]string{"endpoint", "status"},
	)

	// APIRequestDuration tracks API request duration
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mfutil_api_request_duration_seconds",
			Help:    "Remote metadata request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// CoverArtTotal counts cover art lookups by source and result
	CoverArtTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mfutil_cover_art_total",
			Help: "Cover art lookups by source and result",
		},
		[]string{"source", "result"},
	)

	// ErrorsTotal tracks errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mfutil_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

// RecordImportStart records the start of a disc import
func RecordImportStart() {
	ActiveImports.Inc()
}

// RecordImportEnd records the end of a disc import
func RecordImportEnd() {
	ActiveImports.Dec()
}

// RecordTrack records the final status of one track
func RecordTrack(status string) {
	TracksTotal.WithLabelValues(status).Inc()
}

// RecordStage records how long a per-track stage took
func RecordStage(stage string, duration time.Duration) {
	TrackStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordSectors adds to the sectors read counter
func RecordSectors(n int) {
	SectorsReadTotal.Add(float64(n))
}

// RecordAPIRequest records an API request
func RecordAPIRequest(endpoint string, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCoverArt records the outcome of one cover art source
func RecordCoverArt(source, result string) {
	CoverArtTotal.WithLabelValues(source, result).Inc()
}

// RecordError records an error
func RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}

// WriteTextfile dumps the default registry in the node exporter textfile
// format so one-shot CLI runs can still be scraped.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
