// Package metrics holds the Prometheus collectors shared by the transport,
// the upload protocol and the keyed queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Requests
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kinsync_requests_total",
		Help: "The total number of HTTP requests by method and status code",
	}, []string{"method", "status"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kinsync_request_duration_seconds",
		Help:    "The latency of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	RequestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kinsync_request_errors_total",
		Help: "The total number of classified request errors by kind",
	}, []string{"kind"})

	// Uploads
	UploadAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kinsync_upload_attempts_total",
		Help: "The total number of chunk upload attempts",
	})

	UploadRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kinsync_upload_retries_total",
		Help: "The total number of chunk upload retries by reason",
	}, []string{"reason"})

	UploadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kinsync_upload_bytes_total",
		Help: "The total number of bytes sent in upload chunks",
	})

	// Queue
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kinsync_queue_depth",
		Help: "The number of queued or running operations per key",
	}, []string{"key"})

	QueueWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kinsync_queue_wait_seconds",
		Help:    "Time an operation waited in its lane before starting",
		Buckets: prometheus.DefBuckets,
	})

	// Live events
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kinsync_events_published_total",
		Help: "The total number of change events published by backend",
	}, []string{"backend"})

	PublishErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kinsync_publish_errors_total",
		Help: "The total number of change event publish errors by backend",
	}, []string{"backend"})
)

// Retry reasons used with UploadRetries.
const (
	ReasonBackoff = "backoff"
	ReasonResume  = "resume"
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(RequestErrors)
	prometheus.MustRegister(UploadAttempts)
	prometheus.MustRegister(UploadRetries)
	prometheus.MustRegister(UploadBytes)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QueueWait)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(PublishErrors)
}
