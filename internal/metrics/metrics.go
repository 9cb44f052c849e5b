package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlog_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomlog_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlog_messages_inserted_total",
			Help: "Messages written, by sink",
		},
		[]string{"sink"}, // "backend" or "file"
	)

	MessagesListed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlog_list_requests_total",
			Help: "Room listings served, by source",
		},
		[]string{"source"}, // "backend" or "file"
	)

	FallbackReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlog_fallback_reads_total",
			Help: "Listings served from the file store, by reason",
		},
		[]string{"reason"},
	)

	UploadsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomlog_uploads_total",
			Help: "Files uploaded",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlog_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Infrastructure metrics
	StoreConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomlog_store_connection_state",
			Help: "Distributed store connection state (0 uninitialized, 1 initializing, 2 ready, 3 unavailable)",
		},
	)

	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomlog_backend_latency_seconds",
			Help:    "Distributed store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"op"},
	)

	FileStoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomlog_file_store_latency_seconds",
			Help:    "Fallback file store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"op"},
	)

	RoomIndexLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "roomlog_room_index_latency_seconds",
			Help:    "Room index query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
