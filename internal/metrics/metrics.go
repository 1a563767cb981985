package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound platform API metrics
	APICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biosync_api_calls_total",
			Help: "Total throttled platform API calls admitted",
		},
		[]string{"operation"},
	)

	APIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biosync_api_retries_total",
			Help: "Total retries of platform API calls",
		},
		[]string{"operation"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biosync_rate_limit_hits_total",
			Help: "Total explicit rate-limit responses from the platform",
		},
		[]string{"operation"},
	)

	ThrottleWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "biosync_throttle_waits_total",
			Help: "Total sleeps taken because the sliding window was full",
		},
	)

	// Ingestion metrics
	MessagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biosync_messages_ingested_total",
			Help: "Total messages persisted",
		},
		[]string{"topic"},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biosync_messages_dropped_total",
			Help: "Total inbound events dropped before persistence",
		},
		[]string{"reason"},
	)

	DuplicateDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "biosync_duplicate_deliveries_total",
			Help: "Total message ids that arrived more than once",
		},
	)

	EventQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "biosync_event_queue_depth",
			Help: "Current depth of the inbound event queue",
		},
	)

	// Discovery metrics
	ChannelsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "biosync_channels_registered",
			Help: "Channels currently registered in the live configuration map",
		},
	)

	ThreadsJoined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "biosync_threads_joined_total",
			Help: "Total threads joined during discovery or live events",
		},
	)

	ThreadJoinFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "biosync_thread_join_failures_total",
			Help: "Total thread join attempts that exhausted their retries",
		},
	)
)

// Drop reasons for MessagesDropped.
const (
	DropUnmonitored      = "unmonitored"
	DropUnresolvedParent = "unresolved_parent"
	DropBotAuthor        = "bot_author"
	DropQueueFull        = "queue_full"
)
