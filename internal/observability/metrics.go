package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dermai_redis_errors_total",
		Help: "Total number of Redis errors by operation",
	}, []string{"operation"})

	// DatabaseQueryDuration records the latency of every GORM statement.
	DatabaseQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dermai_database_query_duration_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// DatabaseQueryErrors counts failed GORM statements, excluding record-not-found.
	DatabaseQueryErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dermai_database_query_errors_total",
		Help: "Total number of failed database queries",
	})

	// WebSocketConnections is the number of live chat sockets on this instance.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dermai_websocket_connections",
		Help: "Number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts inbound realtime events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dermai_websocket_events_total",
		Help: "Total inbound WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts outbound frames dropped for slow consumers.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dermai_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// MessageThroughput counts persisted chat messages by the transport that carried them.
	MessageThroughput = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dermai_message_throughput_total",
		Help: "Total number of chat messages persisted",
	}, []string{"transport"})

	// RelayPublishTotal counts cross-instance publishes by relay and outcome.
	RelayPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dermai_relay_publish_total",
		Help: "Total realtime relay publishes by relay and result",
	}, []string{"relay", "result"})

	// NotificationsCreated counts notification records by type.
	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dermai_notifications_created_total",
		Help: "Total notifications created by type",
	}, []string{"type"})

	// RateLimited counts requests and events rejected by the rate limiter.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dermai_rate_limited_total",
		Help: "Total requests rejected by rate limiting",
	}, []string{"resource"})
)
