package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 外部指标源调用延迟（毫秒）
	InsightsCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insights_call_latency_ms",
			Help:    "Insights source call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10ms to ~40s
		},
		[]string{"endpoint", "status"},
	)

	// 熔断器状态 0=closed 1=open 2=half_open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half open)",
		},
		[]string{"name"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	// 慢查询耗时（秒）
	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12s
		},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 指标刷新计数
	AnalyticsRefreshCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_refresh_total",
			Help: "Total number of post analytics refresh attempts",
		},
		[]string{"mode", "status"}, // mode: single, bulk; status: success, upstream_error, store_error
	)

	// 批量刷新耗时（秒）
	BulkRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analytics_bulk_refresh_duration_seconds",
			Help:    "Duration of a full bulk refresh run in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		},
	)

	// 帖子元数据补全计数
	EnrichmentCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_enrichment_total",
			Help: "Total number of post metadata enrichment attempts",
		},
		[]string{"status"}, // status: success, failed, retried, skipped
	)

	// 帖子提交计数
	PostSubmittedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_submitted_total",
			Help: "Total number of post submissions",
		},
		[]string{"status"}, // status: accepted, duplicate, invalid
	)

	// Outbox 发布计数
	OutboxPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_total",
			Help: "Total number of outbox publish attempts",
		},
		[]string{"routing_key", "status"},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordInsightsCallLatency 记录外部指标源调用延迟
func RecordInsightsCallLatency(endpoint, status string, duration time.Duration) {
	InsightsCallLatency.WithLabelValues(endpoint, status).Observe(float64(duration.Milliseconds()))
}

// SetCircuitBreakerState 记录熔断器状态
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(statement string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(statementKind(statement)).Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementAnalyticsRefresh 增加指标刷新计数
func IncrementAnalyticsRefresh(mode, status string) {
	AnalyticsRefreshCount.WithLabelValues(mode, status).Inc()
}

// RecordBulkRefreshDuration 记录批量刷新耗时
func RecordBulkRefreshDuration(duration time.Duration) {
	BulkRefreshDuration.Observe(duration.Seconds())
}

// IncrementEnrichment 增加元数据补全计数
func IncrementEnrichment(status string) {
	EnrichmentCount.WithLabelValues(status).Inc()
}

// IncrementPostSubmitted 增加帖子提交计数
func IncrementPostSubmitted(status string) {
	PostSubmittedCount.WithLabelValues(status).Inc()
}

// IncrementOutboxPublish 增加 outbox 发布计数
func IncrementOutboxPublish(routingKey, status string) {
	OutboxPublishCount.WithLabelValues(routingKey, status).Inc()
}

// statementKind 取 SQL 的首个关键字作为标签，避免标签基数过高
func statementKind(sql string) string {
	start := 0
	for start < len(sql) && (sql[start] == ' ' || sql[start] == '\n' || sql[start] == '\t') {
		start++
	}
	end := start
	for end < len(sql) && sql[end] != ' ' && sql[end] != '\n' && sql[end] != '\t' {
		end++
	}
	if start == end {
		return "unknown"
	}
	kind := sql[start:end]
	if len(kind) > 16 {
		kind = kind[:16]
	}
	return kind
}
