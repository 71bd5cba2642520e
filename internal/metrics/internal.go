// Package metrics provides internal system metrics.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Cache Metrics
// =============================================================================

var (
	// CacheHits counts cache hits.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total cache hits",
		},
		[]string{"cache_type", "model"},
	)

	// CacheMisses counts cache misses.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total cache misses",
		},
		[]string{"cache_type", "model"},
	)

	// CacheSavedCost tracks cost saved by cache hits.
	CacheSavedCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_saved_cost_total",
			Help:      "Total cost saved by cache hits",
		},
		[]string{"cache_type", "model"},
	)
)

// RecordCacheLookup records a cache hit or miss for the given cache layer.
func RecordCacheLookup(cacheType, model string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType, model).Inc()
		return
	}
	CacheMisses.WithLabelValues(cacheType, model).Inc()
}

// RecordCacheSavings adds the dollar cost a cache hit avoided.
func RecordCacheSavings(cacheType, model string, cost float64) {
	if cost <= 0 {
		return
	}
	CacheSavedCost.WithLabelValues(cacheType, model).Add(cost)
}

// =============================================================================
// System Health Metrics
// =============================================================================

var (
	// DBConnectionPoolSize tracks database connection pool size.
	DBConnectionPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connection_pool_size",
			Help:      "Database connection pool size",
		},
		[]string{"pool_type"}, // "active", "idle", "max"
	)

	// RedisConnectionPoolSize tracks Redis connection pool size.
	RedisConnectionPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "redis_connection_pool_size",
			Help:      "Redis connection pool size",
		},
		[]string{"pool_type"},
	)

	// GoroutineCount tracks the number of goroutines.
	GoroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutine_count",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryUsage tracks memory usage.
	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_bytes",
			Help:      "Memory usage in bytes",
		},
		[]string{"type"}, // "alloc", "sys", "heap_alloc", "heap_sys"
	)

	// RateLimiterBackendErrors counts distributed rate limiter backend
	// failures and the resulting fail-open/fail-closed decision.
	RateLimiterBackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limiter_backend_errors_total",
			Help:      "Total distributed rate limiter backend errors",
		},
		[]string{"scope", "action"}, // action: "allow" (fail-open) or "deny"
	)
)

// UpdateRedisPoolStats publishes Redis connection pool gauges.
func UpdateRedisPoolStats(total, idle uint32) {
	RedisConnectionPoolSize.WithLabelValues("total").Set(float64(total))
	RedisConnectionPoolSize.WithLabelValues("idle").Set(float64(idle))
	RedisConnectionPoolSize.WithLabelValues("active").Set(float64(total - idle))
}

// UpdateRuntimeStats samples goroutine and memory gauges.
func UpdateRuntimeStats() {
	GoroutineCount.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_alloc").Set(float64(m.HeapAlloc))
	MemoryUsage.WithLabelValues("heap_sys").Set(float64(m.HeapSys))
}

// =============================================================================
// HTTP Server Metrics
// =============================================================================

var (
	// HTTPRequestDuration tracks HTTP request duration by route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestsInFlight tracks currently processing HTTP requests.
	HTTPRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
		[]string{"route"},
	)

	// HTTPResponseSize tracks HTTP response body size.
	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"route"},
	)
)
