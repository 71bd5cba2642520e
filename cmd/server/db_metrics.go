package main

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BerriAI/litellm-go/internal/metrics"
)

type dbStatsProvider interface {
	DBStats() sql.DBStats
}

func startDBPoolMetrics(ctx context.Context, provider dbStatsProvider, logger *slog.Logger, interval time.Duration) func() {
	if provider == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if ctx == nil {
		ctx = context.Background()
	}

	metrics.UpdateDBPoolStats(provider.DBStats())

	ticker := time.NewTicker(interval)
	stopCh := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() { close(stopCh) })
	}

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateDBPoolStats(provider.DBStats())
			case <-ctx.Done():
				stop()
				return
			case <-stopCh:
				return
			}
		}
	}()

	logger.Debug("db pool metrics updater started", "interval", interval.String())
	return stop
}

// redisPoolStatsProvider matches go-redis universal clients.
type redisPoolStatsProvider interface {
	PoolStats() *redis.PoolStats
}

// startRuntimeMetrics samples goroutine and memory gauges, and the
// Redis connection pool when a client is provided. Returns a stop
// function, or nil when there is nothing to sample.
func startRuntimeMetrics(ctx context.Context, redisClient redisPoolStatsProvider, interval time.Duration) func() {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sample := func() {
		metrics.UpdateRuntimeStats()
		if redisClient != nil {
			if stats := redisClient.PoolStats(); stats != nil {
				metrics.UpdateRedisPoolStats(stats.TotalConns, stats.IdleConns)
			}
		}
	}
	sample()

	ticker := time.NewTicker(interval)
	stopCh := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() { close(stopCh) })
	}

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sample()
			case <-ctx.Done():
				stop()
				return
			case <-stopCh:
				return
			}
		}
	}()

	return stop
}
