package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BerriAI/litellm-go/caches/memory"
	"github.com/BerriAI/litellm-go/caches/redis"
	"github.com/BerriAI/litellm-go/internal/auth"
	"github.com/BerriAI/litellm-go/internal/config"
	"github.com/BerriAI/litellm-go/internal/governance"
	"github.com/BerriAI/litellm-go/internal/resilience"
	"github.com/BerriAI/litellm-go/pkg/cache"
)

func buildGovernanceEngine(cfg *config.Config, authStore auth.Store, auditLogger *auth.AuditLogger, logger *slog.Logger) *governance.Engine {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	var rateLimiter *auth.TenantRateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = buildTenantRateLimiter(cfg, logger)
	}

	var idempotency governance.IdempotencyStore
	if cfg.Governance.IdempotencyWindow > 0 {
		if cfg.Deployment.Mode == "distributed" && (cfg.Cache.Redis.Addr != "" || len(cfg.Cache.Redis.ClusterAddrs) > 0) {
			redisClient, _, err := newRedisUniversalClient(cfg.Cache.Redis)
			if err != nil {
				logger.Warn("distributed idempotency unavailable, falling back to memory", "error", err)
			} else {
				idempotency = governance.NewRedisIdempotencyStore(redisClient, "litellm:idempotency:")
			}
		}
		if idempotency == nil {
			idempotency = governance.NewMemoryIdempotencyStore()
		}
	}

	opts := []governance.Option{
		governance.WithStore(authStore),
		governance.WithRateLimiter(rateLimiter),
		governance.WithAuditLogger(auditLogger),
		governance.WithIdempotencyStore(idempotency),
		governance.WithLogger(logger),
	}

	if enforcer, err := initCasbin(cfg, logger); err != nil {
		logger.Warn("casbin RBAC unavailable, falling back to allowed-model lists", "error", err)
	} else if enforcer != nil {
		opts = append(opts, governance.WithEnforcer(enforcer))
	}

	if cfg.Governance.AdmissionControl {
		opts = append(opts, governance.WithAdmissionController(buildAdmissionController(cfg, logger)))
	}

	return governance.NewEngine(mapGovernanceConfig(cfg.Governance), opts...)
}

// buildAdmissionController assembles the per-entity admission stack:
// a shared window limiter, a budget tracker over the cache backend and
// a semaphore manager for max_parallel_requests.
func buildAdmissionController(cfg *config.Config, logger *slog.Logger) *auth.AdmissionController {
	var limiter resilience.DistributedLimiter
	var spendCache cache.Cache

	if cfg.Deployment.Mode == "distributed" && (cfg.Cache.Redis.Addr != "" || len(cfg.Cache.Redis.ClusterAddrs) > 0) {
		redisClient, isCluster, err := newRedisUniversalClient(cfg.Cache.Redis)
		if err != nil {
			logger.Warn("distributed admission control unavailable, using local windows", "error", err)
		} else {
			limiter = resilience.NewRedisLimiter(redisClient)
			if redisCache, err := redis.New(buildRedisCacheConfig(cfg.Cache)); err != nil {
				logger.Warn("distributed spend tracking unavailable, using local counters", "error", err)
			} else {
				spendCache = redisCache
			}
			logger.Info("admission control using distributed Redis backend", "cluster", isCluster)
		}
	}
	if limiter == nil {
		limiter = resilience.NewMemoryLimiter()
	}
	if spendCache == nil {
		spendCache = memory.New(memory.DefaultConfig())
	}

	return auth.NewAdmissionController(
		limiter,
		auth.NewBudgetTracker(spendCache),
		resilience.NewManager(resilience.DefaultManagerConfig()),
		auth.AdmissionControllerConfig{
			FailOpen: cfg.RateLimit.FailOpen,
			PaceAlert: func(ctx context.Context, dimension auth.Dimension, id string, limitType resilience.LimitType, current, limit int64) {
				logger.WarnContext(ctx, "entity on pace to exceed limit",
					"dimension", string(dimension),
					"id", id,
					"limit_type", string(limitType),
					"current", current,
					"limit", limit,
				)
			},
		},
	)
}

func mapGovernanceConfig(cfg config.GovernanceConfig) governance.Config {
	return governance.Config{
		Enabled:           cfg.Enabled,
		AsyncAccounting:   cfg.AsyncAccounting,
		IdempotencyWindow: cfg.IdempotencyWindow,
		AuditEnabled:      cfg.AuditEnabled,
	}
}

func buildTenantRateLimiter(cfg *config.Config, logger *slog.Logger) *auth.TenantRateLimiter {
	defaultRPM := int(cfg.RateLimit.RequestsPerMinute)
	defaultBurst := cfg.RateLimit.BurstSize
	useDefaultBurst := false
	if defaultBurst <= 0 {
		defaultBurst = defaultRPM / 6
		if defaultBurst < 1 {
			defaultBurst = 1
		}
	} else {
		useDefaultBurst = true
	}

	rateLimiter := auth.NewTenantRateLimiter(&auth.TenantRateLimiterConfig{
		DefaultRPM:        defaultRPM,
		DefaultBurst:      defaultBurst,
		UseDefaultBurst:   useDefaultBurst,
		CleanupTTL:        10 * time.Minute,
		FailOpen:          cfg.RateLimit.FailOpen,
		Logger:            logger,
		TrustedProxyCIDRs: cfg.RateLimit.TrustedProxyCIDRs,
	})

	if cfg.RateLimit.Distributed && (cfg.Cache.Redis.Addr != "" || len(cfg.Cache.Redis.ClusterAddrs) > 0) {
		redisClient, isCluster, err := newRedisUniversalClient(cfg.Cache.Redis)
		if err != nil {
			logger.Warn("distributed rate limiting unavailable, using local limiter", "error", err)
		} else {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := redisClient.Ping(pingCtx).Err(); err != nil {
				logger.Warn("distributed rate limiting unavailable, using local limiter", "error", err)
			} else {
				distributedLimiter := resilience.NewRedisLimiter(redisClient)
				rateLimiter.SetDistributedLimiter(distributedLimiter)
				logger.Info("gateway rate limiting using distributed Redis backend", "cluster", isCluster)
			}
			pingCancel()
		}
	}

	logger.Info("gateway governance rate limiting enabled",
		"default_rpm", cfg.RateLimit.RequestsPerMinute,
		"default_burst", defaultBurst,
		"distributed", cfg.RateLimit.Distributed,
	)

	return rateLimiter
}
