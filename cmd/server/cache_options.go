package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	litellm "github.com/BerriAI/litellm-go"
	"github.com/BerriAI/litellm-go/caches/dual"
	"github.com/BerriAI/litellm-go/caches/memory"
	"github.com/BerriAI/litellm-go/caches/redis"
	"github.com/BerriAI/litellm-go/internal/config"
	"github.com/BerriAI/litellm-go/pkg/cache"
)

func buildCacheOptions(cfg *config.CacheConfig, logger *slog.Logger) ([]litellm.Option, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cacheType := strings.ToLower(cfg.Type)
	if cacheType == "" {
		cacheType = "local"
	}

	var cacheInstance litellm.Cache
	switch cacheType {
	case "local", "memory":
		cacheInstance = memory.New(memory.Config{
			MaxSize:         cfg.Memory.MaxSize,
			DefaultTTL:      cfg.Memory.DefaultTTL,
			MaxItemSize:     cfg.Memory.MaxItemSize,
			CleanupInterval: cfg.Memory.CleanupInterval,
		})
	case "redis":
		redisCache, err := redis.New(buildRedisCacheConfig(*cfg))
		if err != nil {
			return nil, err
		}
		cacheInstance = redisCache
	case "dual":
		local := memory.New(memory.Config{
			MaxSize:         cfg.Memory.MaxSize,
			DefaultTTL:      cfg.Memory.DefaultTTL,
			MaxItemSize:     cfg.Memory.MaxItemSize,
			CleanupInterval: cfg.Memory.CleanupInterval,
		})
		remote, err := redis.New(buildRedisCacheConfig(*cfg))
		if err != nil {
			return nil, err
		}
		dualCfg := dual.DefaultConfig()
		if cfg.Memory.DefaultTTL > 0 {
			dualCfg.LocalTTL = cfg.Memory.DefaultTTL
		}
		if cfg.TTL > 0 {
			dualCfg.RedisTTL = cfg.TTL
		}
		cacheInstance = dual.New(local, remote, dualCfg)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}

	opts := []litellm.Option{
		litellm.WithCache(cacheInstance),
		litellm.WithCacheTypeLabel(cacheType),
	}
	if cfg.TTL > 0 {
		opts = append(opts, litellm.WithCacheTTL(cfg.TTL))
	}

	logger.Info("cache enabled", "type", cacheType)
	return opts, nil
}

// buildResponseCache returns the shared backend for stored responses.
// Only Redis-backed setups need one; otherwise the API handler falls
// back to its own in-memory store.
func buildResponseCache(cfg *config.CacheConfig, logger *slog.Logger) cache.Cache {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	switch strings.ToLower(cfg.Type) {
	case "redis", "dual":
		redisCache, err := redis.New(buildRedisCacheConfig(*cfg))
		if err != nil {
			logger.Warn("response store falling back to memory", "error", err)
			return nil
		}
		return redisCache
	default:
		return nil
	}
}

func buildRedisCacheConfig(cfg config.CacheConfig) redis.Config {
	redisCfg := redis.Config{
		Addr:           cfg.Redis.Addr,
		Password:       cfg.Redis.Password,
		DB:             cfg.Redis.DB,
		ClusterAddrs:   cfg.Redis.ClusterAddrs,
		SentinelAddrs:  cfg.Redis.SentinelAddrs,
		SentinelMaster: cfg.Redis.SentinelMaster,
		Namespace:      cfg.Namespace,
		DialTimeout:    cfg.Redis.DialTimeout,
		ReadTimeout:    cfg.Redis.ReadTimeout,
		WriteTimeout:   cfg.Redis.WriteTimeout,
		PoolSize:       cfg.Redis.PoolSize,
		MinIdleConns:   cfg.Redis.MinIdleConns,
		MaxRetries:     cfg.Redis.MaxRetries,
	}
	if cfg.TTL > 0 {
		redisCfg.DefaultTTL = cfg.TTL
	}
	if redisCfg.DefaultTTL == 0 {
		redisCfg.DefaultTTL = time.Hour
	}
	return redisCfg
}
