package main

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/BerriAI/litellm-go/internal/config"
)

// newRedisUniversalClient builds a go-redis client from the shared
// Redis settings. Cluster addresses win over sentinel, sentinel over a
// single address. The bool reports cluster mode.
func newRedisUniversalClient(cfg config.RedisCacheConfig) (redis.UniversalClient, bool, error) {
	opts := &redis.UniversalOptions{
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	}

	switch {
	case len(cfg.ClusterAddrs) > 0:
		opts.Addrs = cfg.ClusterAddrs
		return redis.NewUniversalClient(opts), true, nil
	case len(cfg.SentinelAddrs) > 0:
		opts.Addrs = cfg.SentinelAddrs
		opts.MasterName = cfg.SentinelMaster
		return redis.NewUniversalClient(opts), false, nil
	case cfg.Addr != "":
		opts.Addrs = []string{cfg.Addr}
		return redis.NewUniversalClient(opts), false, nil
	}

	return nil, false, errors.New("redis address not configured")
}
