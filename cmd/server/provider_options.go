package main

import (
	"log/slog"

	litellm "github.com/BerriAI/litellm-go"
	"github.com/BerriAI/litellm-go/internal/config"
	"github.com/BerriAI/litellm-go/internal/plugin/builtin"
	"github.com/BerriAI/litellm-go/pkg/router"
)

// buildClientOptions assembles the complete option set for a gateway
// client: providers, routing, caching and pricing. statsStore and
// rrStore carry shared router state for multi-instance deployments and
// may be nil for single-node runs.
func buildClientOptions(cfg *config.Config, logger *slog.Logger, statsStore router.StatsStore, rrStore router.RoundRobinStore) []litellm.Option {
	opts := []litellm.Option{litellm.WithLogger(logger)}

	for _, p := range cfg.Providers {
		opts = append(opts, litellm.WithProvider(litellm.ProviderConfig{
			Name:                p.Name,
			Type:                p.Type,
			APIKey:              p.APIKey,
			BaseURL:             p.BaseURL,
			Models:              p.Models,
			MaxConcurrent:       p.MaxConcurrent,
			Timeout:             p.Timeout,
			Headers:             p.Headers,
			AllowPrivateBaseURL: p.AllowPrivateBaseURL,
		}))
	}

	opts = append(opts, buildRoutingOptions(cfg)...)

	cacheOpts, err := buildCacheOptions(&cfg.Cache, logger)
	if err != nil {
		logger.Error("response cache disabled", "error", err)
	} else {
		opts = append(opts, cacheOpts...)
	}

	if cfg.PricingFile != "" {
		opts = append(opts, litellm.WithPricingFile(cfg.PricingFile))
	}

	if statsStore != nil {
		opts = append(opts, litellm.WithStatsStore(statsStore))
	}
	if rrStore != nil {
		opts = append(opts, litellm.WithRoundRobinStore(rrStore))
	}

	// Debug deployments get per-request plugin logging on top of the
	// structured access logs.
	if cfg.Logging.Level == "debug" {
		opts = append(opts, litellm.WithPlugin(builtin.NewLoggingPlugin(logger)))
	}

	return opts
}
