package main

import (
	"time"

	litellm "github.com/BerriAI/litellm-go"
	"github.com/BerriAI/litellm-go/internal/config"
	"github.com/BerriAI/litellm-go/pkg/provider"
)

// routingRetryBackoff is the base delay between retry attempts; the
// client grows it exponentially and adds jitter.
const routingRetryBackoff = 500 * time.Millisecond

func buildRoutingOptions(cfg *config.Config) []litellm.Option {
	opts := []litellm.Option{
		litellm.WithRetry(cfg.Routing.RetryCount, routingRetryBackoff),
		litellm.WithFallback(cfg.Routing.FallbackEnabled),
	}

	if cfg.Routing.Strategy != "" {
		opts = append(opts, litellm.WithRouterStrategy(litellm.Strategy(cfg.Routing.Strategy)))
	}
	if cfg.Routing.CooldownPeriod > 0 {
		opts = append(opts, litellm.WithCooldown(cfg.Routing.CooldownPeriod))
	}
	if cfg.Routing.DefaultProvider != "" {
		opts = append(opts, litellm.WithDefaultProvider(cfg.Routing.DefaultProvider))
	}
	if rules := fallbackRules(cfg.Routing.Fallbacks); len(rules) > 0 {
		opts = append(opts, litellm.WithFallbacks(rules...))
	}
	if dd := cfg.Routing.DefaultDeployment; dd != nil {
		opts = append(opts, litellm.WithDefaultDeployment(provider.Deployment{
			ProviderName: dd.Provider,
			BaseURL:      dd.BaseURL,
			APIKey:       dd.APIKey,
		}))
	}

	return opts
}

// fallbackRules flattens the YAML single-key-map list into ordered rules.
func fallbackRules(entries []map[string][]string) []litellm.FallbackRule {
	var rules []litellm.FallbackRule
	for _, entry := range entries {
		for model, alternates := range entry {
			rules = append(rules, litellm.FallbackRule{Model: model, Fallbacks: alternates})
		}
	}
	return rules
}
