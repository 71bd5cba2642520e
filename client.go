package litellm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/BerriAI/litellm-go/internal/auth"
	"github.com/BerriAI/litellm-go/internal/observability"
	"github.com/BerriAI/litellm-go/internal/plugin"
	"github.com/BerriAI/litellm-go/internal/resilience"
	"github.com/BerriAI/litellm-go/internal/metrics"
	"github.com/BerriAI/litellm-go/internal/responsecache"
	"github.com/BerriAI/litellm-go/internal/tokenizer"
	"github.com/BerriAI/litellm-go/internal/transport"
	"github.com/BerriAI/litellm-go/pkg/cache"
	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
	"github.com/BerriAI/litellm-go/pkg/pricing"
	"github.com/BerriAI/litellm-go/pkg/provider"
	"github.com/BerriAI/litellm-go/pkg/router"
	"github.com/BerriAI/litellm-go/providers"
	"github.com/BerriAI/litellm-go/routers"
)

// Client is the main entry point for library mode.
// It manages providers, routing, caching, rate limiting and request
// execution behind a single OpenAI-compatible surface.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	providers   map[string]provider.Provider
	deployments map[string][]*provider.Deployment // model -> deployments
	router      router.Router
	cache       cache.Cache
	respCache   *responsecache.Store
	pricing     *pricing.Registry
	logger      *slog.Logger
	config      *ClientConfig
	pipeline    *plugin.Pipeline
	otel        *observability.OTelMetricsProvider

	// httpClient serves unary calls with an end-to-end timeout;
	// streamClient bounds only the wait for response headers so
	// long-lived streams are never cut mid-body.
	httpClient   *http.Client
	streamClient *http.Client

	rateLimiter       resilience.DistributedLimiter
	rateLimiterConfig RateLimiterConfig

	// deploymentLimits holds per-deployment adaptive concurrency
	// limiters, keyed by deployment ID. Only deployments with a
	// max_concurrent setting get one.
	deploymentLimits sync.Map

	// Provider factories for creating providers from config
	factories map[string]provider.Factory

	backoffRand *rand.Rand
	backoffMu   sync.Mutex

	mu sync.RWMutex
}

// New creates a new client with the given options.
//
// Example:
//
//	client, err := litellm.New(
//	    litellm.WithProvider(litellm.ProviderConfig{
//	        Name:   "openai",
//	        Type:   "openai",
//	        APIKey: os.Getenv("OPENAI_API_KEY"),
//	        Models: []string{"gpt-4o"},
//	    }),
//	    litellm.WithRouterStrategy(litellm.StrategyLowestLatency),
//	)
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Client{
		providers:         make(map[string]provider.Provider),
		deployments:       make(map[string][]*provider.Deployment),
		factories:         make(map[string]provider.Factory),
		config:            cfg,
		logger:            cfg.Logger,
		rateLimiter:       cfg.RateLimiter,
		rateLimiterConfig: cfg.RateLimiterConfig,
		backoffRand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	c.httpClient = transport.NewClient(cfg.Timeout)
	c.streamClient = transport.NewStreamingClient(cfg.Timeout)

	// Pricing is strict once a pricing file is configured: models without
	// an entry are rejected before any upstream call.
	if cfg.PricingFile != "" {
		registry := pricing.NewRegistry()
		if err := registry.Load(cfg.PricingFile); err != nil {
			return nil, fmt.Errorf("load pricing file %s: %w", cfg.PricingFile, err)
		}
		c.pricing = registry
	}

	// Register built-in provider factories
	c.registerBuiltinFactories()

	// Initialize providers from config
	for _, pcfg := range cfg.Providers {
		if err := c.addProviderFromConfig(pcfg); err != nil {
			return nil, fmt.Errorf("add provider %s: %w", pcfg.Name, err)
		}
	}

	// Add pre-configured provider instances
	for _, inst := range cfg.ProviderInstances {
		if err := c.addProviderInstance(inst.Name, inst.Provider, inst.Models, 0); err != nil {
			return nil, fmt.Errorf("add provider instance %s: %w", inst.Name, err)
		}
	}

	// Initialize router
	if cfg.Router != nil {
		c.router = cfg.Router
	} else {
		c.router = c.createRouter(cfg.RouterStrategy)
	}

	// Register deployments with router
	for _, deployments := range c.deployments {
		for _, d := range deployments {
			c.router.AddDeployment(d)
		}
	}

	// Initialize cache
	if cfg.CacheEnabled && cfg.Cache != nil {
		c.cache = cfg.Cache
		c.respCache = responsecache.New(cfg.Cache, responsecache.Config{
			DefaultTTL: cfg.CacheTTL,
		})
	}

	c.logger.Info("litellm client initialized",
		"providers", len(c.providers),
		"strategy", cfg.RouterStrategy,
		"cache_enabled", cfg.CacheEnabled,
	)

	// Initialize plugin pipeline
	pipelineConfig := plugin.DefaultPipelineConfig()
	if cfg.PluginConfig != nil {
		pipelineConfig = *cfg.PluginConfig
	}
	c.pipeline = plugin.NewPipeline(c.logger, pipelineConfig)

	// Register plugins
	for _, p := range cfg.Plugins {
		if err := c.pipeline.Register(p); err != nil {
			return nil, fmt.Errorf("register plugin %s: %w", p.Name(), err)
		}
	}

	// OTel metrics ride the plugin pipeline as the lowest-priority hook.
	if cfg.OTelMetricsConfig.Enabled {
		otel, err := observability.InitOTelMetrics(context.Background(), cfg.OTelMetricsConfig)
		if err != nil {
			return nil, fmt.Errorf("init otel metrics: %w", err)
		}
		c.otel = otel
		obsPlugin := observability.NewObservabilityPlugin(observability.NewRedactor(), otel)
		if err := c.pipeline.Register(obsPlugin); err != nil {
			return nil, fmt.Errorf("register plugin %s: %w", obsPlugin.Name(), err)
		}
	}
	c.logger.Info("plugin pipeline initialized", "plugins", c.pipeline.PluginCount())

	return c, nil
}

// ChatCompletion sends a chat completion request.
// It handles rate limiting, caching, routing, retries and fallback
// automatically.
func (c *Client) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages is required")
	}

	pCtx := c.pipeline.GetContext(ctx, generateRequestID())
	pCtx.Model = req.Model
	defer c.pipeline.PutContext(pCtx)

	req, sc, _ := c.pipeline.RunPreHooks(pCtx, req)
	if sc != nil {
		if sc.Error != nil {
			return nil, sc.Error
		}
		if sc.Response != nil {
			// PostHooks still run on short-circuit, e.g. for logging.
			finalResp, _ := c.pipeline.RunPostHooks(pCtx, sc.Response, nil, c.pipeline.PluginCount())
			return finalResp, nil
		}
	}

	promptTokens := tokenizer.EstimatePromptTokens(req.Model, req)

	var resp *ChatResponse
	var err error

	if err = c.admitRequest(ctx, req, promptTokens); err == nil {
		if c.respCache != nil && !req.Stream {
			resp, err = c.chatViaCache(ctx, req, promptTokens, pCtx)
		} else {
			resp, err = c.executeWithFallbacks(ctx, req, promptTokens, pCtx)
		}
	}

	runFrom := c.pipeline.PluginCount()
	return c.pipeline.RunPostHooks(pCtx, resp, err, runFrom)
}

// ChatCompletionStream sends a streaming chat completion request.
// Returns a StreamReader that can be used to iterate over response chunks.
//
// Example:
//
//	stream, err := client.ChatCompletionStream(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for {
//	    chunk, err := stream.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(chunk.Choices[0].Delta.Content)
//	}
func (c *Client) ChatCompletionStream(ctx context.Context, req *ChatRequest) (*StreamReader, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages is required")
	}

	if forceNonStreaming(req) {
		return c.downgradeStream(ctx, req)
	}

	req.Stream = true

	promptTokens := tokenizer.EstimatePromptTokens(req.Model, req)
	if err := c.admitRequest(ctx, req, promptTokens); err != nil {
		return nil, err
	}

	stream, err := c.streamWithRetry(ctx, req, promptTokens)
	if err == nil || !llmerrors.ShouldFallback(err) {
		return stream, err
	}

	for _, alt := range c.fallbackModelsFor(req.Model) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		altReq := *req
		altReq.Model = alt
		c.logger.Info("falling back to alternate model group",
			"from", req.Model, "to", alt, "cause", err)

		stream, altErr := c.streamWithRetry(ctx, &altReq, promptTokens)
		c.reportModelFallback(ctx, req.Model, alt, err, altErr == nil)
		if altErr == nil {
			return stream, nil
		}
		err = altErr
		if !llmerrors.ShouldFallback(err) {
			return nil, err
		}
	}

	return nil, err
}

// streamWithRetry runs the per-group retry loop for one streaming
// dispatch.
func (c *Client) streamWithRetry(ctx context.Context, req *ChatRequest, promptTokens int) (*StreamReader, error) {
	deployment, prov, err := c.selectDeployment(ctx, req, promptTokens, true)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			if err := c.waitBackoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
			if c.config.FallbackEnabled {
				if newDep, newProv, pickErr := c.selectDeployment(ctx, req, promptTokens, true); pickErr == nil {
					if newDep.ID != deployment.ID {
						c.logger.Debug("falling back to different deployment",
							"deployment", newDep.ID, "attempt", attempt)
					}
					deployment, prov = newDep, newProv
				}
			}
		}

		if err := c.checkPricing(req.Model, deployment); err != nil {
			return nil, err
		}

		stream, err := c.openStream(ctx, prov, deployment, req)
		if err == nil {
			return stream, nil
		}
		if err == ctx.Err() {
			return nil, err
		}
		lastErr = err
		if !llmerrors.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

// forceNonStreaming reports whether the request carries the
// force_non_streaming gateway control.
func forceNonStreaming(req *ChatRequest) bool {
	raw, ok := req.Extra["force_non_streaming"]
	if !ok {
		return false
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	return v
}

// downgradeStream performs a buffered completion and replays it to the
// caller as one terminal chunk carrying the full content, finish reason
// and usage. The control flag is stripped and never reaches the
// upstream payload.
func (c *Client) downgradeStream(ctx context.Context, req *ChatRequest) (*StreamReader, error) {
	buffered := *req
	buffered.Stream = false
	buffered.Extra = make(map[string]json.RawMessage, len(req.Extra))
	for k, v := range req.Extra {
		if k == "force_non_streaming" {
			continue
		}
		buffered.Extra[k] = v
	}

	resp, err := c.ChatCompletion(ctx, &buffered)
	if err != nil {
		return nil, err
	}
	return newReplayStreamReader([]*StreamChunk{singleChunkFromResponse(resp)}), nil
}

// Embedding sends an embedding request. The chosen provider must
// implement the EmbeddingProvider capability.
func (c *Client) Embedding(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	if c.rateLimiterConfig.Enabled && c.rateLimiter != nil {
		key := c.buildRateLimitKey(req.Model, req.User, rateLimitCredential(ctx))
		if err := c.checkRateLimit(ctx, key, req.Model, 0); err != nil {
			return nil, err
		}
	}

	reqCtx := &router.RequestContext{Model: req.Model}
	deployment, prov, err := c.pickForContext(ctx, reqCtx)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			if err := c.waitBackoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
			if c.config.FallbackEnabled {
				if newDep, newProv, pickErr := c.pickForContext(ctx, reqCtx); pickErr == nil {
					deployment, prov = newDep, newProv
				}
			}
		}

		embProv, ok := prov.(provider.EmbeddingProvider)
		if !ok || !embProv.SupportEmbedding() {
			return nil, llmerrors.NewInvalidRequestError(
				deployment.ProviderName, req.Model, "provider does not support embeddings")
		}

		if err := c.checkPricing(req.Model, deployment); err != nil {
			return nil, err
		}

		resp, err := c.executeEmbeddingOnce(ctx, embProv, deployment, req)
		if err == nil {
			return resp, nil
		}
		if err == ctx.Err() {
			return nil, err
		}
		lastErr = err
		if !llmerrors.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

// ListModels returns all available models from registered providers.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var models []Model
	seen := make(map[string]bool)

	for _, prov := range c.providers {
		for _, m := range prov.SupportedModels() {
			if !seen[m] {
				models = append(models, Model{
					ID:       m,
					Provider: prov.Name(),
					Object:   "model",
				})
				seen[m] = true
			}
		}
	}

	return models, nil
}

// AddProvider adds a provider at runtime.
// This is useful for dynamically adding providers without recreating the client.
func (c *Client) AddProvider(name string, prov Provider, models []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.providers[name]; exists {
		return fmt.Errorf("provider %s already exists", name)
	}

	return c.addProviderInstance(name, prov, models, 0)
}

// RemoveProvider removes a provider at runtime.
func (c *Client) RemoveProvider(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.providers[name]; !exists {
		return fmt.Errorf("provider %s not found", name)
	}

	// Remove deployments
	for model, deployments := range c.deployments {
		var remaining []*provider.Deployment
		for _, d := range deployments {
			if d.ProviderName == name {
				c.router.RemoveDeployment(d.ID)
			} else {
				remaining = append(remaining, d)
			}
		}
		if len(remaining) == 0 {
			delete(c.deployments, model)
		} else {
			c.deployments[model] = remaining
		}
	}

	delete(c.providers, name)
	c.logger.Info("provider removed", "name", name)
	return nil
}

// GetStats returns routing statistics for a deployment.
func (c *Client) GetStats(deploymentID string) *DeploymentStats {
	return c.router.GetStats(deploymentID)
}

// GetProviders returns the names of all registered providers.
func (c *Client) GetProviders() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	return names
}

// defaultPricing serves cost lookups when no pricing file was configured;
// it carries only the embedded default price table.
var defaultPricing = sync.OnceValue(pricing.NewRegistry)

// CalculateCost returns the dollar cost of a request's token usage based on
// the loaded pricing tables. Models without a pricing entry cost 0.
func (c *Client) CalculateCost(model string, usage *Usage) float64 {
	if usage == nil {
		return 0
	}

	registry := c.pricing
	if registry == nil {
		registry = defaultPricing()
	}

	var providerName string
	c.mu.RLock()
	if deps := c.deployments[model]; len(deps) > 0 {
		providerName = deps[0].ProviderName
	}
	c.mu.RUnlock()

	price, ok := registry.GetPrice(model, providerName)
	if !ok {
		return 0
	}
	return price.InputCostPerToken*float64(usage.PromptTokens) +
		price.OutputCostPerToken*float64(usage.CompletionTokens)
}

// Close releases all resources held by the client.
func (c *Client) Close() error {
	if c.cache != nil {
		c.cache.Close()
	}
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	if c.streamClient != nil {
		c.streamClient.CloseIdleConnections()
	}
	if c.pipeline != nil {
		c.pipeline.Shutdown()
	}
	if c.otel != nil {
		_ = c.otel.Shutdown(context.Background())
	}
	c.logger.Info("litellm client closed")
	return nil
}

func generateRequestID() string {
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}

// RegisterProviderFactory registers a custom provider factory.
// This allows adding support for new provider types.
func (c *Client) RegisterProviderFactory(providerType string, factory ProviderFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[providerType] = factory
}

// Private methods

// admitRequest enforces the distributed rate limits before any routing
// decision is made.
func (c *Client) admitRequest(ctx context.Context, req *ChatRequest, promptTokens int) error {
	if !c.rateLimiterConfig.Enabled || c.rateLimiter == nil {
		return nil
	}
	key := c.buildRateLimitKey(req.Model, req.User, rateLimitCredential(ctx))
	return c.checkRateLimit(ctx, key, req.Model, promptTokens)
}

// rateLimitCredential resolves the caller identity used for API-key
// based limits: an explicit context override wins, then the gateway
// auth context.
func rateLimitCredential(ctx context.Context) string {
	if key := rateLimitAPIKeyFromContext(ctx); key != "" {
		return key
	}
	if ac := auth.GetAuthContext(ctx); ac != nil && ac.APIKey != nil {
		return ac.APIKey.ID
	}
	return ""
}

// buildRateLimitKey derives the limiter key from the configured
// strategy. Missing identities collapse into a shared "default" bucket.
func (c *Client) buildRateLimitKey(model, user, apiKey string) string {
	switch c.rateLimiterConfig.KeyStrategy {
	case RateLimitKeyByUser:
		if user != "" {
			return user
		}
	case RateLimitKeyByModel:
		if model != "" {
			return model
		}
	case RateLimitKeyByAPIKeyAndModel:
		if apiKey != "" && model != "" {
			return apiKey + ":" + model
		}
	default: // RateLimitKeyByAPIKey
		if apiKey != "" {
			return apiKey
		}
	}
	return "default"
}

// checkRateLimit performs one atomic check-and-consume against the
// distributed limiter for the request and token windows.
func (c *Client) checkRateLimit(ctx context.Context, key, model string, estimatedTokens int) error {
	cfg := c.rateLimiterConfig
	if !cfg.Enabled || c.rateLimiter == nil {
		return nil
	}

	window := cfg.WindowSize
	if window <= 0 {
		window = time.Minute
	}

	var descriptors []resilience.Descriptor
	if cfg.RPMLimit > 0 {
		descriptors = append(descriptors, resilience.Descriptor{
			Key:    key,
			Value:  model,
			Limit:  cfg.RPMLimit,
			Type:   resilience.LimitTypeRequests,
			Window: window,
		})
	}
	if cfg.TPMLimit > 0 && estimatedTokens > 0 {
		descriptors = append(descriptors, resilience.Descriptor{
			Key:    key,
			Value:  model,
			Limit:  cfg.TPMLimit,
			Type:   resilience.LimitTypeTokens,
			Window: window,
			Hits:   int64(estimatedTokens),
		})
	}
	if len(descriptors) == 0 {
		return nil
	}

	results, err := c.rateLimiter.CheckAllow(ctx, descriptors)
	if err != nil {
		if cfg.FailOpen {
			c.logger.Warn("rate limiter check failed, allowing request", "error", err)
			return nil
		}
		return fmt.Errorf("rate limit check failed: %w", err)
	}

	for i, result := range results {
		if i < len(descriptors) && !result.Allowed {
			return llmerrors.NewRateLimitError("", model,
				fmt.Sprintf("%s rate limit exceeded for key %q", descriptors[i].Type, key))
		}
	}
	return nil
}

// selectDeployment routes a chat request through the router's
// context-aware pick and resolves the owning provider.
func (c *Client) selectDeployment(ctx context.Context, req *ChatRequest, promptTokens int, streaming bool) (*provider.Deployment, provider.Provider, error) {
	return c.pickForContext(ctx, buildRouterRequestContext(req, promptTokens, streaming))
}

func (c *Client) pickForContext(ctx context.Context, reqCtx *router.RequestContext) (*provider.Deployment, provider.Provider, error) {
	deployment, err := c.router.PickWithContext(ctx, reqCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("no available deployment for model %s: %w", reqCtx.Model, err)
	}

	c.mu.RLock()
	prov, ok := c.providers[deployment.ProviderName]
	c.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("provider %s not found", deployment.ProviderName)
	}
	captureDeployment(ctx, deployment)
	return deployment, prov, nil
}

// checkPricing rejects models without a pricing entry when a pricing
// file was configured. Lookup happens after routing so provider-scoped
// entries ("provider/model") resolve.
func (c *Client) checkPricing(model string, deployment *provider.Deployment) error {
	if c.pricing == nil {
		return nil
	}
	if _, ok := c.pricing.GetPrice(model, deployment.ProviderName); !ok {
		return llmerrors.NewInternalError(deployment.ProviderName, model,
			fmt.Sprintf("no pricing configured for model %q", model))
	}
	return nil
}

func (c *Client) executeWithRetry(
	ctx context.Context,
	req *ChatRequest,
	promptTokens int,
	pCtx *plugin.Context,
) (*ChatResponse, error) {
	var deployment *provider.Deployment
	var prov provider.Provider
	var lastErr error

	// Set when a retry lands on a different deployment; cleared once the
	// fallback outcome has been reported.
	var fellBackFrom *provider.Deployment
	var fallbackCause error

	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			if err := c.waitBackoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
		}

		if deployment == nil || (attempt > 0 && c.config.FallbackEnabled) {
			newDep, newProv, err := c.selectDeployment(ctx, req, promptTokens, false)
			if err != nil {
				if deployment == nil {
					return nil, err
				}
				// Re-pick failed mid-retry; stay on the current deployment.
			} else {
				if deployment != nil && newDep.ID != deployment.ID {
					fellBackFrom = deployment
					fallbackCause = lastErr
					c.logger.Debug("falling back to different deployment",
						"deployment", newDep.ID, "attempt", attempt)
				}
				deployment, prov = newDep, newProv
			}
		}

		if pCtx != nil {
			pCtx.Provider = deployment.ProviderName
			pCtx.Deployment = deployment
		}

		if err := c.checkPricing(req.Model, deployment); err != nil {
			return nil, err
		}

		resp, err := c.executeOnce(ctx, prov, deployment, req)
		if err == nil {
			if fellBackFrom != nil {
				c.reportFallback(ctx, fellBackFrom, deployment, fallbackCause, true)
			}
			return resp, nil
		}
		if err == ctx.Err() {
			return nil, err
		}
		if fellBackFrom != nil {
			c.reportFallback(ctx, fellBackFrom, deployment, fallbackCause, false)
			fellBackFrom = nil
		}
		lastErr = err
		if !llmerrors.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) reportFallback(ctx context.Context, from, to *provider.Deployment, cause error, success bool) {
	if c.config.FallbackReporter == nil {
		return
	}
	c.config.FallbackReporter(ctx, from.ModelName, to.ModelName, cause, success)
}

func (c *Client) reportModelFallback(ctx context.Context, from, to string, cause error, success bool) {
	if c.config.FallbackReporter == nil {
		return
	}
	c.config.FallbackReporter(ctx, from, to, cause, success)
}

// fallbackModelsFor returns the ordered alternate model groups for a
// model, or nil when no rule matches.
func (c *Client) fallbackModelsFor(model string) []string {
	for _, rule := range c.config.Fallbacks {
		if rule.Model == model {
			return rule.Fallbacks
		}
	}
	return nil
}

// executeWithFallbacks runs the retry loop on the requested model group
// and, once it is exhausted with a fallback-eligible error, walks the
// configured alternate groups in order. Each alternate re-enters
// selection with its own deployments; the request is otherwise
// unchanged.
func (c *Client) executeWithFallbacks(
	ctx context.Context,
	req *ChatRequest,
	promptTokens int,
	pCtx *plugin.Context,
) (*ChatResponse, error) {
	resp, err := c.executeWithRetry(ctx, req, promptTokens, pCtx)
	if err == nil || !llmerrors.ShouldFallback(err) {
		return resp, err
	}

	for _, alt := range c.fallbackModelsFor(req.Model) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		altReq := *req
		altReq.Model = alt
		c.logger.Info("falling back to alternate model group",
			"from", req.Model, "to", alt, "cause", err)

		resp, altErr := c.executeWithRetry(ctx, &altReq, promptTokens, pCtx)
		c.reportModelFallback(ctx, req.Model, alt, err, altErr == nil)
		if altErr == nil {
			return resp, nil
		}
		err = altErr
		if !llmerrors.ShouldFallback(err) {
			return nil, err
		}
	}

	return nil, err
}

// acquireDeploymentSlot bounds in-flight requests to a deployment with
// a max_concurrent setting. The ceiling is the configured value; the
// effective limit adapts downward when upstream latency degrades.
// Callers must invoke the returned release with the observed latency.
func (c *Client) acquireDeploymentSlot(ctx context.Context, deployment *provider.Deployment) (func(time.Duration), error) {
	if deployment.MaxConcurrent <= 0 || deployment.ID == "" {
		return func(time.Duration) {}, nil
	}

	v, ok := c.deploymentLimits.Load(deployment.ID)
	if !ok {
		v, _ = c.deploymentLimits.LoadOrStore(deployment.ID,
			resilience.NewAdaptiveLimiter(1, float64(deployment.MaxConcurrent)))
	}
	limiter := v.(*resilience.AdaptiveLimiter)
	if err := limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	return limiter.Release, nil
}

func (c *Client) executeOnce(
	ctx context.Context,
	prov provider.Provider,
	deployment *provider.Deployment,
	req *ChatRequest,
) (*ChatResponse, error) {
	start := time.Now()

	release, err := c.acquireDeploymentSlot(ctx, deployment)
	if err != nil {
		return nil, err
	}
	defer func() { release(time.Since(start)) }()

	httpReq, err := prov.BuildRequest(ctx, sanitizeChatRequestForProvider(req))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	c.router.ReportRequestStart(ctx, deployment)
	defer c.router.ReportRequestEnd(ctx, deployment)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		connErr := llmerrors.NewAPIConnectionError(deployment.ProviderName, deployment.ModelName, err.Error())
		c.router.ReportFailure(ctx, deployment, connErr)
		return nil, connErr
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		llmErr := c.normalizeUpstreamError(prov, deployment, resp.StatusCode, resp.Header, body)
		c.router.ReportFailure(ctx, deployment, llmErr)
		return nil, llmErr
	}

	chatResp, err := prov.ParseResponse(resp)
	if err != nil {
		c.router.ReportFailure(ctx, deployment, err)
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if chatResp.Usage != nil {
		chatResp.Usage.Provider = deployment.ProviderName
	}

	metrics := &router.ResponseMetrics{
		Latency: time.Since(start),
	}
	if chatResp.Usage != nil {
		metrics.InputTokens = chatResp.Usage.PromptTokens
		metrics.OutputTokens = chatResp.Usage.CompletionTokens
		metrics.TotalTokens = chatResp.Usage.TotalTokens
	}
	c.router.ReportSuccess(ctx, deployment, metrics)

	return chatResp, nil
}

// openStream performs one streaming dispatch attempt and wires the
// resulting reader for mid-stream recovery.
func (c *Client) openStream(
	ctx context.Context,
	prov provider.Provider,
	deployment *provider.Deployment,
	req *ChatRequest,
) (*StreamReader, error) {
	httpReq, err := prov.BuildRequest(ctx, sanitizeChatRequestForProvider(req))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	c.router.ReportRequestStart(ctx, deployment)

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		c.router.ReportRequestEnd(ctx, deployment)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		connErr := llmerrors.NewAPIConnectionError(deployment.ProviderName, deployment.ModelName, err.Error())
		c.router.ReportFailure(ctx, deployment, connErr)
		return nil, connErr
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.router.ReportRequestEnd(ctx, deployment)
		llmErr := c.normalizeUpstreamError(prov, deployment, resp.StatusCode, resp.Header, body)
		c.router.ReportFailure(ctx, deployment, llmErr)
		return nil, llmErr
	}

	body := resp.Body
	if transformer, ok := provider.TransformerFromRequest(httpReq); ok {
		body = transformer(body)
	}

	stream := newStreamReader(body, prov, deployment, c.router, c.config.MaxStreamingDuration)
	stream.enableRecovery(c, ctx, req)
	return stream, nil
}

func (c *Client) executeEmbeddingOnce(
	ctx context.Context,
	prov provider.EmbeddingProvider,
	deployment *provider.Deployment,
	req *EmbeddingRequest,
) (*EmbeddingResponse, error) {
	start := time.Now()

	httpReq, err := prov.BuildEmbeddingRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}

	c.router.ReportRequestStart(ctx, deployment)
	defer c.router.ReportRequestEnd(ctx, deployment)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		connErr := llmerrors.NewAPIConnectionError(deployment.ProviderName, deployment.ModelName, err.Error())
		c.router.ReportFailure(ctx, deployment, connErr)
		return nil, connErr
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		base, _ := prov.(provider.Provider)
		llmErr := c.normalizeUpstreamError(base, deployment, resp.StatusCode, resp.Header, body)
		c.router.ReportFailure(ctx, deployment, llmErr)
		return nil, llmErr
	}

	embResp, err := prov.ParseEmbeddingResponse(resp)
	if err != nil {
		c.router.ReportFailure(ctx, deployment, err)
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}

	embResp.Usage.Provider = deployment.ProviderName

	c.router.ReportSuccess(ctx, deployment, &router.ResponseMetrics{
		Latency:     time.Since(start),
		InputTokens: embResp.Usage.PromptTokens,
		TotalTokens: embResp.Usage.TotalTokens,
	})

	return embResp, nil
}

// normalizeUpstreamError folds the adapter's error taxonomy together
// with the transport facts. The adapter classifies the error type, but
// the HTTP status alone decides retryability: 408, 429 and 5xx retry,
// everything else fails fast.
func (c *Client) normalizeUpstreamError(
	prov provider.Provider,
	deployment *provider.Deployment,
	statusCode int,
	headers http.Header,
	body []byte,
) *llmerrors.LLMError {
	var llmErr *llmerrors.LLMError
	if prov != nil {
		if mapped, ok := prov.MapError(statusCode, body).(*llmerrors.LLMError); ok {
			llmErr = mapped
		}
	}
	if llmErr == nil {
		llmErr = llmerrors.FromStatusCode(deployment.ProviderName, deployment.ModelName, statusCode, string(body), headers)
	}
	llmErr.StatusCode = statusCode
	llmErr.Retryable = llmerrors.IsCooldownRequired(statusCode)
	if llmErr.Model == "" {
		llmErr.Model = deployment.ModelName
	}
	return llmErr.WithHeaders(headers)
}

// waitBackoff sleeps for the computed retry backoff, honoring an
// upstream Retry-After when it is longer, and aborts on ctx.
func (c *Client) waitBackoff(ctx context.Context, attempt int, lastErr error) error {
	delay := c.retryBackoff(attempt)
	if llmErr, ok := lastErr.(*llmerrors.LLMError); ok && llmErr.RetryAfter > delay {
		delay = llmErr.RetryAfter
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// retryBackoff computes the exponential backoff for the given attempt
// (1-based), capped by RetryMaxBackoff and spread by RetryJitter.
func (c *Client) retryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := c.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if max := c.config.RetryMaxBackoff; max > 0 && backoff > max {
		backoff = max
	}
	if jitter := c.config.RetryJitter; jitter > 0 && c.backoffRand != nil {
		c.backoffMu.Lock()
		f := c.backoffRand.Float64()
		c.backoffMu.Unlock()
		backoff += time.Duration((2*f - 1) * jitter * float64(backoff))
	}
	if backoff < 0 {
		backoff = 0
	}
	return backoff
}

func (c *Client) addProviderFromConfig(cfg ProviderConfig) error {
	factory, ok := c.factories[cfg.Type]
	if !ok {
		return fmt.Errorf("unknown provider type: %s (available: %v)", cfg.Type, c.availableFactories())
	}

	prov, err := factory(cfg)
	if err != nil {
		return err
	}

	return c.addProviderInstance(cfg.Name, prov, cfg.Models, cfg.MaxConcurrent)
}

func (c *Client) addProviderInstance(name string, prov provider.Provider, models []string, maxConcurrent int) error {
	c.providers[name] = prov

	// Create deployments for each model
	for _, model := range models {
		deployment := &provider.Deployment{
			ID:            fmt.Sprintf("%s-%s", name, model),
			ProviderName:  name,
			ModelName:     model,
			MaxConcurrent: maxConcurrent,
		}
		c.deployments[model] = append(c.deployments[model], deployment)

		// If router is already initialized, add deployment
		if c.router != nil {
			c.router.AddDeployment(deployment)
		}
	}

	c.logger.Info("provider registered", "name", name, "models", models)
	return nil
}

func (c *Client) createRouter(strategy Strategy) router.Router {
	config := router.DefaultConfig()
	config.Strategy = strategy
	config.CooldownPeriod = c.config.CooldownPeriod
	config.PricingFile = c.config.PricingFile
	config.DefaultProvider = c.config.DefaultProvider
	config.DefaultDeployment = c.config.DefaultDeployment
	if c.config.EWMAAlpha > 0 {
		config.EWMAAlpha = c.config.EWMAAlpha
	}

	if strategy == StrategyRoundRobin && c.config.RoundRobinStore != nil {
		return routers.NewRoundRobinWithStores(config, c.config.StatsStore, c.config.RoundRobinStore)
	}

	r, err := routers.NewWithStore(config, c.config.StatsStore)
	if err != nil {
		// Fallback to shuffle router if strategy is invalid
		return routers.NewShuffleRouterWithConfig(config)
	}
	return r
}

func (c *Client) registerBuiltinFactories() {
	// Register all built-in provider factories from the providers package
	for _, name := range providers.List() {
		if factory, ok := providers.Get(name); ok {
			c.factories[name] = factory
		}
	}
}

func (c *Client) availableFactories() []string {
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	return names
}

// chatViaCache serves the request through the response cache: identical
// in-flight requests collapse to one upstream call, and replicas share
// entries through the cache backend. The request's "cache" extra can
// opt out of lookup (no-cache), opt out of storage (no-store) or set a
// per-request TTL.
func (c *Client) chatViaCache(ctx context.Context, req *ChatRequest, promptTokens int, pCtx *plugin.Context) (*ChatResponse, error) {
	directive := responsecache.ParseDirective(req)

	if directive != nil && directive.NoStore {
		return c.executeWithFallbacks(ctx, req, promptTokens, pCtx)
	}

	key, err := c.generateCacheKey(ctx, req)
	if err != nil {
		return c.executeWithFallbacks(ctx, req, promptTokens, pCtx)
	}

	if directive != nil && directive.NoCache {
		// Skip the lookup but refresh the stored entry.
		resp, err := c.executeWithFallbacks(ctx, req, promptTokens, pCtx)
		if err == nil && resp != nil {
			_ = c.respCache.Put(ctx, key, resp, c.cacheTTLFor(directive))
		}
		return resp, err
	}

	result, err := c.respCache.Do(ctx, key, c.cacheTTLFor(directive), func() (*ChatResponse, error) {
		return c.executeWithFallbacks(ctx, req, promptTokens, pCtx)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordCacheLookup("response", req.Model, result.CacheHit)
	if result.CacheHit {
		c.logger.Debug("cache hit", "model", req.Model)
		metrics.RecordCacheSavings("response", req.Model, c.CalculateCost(req.Model, result.Response.Usage))
	}
	return result.Response, nil
}

func (c *Client) cacheTTLFor(d *responsecache.Directive) time.Duration {
	if d != nil && d.TTL > 0 {
		return time.Duration(d.TTL) * time.Second
	}
	return c.config.CacheTTL
}

// generateCacheKey derives the cache key from the canonical request
// fingerprint plus the caller's tenant, so cached completions never
// leak across API keys. The key is a SHA-256 digest under a "chat:"
// prefix; the tenant ID never appears in plaintext.
func (c *Client) generateCacheKey(ctx context.Context, req *ChatRequest) (string, error) {
	fp, err := responsecache.Fingerprint(req)
	if err != nil {
		return "", err
	}

	var tenant string
	if ac := auth.GetAuthContext(ctx); ac != nil && ac.APIKey != nil {
		tenant = ac.APIKey.ID
	}

	sum := sha256.Sum256([]byte(fp + "|tenant:" + tenant))
	return "chat:" + hex.EncodeToString(sum[:]), nil
}
