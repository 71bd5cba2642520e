package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	litellm "github.com/BerriAI/litellm-go"
	"github.com/BerriAI/litellm-go/caches/memory"
	rediscache "github.com/BerriAI/litellm-go/caches/redis"
	"github.com/BerriAI/litellm-go/internal/api"
	"github.com/BerriAI/litellm-go/internal/auth"
	"github.com/BerriAI/litellm-go/internal/config"
	"github.com/BerriAI/litellm-go/internal/metrics"
)

// TestServer manages a gateway server instance for testing.
type TestServer struct {
	server   *http.Server
	listener net.Listener
	config   *config.Config
	baseURL  string
	logger   *slog.Logger
	client   *litellm.Client
	store    auth.Store
}

// ServerOption configures the test server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	mockProviderURL string
	mockAPIKey      string
	models          []string
	port            int
	cacheEnabled    bool
	cacheType       string
	redisURL        string
	authEnabled     bool
	timeout         time.Duration
	providers       []ProviderConfig // Multiple providers for fallback testing
	oidcConfig      *config.OIDCConfig
}

// ProviderConfig defines a provider for testing.
type ProviderConfig struct {
	Name   string
	URL    string
	Models []string
}

// WithMockProvider configures the server to use a mock LLM provider.
func WithMockProvider(mockURL string) ServerOption {
	return func(o *serverOptions) {
		o.mockProviderURL = mockURL
	}
}

// WithMultipleProviders configures multiple providers for fallback testing.
func WithMultipleProviders(providers []ProviderConfig) ServerOption {
	return func(o *serverOptions) {
		o.providers = providers
	}
}

// WithMockAPIKey sets the API key for the mock provider.
func WithMockAPIKey(apiKey string) ServerOption {
	return func(o *serverOptions) {
		o.mockAPIKey = apiKey
	}
}

// WithModels sets the models to register.
func WithModels(models ...string) ServerOption {
	return func(o *serverOptions) {
		o.models = models
	}
}

// WithPort sets a specific port for the server.
func WithPort(port int) ServerOption {
	return func(o *serverOptions) {
		o.port = port
	}
}

// WithCache enables caching with the specified type.
func WithCache(cacheType, redisURL string) ServerOption {
	return func(o *serverOptions) {
		o.cacheEnabled = true
		o.cacheType = cacheType
		o.redisURL = redisURL
	}
}

// WithAuth enables authentication. A key "valid-test-key" is seeded in
// the in-memory store so authenticated requests can be exercised.
func WithAuth() ServerOption {
	return func(o *serverOptions) {
		o.authEnabled = true
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.timeout = timeout
	}
}

// WithOIDC configures OIDC authentication.
func WithOIDC(oidcConfig *config.OIDCConfig) ServerOption {
	return func(o *serverOptions) {
		o.authEnabled = true
		o.oidcConfig = oidcConfig
	}
}

// NewTestServer creates a new test server with the given options.
func NewTestServer(opts ...ServerOption) (*TestServer, error) {
	options := &serverOptions{
		mockAPIKey: "test-api-key",
		models:     []string{"gpt-4o-mock", "gpt-3.5-turbo-mock"},
		port:       0, // Random port
		timeout:    30 * time.Second,
	}

	for _, opt := range opts {
		opt(options)
	}

	// Only log errors in tests
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	cfg := config.DefaultConfig()
	cfg.Server.Port = options.port
	cfg.Auth.Enabled = options.authEnabled
	cfg.Cache.Enabled = options.cacheEnabled
	if options.cacheType != "" {
		cfg.Cache.Type = options.cacheType
	}
	if options.redisURL != "" {
		cfg.Cache.Redis.Addr = options.redisURL
	}
	if options.oidcConfig != nil {
		cfg.Auth.OIDC = *options.oidcConfig
	}

	clientOpts := []litellm.Option{
		litellm.WithLogger(logger),
		litellm.WithCooldown(0), // No cooldown in tests
		litellm.WithTimeout(options.timeout),
	}

	if len(options.providers) > 0 {
		for _, p := range options.providers {
			clientOpts = append(clientOpts, litellm.WithProvider(litellm.ProviderConfig{
				Name:          p.Name,
				Type:          "openai",
				APIKey:        options.mockAPIKey,
				BaseURL:       p.URL,
				Models:        p.Models,
				MaxConcurrent: 100,
				Timeout:       options.timeout,
			}))
		}
	} else if options.mockProviderURL != "" {
		clientOpts = append(clientOpts, litellm.WithProvider(litellm.ProviderConfig{
			Name:          "mock-openai",
			Type:          "openai",
			APIKey:        options.mockAPIKey,
			BaseURL:       options.mockProviderURL,
			Models:        options.models,
			MaxConcurrent: 100,
			Timeout:       options.timeout,
		}))
	}

	if options.cacheEnabled {
		cacheOpts, err := buildTestCacheOptions(options)
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, cacheOpts...)
	}

	client, err := litellm.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gateway client: %w", err)
	}

	store := auth.NewMemoryStore()
	if options.authEnabled {
		if err := seedTestAPIKey(store, "valid-test-key"); err != nil {
			return nil, fmt.Errorf("seed test key: %w", err)
		}
	}

	handler := api.NewClientHandler(client, logger, &api.ClientHandlerConfig{
		Store: store,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", handler.HealthCheck)
	mux.HandleFunc("GET /health/ready", handler.HealthCheck)
	mux.HandleFunc("POST /v1/chat/completions", handler.ChatCompletions)
	mux.HandleFunc("POST /v1/completions", handler.Completions)
	mux.HandleFunc("POST /v1/embeddings", handler.Embeddings)
	mux.HandleFunc("POST /embeddings", handler.Embeddings)
	mux.HandleFunc("GET /v1/models", handler.ListModels)
	mux.HandleFunc("POST /v1/responses", handler.Responses)
	mux.Handle("GET /metrics", promhttp.Handler())

	var httpHandler http.Handler = mux
	if options.authEnabled {
		authMiddleware := auth.NewMiddleware(&auth.MiddlewareConfig{
			Store:     store,
			Logger:    logger,
			SkipPaths: []string{"/health/live", "/health/ready", "/metrics"},
			Enabled:   true,
		})
		httpHandler = authMiddleware.Authenticate(httpHandler)
	}
	httpHandler = metrics.Middleware(httpHandler)

	// OIDC wraps auth so bearer JWTs are resolved before key lookup
	if options.oidcConfig != nil && options.oidcConfig.IssuerURL != "" {
		oidcCfg := auth.OIDCConfig{
			IssuerURL:        options.oidcConfig.IssuerURL,
			ClientID:         options.oidcConfig.ClientID,
			ClientSecret:     options.oidcConfig.ClientSecret,
			RoleClaim:        options.oidcConfig.ClaimMapping.RoleClaim,
			RolesMap:         options.oidcConfig.ClaimMapping.Roles,
			UseRoleHierarchy: options.oidcConfig.ClaimMapping.UseRoleHierarchy,
			UserIDUpsert:     options.oidcConfig.UserIDUpsert,
			TeamIDUpsert:     options.oidcConfig.TeamIDUpsert,
		}

		oidcMiddleware, err := auth.OIDCMiddleware(oidcCfg)
		if err != nil {
			return nil, fmt.Errorf("create OIDC middleware: %w", err)
		}
		httpHandler = oidcMiddleware(httpHandler)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", options.port)
	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &TestServer{
		server:   server,
		listener: listener,
		config:   cfg,
		baseURL:  fmt.Sprintf("http://%s", listener.Addr().String()),
		logger:   logger,
		client:   client,
		store:    store,
	}, nil
}

func buildTestCacheOptions(options *serverOptions) ([]litellm.Option, error) {
	switch options.cacheType {
	case "", "local", "memory":
		return []litellm.Option{
			litellm.WithCache(memory.New(memory.Config{})),
			litellm.WithCacheTypeLabel("local"),
		}, nil
	case "redis":
		cache, err := rediscache.New(rediscache.Config{
			Addr:       options.redisURL,
			DefaultTTL: time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		return []litellm.Option{
			litellm.WithCache(cache),
			litellm.WithCacheTypeLabel("redis"),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", options.cacheType)
	}
}

func seedTestAPIKey(store auth.Store, rawKey string) error {
	prefix := rawKey
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return store.CreateAPIKey(context.Background(), &auth.APIKey{
		ID:        "test-key-id",
		KeyHash:   auth.HashKey(rawKey),
		KeyPrefix: prefix,
		Name:      "e2e test key",
	})
}

// Start starts the test server in a goroutine.
func (s *TestServer) Start() error {
	go func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", "error", err)
		}
	}()

	// Wait for server to be ready
	return s.waitForReady(5 * time.Second)
}

// Stop gracefully shuts down the test server.
func (s *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	_ = s.client.Close()
	return err
}

// URL returns the server's base URL.
func (s *TestServer) URL() string {
	return s.baseURL
}

// Client returns an HTTP client configured for the test server.
func (s *TestServer) Client() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}

// Config returns the server's configuration.
func (s *TestServer) Config() *config.Config {
	return s.config
}

// GatewayClient returns the underlying gateway client.
func (s *TestServer) GatewayClient() *litellm.Client {
	return s.client
}

// Store returns the auth store.
func (s *TestServer) Store() auth.Store {
	return s.store
}

func (s *TestServer) waitForReady(timeout time.Duration) error {
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(timeout)
	ctx := context.Background()

	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/health/ready", http.NoBody)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
