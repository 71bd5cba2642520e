// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   []ProviderConfig  `yaml:"providers"`
	Routing     RoutingConfig     `yaml:"routing"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Auth        AuthConfig        `yaml:"auth"`
	Database    DatabaseConfig    `yaml:"database"`
	Governance  GovernanceConfig  `yaml:"governance"`
	Cache       CacheConfig       `yaml:"cache"`
	CORS        CORSConfig        `yaml:"cors"`
	Deployment  DeploymentConfig  `yaml:"deployment"`
	Healthcheck HealthcheckConfig `yaml:"healthcheck"`
	Secrets     SecretsConfig     `yaml:"secrets"`
	MCP         MCPConfig         `yaml:"mcp"`

	// PricingFile points to a model pricing JSON that overrides the
	// embedded price table.
	PricingFile string `yaml:"pricing_file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	AdminPort    int           `yaml:"admin_port"` // 0 serves admin routes on the data port
	RootPath     string        `yaml:"root_path"`      // path prefix the gateway is served under
	ProxyBaseURL string        `yaml:"proxy_base_url"` // externally visible base URL
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// ProviderConfig defines a single LLM provider configuration.
type ProviderConfig struct {
	Name          string            `yaml:"name"`
	Type          string            `yaml:"type"`
	APIKey        string            `yaml:"api_key"`
	BaseURL       string            `yaml:"base_url"`
	Models        []string          `yaml:"models"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Timeout       time.Duration     `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers"`

	// AllowPrivateBaseURL permits loopback/private base_url hosts,
	// which are rejected by default as SSRF targets.
	AllowPrivateBaseURL bool `yaml:"allow_private_base_url"`
}

// RoutingConfig contains routing and load balancing settings.
type RoutingConfig struct {
	DefaultProvider string        `yaml:"default_provider"`
	Strategy        string        `yaml:"strategy"` // simple-shuffle, lowest-latency, least-busy
	FallbackEnabled bool          `yaml:"fallback_enabled"`
	RetryCount      int           `yaml:"retry_count"`
	CooldownPeriod  time.Duration `yaml:"cooldown_period"`
	Distributed     bool          `yaml:"distributed"` // share router state via Redis

	// Fallbacks lists cross-group fallback rules in priority order:
	//   fallbacks:
	//     - gpt-4: [gpt-4-turbo, gpt-3.5-turbo]
	Fallbacks []map[string][]string `yaml:"fallbacks"`

	// DefaultDeployment handles unknown model groups: requests route to
	// this provider with the requested model patched in.
	DefaultDeployment *DefaultDeploymentConfig `yaml:"default_deployment"`
}

// DefaultDeploymentConfig is the template for unknown model groups.
type DefaultDeploymentConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

// RateLimitConfig defines rate limiting parameters.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled"`
	RequestsPerMinute int      `yaml:"requests_per_minute"`
	BurstSize         int      `yaml:"burst_size"`
	Distributed       bool     `yaml:"distributed"` // enforce limits via Redis instead of per-process
	FailOpen          bool     `yaml:"fail_open"`   // allow traffic when the limiter backend is down
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"` // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP endpoint (e.g., "localhost:4317")
	ServiceName string  `yaml:"service_name"` // Service name for traces
	SampleRate  float64 `yaml:"sample_rate"`  // Sampling rate (0.0 to 1.0)
	Insecure    bool    `yaml:"insecure"`     // Use insecure connection (no TLS)
}

// AuthConfig contains API key and SSO authentication settings.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`

	// BootstrapToken grants management-route access before any management
	// key exists. Leave empty to disable.
	BootstrapToken string `yaml:"bootstrap_token"`

	SkipPaths              []string      `yaml:"skip_paths"`
	LastUsedUpdateInterval time.Duration `yaml:"last_used_update_interval"`
	AutoRedirectToSSO      bool          `yaml:"auto_redirect_to_sso"`
	OIDC                   OIDCConfig    `yaml:"oidc"`
	Casbin                 CasbinConfig  `yaml:"casbin"`
	Session                SessionConfig `yaml:"session"`
}

// OIDCConfig contains OIDC / SSO settings.
type OIDCConfig struct {
	IssuerURL    string `yaml:"issuer_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`

	ClaimMapping ClaimMappingConfig `yaml:"claim_mapping"`

	UserIDUpsert           bool   `yaml:"user_id_upsert"`
	TeamIDUpsert           bool   `yaml:"team_id_upsert"`
	UserAllowedEmailDomain string `yaml:"user_allowed_email_domain"`

	OIDCUserInfoEnabled  bool `yaml:"userinfo_enabled"`
	OIDCUserInfoCacheTTL int  `yaml:"userinfo_cache_ttl"` // seconds
}

// ClaimMappingConfig maps JWT claims to gateway identities.
type ClaimMappingConfig struct {
	RoleClaim        string            `yaml:"role_claim"`
	Roles            map[string]string `yaml:"roles"` // claim value -> gateway role
	UseRoleHierarchy bool              `yaml:"use_role_hierarchy"`

	TeamIDJWTField  string            `yaml:"team_id_jwt_field"`
	TeamIDsJWTField string            `yaml:"team_ids_jwt_field"`
	TeamAliasMap    map[string]string `yaml:"team_alias_map"`

	OrgIDJWTField string            `yaml:"org_id_jwt_field"`
	OrgAliasMap   map[string]string `yaml:"org_alias_map"`

	UserIDJWTField    string `yaml:"user_id_jwt_field"`
	UserEmailJWTField string `yaml:"user_email_jwt_field"`
	EndUserIDJWTField string `yaml:"end_user_id_jwt_field"`

	DefaultRole   string `yaml:"default_role"`
	DefaultTeamID string `yaml:"default_team_id"`
}

// CasbinConfig contains RBAC policy settings.
type CasbinConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PolicyPath string `yaml:"policy_path"`
}

// SessionConfig contains SSO session cookie settings.
type SessionConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Secret          string        `yaml:"secret"`
	CookieName      string        `yaml:"cookie_name"`
	StateCookieName string        `yaml:"state_cookie_name"`
	CookieDomain    string        `yaml:"cookie_domain"`
	CookiePath      string        `yaml:"cookie_path"`
	CookieSecure    bool          `yaml:"cookie_secure"`
	CookieSameSite  string        `yaml:"cookie_same_site"`
	TTL             time.Duration `yaml:"ttl"`
	StateTTL        time.Duration `yaml:"state_ttl"`
}

// DatabaseConfig contains PostgreSQL settings for the auth store.
type DatabaseConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Database     string        `yaml:"database"`
	SSLMode      string        `yaml:"ssl_mode"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

// GovernanceConfig controls budget enforcement and usage accounting.
type GovernanceConfig struct {
	Enabled           bool          `yaml:"enabled"`
	AsyncAccounting   bool          `yaml:"async_accounting"`
	IdempotencyWindow time.Duration `yaml:"idempotency_window"`
	AuditEnabled      bool          `yaml:"audit_enabled"`
	// AdmissionControl enables per-entity window admission: TPM/RPM and
	// max_parallel_requests checked across every limited dimension, with
	// token reservations settled to actual usage at accounting.
	AdmissionControl bool `yaml:"admission_control"`
}

// CacheConfig contains response cache settings.
type CacheConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Type      string            `yaml:"type"` // local, redis, dual
	TTL       time.Duration     `yaml:"ttl"`
	Namespace string            `yaml:"namespace"`
	Memory    MemoryCacheConfig `yaml:"memory"`
	Redis     RedisCacheConfig  `yaml:"redis"`
}

// MemoryCacheConfig contains in-process cache settings.
type MemoryCacheConfig struct {
	MaxSize         int           `yaml:"max_size"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	MaxItemSize     int           `yaml:"max_item_size"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// RedisCacheConfig contains Redis connection settings shared by the
// response cache, distributed rate limiter and router state.
type RedisCacheConfig struct {
	Addr           string        `yaml:"addr"`
	ClusterAddrs   []string      `yaml:"cluster_addrs"`
	SentinelAddrs  []string      `yaml:"sentinel_addrs"`
	SentinelMaster string        `yaml:"sentinel_master"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	PoolSize       int           `yaml:"pool_size"`
	MinIdleConns   int           `yaml:"min_idle_conns"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// CORSConfig contains cross-origin settings, split by surface so admin
// UI origins don't automatically gain access to data-plane routes.
type CORSConfig struct {
	Enabled           bool          `yaml:"enabled"`
	AllowAllOrigins   bool          `yaml:"allow_all_origins"`
	AllowCredentials  bool          `yaml:"allow_credentials"`
	DataOrigins       CORSOrigins   `yaml:"data_origins"`
	AdminOrigins      CORSOrigins   `yaml:"admin_origins"`
	AdminPathPrefixes []string      `yaml:"admin_path_prefixes"`
	AllowMethods      []string      `yaml:"allow_methods"`
	AllowHeaders      []string      `yaml:"allow_headers"`
	ExposeHeaders     []string      `yaml:"expose_headers"`
	MaxAge            time.Duration `yaml:"max_age"`
}

// CORSOrigins is an allowlist/denylist pair; the denylist wins.
type CORSOrigins struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// DeploymentConfig selects between single-node and distributed operation.
type DeploymentConfig struct {
	Mode string `yaml:"mode"` // development, distributed
}

// HealthcheckConfig controls active deployment health probes.
type HealthcheckConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	CooldownPeriod time.Duration `yaml:"cooldown_period"`
}

// MCPConfig configures connections to Model Context Protocol servers
// whose tools the gateway exposes and injects into chat requests.
type MCPConfig struct {
	Enabled                  bool              `yaml:"enabled"`
	Clients                  []MCPClientConfig `yaml:"clients"`
	DefaultConnectionTimeout time.Duration     `yaml:"default_connection_timeout"`
	DefaultExecutionTimeout  time.Duration     `yaml:"default_execution_timeout"`
}

// MCPClientConfig describes a single MCP server connection.
type MCPClientConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Type    string `yaml:"type"` // http, stdio, sse, inprocess
	URL     string `yaml:"url"`
	Command string `yaml:"command"`

	Args    []string          `yaml:"args"`
	Envs    []string          `yaml:"envs"`
	Headers map[string]string `yaml:"headers"`

	// ToolsToExecute lists the tools exposed from this server; ["*"]
	// exposes everything, nil or empty exposes nothing.
	ToolsToExecute []string `yaml:"tools_to_execute"`

	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	ExecutionTimeout  time.Duration `yaml:"execution_timeout"`
}

// SecretsConfig configures resolution of scheme-prefixed credential
// values such as "env://OPENAI_API_KEY" or "vault://secret/data/openai".
// The env scheme is always available; vault requires an address.
type SecretsConfig struct {
	Vault VaultConfig `yaml:"vault"`
}

// VaultConfig contains HashiCorp Vault connection settings.
type VaultConfig struct {
	Address    string `yaml:"address"`
	AuthMethod string `yaml:"auth_method"` // approle, cert
	RoleID     string `yaml:"role_id"`
	SecretID   string `yaml:"secret_id"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Routing: RoutingConfig{
			Strategy:        "simple-shuffle",
			FallbackEnabled: true,
			RetryCount:      3,
			CooldownPeriod:  60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "litellm",
			SampleRate:  1.0,
			Insecure:    true,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider[%d]: name is required", i)
		}
		if p.Type == "" {
			return fmt.Errorf("provider[%d]: type is required", i)
		}
		if p.APIKey == "" {
			return fmt.Errorf("provider[%d] %q: api_key is required", i, p.Name)
		}
		if len(p.Models) == 0 {
			return fmt.Errorf("provider[%d] %q: at least one model must be configured", i, p.Name)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("provider[%d] %q: timeout cannot be negative", i, p.Name)
		}
		if p.MaxConcurrent < 0 {
			return fmt.Errorf("provider[%d] %q: max_concurrent cannot be negative", i, p.Name)
		}
	}

	// Validate routing config
	if c.Routing.RetryCount < 0 {
		return fmt.Errorf("routing.retry_count cannot be negative")
	}
	if c.Routing.CooldownPeriod < 0 {
		return fmt.Errorf("routing.cooldown_period cannot be negative")
	}

	if c.Database.Enabled {
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required when database.enabled is true")
		}
		if c.Database.Port != 0 && (c.Database.Port < 1 || c.Database.Port > 65535) {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
	}

	if c.Deployment.Mode == "distributed" {
		if err := c.validateDistributed(); err != nil {
			return err
		}
	}

	return nil
}

// validateDistributed rejects configurations where multiple gateway
// instances would silently disagree: every instance needs shared auth
// state, shared router state and shared rate-limit counters.
func (c *Config) validateDistributed() error {
	if !c.Database.Enabled {
		return fmt.Errorf("deployment.mode=distributed requires database.enabled=true")
	}
	if !c.Routing.Distributed {
		return fmt.Errorf("deployment.mode=distributed requires routing.distributed=true")
	}
	if !c.hasRedis() {
		return fmt.Errorf("deployment.mode=distributed requires cache.redis addr or cluster_addrs")
	}
	if c.RateLimit.Enabled {
		if !c.RateLimit.Distributed {
			return fmt.Errorf("deployment.mode=distributed requires rate_limit.distributed=true")
		}
		if !c.hasRedis() {
			return fmt.Errorf("distributed rate limiting requires cache.redis addr or cluster_addrs")
		}
	}
	return nil
}

func (c *Config) hasRedis() bool {
	return c.Cache.Redis.Addr != "" || len(c.Cache.Redis.ClusterAddrs) > 0
}

// Warning codes returned by Warnings.
const (
	WarningCacheWithoutAuth = "cache_without_auth"
)

// Warning describes a configuration that loads but is probably a mistake.
type Warning struct {
	Code    string
	Message string
}

// Warnings reports non-fatal configuration hazards.
func (c *Config) Warnings() []Warning {
	var warnings []Warning
	if c.Cache.Enabled && !c.Auth.Enabled {
		warnings = append(warnings, Warning{
			Code: WarningCacheWithoutAuth,
			Message: "response cache is enabled without authentication: " +
				"all callers share one cache namespace and can read each other's cached responses",
		})
	}
	return warnings
}
