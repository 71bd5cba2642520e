package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BerriAI/litellm-go/internal/auth"
	"github.com/BerriAI/litellm-go/internal/config"
	"github.com/BerriAI/litellm-go/internal/metrics"
	"github.com/BerriAI/litellm-go/internal/observability"
	"github.com/BerriAI/litellm-go/internal/version"
)

// versionHeaderMiddleware stamps every response with the gateway version.
func versionHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-litellm-version", version.Version)
		next.ServeHTTP(w, r)
	})
}

func buildMiddlewareStack(cfg *config.Config, authStore auth.Store, logger *slog.Logger, syncer *auth.UserTeamSyncer) (func(http.Handler) http.Handler, error) {
	if cfg == nil {
		return nil, errNilConfig
	}

	var authMiddleware *auth.Middleware
	if cfg.Auth.Enabled {
		authMiddleware = auth.NewMiddleware(&auth.MiddlewareConfig{
			Store:                  authStore,
			Logger:                 logger,
			SkipPaths:              cfg.Auth.SkipPaths,
			Enabled:                true,
			LastUsedUpdateInterval: cfg.Auth.LastUsedUpdateInterval,
		})
		logger.Info("API key authentication middleware enabled")
	}

	var rateLimiter *auth.TenantRateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = buildTenantRateLimiter(cfg, logger)
	}

	sessionManager, err := buildSessionManager(cfg)
	if err != nil {
		return nil, err
	}

	var oidcMiddleware func(http.Handler) http.Handler
	if cfg.Auth.Enabled && cfg.Auth.OIDC.IssuerURL != "" {
		// The syncer, when present, upserts users/teams from JWT claims.
		middleware, err := auth.OIDCMiddlewareWithSync(mapOIDCConfig(cfg.Auth.OIDC), syncer)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OIDC middleware: %w", err)
		}
		oidcMiddleware = middleware
		logger.Info("OIDC authentication enabled", "issuer", cfg.Auth.OIDC.IssuerURL, "sync_enabled", syncer != nil)
	}

	return func(next http.Handler) http.Handler {
		if next == nil {
			return nil
		}
		handler := next
		if rateLimiter != nil {
			handler = rateLimiter.RateLimitMiddleware(handler)
		}
		if authMiddleware != nil {
			handler = authMiddleware.Authenticate(handler)
		}
		if sessionManager != nil {
			handler = auth.SessionMiddleware(sessionManager)(handler)
		}
		if oidcMiddleware != nil {
			handler = oidcMiddleware(handler)
		}
		handler = metrics.Middleware(handler)
		handler = observability.RequestIDMiddleware(handler)
		handler = versionHeaderMiddleware(handler)
		handler = corsMiddleware(cfg.CORS, handler)
		return handler
	}, nil
}
