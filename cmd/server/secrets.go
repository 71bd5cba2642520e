package main

import (
	"context"
	"fmt"

	"github.com/BerriAI/litellm-go/internal/config"
	"github.com/BerriAI/litellm-go/internal/secret"
	"github.com/BerriAI/litellm-go/internal/secret/env"
	"github.com/BerriAI/litellm-go/internal/secret/vault"
)

// buildSecretManager assembles the credential resolver. The env scheme
// is always registered; vault is added when an address is configured.
func buildSecretManager(cfg *config.Config) (*secret.Manager, error) {
	mgr := secret.NewManager()
	mgr.Register("env", env.New())

	if cfg.Secrets.Vault.Address != "" {
		vp, err := vault.New(vault.Config{
			Address:    cfg.Secrets.Vault.Address,
			AuthMethod: cfg.Secrets.Vault.AuthMethod,
			RoleID:     cfg.Secrets.Vault.RoleID,
			SecretID:   cfg.Secrets.Vault.SecretID,
			CACert:     cfg.Secrets.Vault.CACert,
			ClientCert: cfg.Secrets.Vault.ClientCert,
			ClientKey:  cfg.Secrets.Vault.ClientKey,
		})
		if err != nil {
			return nil, fmt.Errorf("vault provider: %w", err)
		}
		mgr.Register("vault", vp)
	}

	return mgr, nil
}

// resolveSecrets returns a copy of cfg with scheme-prefixed credential
// fields replaced by their resolved values. Plain values pass through
// untouched, so unprefixed API keys keep working. The input config is
// never mutated; hot reloads hand the reloader a fresh config that gets
// resolved again.
func resolveSecrets(ctx context.Context, cfg *config.Config, mgr *secret.Manager) (*config.Config, error) {
	resolved := *cfg
	resolved.Providers = make([]config.ProviderConfig, len(cfg.Providers))
	copy(resolved.Providers, cfg.Providers)

	for i := range resolved.Providers {
		if resolved.Providers[i].APIKey == "" {
			continue
		}
		val, err := mgr.Get(ctx, resolved.Providers[i].APIKey)
		if err != nil {
			return nil, fmt.Errorf("provider %s api key: %w", resolved.Providers[i].Name, err)
		}
		resolved.Providers[i].APIKey = val
	}

	if resolved.Auth.OIDC.ClientSecret != "" {
		val, err := mgr.Get(ctx, resolved.Auth.OIDC.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("oidc client secret: %w", err)
		}
		resolved.Auth.OIDC.ClientSecret = val
	}

	if resolved.Auth.Session.Secret != "" {
		val, err := mgr.Get(ctx, resolved.Auth.Session.Secret)
		if err != nil {
			return nil, fmt.Errorf("session secret: %w", err)
		}
		resolved.Auth.Session.Secret = val
	}

	return &resolved, nil
}
