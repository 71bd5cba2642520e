package main

import (
	"context"
	"strings"
	"testing"

	"github.com/BerriAI/litellm-go/internal/config"
)

func TestResolveSecrets_EnvScheme(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-from-env")

	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "openai", APIKey: "env://TEST_OPENAI_KEY"},
		},
	}

	mgr, err := buildSecretManager(cfg)
	if err != nil {
		t.Fatalf("buildSecretManager: %v", err)
	}
	defer mgr.Close()

	resolved, err := resolveSecrets(context.Background(), cfg, mgr)
	if err != nil {
		t.Fatalf("resolveSecrets: %v", err)
	}

	if resolved.Providers[0].APIKey != "sk-from-env" {
		t.Fatalf("expected resolved key, got %q", resolved.Providers[0].APIKey)
	}
	// The source config must stay untouched for hot reloads.
	if cfg.Providers[0].APIKey != "env://TEST_OPENAI_KEY" {
		t.Fatalf("source config mutated: %q", cfg.Providers[0].APIKey)
	}
}

func TestResolveSecrets_PlainValuePassthrough(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "anthropic", APIKey: "sk-static-value"},
			{Name: "local", APIKey: ""},
		},
	}

	mgr, err := buildSecretManager(cfg)
	if err != nil {
		t.Fatalf("buildSecretManager: %v", err)
	}
	defer mgr.Close()

	resolved, err := resolveSecrets(context.Background(), cfg, mgr)
	if err != nil {
		t.Fatalf("resolveSecrets: %v", err)
	}

	if resolved.Providers[0].APIKey != "sk-static-value" {
		t.Fatalf("expected passthrough, got %q", resolved.Providers[0].APIKey)
	}
	if resolved.Providers[1].APIKey != "" {
		t.Fatalf("expected empty key to stay empty, got %q", resolved.Providers[1].APIKey)
	}
}

func TestResolveSecrets_MissingEnvVar(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "openai", APIKey: "env://DEFINITELY_NOT_SET_12345"},
		},
	}

	mgr, err := buildSecretManager(cfg)
	if err != nil {
		t.Fatalf("buildSecretManager: %v", err)
	}
	defer mgr.Close()

	if _, err := resolveSecrets(context.Background(), cfg, mgr); err == nil {
		t.Fatal("expected error for unset environment variable")
	} else if !strings.Contains(err.Error(), "openai") {
		t.Fatalf("error should name the provider: %v", err)
	}
}

func TestResolveSecrets_UnknownScheme(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "openai", APIKey: "gcs://some/path"},
		},
	}

	mgr, err := buildSecretManager(cfg)
	if err != nil {
		t.Fatalf("buildSecretManager: %v", err)
	}
	defer mgr.Close()

	if _, err := resolveSecrets(context.Background(), cfg, mgr); err == nil {
		t.Fatal("expected error for unregistered scheme")
	}
}

func TestResolveSecrets_SessionAndOIDCSecrets(t *testing.T) {
	t.Setenv("TEST_SESSION_SECRET", "cookie-signing-key")
	t.Setenv("TEST_OIDC_SECRET", "oidc-client-secret")

	cfg := &config.Config{}
	cfg.Auth.Session.Secret = "env://TEST_SESSION_SECRET"
	cfg.Auth.OIDC.ClientSecret = "env://TEST_OIDC_SECRET"

	mgr, err := buildSecretManager(cfg)
	if err != nil {
		t.Fatalf("buildSecretManager: %v", err)
	}
	defer mgr.Close()

	resolved, err := resolveSecrets(context.Background(), cfg, mgr)
	if err != nil {
		t.Fatalf("resolveSecrets: %v", err)
	}

	if resolved.Auth.Session.Secret != "cookie-signing-key" {
		t.Fatalf("session secret not resolved: %q", resolved.Auth.Session.Secret)
	}
	if resolved.Auth.OIDC.ClientSecret != "oidc-client-secret" {
		t.Fatalf("oidc client secret not resolved: %q", resolved.Auth.OIDC.ClientSecret)
	}
}
