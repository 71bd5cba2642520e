package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	litellm "github.com/BerriAI/litellm-go"
	"github.com/BerriAI/litellm-go/internal/config"
	"github.com/BerriAI/litellm-go/internal/healthcheck"
	"github.com/BerriAI/litellm-go/providers/openai"
)

func TestHealthStatusHandler_ReportsProbeResults(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	prov := openai.New(
		openai.WithBaseURL(upstream.URL),
		openai.WithModels("gpt-4o"),
	)
	client, err := litellm.New(litellm.WithProviderInstance("openai", prov, []string{"gpt-4o"}))
	if err != nil {
		t.Fatalf("litellm.New() error = %v", err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prober := healthcheck.NewProber(
		healthcheck.Config{Enabled: true, Interval: time.Hour, Timeout: time.Second},
		healthcheck.StaticClientProvider{Client: client},
		nil,
	)
	prober.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap := prober.Snapshot(); len(snap.Healthy) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	healthStatusHandler(prober, nil)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Healthy        []healthcheck.EndpointStatus `json:"healthy_endpoints"`
		Unhealthy      []healthcheck.EndpointStatus `json:"unhealthy_endpoints"`
		HealthyCount   int                          `json:"healthy_count"`
		UnhealthyCount int                          `json:"unhealthy_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.HealthyCount != 1 || body.UnhealthyCount != 0 {
		t.Fatalf("unexpected counts: %d healthy, %d unhealthy", body.HealthyCount, body.UnhealthyCount)
	}
	if body.Healthy[0].Model != "gpt-4o" {
		t.Fatalf("unexpected model: %q", body.Healthy[0].Model)
	}
}

func TestHealthStatusHandler_EmptyWithoutProber(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	healthStatusHandler(nil, nil)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["healthy_count"].(float64) != 0 {
		t.Fatalf("expected zero healthy endpoints, got %v", body["healthy_count"])
	}
}

func TestUIConfigHandler(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			RootPath:     "/gateway",
			ProxyBaseURL: "https://llm.example.com",
		},
		Auth: config.AuthConfig{
			AutoRedirectToSSO: true,
			OIDC: config.OIDCConfig{
				IssuerURL: "https://idp.example.com",
				ClientID:  "litellm",
			},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/.well-known/litellm-ui-config", nil)
	rec := httptest.NewRecorder()
	uiConfigHandler(cfg)(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["server_root_path"] != "/gateway" {
		t.Fatalf("unexpected server_root_path: %v", body["server_root_path"])
	}
	if body["proxy_base_url"] != "https://llm.example.com" {
		t.Fatalf("unexpected proxy_base_url: %v", body["proxy_base_url"])
	}
	if body["auto_redirect_to_sso"] != true {
		t.Fatalf("expected auto_redirect_to_sso true")
	}
	if body["is_sso_configured"] != true {
		t.Fatalf("expected is_sso_configured true")
	}
}

func TestUIConfigHandler_SSONotConfigured(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/.well-known/litellm-ui-config", nil)
	rec := httptest.NewRecorder()
	uiConfigHandler(&config.Config{})(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["is_sso_configured"] != false {
		t.Fatalf("expected is_sso_configured false")
	}
}
