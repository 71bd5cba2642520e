package main

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/BerriAI/litellm-go/internal/api"
	"github.com/BerriAI/litellm-go/internal/config"
	"github.com/BerriAI/litellm-go/internal/healthcheck"
)

// healthStatusHandler serves the detailed GET /health body. Probe
// results come from the background prober; deployments that have not
// been probed yet are listed as healthy but carry no checked_at time.
func healthStatusHandler(prober *healthcheck.Prober, swapper *api.ClientSwapper) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := prober.Snapshot()
		if len(snap.Healthy)+len(snap.Unhealthy) == 0 && swapper != nil {
			client, release := swapper.Acquire()
			if client != nil {
				for _, info := range client.DeploymentInfos() {
					snap.Healthy = append(snap.Healthy, healthcheck.EndpointStatus{
						DeploymentID: info.DeploymentID,
						Provider:     info.Provider,
						Model:        info.ModelName,
						Healthy:      true,
					})
				}
			}
			release()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"healthy_endpoints":   endpointList(snap.Healthy),
			"unhealthy_endpoints": endpointList(snap.Unhealthy),
			"healthy_count":       len(snap.Healthy),
			"unhealthy_count":     len(snap.Unhealthy),
		})
	}
}

func endpointList(statuses []healthcheck.EndpointStatus) []healthcheck.EndpointStatus {
	if statuses == nil {
		return []healthcheck.EndpointStatus{}
	}
	return statuses
}

// uiConfigHandler serves GET /.well-known/litellm-ui-config so UI
// clients can discover where the gateway lives and whether SSO login
// is available.
func uiConfigHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		ssoConfigured := cfg.Auth.OIDC.IssuerURL != "" && cfg.Auth.OIDC.ClientID != ""

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"server_root_path":     cfg.Server.RootPath,
			"proxy_base_url":       cfg.Server.ProxyBaseURL,
			"auto_redirect_to_sso": cfg.Auth.AutoRedirectToSSO,
			"is_sso_configured":    ssoConfigured,
		})
	}
}
