package api //nolint:revive // package name is intentional

import (
	"net/http"

	"github.com/goccy/go-json"

	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
)

// modelInfoEntry is one row of the /v1/model/info response, in the
// LiteLLM wire shape: routing params plus pricing/limit metadata.
type modelInfoEntry struct {
	ModelName     string         `json:"model_name"`
	LiteLLMParams map[string]any `json:"litellm_params"`
	ModelInfo     map[string]any `json:"model_info"`
}

// ModelInfo handles GET /v1/model/info. Unlike /v1/models it reports
// per-deployment detail including pricing and provider routing.
func (h *ClientHandler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	client, release := h.acquireClient()
	defer release()
	if client == nil {
		h.writeError(w, llmerrors.NewInternalError("", "", "client not initialized"))
		return
	}

	infos := client.DeploymentInfos()
	data := make([]modelInfoEntry, 0, len(infos))
	for _, info := range infos {
		params := map[string]any{
			"model":               info.ModelName,
			"custom_llm_provider": info.Provider,
		}
		if info.BaseURL != "" {
			params["api_base"] = info.BaseURL
		}

		meta := map[string]any{
			"id":       info.DeploymentID,
			"db_model": false,
		}
		if info.MaxConcurrent > 0 {
			meta["max_parallel_requests"] = info.MaxConcurrent
		}
		if info.Pricing != nil {
			meta["input_cost_per_token"] = info.Pricing.InputCostPerToken
			meta["output_cost_per_token"] = info.Pricing.OutputCostPerToken
			if info.Pricing.Mode != "" {
				meta["mode"] = info.Pricing.Mode
			}
			if info.Pricing.Provider != "" {
				meta["litellm_provider"] = info.Pricing.Provider
			}
		}

		data = append(data, modelInfoEntry{
			ModelName:     info.ModelName,
			LiteLLMParams: params,
			ModelInfo:     meta,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": data}); err != nil {
		h.logger.Error("failed to encode model info response", "error", err)
	}
}
