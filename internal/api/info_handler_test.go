package api //nolint:revive // package name is intentional

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestModelInfo(t *testing.T) {
	handler := newExtrasHandler(t, "openai", "http://localhost:0", []string{"gpt-4o", "gpt-4o-mini"})

	req := httptest.NewRequest(http.MethodGet, "/v1/model/info", nil)
	rec := httptest.NewRecorder()
	handler.ModelInfo(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []struct {
			ModelName     string         `json:"model_name"`
			LiteLLMParams map[string]any `json:"litellm_params"`
			ModelInfo     map[string]any `json:"model_info"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)

	first := body.Data[0]
	require.Equal(t, "gpt-4o", first.ModelName)
	require.Equal(t, "openai", first.LiteLLMParams["custom_llm_provider"])
	require.NotEmpty(t, first.ModelInfo["id"])

	// gpt-4o is in the bundled pricing table, so cost metadata is present.
	require.Contains(t, first.ModelInfo, "input_cost_per_token")
}

func TestModelInfo_NoClient(t *testing.T) {
	handler := newStoredResponsesHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/model/info", nil)
	rec := httptest.NewRecorder()
	handler.ModelInfo(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
