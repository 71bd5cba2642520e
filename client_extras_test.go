package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BerriAI/litellm-go/pkg/errors"
	"github.com/BerriAI/litellm-go/pkg/types"
)

// mockExtrasProvider implements the image, moderation and rerank
// capabilities on top of the base Provider interface.
type mockExtrasProvider struct {
	name    string
	models  []string
	baseURL string
}

func (m *mockExtrasProvider) Name() string { return m.name }

func (m *mockExtrasProvider) SupportedModels() []string { return m.models }

func (m *mockExtrasProvider) SupportsModel(model string) bool {
	for _, mod := range m.models {
		if mod == model {
			return true
		}
	}
	return false
}

func (m *mockExtrasProvider) BuildRequest(ctx context.Context, req *ChatRequest) (*http.Request, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockExtrasProvider) ParseResponse(resp *http.Response) (*ChatResponse, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockExtrasProvider) ParseStreamChunk(data []byte) (*StreamChunk, error) {
	return nil, nil
}

func (m *mockExtrasProvider) MapError(statusCode int, body []byte) error {
	return errors.NewInternalError(m.name, "", "error")
}

func (m *mockExtrasProvider) BuildImageRequest(ctx context.Context, req *types.ImageGenerationRequest) (*http.Request, error) {
	return m.buildJSON(ctx, "/images/generations", req)
}

func (m *mockExtrasProvider) ParseImageResponse(resp *http.Response) (*types.ImageResponse, error) {
	var out types.ImageResponse
	return &out, decodeBody(resp, &out)
}

func (m *mockExtrasProvider) BuildModerationRequest(ctx context.Context, req *types.ModerationRequest) (*http.Request, error) {
	return m.buildJSON(ctx, "/moderations", req)
}

func (m *mockExtrasProvider) ParseModerationResponse(resp *http.Response) (*types.ModerationResponse, error) {
	var out types.ModerationResponse
	return &out, decodeBody(resp, &out)
}

func (m *mockExtrasProvider) BuildRerankRequest(ctx context.Context, req *types.RerankRequest) (*http.Request, error) {
	return m.buildJSON(ctx, "/rerank", req)
}

func (m *mockExtrasProvider) ParseRerankResponse(resp *http.Response) (*types.RerankResponse, error) {
	var out types.RerankResponse
	return &out, decodeBody(resp, &out)
}

func (m *mockExtrasProvider) buildJSON(ctx context.Context, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func decodeBody(resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func TestClient_ImageGeneration_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			http.NotFound(w, r)
			return
		}
		resp := types.ImageResponse{
			Created: 1,
			Data:    []types.ImageData{{URL: "https://example.com/img.png"}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	mock := &mockExtrasProvider{
		name:    "mock-extras",
		models:  []string{"dall-e-3"},
		baseURL: server.URL,
	}

	client, err := New(WithProviderInstance("mock-extras", mock, []string{"dall-e-3"}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	resp, err := client.ImageGeneration(context.Background(), &types.ImageGenerationRequest{
		Model:  "dall-e-3",
		Prompt: "a lighthouse",
	})
	if err != nil {
		t.Fatalf("ImageGeneration() error = %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].URL != "https://example.com/img.png" {
		t.Errorf("unexpected image data: %+v", resp.Data)
	}
}

func TestClient_ImageGeneration_ModelRequired(t *testing.T) {
	mock := &mockExtrasProvider{name: "mock-extras", models: []string{"dall-e-3"}}

	client, err := New(WithProviderInstance("mock-extras", mock, []string{"dall-e-3"}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	_, err = client.ImageGeneration(context.Background(), &types.ImageGenerationRequest{Prompt: "x"})
	if err == nil {
		t.Error("expected error for missing model")
	}
}

func TestClient_Moderation_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/moderations" {
			http.NotFound(w, r)
			return
		}
		resp := types.ModerationResponse{
			ID:      "modr-1",
			Model:   "omni-moderation-latest",
			Results: []types.ModerationResult{{Flagged: true}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	mock := &mockExtrasProvider{
		name:    "mock-extras",
		models:  []string{"omni-moderation-latest"},
		baseURL: server.URL,
	}

	client, err := New(WithProviderInstance("mock-extras", mock, []string{"omni-moderation-latest"}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	text := "bad input"
	resp, err := client.Moderation(context.Background(), &types.ModerationRequest{
		Model: "omni-moderation-latest",
		Input: types.ModerationInput{Text: &text},
	})
	if err != nil {
		t.Fatalf("Moderation() error = %v", err)
	}
	if len(resp.Results) != 1 || !resp.Results[0].Flagged {
		t.Errorf("unexpected moderation results: %+v", resp.Results)
	}
}

func TestClient_Rerank_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			http.NotFound(w, r)
			return
		}
		resp := types.RerankResponse{
			ID: "rerank-1",
			Results: []types.RerankResult{
				{Index: 1, RelevanceScore: 0.9},
				{Index: 0, RelevanceScore: 0.1},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	mock := &mockExtrasProvider{
		name:    "mock-extras",
		models:  []string{"rerank-v3"},
		baseURL: server.URL,
	}

	client, err := New(WithProviderInstance("mock-extras", mock, []string{"rerank-v3"}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	resp, err := client.Rerank(context.Background(), &types.RerankRequest{
		Model:     "rerank-v3",
		Query:     "cats",
		Documents: []string{"dogs", "cats"},
	})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(resp.Results) != 2 || resp.Results[0].Index != 1 {
		t.Errorf("unexpected rerank results: %+v", resp.Results)
	}
}

func TestClient_Rerank_NotSupported(t *testing.T) {
	mock := &mockEmbeddingProvider{
		name:   "mock-no-rerank",
		models: []string{"rerank-v3"},
	}

	client, err := New(WithProviderInstance("mock-no-rerank", mock, []string{"rerank-v3"}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	_, err = client.Rerank(context.Background(), &types.RerankRequest{
		Model:     "rerank-v3",
		Query:     "q",
		Documents: []string{"d"},
	})
	if err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestDeploymentCapture_RecordsPickedDeployment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := types.ImageResponse{Created: 1, Data: []types.ImageData{{URL: "u"}}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	mock := &mockExtrasProvider{
		name:    "mock-extras",
		models:  []string{"dall-e-3"},
		baseURL: server.URL,
	}

	client, err := New(WithProviderInstance("mock-extras", mock, []string{"dall-e-3"}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	capture := &DeploymentCapture{}
	ctx := WithDeploymentCapture(context.Background(), capture)

	if _, err := client.ImageGeneration(ctx, &types.ImageGenerationRequest{
		Model:  "dall-e-3",
		Prompt: "a lighthouse",
	}); err != nil {
		t.Fatalf("ImageGeneration() error = %v", err)
	}

	if capture.ModelID() == "" {
		t.Error("expected deployment ID to be captured")
	}
}

func TestClient_DeploymentInfos(t *testing.T) {
	mock := &mockExtrasProvider{name: "mock-extras", models: []string{"dall-e-3"}}

	client, err := New(WithProviderInstance("mock-extras", mock, []string{"dall-e-3"}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	infos := client.DeploymentInfos()
	if len(infos) != 1 {
		t.Fatalf("expected 1 deployment, got %d", len(infos))
	}
	if infos[0].ModelName != "dall-e-3" {
		t.Errorf("expected model dall-e-3, got %s", infos[0].ModelName)
	}
	if infos[0].Provider != "mock-extras" {
		t.Errorf("expected provider mock-extras, got %s", infos[0].Provider)
	}
	if infos[0].DeploymentID == "" {
		t.Error("expected non-empty deployment ID")
	}
}
