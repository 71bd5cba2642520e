package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/BerriAI/litellm-go/pkg/provider"
	"github.com/BerriAI/litellm-go/pkg/types"
)

// BuildImageRequest creates an HTTP request for the Images API.
func (p *Provider) BuildImageRequest(ctx context.Context, req *types.ImageGenerationRequest) (*http.Request, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid image request: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(p.baseURL, "/") + "/images/generations"
	httpReq, err := p.newAuthorizedRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}
	return httpReq, nil
}

// ParseImageResponse transforms an OpenAI response into the unified format.
func (p *Provider) ParseImageResponse(resp *http.Response) (*types.ImageResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var imgResp types.ImageResponse
	if err := json.Unmarshal(body, &imgResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &imgResp, nil
}

// BuildModerationRequest creates an HTTP request for the Moderations API.
func (p *Provider) BuildModerationRequest(ctx context.Context, req *types.ModerationRequest) (*http.Request, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid moderation request: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(p.baseURL, "/") + "/moderations"
	httpReq, err := p.newAuthorizedRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}
	return httpReq, nil
}

// ParseModerationResponse transforms an OpenAI response into the unified format.
func (p *Provider) ParseModerationResponse(resp *http.Response) (*types.ModerationResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var modResp types.ModerationResponse
	if err := json.Unmarshal(body, &modResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &modResp, nil
}

// newAuthorizedRequest builds a POST with the standard JSON and auth
// headers applied.
func (p *Provider) newAuthorizedRequest(ctx context.Context, url string, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	token, err := provider.GetToken(p.tokenSource, p.apiKey)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}
