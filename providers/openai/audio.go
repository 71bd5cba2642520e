package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/BerriAI/litellm-go/pkg/provider"
	"github.com/BerriAI/litellm-go/pkg/types"
)

// BuildTranscriptionRequest creates a multipart HTTP request for the
// Transcriptions API.
func (p *Provider) BuildTranscriptionRequest(ctx context.Context, req *types.TranscriptionRequest) (*http.Request, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transcription request: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileName := req.FileName
	if fileName == "" {
		fileName = "audio"
	}
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(req.File); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}

	fields := map[string]string{
		"model":           req.Model,
		"language":        req.Language,
		"prompt":          req.Prompt,
		"response_format": req.ResponseFormat,
	}
	if req.Temperature != nil {
		fields["temperature"] = strconv.FormatFloat(*req.Temperature, 'f', -1, 64)
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	url := strings.TrimSuffix(p.baseURL, "/") + "/audio/transcriptions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	token, err := provider.GetToken(p.tokenSource, p.apiKey)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+token)
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// ParseTranscriptionResponse transforms an OpenAI response into the unified
// format. Non-JSON response formats (text, srt, vtt) are wrapped as Text.
func (p *Provider) ParseTranscriptionResponse(resp *http.Response) (*types.TranscriptionResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return &types.TranscriptionResponse{Text: strings.TrimSpace(string(body))}, nil
	}

	var transcrResp types.TranscriptionResponse
	if err := json.Unmarshal(body, &transcrResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &transcrResp, nil
}

// BuildSpeechRequest creates an HTTP request for the Speech API.
func (p *Provider) BuildSpeechRequest(ctx context.Context, req *types.SpeechRequest) (*http.Request, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid speech request: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(p.baseURL, "/") + "/audio/speech"
	httpReq, err := p.newAuthorizedRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}
	return httpReq, nil
}

// ParseSpeechResponse reads the synthesized audio bytes.
func (p *Provider) ParseSpeechResponse(resp *http.Response) (*types.SpeechResult, error) {
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &types.SpeechResult{Audio: audio, ContentType: contentType}, nil
}
