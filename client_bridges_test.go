package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// chatMockProvider routes chat completions to a test upstream.
type chatMockProvider struct {
	mockProvider
	url string
}

func (m *chatMockProvider) BuildRequest(ctx context.Context, req *ChatRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", m.url+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func newBridgeClient(t *testing.T) *Client {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "bridged"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
		}`))
	}))
	t.Cleanup(upstream.Close)

	mock := &chatMockProvider{
		mockProvider: mockProvider{name: "test", models: []string{"test-model"}},
		url:          upstream.URL,
	}
	client, err := New(WithProviderInstance("test", mock, []string{"test-model"}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_Completion_Bridge(t *testing.T) {
	client := newBridgeClient(t)

	prompt := "say hi"
	resp, err := client.Completion(context.Background(), &CompletionRequest{
		Model:  "test-model",
		Prompt: CompletionPrompt{Text: &prompt},
	})
	if err != nil {
		t.Fatalf("Completion() error = %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("expected 1 choice, got %d", len(resp.Choices))
	}
	if resp.Choices[0].Text != "bridged" {
		t.Errorf("text = %q, want bridged", resp.Choices[0].Text)
	}
}

func TestClient_Completion_MissingPrompt(t *testing.T) {
	client := newBridgeClient(t)

	_, err := client.Completion(context.Background(), &CompletionRequest{Model: "test-model"})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestClient_Responses_Bridge(t *testing.T) {
	client := newBridgeClient(t)

	input := "say hi"
	resp, err := client.Responses(context.Background(), &ResponseRequest{
		Model: "test-model",
		Input: ResponseInput{Text: &input},
	})
	if err != nil {
		t.Fatalf("Responses() error = %v", err)
	}
	if resp.Status != "completed" {
		t.Errorf("status = %q, want completed", resp.Status)
	}
}

func TestClient_AnthropicMessages_Bridge(t *testing.T) {
	client := newBridgeClient(t)

	resp, err := client.AnthropicMessages(context.Background(), &AnthropicMessagesRequest{
		Model:     "test-model",
		MaxTokens: 64,
		Messages: []AnthropicMessage{
			{Role: "user", Content: json.RawMessage(`"hello"`)},
		},
	})
	if err != nil {
		t.Fatalf("AnthropicMessages() error = %v", err)
	}
	if resp.Role != "assistant" {
		t.Errorf("role = %q, want assistant", resp.Role)
	}
	if len(resp.Content) != 1 || resp.Content[0].Text != "bridged" {
		t.Errorf("content = %+v, want one text block", resp.Content)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("stop_reason = %q, want end_turn", resp.StopReason)
	}
}

func TestClient_AnthropicMessages_MissingMaxTokens(t *testing.T) {
	client := newBridgeClient(t)

	_, err := client.AnthropicMessages(context.Background(), &AnthropicMessagesRequest{
		Model:    "test-model",
		Messages: []AnthropicMessage{{Role: "user", Content: json.RawMessage(`"hello"`)}},
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
}
