package litellm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BerriAI/litellm-go/pkg/types"
)

// parsingStreamProvider decodes OpenAI-format chunk JSON instead of
// returning placeholder chunks.
type parsingStreamProvider struct {
	*httpMockProvider
}

func (m *parsingStreamProvider) ParseStreamChunk(data []byte) (*types.StreamChunk, error) {
	var chunk types.StreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

func TestClient_ChatCompletionStream_ToolCallDeltasAndKeepAlives(t *testing.T) {
	lines := []string{
		// Keep-alive with an empty delta; must never reach the consumer.
		`data: {"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{}}]}`,
		// First tool call opens without an index; fragments continue it.
		`data: {"id":"c1","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"ci"}}]}}]}`,
		`data: {"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"function":{"name":"","arguments":"ty\":\"SF\"}"}}]}}]}`,
		// Second call opens with a fresh ID.
		`data: {"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"id":"call_2","type":"function","function":{"name":"get_time","arguments":"{}"}}]}}]}`,
		`data: {"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, line := range lines {
			w.Write([]byte(line + "\n\n"))
		}
	}))
	defer server.Close()

	mock := &parsingStreamProvider{&httpMockProvider{
		name:    "mock-tools",
		models:  []string{"test-model"},
		baseURL: server.URL,
	}}

	client, err := New(
		WithProviderInstance("mock-tools", mock, []string{"test-model"}),
		withTestPricing(t, "test-model"),
		WithCooldown(0),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	stream, err := client.ChatCompletionStream(context.Background(), &ChatRequest{
		Model: "test-model",
		Messages: []ChatMessage{
			{Role: "user", Content: json.RawMessage(`"What's the weather?"`)},
		},
	})
	if err != nil {
		t.Fatalf("ChatCompletionStream() error = %v", err)
	}
	defer stream.Close()

	var received []*StreamChunk
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		received = append(received, chunk)
	}

	// The keep-alive is dropped: 4 meaningful chunks remain.
	if len(received) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(received))
	}
	for _, chunk := range received {
		if chunk.IsEmpty() {
			t.Errorf("empty chunk reached the consumer: %+v", chunk)
		}
	}

	idx := func(c *StreamChunk) int {
		tc := c.Choices[0].Delta.ToolCalls[0]
		if tc.Index == nil {
			t.Fatalf("tool call fragment missing index: %+v", tc)
		}
		return *tc.Index
	}

	if got := idx(received[0]); got != 0 {
		t.Errorf("opening fragment of call_1 should get index 0, got %d", got)
	}
	if got := idx(received[1]); got != 0 {
		t.Errorf("argument continuation should keep index 0, got %d", got)
	}
	if got := idx(received[2]); got != 1 {
		t.Errorf("call_2 should get index 1, got %d", got)
	}
	if received[3].Choices[0].FinishReason != "tool_calls" {
		t.Errorf("expected finish_reason tool_calls, got %q", received[3].Choices[0].FinishReason)
	}
}
