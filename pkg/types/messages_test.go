package types //nolint:revive // package name is intentional

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicMessagesRequestToChatRequest(t *testing.T) {
	data := []byte(`{
		"model": "claude-3-5-sonnet-20241022",
		"max_tokens": 1024,
		"system": "You are terse.",
		"messages": [
			{"role": "user", "content": "hello"},
			{"role": "assistant", "content": [
				{"type": "text", "text": "calling a tool"},
				{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "SF"}}
			]},
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "toolu_1", "content": "sunny"}
			]}
		],
		"stop_sequences": ["END"],
		"metadata": {"user_id": "u-1"}
	}`)

	var req AnthropicMessagesRequest
	require.NoError(t, json.Unmarshal(data, &req))

	chatReq, err := req.ToChatRequest()
	require.NoError(t, err)

	require.Equal(t, "claude-3-5-sonnet-20241022", chatReq.Model)
	require.Equal(t, 1024, chatReq.MaxTokens)
	require.Equal(t, "u-1", chatReq.User)
	require.Equal(t, StopSequences{"END"}, chatReq.Stop)

	require.Len(t, chatReq.Messages, 4)
	assert.Equal(t, "system", chatReq.Messages[0].Role)
	assert.Equal(t, "user", chatReq.Messages[1].Role)

	assistant := chatReq.Messages[2]
	assert.Equal(t, "assistant", assistant.Role)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "toolu_1", assistant.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", assistant.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"city":"SF"}`, assistant.ToolCalls[0].Function.Arguments)

	toolMsg := chatReq.Messages[3]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.Equal(t, "toolu_1", toolMsg.ToolCallID)
}

func TestAnthropicMessagesRequestValidation(t *testing.T) {
	var req AnthropicMessagesRequest
	require.Error(t, req.Validate())

	req.Model = "claude-3-haiku-20240307"
	require.Error(t, req.Validate(), "messages required")

	req.Messages = []AnthropicMessage{{Role: "user", Content: json.RawMessage(`"hi"`)}}
	require.Error(t, req.Validate(), "max_tokens required")

	req.MaxTokens = 256
	require.NoError(t, req.Validate())
}

func TestAnthropicResponseFromChat(t *testing.T) {
	resp := &ChatResponse{
		ID:    "chatcmpl-1",
		Model: "claude-3-5-sonnet-20241022",
		Choices: []Choice{{
			Index: 0,
			Message: ChatMessage{
				Role:    "assistant",
				Content: json.RawMessage(`"hi there"`),
				ToolCalls: []ToolCall{{
					ID:   "call_9",
					Type: "function",
					Function: ToolCallFunction{
						Name:      "lookup",
						Arguments: `{"q":"x"}`,
					},
				}},
			},
			FinishReason: "tool_calls",
		}},
		Usage: &Usage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14},
	}

	out := AnthropicResponseFromChat(resp)
	require.NotNil(t, out)
	assert.Equal(t, "message", out.Type)
	assert.Equal(t, "assistant", out.Role)
	assert.Equal(t, "tool_use", out.StopReason)
	assert.Equal(t, 10, out.Usage.InputTokens)
	assert.Equal(t, 4, out.Usage.OutputTokens)

	require.Len(t, out.Content, 2)
	assert.Equal(t, "text", out.Content[0].Type)
	assert.Equal(t, "hi there", out.Content[0].Text)
	assert.Equal(t, "tool_use", out.Content[1].Type)
	assert.Equal(t, "call_9", out.Content[1].ID)
	assert.Equal(t, "lookup", out.Content[1].Name)
}

func TestMapStopReasonRoundTrip(t *testing.T) {
	cases := map[string]string{
		"stop":       "end_turn",
		"length":     "max_tokens",
		"tool_calls": "tool_use",
	}
	for canonical, anthropic := range cases {
		assert.Equal(t, anthropic, MapFinishReasonToAnthropic(canonical))
		assert.Equal(t, canonical, MapAnthropicStopReason(anthropic))
	}
	assert.Equal(t, "stop", MapAnthropicStopReason("stop_sequence"))
}

func TestStopSequencesAcceptsBothForms(t *testing.T) {
	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","messages":[],"stop":"END"}`), &req))
	assert.Equal(t, StopSequences{"END"}, req.Stop)

	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","messages":[],"stop":["a","b"]}`), &req))
	assert.Equal(t, StopSequences{"a", "b"}, req.Stop)

	out, err := json.Marshal(StopSequences{"x"})
	require.NoError(t, err)
	assert.Equal(t, `["x"]`, string(out))
}

func TestModerationInputForms(t *testing.T) {
	var m ModerationInput
	require.NoError(t, json.Unmarshal([]byte(`"bad text"`), &m))
	require.NotNil(t, m.Text)
	assert.Equal(t, "bad text", *m.Text)

	require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &m))
	assert.Equal(t, []string{"a", "b"}, m.Texts)

	require.Error(t, json.Unmarshal([]byte(`null`), &m))
	require.Error(t, json.Unmarshal([]byte(`123`), &m))
}

func TestStreamChunkIsEmpty(t *testing.T) {
	empty := &StreamChunk{
		Object:  "chat.completion.chunk",
		Choices: []StreamChoice{{Index: 0, Delta: StreamDelta{}}},
	}
	assert.True(t, empty.IsEmpty())

	content := &StreamChunk{Choices: []StreamChoice{{Delta: StreamDelta{Content: "x"}}}}
	assert.False(t, content.IsEmpty())

	finish := &StreamChunk{Choices: []StreamChoice{{FinishReason: "stop"}}}
	assert.False(t, finish.IsEmpty())

	usageOnly := &StreamChunk{Usage: &Usage{TotalTokens: 5}}
	assert.False(t, usageOnly.IsEmpty())

	toolCall := &StreamChunk{Choices: []StreamChoice{{Delta: StreamDelta{
		ToolCalls: []ToolCall{{Function: ToolCallFunction{Arguments: "{"}}},
	}}}}
	assert.False(t, toolCall.IsEmpty())

	noChoices := &StreamChunk{Object: "chat.completion.chunk"}
	assert.True(t, noChoices.IsEmpty())
}

func TestRerankRequestValidate(t *testing.T) {
	req := RerankRequest{}
	require.Error(t, req.Validate())

	req = RerankRequest{Model: "rerank-english-v3.0", Query: "q", Documents: []string{"d1", "d2"}}
	require.NoError(t, req.Validate())
}

func TestImageGenerationRequestValidate(t *testing.T) {
	req := ImageGenerationRequest{}
	require.Error(t, req.Validate())

	req = ImageGenerationRequest{Prompt: "a cat", N: 2}
	require.NoError(t, req.Validate())

	req.N = 11
	require.Error(t, req.Validate())
}
