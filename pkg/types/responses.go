package types //nolint:revive // package name is intentional

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// ResponseInput represents input for the OpenAI responses API.
// Supports string, []string, or []ChatMessage.
type ResponseInput struct {
	Text     *string
	Texts    []string
	Messages []ChatMessage
}

// UnmarshalJSON implements custom JSON unmarshaling.
func (r *ResponseInput) UnmarshalJSON(data []byte) error {
	r.Text = nil
	r.Texts = nil
	r.Messages = nil

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("input cannot be null")
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Text = &s
		return nil
	}

	var msgs []ChatMessage
	if err := json.Unmarshal(data, &msgs); err == nil && len(msgs) > 0 {
		r.Messages = msgs
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
		r.Texts = list
		return nil
	}

	return fmt.Errorf("input must be string, []string, or []message")
}

// MarshalJSON implements custom JSON marshaling.
func (r ResponseInput) MarshalJSON() ([]byte, error) {
	if r.Text != nil {
		return json.Marshal(*r.Text)
	}
	if len(r.Messages) > 0 {
		return json.Marshal(r.Messages)
	}
	if len(r.Texts) > 0 {
		return json.Marshal(r.Texts)
	}
	return []byte("null"), nil
}

// ResponseRequest represents an OpenAI responses API request.
type ResponseRequest struct {
	Model              string                     `json:"model"`
	Input              ResponseInput              `json:"input"`
	Instructions       string                     `json:"instructions,omitempty"`
	Stream             bool                       `json:"stream,omitempty"`
	MaxOutputTokens    int                        `json:"max_output_tokens,omitempty"`
	MaxTokens          int                        `json:"max_tokens,omitempty"`
	Temperature        *float64                   `json:"temperature,omitempty"`
	TopP               *float64                   `json:"top_p,omitempty"`
	User               string                     `json:"user,omitempty"`
	Tools              []Tool                     `json:"tools,omitempty"`
	ToolChoice         json.RawMessage            `json:"tool_choice,omitempty"`
	ResponseFormat     *ResponseFormat            `json:"response_format,omitempty"`
	StreamOptions      *StreamOptions             `json:"stream_options,omitempty"`
	PreviousResponseID string                     `json:"previous_response_id,omitempty"`
	Store              *bool                      `json:"store,omitempty"`
	Metadata           map[string]string          `json:"metadata,omitempty"`
	Tags               []string                   `json:"tags,omitempty"`
	Extra              map[string]json.RawMessage `json:"-"`
}

var responseRequestKnownFields = map[string]struct{}{
	"model":                {},
	"input":                {},
	"instructions":         {},
	"stream":               {},
	"max_output_tokens":    {},
	"max_tokens":           {},
	"temperature":          {},
	"top_p":                {},
	"user":                 {},
	"tools":                {},
	"tool_choice":          {},
	"response_format":      {},
	"stream_options":       {},
	"previous_response_id": {},
	"store":                {},
	"metadata":             {},
	"tags":                 {},
}

// UnmarshalJSON captures unknown fields into Extra for passthrough.
func (r *ResponseRequest) UnmarshalJSON(data []byte) error {
	type Alias ResponseRequest

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}

	var parsed Alias
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}

	*r = ResponseRequest(parsed)
	for key := range responseRequestKnownFields {
		delete(payload, key)
	}

	if len(payload) == 0 {
		r.Extra = nil
	} else {
		r.Extra = payload
	}

	return nil
}

// Validate checks the responses request.
func (r *ResponseRequest) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	if r.Input.Text == nil && len(r.Input.Texts) == 0 && len(r.Input.Messages) == 0 {
		return fmt.Errorf("input is required")
	}
	return nil
}

// ToChatRequest converts a responses request into a chat request.
func (r *ResponseRequest) ToChatRequest() (*ChatRequest, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	messages, err := responseInputToMessages(r.Input)
	if err != nil {
		return nil, err
	}

	if r.Instructions != "" {
		content, err := json.Marshal(r.Instructions)
		if err != nil {
			return nil, fmt.Errorf("marshal instructions: %w", err)
		}
		messages = append([]ChatMessage{{Role: "system", Content: content}}, messages...)
	}

	maxTokens := r.MaxTokens
	if r.MaxOutputTokens > 0 {
		maxTokens = r.MaxOutputTokens
	}

	return &ChatRequest{
		Model:          r.Model,
		Messages:       messages,
		Stream:         r.Stream,
		MaxTokens:      maxTokens,
		Temperature:    r.Temperature,
		TopP:           r.TopP,
		User:           r.User,
		Tools:          r.Tools,
		ToolChoice:     r.ToolChoice,
		ResponseFormat: r.ResponseFormat,
		StreamOptions:  r.StreamOptions,
		Metadata:       r.Metadata,
		Tags:           r.Tags,
		Extra:          r.Extra,
	}, nil
}

// Response statuses reported by retrieve/cancel.
const (
	ResponseStatusInProgress = "in_progress"
	ResponseStatusCompleted  = "completed"
	ResponseStatusFailed     = "failed"
	ResponseStatusCancelled  = "cancelled"
	ResponseStatusIncomplete = "incomplete"
)

// ResponseContent represents response output content.
type ResponseContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ResponseOutput represents a response output item. Message items carry
// Role/Content; function_call items carry CallID/Name/Arguments.
type ResponseOutput struct {
	ID        string            `json:"id,omitempty"`
	Type      string            `json:"type"`
	Status    string            `json:"status,omitempty"`
	Role      string            `json:"role,omitempty"`
	Content   []ResponseContent `json:"content,omitempty"`
	CallID    string            `json:"call_id,omitempty"`
	Name      string            `json:"name,omitempty"`
	Arguments string            `json:"arguments,omitempty"`
}

// ResponseUsage counts tokens the responses API way.
type ResponseUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ResponseResponse represents a responses API response.
type ResponseResponse struct {
	ID       string            `json:"id"`
	Object   string            `json:"object"`
	Created  int64             `json:"created_at"`
	Status   string            `json:"status,omitempty"`
	Model    string            `json:"model"`
	Output   []ResponseOutput  `json:"output"`
	Usage    *ResponseUsage    `json:"usage,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Error    *ResponseError    `json:"error,omitempty"`
}

// ResponseError reports why a response failed.
type ResponseError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Responses API stream event types, in emission order. Tool-call events
// follow a strict sequence: output_item.added precedes the first
// function_call_arguments.delta for that item, and every open item gets
// function_call_arguments.done plus output_item.done before
// response.completed.
const (
	ResponseEventCreated       = "response.created"
	ResponseEventInProgress    = "response.in_progress"
	ResponseEventOutputAdded   = "response.output_item.added"
	ResponseEventContentAdded  = "response.content_part.added"
	ResponseEventTextDelta     = "response.output_text.delta"
	ResponseEventTextDone      = "response.output_text.done"
	ResponseEventFuncArgsDelta = "response.function_call_arguments.delta"
	ResponseEventFuncArgsDone  = "response.function_call_arguments.done"
	ResponseEventContentDone   = "response.content_part.done"
	ResponseEventOutputDone    = "response.output_item.done"
	ResponseEventCompleted     = "response.completed"
	ResponseEventFailed        = "response.failed"
)

// ResponseStreamEvent represents a streaming responses API event.
type ResponseStreamEvent struct {
	Type           string            `json:"type"`
	SequenceNumber int               `json:"sequence_number"`
	Response       *ResponseResponse `json:"response,omitempty"`
	OutputIndex    *int              `json:"output_index,omitempty"`
	ItemID         string            `json:"item_id,omitempty"`
	Item           *ResponseOutput   `json:"item,omitempty"`
	ContentIndex   *int              `json:"content_index,omitempty"`
	Delta          string            `json:"delta,omitempty"`
	Text           string            `json:"text,omitempty"`
	Arguments      string            `json:"arguments,omitempty"`
}

// ResponseStreamChunk is kept as an alias of the event envelope for callers
// that only read type/delta.
type ResponseStreamChunk = ResponseStreamEvent

// ResponseResponseFromChat converts a chat completion response to responses format.
func ResponseResponseFromChat(resp *ChatResponse) *ResponseResponse {
	if resp == nil {
		return nil
	}

	output := make([]ResponseOutput, 0, len(resp.Choices))
	for i := range resp.Choices {
		choice := &resp.Choices[i]
		if text := extractMessageText(choice.Message); text != "" || len(choice.Message.ToolCalls) == 0 {
			output = append(output, ResponseOutput{
				ID:     fmt.Sprintf("msg_%s_%d", resp.ID, i),
				Type:   "message",
				Status: ResponseStatusCompleted,
				Role:   choice.Message.Role,
				Content: []ResponseContent{
					{Type: "output_text", Text: text},
				},
			})
		}
		for _, tc := range choice.Message.ToolCalls {
			output = append(output, ResponseOutput{
				ID:        tc.ID,
				Type:      "function_call",
				Status:    ResponseStatusCompleted,
				CallID:    tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}

	out := &ResponseResponse{
		ID:      resp.ID,
		Object:  "response",
		Created: resp.Created,
		Status:  ResponseStatusCompleted,
		Model:   resp.Model,
		Output:  output,
	}
	if resp.Usage != nil {
		out.Usage = &ResponseUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	return out
}

func responseInputToMessages(input ResponseInput) ([]ChatMessage, error) {
	if input.Text != nil {
		content, err := json.Marshal(*input.Text)
		if err != nil {
			return nil, fmt.Errorf("marshal input text: %w", err)
		}
		return []ChatMessage{{Role: "user", Content: content}}, nil
	}

	if len(input.Texts) > 0 {
		messages := make([]ChatMessage, 0, len(input.Texts))
		for _, text := range input.Texts {
			content, err := json.Marshal(text)
			if err != nil {
				return nil, fmt.Errorf("marshal input text: %w", err)
			}
			messages = append(messages, ChatMessage{Role: "user", Content: content})
		}
		return messages, nil
	}

	if len(input.Messages) > 0 {
		return input.Messages, nil
	}

	return nil, fmt.Errorf("input is required")
}
