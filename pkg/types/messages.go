package types //nolint:revive // package name is intentional

import (
	"fmt"

	"github.com/goccy/go-json"
)

// AnthropicMessagesRequest represents a request in the Anthropic Messages API
// wire shape, accepted on /v1/messages and bridged to the canonical format.
type AnthropicMessagesRequest struct {
	Model         string             `json:"model"`
	Messages      []AnthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	System        json.RawMessage    `json:"system,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	TopK          *int               `json:"top_k,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	Tools         []AnthropicTool    `json:"tools,omitempty"`
	ToolChoice    json.RawMessage    `json:"tool_choice,omitempty"`
	Metadata      *AnthropicMetadata `json:"metadata,omitempty"`
}

// AnthropicMessage is a single conversation turn.
type AnthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// AnthropicContentBlock is one element of a structured message content array.
type AnthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// AnthropicTool describes a tool in Anthropic's schema.
type AnthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// AnthropicMetadata carries request metadata.
type AnthropicMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

// AnthropicMessagesResponse is the Messages API response shape.
type AnthropicMessagesResponse struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Role         string                  `json:"role"`
	Content      []AnthropicContentBlock `json:"content"`
	Model        string                  `json:"model"`
	StopReason   string                  `json:"stop_reason,omitempty"`
	StopSequence string                  `json:"stop_sequence,omitempty"`
	Usage        AnthropicUsage          `json:"usage"`
}

// AnthropicUsage counts tokens the Anthropic way.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Anthropic stream event types, emitted in this order around content blocks.
const (
	AnthropicEventMessageStart     = "message_start"
	AnthropicEventContentStart     = "content_block_start"
	AnthropicEventContentDelta     = "content_block_delta"
	AnthropicEventContentStop      = "content_block_stop"
	AnthropicEventMessageDelta     = "message_delta"
	AnthropicEventMessageStop      = "message_stop"
	AnthropicEventPing             = "ping"
	AnthropicEventError            = "error"
	AnthropicEventCountTokensReady = "message_count_tokens"
)

// AnthropicStreamEvent is the envelope for Messages API stream events.
type AnthropicStreamEvent struct {
	Type         string                     `json:"type"`
	Message      *AnthropicMessagesResponse `json:"message,omitempty"`
	Index        *int                       `json:"index,omitempty"`
	ContentBlock *AnthropicContentBlock     `json:"content_block,omitempty"`
	Delta        *AnthropicStreamDelta      `json:"delta,omitempty"`
	Usage        *AnthropicUsage            `json:"usage,omitempty"`
}

// AnthropicStreamDelta carries the incremental part of a stream event.
type AnthropicStreamDelta struct {
	Type         string `json:"type,omitempty"`
	Text         string `json:"text,omitempty"`
	PartialJSON  string `json:"partial_json,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
}

// Validate checks the messages request.
func (r *AnthropicMessagesRequest) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages are required")
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens is required")
	}
	return nil
}

// ToChatRequest bridges an Anthropic-shaped request into the canonical form.
// System content becomes a leading system message; tool_use blocks become
// assistant tool_calls; tool_result blocks become tool messages.
func (r *AnthropicMessagesRequest) ToChatRequest() (*ChatRequest, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	messages := make([]ChatMessage, 0, len(r.Messages)+1)
	if sys := anthropicSystemText(r.System); sys != "" {
		content, err := json.Marshal(sys)
		if err != nil {
			return nil, fmt.Errorf("marshal system: %w", err)
		}
		messages = append(messages, ChatMessage{Role: "system", Content: content})
	}

	for i := range r.Messages {
		converted, err := anthropicMessageToChat(&r.Messages[i])
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		messages = append(messages, converted...)
	}

	req := &ChatRequest{
		Model:       r.Model,
		Messages:    messages,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		TopP:        r.TopP,
		Stream:      r.Stream,
		Stop:        StopSequences(r.StopSequences),
	}
	if r.Metadata != nil {
		req.User = r.Metadata.UserID
	}

	for _, tool := range r.Tools {
		req.Tools = append(req.Tools, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	if len(r.ToolChoice) > 0 {
		req.ToolChoice = anthropicToolChoiceToOpenAI(r.ToolChoice)
	}

	return req, nil
}

// AnthropicResponseFromChat bridges a canonical response back into the
// Messages API shape.
func AnthropicResponseFromChat(resp *ChatResponse) *AnthropicMessagesResponse {
	if resp == nil {
		return nil
	}

	out := &AnthropicMessagesResponse{
		ID:    resp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: resp.Model,
	}

	if len(resp.Choices) > 0 {
		choice := &resp.Choices[0]
		if text := extractMessageText(choice.Message); text != "" {
			out.Content = append(out.Content, AnthropicContentBlock{Type: "text", Text: text})
		}
		for _, tc := range choice.Message.ToolCalls {
			out.Content = append(out.Content, AnthropicContentBlock{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: json.RawMessage(tc.Function.Arguments),
			})
		}
		out.StopReason = MapFinishReasonToAnthropic(choice.FinishReason)
	}
	if out.Content == nil {
		out.Content = []AnthropicContentBlock{}
	}

	if resp.Usage != nil {
		out.Usage = AnthropicUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out
}

// MapFinishReasonToAnthropic converts canonical finish reasons to Anthropic
// stop reasons.
func MapFinishReasonToAnthropic(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "":
		return ""
	default:
		return reason
	}
}

// MapAnthropicStopReason converts Anthropic stop reasons to the canonical
// finish reason vocabulary.
func MapAnthropicStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return reason
	}
}

func anthropicSystemText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []AnthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var out string
		for _, b := range blocks {
			if b.Type == "text" || b.Type == "" {
				out += b.Text
			}
		}
		return out
	}
	return ""
}

func anthropicMessageToChat(msg *AnthropicMessage) ([]ChatMessage, error) {
	// Plain string content is the common case.
	var text string
	if err := json.Unmarshal(msg.Content, &text); err == nil {
		content, err := json.Marshal(text)
		if err != nil {
			return nil, err
		}
		return []ChatMessage{{Role: msg.Role, Content: content}}, nil
	}

	var blocks []AnthropicContentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return nil, fmt.Errorf("invalid content")
	}

	var out []ChatMessage
	var textParts string
	var toolCalls []ToolCall

	for _, block := range blocks {
		switch block.Type {
		case "text", "":
			textParts += block.Text
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: ToolCallFunction{
					Name:      block.Name,
					Arguments: args,
				},
			})
		case "tool_result":
			content := anthropicToolResultText(block.Content)
			raw, err := json.Marshal(content)
			if err != nil {
				return nil, err
			}
			out = append(out, ChatMessage{
				Role:       "tool",
				Content:    raw,
				ToolCallID: block.ToolUseID,
			})
		}
	}

	if textParts != "" || len(toolCalls) > 0 {
		content, err := json.Marshal(textParts)
		if err != nil {
			return nil, err
		}
		cm := ChatMessage{Role: msg.Role, Content: content}
		if len(toolCalls) > 0 {
			cm.ToolCalls = toolCalls
		}
		out = append(out, cm)
	}

	if len(out) == 0 {
		content, _ := json.Marshal("")
		out = append(out, ChatMessage{Role: msg.Role, Content: content})
	}
	return out, nil
}

func anthropicToolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []AnthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var out string
		for _, b := range blocks {
			if b.Type == "text" || b.Type == "" {
				out += b.Text
			}
		}
		return out
	}
	return string(raw)
}

func anthropicToolChoiceToOpenAI(raw json.RawMessage) json.RawMessage {
	var obj struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	switch obj.Type {
	case "auto":
		return json.RawMessage(`"auto"`)
	case "any":
		return json.RawMessage(`"required"`)
	case "none":
		return json.RawMessage(`"none"`)
	case "tool":
		out, err := json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": obj.Name},
		})
		if err != nil {
			return nil
		}
		return out
	}
	return nil
}
