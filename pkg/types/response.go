package types //nolint:revive // package name is intentional

// ChatResponse represents an OpenAI-compatible chat completion response.
// All provider responses are transformed into this unified format.
type ChatResponse struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	Choices           []Choice `json:"choices"`
	Usage             *Usage   `json:"usage,omitempty"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
	ServiceTier       string   `json:"service_tier,omitempty"`
}

// Choice represents a single completion choice.
type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
	Logprobs     *Logprobs   `json:"logprobs,omitempty"`
}

// Usage contains token usage statistics for the request.
type Usage struct {
	PromptTokens            int                      `json:"prompt_tokens"`
	CompletionTokens        int                      `json:"completion_tokens"`
	TotalTokens             int                      `json:"total_tokens"`
	PromptTokensDetails     *PromptTokensDetails     `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
	Provider                string                   `json:"-"`
}

// PromptTokensDetails breaks down prompt token counts.
type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens,omitempty"`
	AudioTokens  int `json:"audio_tokens,omitempty"`
}

// CompletionTokensDetails breaks down completion token counts.
type CompletionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
	AudioTokens     int `json:"audio_tokens,omitempty"`
}

// Logprobs contains log probability information.
type Logprobs struct {
	Content []LogprobContent `json:"content,omitempty"`
}

// LogprobContent represents log probability for a single token.
type LogprobContent struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
	Bytes   []int   `json:"bytes,omitempty"`
}

// StreamChunk represents a single chunk in a streaming response.
type StreamChunk struct {
	ID                string         `json:"id"`
	Object            string         `json:"object"`
	Created           int64          `json:"created"`
	Model             string         `json:"model"`
	Choices           []StreamChoice `json:"choices"`
	Usage             *Usage         `json:"usage,omitempty"`
	SystemFingerprint string         `json:"system_fingerprint,omitempty"`
}

// StreamChoice represents a choice in a streaming response.
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// StreamDelta contains the incremental content in a stream chunk.
type StreamDelta struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	Refusal   string     `json:"refusal,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// IsEmpty reports whether the chunk carries nothing worth forwarding: no
// content, no tool calls, no finish reason and no usage. Providers emit such
// keep-alive chunks and they must never reach the consumer.
func (c *StreamChunk) IsEmpty() bool {
	if c.Usage != nil {
		return false
	}
	for i := range c.Choices {
		ch := &c.Choices[i]
		if ch.FinishReason != "" {
			return false
		}
		d := &ch.Delta
		if d.Role != "" || d.Content != "" || d.Refusal != "" || len(d.ToolCalls) > 0 {
			return false
		}
	}
	return true
}

// Reset clears the ChatResponse for reuse.
func (r *ChatResponse) Reset() {
	r.ID = ""
	r.Object = ""
	r.Created = 0
	r.Model = ""
	r.Choices = r.Choices[:0]
	r.Usage = nil
	r.SystemFingerprint = ""
	r.ServiceTier = ""
}
