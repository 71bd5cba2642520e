package litellm

import (
	"context"
	"fmt"

	"github.com/BerriAI/litellm-go/pkg/types"
)

// Completion executes a legacy text completion by bridging through the
// chat pipeline. Prompt string/array forms both map to chat messages.
func (c *Client) Completion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	chatReq, err := req.ToChatRequest()
	if err != nil {
		return nil, err
	}

	chatResp, err := c.ChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	return types.CompletionResponseFromChat(chatResp), nil
}

// Responses executes an OpenAI Responses API request by bridging through
// the chat pipeline. Providers with a native responses endpoint are still
// reached through the chat translation; the wire shape is rebuilt on the
// way out.
func (c *Client) Responses(ctx context.Context, req *ResponseRequest) (*ResponseResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	chatReq, err := req.ToChatRequest()
	if err != nil {
		return nil, err
	}

	chatResp, err := c.ChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	return types.ResponseResponseFromChat(chatResp), nil
}

// AnthropicMessages executes an Anthropic Messages API request by
// bridging through the chat pipeline.
func (c *Client) AnthropicMessages(ctx context.Context, req *AnthropicMessagesRequest) (*AnthropicMessagesResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	chatReq, err := req.ToChatRequest()
	if err != nil {
		return nil, err
	}

	chatResp, err := c.ChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	return types.AnthropicResponseFromChat(chatResp), nil
}
