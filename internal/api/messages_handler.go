package api //nolint:revive // package name is intentional

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	litellm "github.com/BerriAI/litellm-go"
	"github.com/BerriAI/litellm-go/internal/governance"
	"github.com/BerriAI/litellm-go/internal/metrics"
	"github.com/BerriAI/litellm-go/internal/observability"
	"github.com/BerriAI/litellm-go/internal/tokenizer"
	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
	"github.com/BerriAI/litellm-go/pkg/types"
)

// Messages handles POST /v1/messages requests in the Anthropic Messages
// API shape. Requests are bridged to the canonical chat format, routed
// like any chat completion, and translated back on the way out.
func (h *ClientHandler) Messages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r, requestID := h.ensureRequestID(r)

	body, ok := h.readLimitedBody(w, r)
	if !ok {
		return
	}

	var req types.AnthropicMessagesRequest
	if unmarshalErr := json.Unmarshal(body, &req); unmarshalErr != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "invalid JSON: "+unmarshalErr.Error()))
		return
	}

	chatReq, err := req.ToChatRequest()
	if err != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", req.Model, err.Error()))
		return
	}

	payload := h.buildChatObservabilityPayload(r, chatReq, start, requestID)
	ctx, endSpan := h.startSpan(r.Context(), payload)
	defer endSpan()
	h.observePre(ctx, payload)

	if evalErr := h.evaluateGovernance(ctx, r, chatReq.Model, chatReq.User, nil, governance.CallTypeChatCompletion, estimateChatTokens(chatReq)); evalErr != nil {
		h.observePost(ctx, payload, evalErr)
		h.writeError(w, evalErr)
		return
	}

	client, release := h.acquireClient()
	defer release()
	if client == nil {
		err := llmerrors.NewInternalError("", chatReq.Model, "client not initialized")
		h.observePost(ctx, payload, err)
		h.writeError(w, err)
		return
	}

	ctx, capture := withModelIDCapture(ctx)

	if chatReq.Stream {
		h.handleMessagesStream(ctx, w, r, client, chatReq, start, requestID, payload)
		return
	}

	resp, err := client.ChatCompletion(ctx, chatReq)
	if err != nil {
		h.observePost(ctx, payload, err)
		h.logger.Error("messages completion failed", "model", chatReq.Model, "error", err)
		if llmErr, ok := err.(*llmerrors.LLMError); ok {
			h.writeError(w, llmErr)
		} else {
			h.writeError(w, llmerrors.NewServiceUnavailableError("", chatReq.Model, err.Error()))
		}
		return
	}

	latency := time.Since(start)

	if resp.Usage == nil || resp.Usage.TotalTokens == 0 {
		promptTokens := tokenizer.EstimatePromptTokens(chatReq.Model, chatReq)
		completionTokens := tokenizer.EstimateCompletionTokens(chatReq.Model, resp, "")
		resp.Usage = &litellm.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		}
	}

	metrics.RecordRequest("litellm", chatReq.Model, http.StatusOK, latency)
	metrics.RecordTokens("litellm", chatReq.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	cost := client.CalculateCost(chatReq.Model, resp.Usage)
	h.accountUsage(ctx, governance.AccountInput{
		RequestID: requestID,
		Model:     chatReq.Model,
		CallType:  governance.CallTypeChatCompletion,
		EndUserID: chatReq.User,
		Usage: governance.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			Cost:             cost,
			Provider:         resp.Usage.Provider,
		},
		Start:   start,
		Latency: latency,
	})

	if payload != nil {
		payload.PromptTokens = resp.Usage.PromptTokens
		payload.CompletionTokens = resp.Usage.CompletionTokens
		payload.TotalTokens = resp.Usage.TotalTokens
		payload.ResponseCost = cost
		if resp.Usage.Provider != "" {
			payload.APIProvider = resp.Usage.Provider
		}
		payload.ID = resp.ID
	}
	h.observePost(ctx, payload, nil)

	setModelIDHeader(w, capture)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(types.AnthropicResponseFromChat(resp)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// handleMessagesStream bridges a canonical chat stream into the Anthropic
// event sequence: message_start, content_block_start/delta/stop per block,
// message_delta with the stop reason, then message_stop. Each event is an
// `event: <type>` / `data: <json>` pair.
func (h *ClientHandler) handleMessagesStream(ctx context.Context, w http.ResponseWriter, r *http.Request, client *litellm.Client, req *litellm.ChatRequest, start time.Time, requestID string, payload *observability.StandardLoggingPayload) {
	stream, err := client.ChatCompletionStream(ctx, req)
	if err != nil {
		h.observePost(ctx, payload, err)
		h.logger.Error("messages stream creation failed", "model", req.Model, "error", err)
		if llmErr, ok := err.(*llmerrors.LLMError); ok {
			h.writeError(w, llmErr)
		} else {
			h.writeError(w, llmerrors.NewServiceUnavailableError("", req.Model, err.Error()))
		}
		return
	}
	defer func() { _ = stream.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, llmerrors.NewInternalError("", req.Model, "streaming not supported"))
		return
	}

	h.writeAnthropicEvent(w, flusher, types.AnthropicEventMessageStart, types.AnthropicStreamEvent{
		Type: types.AnthropicEventMessageStart,
		Message: &types.AnthropicMessagesResponse{
			ID:      "msg_" + requestID,
			Type:    "message",
			Role:    "assistant",
			Model:   req.Model,
			Content: []types.AnthropicContentBlock{},
		},
	})

	var finalUsage *litellm.Usage
	var completionContent strings.Builder
	var streamErr error
	finishReason := ""

	// Block bookkeeping: one text block, then one tool_use block per
	// distinct tool call index.
	blockIndex := -1
	blockOpen := false
	blockIsTool := false
	currentToolIndex := -1

	closeBlock := func() {
		if !blockOpen {
			return
		}
		idx := blockIndex
		h.writeAnthropicEvent(w, flusher, types.AnthropicEventContentStop, types.AnthropicStreamEvent{
			Type:  types.AnthropicEventContentStop,
			Index: &idx,
		})
		blockOpen = false
	}

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			streamErr = err
			if r.Context().Err() != nil {
				h.logger.Debug("client disconnected during messages stream", "model", req.Model)
			} else {
				h.logger.Error("messages stream recv error", "error", err, "model", req.Model)
			}
			break
		}

		h.observeStreamEvent(ctx, payload, chunk)

		if chunk.Usage != nil {
			finalUsage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := &chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}

		if choice.Delta.Content != "" {
			if blockOpen && blockIsTool {
				closeBlock()
			}
			if !blockOpen {
				blockIndex++
				blockOpen = true
				blockIsTool = false
				idx := blockIndex
				h.writeAnthropicEvent(w, flusher, types.AnthropicEventContentStart, types.AnthropicStreamEvent{
					Type:         types.AnthropicEventContentStart,
					Index:        &idx,
					ContentBlock: &types.AnthropicContentBlock{Type: "text"},
				})
			}
			completionContent.WriteString(choice.Delta.Content)
			idx := blockIndex
			h.writeAnthropicEvent(w, flusher, types.AnthropicEventContentDelta, types.AnthropicStreamEvent{
				Type:  types.AnthropicEventContentDelta,
				Index: &idx,
				Delta: &types.AnthropicStreamDelta{Type: "text_delta", Text: choice.Delta.Content},
			})
		}

		for i := range choice.Delta.ToolCalls {
			tc := &choice.Delta.ToolCalls[i]
			toolIndex := 0
			if tc.Index != nil {
				toolIndex = *tc.Index
			}
			if !blockOpen || !blockIsTool || toolIndex != currentToolIndex {
				closeBlock()
				blockIndex++
				blockOpen = true
				blockIsTool = true
				currentToolIndex = toolIndex
				idx := blockIndex
				h.writeAnthropicEvent(w, flusher, types.AnthropicEventContentStart, types.AnthropicStreamEvent{
					Type:  types.AnthropicEventContentStart,
					Index: &idx,
					ContentBlock: &types.AnthropicContentBlock{
						Type:  "tool_use",
						ID:    tc.ID,
						Name:  tc.Function.Name,
						Input: json.RawMessage("{}"),
					},
				})
			}
			if tc.Function.Arguments != "" {
				idx := blockIndex
				h.writeAnthropicEvent(w, flusher, types.AnthropicEventContentDelta, types.AnthropicStreamEvent{
					Type:  types.AnthropicEventContentDelta,
					Index: &idx,
					Delta: &types.AnthropicStreamDelta{Type: "input_json_delta", PartialJSON: tc.Function.Arguments},
				})
			}
		}
	}

	closeBlock()

	latency := time.Since(start)
	metrics.RecordRequest("litellm", req.Model, http.StatusOK, latency)

	if finalUsage == nil {
		promptTokens := tokenizer.EstimatePromptTokens(req.Model, req)
		completionTokens := tokenizer.EstimateCompletionTokensFromText(req.Model, completionContent.String())
		finalUsage = &litellm.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		}
	}

	if streamErr == nil {
		h.writeAnthropicEvent(w, flusher, types.AnthropicEventMessageDelta, types.AnthropicStreamEvent{
			Type:  types.AnthropicEventMessageDelta,
			Delta: &types.AnthropicStreamDelta{StopReason: types.MapFinishReasonToAnthropic(finishReason)},
			Usage: &types.AnthropicUsage{OutputTokens: finalUsage.CompletionTokens},
		})
		h.writeAnthropicEvent(w, flusher, types.AnthropicEventMessageStop, types.AnthropicStreamEvent{
			Type: types.AnthropicEventMessageStop,
		})
	}

	cost := client.CalculateCost(req.Model, finalUsage)
	h.accountUsage(ctx, governance.AccountInput{
		RequestID: requestID,
		Model:     req.Model,
		CallType:  governance.CallTypeChatCompletion,
		EndUserID: req.User,
		Usage: governance.Usage{
			PromptTokens:     finalUsage.PromptTokens,
			CompletionTokens: finalUsage.CompletionTokens,
			TotalTokens:      finalUsage.TotalTokens,
			Cost:             cost,
			Provider:         finalUsage.Provider,
		},
		Start:   start,
		Latency: latency,
	})

	if payload != nil {
		payload.PromptTokens = finalUsage.PromptTokens
		payload.CompletionTokens = finalUsage.CompletionTokens
		payload.TotalTokens = finalUsage.TotalTokens
		payload.ResponseCost = cost
		if finalUsage.Provider != "" {
			payload.APIProvider = finalUsage.Provider
		}
		payload.Response = completionContent.String()
	}
	h.observePost(ctx, payload, streamErr)
}

func (h *ClientHandler) writeAnthropicEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, event types.AnthropicStreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal messages stream event", "error", err)
		return
	}
	if _, err := w.Write([]byte("event: " + eventType + "\n")); err != nil {
		return
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return
	}
	if _, err := w.Write(data); err != nil {
		return
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return
	}
	flusher.Flush()
}
