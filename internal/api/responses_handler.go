package api //nolint:revive // package name is intentional

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	litellm "github.com/BerriAI/litellm-go"
	"github.com/BerriAI/litellm-go/internal/governance"
	"github.com/BerriAI/litellm-go/internal/mcp"
	"github.com/BerriAI/litellm-go/internal/metrics"
	"github.com/BerriAI/litellm-go/internal/observability"
	"github.com/BerriAI/litellm-go/internal/tokenizer"
	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
	"github.com/BerriAI/litellm-go/pkg/types"
)

// Responses handles POST /v1/responses requests.
func (h *ClientHandler) Responses(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r, requestID := h.ensureRequestID(r)

	limitedReader := io.LimitReader(r.Body, h.maxBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "failed to read request body"))
		return
	}
	defer func() { _ = r.Body.Close() }()

	if int64(len(body)) > h.maxBodySize {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "request body too large"))
		return
	}

	var req types.ResponseRequest
	if unmarshalErr := json.Unmarshal(body, &req); unmarshalErr != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "invalid JSON: "+unmarshalErr.Error()))
		return
	}
	if req.Model == "" {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "model is required"))
		return
	}

	chatReq, err := req.ToChatRequest()
	if err != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", req.Model, err.Error()))
		return
	}
	if len(chatReq.Messages) == 0 {
		h.writeError(w, llmerrors.NewInvalidRequestError("", req.Model, "input is required"))
		return
	}

	payload := h.buildChatObservabilityPayload(r, chatReq, start, requestID)
	payload.CallType = observability.CallTypeResponse
	ctx, endSpan := h.startSpan(r.Context(), payload)
	defer endSpan()
	h.observePre(ctx, payload)

	if evalErr := h.evaluateGovernance(ctx, r, chatReq.Model, chatReq.User, chatReq.Tags, governance.CallTypeChatCompletion, estimateChatTokens(chatReq)); evalErr != nil {
		h.observePost(ctx, payload, evalErr)
		h.writeError(w, evalErr)
		return
	}

	manager := h.getMCPManager(ctx)
	ctx, capture := withModelIDCapture(ctx)

	client, release := h.acquireClient()
	defer release()
	if client == nil {
		err := llmerrors.NewInternalError("", chatReq.Model, "client not initialized")
		h.observePost(ctx, payload, err)
		h.writeError(w, err)
		return
	}

	if chatReq.Stream {
		if manager != nil {
			if injector, ok := manager.(mcp.ToolInjector); ok {
				injector.InjectTools(ctx, chatReq)
			}
		}

		h.handleResponseStream(ctx, w, r, client, chatReq, start, requestID, payload, shouldStoreResponse(req.Store))
		return
	}

	var resp *litellm.ChatResponse
	if manager != nil {
		executor := mcp.NewAgentExecutor(manager, 0, h.logger)
		resp, err = executor.Execute(ctx, chatReq, func(execCtx context.Context, r *litellm.ChatRequest) (*litellm.ChatResponse, error) {
			return client.ChatCompletion(execCtx, r)
		})
	} else {
		resp, err = client.ChatCompletion(ctx, chatReq)
	}
	if err != nil {
		h.observePost(ctx, payload, err)
		h.logger.Error("response completion failed", "model", chatReq.Model, "error", err)
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
	if resp.Usage != nil {
		metrics.RecordTokens("litellm", chatReq.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	modelName := chatReq.Model
	if resp.Model != "" {
		modelName = resp.Model
	}
	cost := 0.0
	if resp.Usage != nil {
		cost = client.CalculateCost(modelName, resp.Usage)
	}
	h.accountUsage(ctx, governance.AccountInput{
		RequestID:   requestID,
		Model:       modelName,
		CallType:    governance.CallTypeChatCompletion,
		EndUserID:   chatReq.User,
		RequestTags: chatReq.Tags,
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

	response := types.ResponseResponseFromChat(resp)
	if shouldStoreResponse(req.Store) {
		if storeErr := h.responses.Put(ctx, response); storeErr != nil {
			h.logger.Warn("failed to store response", "error", storeErr, "response_id", response.ID)
		}
	}

	if payload != nil {
		payload.PromptTokens = resp.Usage.PromptTokens
		payload.CompletionTokens = resp.Usage.CompletionTokens
		payload.TotalTokens = resp.Usage.TotalTokens
		payload.ResponseCost = cost
		if resp.Usage.Provider != "" {
			payload.APIProvider = resp.Usage.Provider
		}
		if payload.APIProvider == "" {
			payload.APIProvider = "litellm"
		}
		if resp.Model != "" {
			payload.Model = resp.Model
		}
		payload.ID = resp.ID
		payload.Response = response
	}
	h.observePost(ctx, payload, nil)

	setModelIDHeader(w, capture)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *ClientHandler) handleResponseStream(ctx context.Context, w http.ResponseWriter, r *http.Request, client *litellm.Client, req *litellm.ChatRequest, start time.Time, requestID string, payload *observability.StandardLoggingPayload, storeResponse bool) {
	stream, err := client.ChatCompletionStream(ctx, req)
	if err != nil {
		h.observePost(ctx, payload, err)
		h.logger.Error("response stream creation failed", "model", req.Model, "error", err)
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

	var finalUsage *litellm.Usage
	var responseID string
	var responseModel string
	var responseCreated int64
	var completionContent strings.Builder
	var streamErr error
	completed := false

	seq := 0
	emit := func(event types.ResponseStreamChunk) {
		seq++
		event.SequenceNumber = seq
		h.writeResponseEvent(w, flusher, event)
	}
	toolCalls := newToolCallEventState()

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			completed = true
			break
		}
		if err != nil {
			streamErr = err
			if r.Context().Err() != nil {
				h.logger.Debug("client disconnected during response stream", "model", req.Model)
			} else {
				h.logger.Error("response stream recv error", "error", err, "model", req.Model)
			}
			break
		}

		h.observeStreamEvent(ctx, payload, chunk)

		if responseID == "" && chunk.ID != "" {
			responseID = chunk.ID
			responseModel = chunk.Model
			responseCreated = chunk.Created
		}

		if chunk.Usage != nil {
			finalUsage = chunk.Usage
		}

		if len(chunk.Choices) > 0 {
			choice := &chunk.Choices[0]
			if delta := choice.Delta.Content; delta != "" {
				completionContent.WriteString(delta)
				toolCalls.markText()
				emit(types.ResponseStreamChunk{
					Type:  types.ResponseEventTextDelta,
					Delta: delta,
				})
			}
			for i := range choice.Delta.ToolCalls {
				toolCalls.apply(&choice.Delta.ToolCalls[i], emit)
			}
		}
	}

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

	cost := 0.0
	if finalUsage != nil {
		cost = client.CalculateCost(req.Model, finalUsage)
	}
	h.accountUsage(ctx, governance.AccountInput{
		RequestID:   requestID,
		Model:       req.Model,
		CallType:    governance.CallTypeChatCompletion,
		EndUserID:   req.User,
		RequestTags: req.Tags,
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

	if payload != nil && finalUsage != nil {
		payload.PromptTokens = finalUsage.PromptTokens
		payload.CompletionTokens = finalUsage.CompletionTokens
		payload.TotalTokens = finalUsage.TotalTokens
		payload.ResponseCost = cost
		if finalUsage.Provider != "" {
			payload.APIProvider = finalUsage.Provider
		}
		if payload.APIProvider == "" {
			payload.APIProvider = "litellm"
		}
		payload.Response = completionContent.String()
	}

	if completed {
		toolCalls.finish(emit)
		response := responseFromStream(responseID, responseModel, responseCreated, req.Model, completionContent.String(), toolCalls.collected(), finalUsage)
		if storeResponse {
			if storeErr := h.responses.Put(ctx, response); storeErr != nil {
				h.logger.Warn("failed to store response", "error", storeErr, "response_id", response.ID)
			}
		}
		emit(types.ResponseStreamChunk{
			Type:     types.ResponseEventCompleted,
			Response: response,
		})
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}

	h.observePost(ctx, payload, streamErr)
}

func (h *ClientHandler) writeResponseEvent(w http.ResponseWriter, flusher http.Flusher, event types.ResponseStreamChunk) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal response stream event", "error", err)
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

func responseFromStream(responseID, responseModel string, created int64, fallbackModel string, content string, toolCalls []types.ToolCall, usage *litellm.Usage) *types.ResponseResponse {
	model := responseModel
	if model == "" {
		model = fallbackModel
	}
	contentJSON, _ := json.Marshal(content)
	finishReason := "stop"
	if len(toolCalls) > 0 {
		finishReason = "tool_calls"
	}
	resp := &types.ChatResponse{
		ID:      responseID,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []types.Choice{
			{
				Index: 0,
				Message: types.ChatMessage{
					Role:      "assistant",
					Content:   contentJSON,
					ToolCalls: toolCalls,
				},
				FinishReason: finishReason,
			},
		},
		Usage: usage,
	}
	if resp.ID == "" {
		resp.ID = "resp-stream"
	}
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}
	return types.ResponseResponseFromChat(resp)
}

// streamedToolCall accumulates one function call across argument
// fragments. itemID is the responses-API item identifier, outputIndex
// its position in the output array.
type streamedToolCall struct {
	itemID      string
	callID      string
	name        string
	args        strings.Builder
	outputIndex int
}

// toolCallEventState tracks open function-call items during a response
// stream. output_item.added always precedes the first
// function_call_arguments.delta for an item, and finish closes every
// open item before response.completed goes out. Tool calls that arrive
// whole in a single chunk get the same event sequence synthesized.
type toolCallEventState struct {
	byIndex   map[int]*streamedToolCall
	order     []int
	nextIndex int
}

func newToolCallEventState() *toolCallEventState {
	return &toolCallEventState{byIndex: make(map[int]*streamedToolCall)}
}

// markText reserves output index 0 for the message item once text starts.
func (s *toolCallEventState) markText() {
	if s.nextIndex == 0 {
		s.nextIndex = 1
	}
}

func (s *toolCallEventState) apply(tc *types.ToolCall, emit func(types.ResponseStreamChunk)) {
	idx := 0
	if tc.Index != nil {
		idx = *tc.Index
	}

	call, ok := s.byIndex[idx]
	if !ok {
		call = &streamedToolCall{
			callID:      tc.ID,
			name:        tc.Function.Name,
			outputIndex: s.nextIndex,
		}
		if call.callID != "" {
			call.itemID = "fc_" + call.callID
		} else {
			call.itemID = fmt.Sprintf("fc_%d", idx)
		}
		s.nextIndex++
		s.byIndex[idx] = call
		s.order = append(s.order, idx)

		outputIndex := call.outputIndex
		emit(types.ResponseStreamChunk{
			Type:        types.ResponseEventOutputAdded,
			OutputIndex: &outputIndex,
			Item: &types.ResponseOutput{
				ID:     call.itemID,
				Type:   "function_call",
				Status: "in_progress",
				CallID: call.callID,
				Name:   call.name,
			},
		})
	} else {
		if tc.ID != "" {
			call.callID = tc.ID
		}
		if tc.Function.Name != "" {
			call.name = tc.Function.Name
		}
	}

	if fragment := tc.Function.Arguments; fragment != "" {
		call.args.WriteString(fragment)
		outputIndex := call.outputIndex
		emit(types.ResponseStreamChunk{
			Type:        types.ResponseEventFuncArgsDelta,
			ItemID:      call.itemID,
			OutputIndex: &outputIndex,
			Delta:       fragment,
		})
	}
}

// finish closes every open function-call item in arrival order.
func (s *toolCallEventState) finish(emit func(types.ResponseStreamChunk)) {
	for _, idx := range s.order {
		call := s.byIndex[idx]
		outputIndex := call.outputIndex
		emit(types.ResponseStreamChunk{
			Type:        types.ResponseEventFuncArgsDone,
			ItemID:      call.itemID,
			OutputIndex: &outputIndex,
			Arguments:   call.args.String(),
		})
		emit(types.ResponseStreamChunk{
			Type:        types.ResponseEventOutputDone,
			OutputIndex: &outputIndex,
			Item: &types.ResponseOutput{
				ID:        call.itemID,
				Type:      "function_call",
				Status:    "completed",
				CallID:    call.callID,
				Name:      call.name,
				Arguments: call.args.String(),
			},
		})
	}
}

// collected returns the aggregated tool calls in arrival order.
func (s *toolCallEventState) collected() []types.ToolCall {
	if len(s.order) == 0 {
		return nil
	}
	calls := make([]types.ToolCall, 0, len(s.order))
	for _, idx := range s.order {
		call := s.byIndex[idx]
		calls = append(calls, types.ToolCall{
			ID:   call.callID,
			Type: "function",
			Function: types.ToolCallFunction{
				Name:      call.name,
				Arguments: call.args.String(),
			},
		})
	}
	return calls
}
