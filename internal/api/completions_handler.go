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

// Completions handles POST /v1/completions requests. Legacy text
// completions are translated to chat requests so they share routing,
// retries, caching and budget tracking with /v1/chat/completions.
func (h *ClientHandler) Completions(w http.ResponseWriter, r *http.Request) {
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

	var req types.CompletionRequest
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
	payload.CallType = observability.CallTypeCompletion
	ctx, endSpan := h.startSpan(r.Context(), payload)
	defer endSpan()
	h.observePre(ctx, payload)

	if evalErr := h.evaluateGovernance(ctx, r, chatReq.Model, chatReq.User, chatReq.Tags, governance.CallTypeCompletion, estimateChatTokens(chatReq)); evalErr != nil {
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

	if chatReq.Stream {
		if chatReq.StreamOptions == nil {
			chatReq.StreamOptions = &litellm.StreamOptions{IncludeUsage: true}
		} else {
			chatReq.StreamOptions.IncludeUsage = true
		}

		h.handleCompletionStream(ctx, w, r, client, chatReq, start, requestID, payload)
		return
	}

	resp, err := client.ChatCompletion(ctx, chatReq)
	if err != nil {
		h.observePost(ctx, payload, err)
		h.logger.Error("completion failed", "model", chatReq.Model, "error", err)
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
		CallType:  governance.CallTypeCompletion,
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

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(types.CompletionResponseFromChat(resp)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *ClientHandler) handleCompletionStream(ctx context.Context, w http.ResponseWriter, r *http.Request, client *litellm.Client, req *litellm.ChatRequest, start time.Time, requestID string, payload *observability.StandardLoggingPayload) {
	stream, err := client.ChatCompletionStream(ctx, req)
	if err != nil {
		h.observePost(ctx, payload, err)
		h.logger.Error("stream creation failed", "model", req.Model, "error", err)
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
	var completionContent strings.Builder
	var streamErr error

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			if _, writeErr := w.Write([]byte("data: [DONE]\n\n")); writeErr != nil {
				h.logger.Debug("failed to write done marker", "error", writeErr)
			}
			flusher.Flush()
			break
		}
		if err != nil {
			streamErr = err
			if r.Context().Err() != nil {
				h.logger.Debug("client disconnected during stream", "model", req.Model)
			} else {
				h.logger.Error("stream recv error", "error", err, "model", req.Model)
			}
			break
		}

		h.observeStreamEvent(ctx, payload, chunk)

		if chunk.Usage != nil {
			finalUsage = chunk.Usage
		}
		if len(chunk.Choices) > 0 {
			completionContent.WriteString(chunk.Choices[0].Delta.Content)
		}

		data, marshalErr := json.Marshal(types.CompletionStreamChunkFromChat(chunk))
		if marshalErr != nil {
			h.logger.Error("failed to marshal chunk", "error", marshalErr)
			continue
		}

		if _, writeErr := w.Write([]byte("data: ")); writeErr != nil {
			break
		}
		if _, writeErr := w.Write(data); writeErr != nil {
			break
		}
		if _, writeErr := w.Write([]byte("\n\n")); writeErr != nil {
			break
		}
		flusher.Flush()
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

	cost := client.CalculateCost(req.Model, finalUsage)
	h.accountUsage(ctx, governance.AccountInput{
		RequestID: requestID,
		Model:     req.Model,
		CallType:  governance.CallTypeCompletion,
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
