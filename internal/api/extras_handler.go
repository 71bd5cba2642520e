package api //nolint:revive // package name is intentional

import (
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/BerriAI/litellm-go/internal/governance"
	"github.com/BerriAI/litellm-go/internal/metrics"
	"github.com/BerriAI/litellm-go/internal/observability"
	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
	"github.com/BerriAI/litellm-go/pkg/types"
)

// readLimitedBody reads the request body up to maxBodySize. On failure it
// writes the error response and reports false.
func (h *ClientHandler) readLimitedBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limitedReader := io.LimitReader(r.Body, h.maxBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "failed to read request body"))
		return nil, false
	}
	defer func() { _ = r.Body.Close() }()

	if int64(len(body)) > h.maxBodySize {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "request body too large"))
		return nil, false
	}
	return body, true
}

// ImagesGenerations handles POST /v1/images/generations requests.
func (h *ClientHandler) ImagesGenerations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r, requestID := h.ensureRequestID(r)

	body, ok := h.readLimitedBody(w, r)
	if !ok {
		return
	}

	var req types.ImageGenerationRequest
	if unmarshalErr := json.Unmarshal(body, &req); unmarshalErr != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "invalid JSON: "+unmarshalErr.Error()))
		return
	}
	if req.Model == "" {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "model is required"))
		return
	}
	if validateErr := req.Validate(); validateErr != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", req.Model, validateErr.Error()))
		return
	}

	payload := &observability.StandardLoggingPayload{
		RequestID:      requestID,
		CallType:       observability.CallTypeImageGen,
		RequestedModel: req.Model,
		Model:          req.Model,
		StartTime:      start,
	}
	ctx, endSpan := h.startSpan(r.Context(), payload)
	defer endSpan()
	h.observePre(ctx, payload)

	if evalErr := h.evaluateGovernance(ctx, r, req.Model, req.User, nil, governance.CallTypeImageGeneration, 0); evalErr != nil {
		h.observePost(ctx, payload, evalErr)
		h.writeError(w, evalErr)
		return
	}

	client, release := h.acquireClient()
	defer release()
	if client == nil {
		err := llmerrors.NewInternalError("", req.Model, "client not initialized")
		h.observePost(ctx, payload, err)
		h.writeError(w, err)
		return
	}

	ctx, capture := withModelIDCapture(ctx)
	resp, err := client.ImageGeneration(ctx, &req)
	if err != nil {
		h.observePost(ctx, payload, err)
		h.logger.Error("image generation failed", "model", req.Model, "error", err)
		if llmErr, ok := err.(*llmerrors.LLMError); ok {
			h.writeError(w, llmErr)
		} else {
			h.writeError(w, llmerrors.NewServiceUnavailableError("", req.Model, err.Error()))
		}
		return
	}

	latency := time.Since(start)
	metrics.RecordRequest("litellm", req.Model, http.StatusOK, latency)

	usage := governance.Usage{}
	if resp.Usage != nil {
		usage.PromptTokens = resp.Usage.PromptTokens
		usage.TotalTokens = resp.Usage.TotalTokens
		usage.Provider = resp.Usage.Provider
	}
	h.accountUsage(ctx, governance.AccountInput{
		RequestID: requestID,
		Model:     req.Model,
		CallType:  governance.CallTypeImageGeneration,
		EndUserID: req.User,
		Usage:     usage,
		Start:     start,
		Latency:   latency,
	})

	if resp.Usage != nil {
		payload.PromptTokens = resp.Usage.PromptTokens
		payload.TotalTokens = resp.Usage.TotalTokens
		if resp.Usage.Provider != "" {
			payload.APIProvider = resp.Usage.Provider
		}
	}
	h.observePost(ctx, payload, nil)

	setModelIDHeader(w, capture)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// Moderations handles POST /v1/moderations requests.
func (h *ClientHandler) Moderations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r, requestID := h.ensureRequestID(r)

	body, ok := h.readLimitedBody(w, r)
	if !ok {
		return
	}

	var req types.ModerationRequest
	if unmarshalErr := json.Unmarshal(body, &req); unmarshalErr != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "invalid JSON: "+unmarshalErr.Error()))
		return
	}
	if req.Model == "" {
		req.Model = defaultModerationModel
	}
	if validateErr := req.Validate(); validateErr != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", req.Model, validateErr.Error()))
		return
	}

	payload := &observability.StandardLoggingPayload{
		RequestID:      requestID,
		CallType:       observability.CallTypeModeration,
		RequestedModel: req.Model,
		Model:          req.Model,
		StartTime:      start,
	}
	ctx, endSpan := h.startSpan(r.Context(), payload)
	defer endSpan()
	h.observePre(ctx, payload)

	if evalErr := h.evaluateGovernance(ctx, r, req.Model, "", nil, governance.CallTypeModeration, 0); evalErr != nil {
		h.observePost(ctx, payload, evalErr)
		h.writeError(w, evalErr)
		return
	}

	client, release := h.acquireClient()
	defer release()
	if client == nil {
		err := llmerrors.NewInternalError("", req.Model, "client not initialized")
		h.observePost(ctx, payload, err)
		h.writeError(w, err)
		return
	}

	ctx, capture := withModelIDCapture(ctx)
	resp, err := client.Moderation(ctx, &req)
	if err != nil {
		h.observePost(ctx, payload, err)
		h.logger.Error("moderation failed", "model", req.Model, "error", err)
		if llmErr, ok := err.(*llmerrors.LLMError); ok {
			h.writeError(w, llmErr)
		} else {
			h.writeError(w, llmerrors.NewServiceUnavailableError("", req.Model, err.Error()))
		}
		return
	}

	latency := time.Since(start)
	metrics.RecordRequest("litellm", req.Model, http.StatusOK, latency)

	h.accountUsage(ctx, governance.AccountInput{
		RequestID: requestID,
		Model:     req.Model,
		CallType:  governance.CallTypeModeration,
		Start:     start,
		Latency:   latency,
	})
	h.observePost(ctx, payload, nil)

	setModelIDHeader(w, capture)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// Rerank handles POST /v1/rerank and /v2/rerank requests.
func (h *ClientHandler) Rerank(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r, requestID := h.ensureRequestID(r)

	body, ok := h.readLimitedBody(w, r)
	if !ok {
		return
	}

	var req types.RerankRequest
	if unmarshalErr := json.Unmarshal(body, &req); unmarshalErr != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "invalid JSON: "+unmarshalErr.Error()))
		return
	}
	if validateErr := req.Validate(); validateErr != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", req.Model, validateErr.Error()))
		return
	}

	payload := &observability.StandardLoggingPayload{
		RequestID:      requestID,
		CallType:       observability.CallTypeRerank,
		RequestedModel: req.Model,
		Model:          req.Model,
		StartTime:      start,
	}
	ctx, endSpan := h.startSpan(r.Context(), payload)
	defer endSpan()
	h.observePre(ctx, payload)

	if evalErr := h.evaluateGovernance(ctx, r, req.Model, "", nil, governance.CallTypeRerank, 0); evalErr != nil {
		h.observePost(ctx, payload, evalErr)
		h.writeError(w, evalErr)
		return
	}

	client, release := h.acquireClient()
	defer release()
	if client == nil {
		err := llmerrors.NewInternalError("", req.Model, "client not initialized")
		h.observePost(ctx, payload, err)
		h.writeError(w, err)
		return
	}

	ctx, capture := withModelIDCapture(ctx)
	resp, err := client.Rerank(ctx, &req)
	if err != nil {
		h.observePost(ctx, payload, err)
		h.logger.Error("rerank failed", "model", req.Model, "error", err)
		if llmErr, ok := err.(*llmerrors.LLMError); ok {
			h.writeError(w, llmErr)
		} else {
			h.writeError(w, llmerrors.NewServiceUnavailableError("", req.Model, err.Error()))
		}
		return
	}

	latency := time.Since(start)
	metrics.RecordRequest("litellm", req.Model, http.StatusOK, latency)

	usage := governance.Usage{}
	if resp.Usage != nil {
		usage.PromptTokens = resp.Usage.PromptTokens
		usage.TotalTokens = resp.Usage.TotalTokens
		usage.Provider = resp.Usage.Provider
	}
	h.accountUsage(ctx, governance.AccountInput{
		RequestID: requestID,
		Model:     req.Model,
		CallType:  governance.CallTypeRerank,
		Usage:     usage,
		Start:     start,
		Latency:   latency,
	})

	if resp.Usage != nil {
		payload.PromptTokens = resp.Usage.PromptTokens
		payload.TotalTokens = resp.Usage.TotalTokens
		if resp.Usage.Provider != "" {
			payload.APIProvider = resp.Usage.Provider
		}
	}
	h.observePost(ctx, payload, nil)

	setModelIDHeader(w, capture)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
