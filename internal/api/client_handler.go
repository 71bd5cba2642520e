// Package api provides HTTP handlers for the LLM gateway API.
// This file contains the ClientHandler which wraps litellm.Client for Gateway mode.
package api //nolint:revive // package name is intentional

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	litellm "github.com/BerriAI/litellm-go"
	"github.com/BerriAI/litellm-go/internal/auth"
	"github.com/BerriAI/litellm-go/internal/governance"
	"github.com/BerriAI/litellm-go/internal/mcp"
	"github.com/BerriAI/litellm-go/internal/metrics"
	"github.com/BerriAI/litellm-go/internal/observability"
	"github.com/BerriAI/litellm-go/internal/pool"
	"github.com/BerriAI/litellm-go/internal/tokenizer"
	"github.com/BerriAI/litellm-go/internal/transport"
	"github.com/BerriAI/litellm-go/pkg/cache"
	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
	"github.com/BerriAI/litellm-go/pkg/types"
)

// ClientHandler handles HTTP requests using litellm.Client.
// This is the recommended handler for Gateway mode as it uses the same
// core logic as Library mode. The underlying client is held behind a
// swapper so configuration reloads never interrupt in-flight requests.
type ClientHandler struct {
	swapper       *ClientSwapper
	logger        *slog.Logger
	maxBodySize   int64
	store         auth.Store
	governance    *governance.Engine
	mcpManager    mcp.Manager
	observability *observability.ObservabilityManager
	responses     *responseStore
}

// ClientHandlerConfig contains configuration for ClientHandler.
type ClientHandlerConfig struct {
	MaxBodySize   int64                                  // Maximum request body size in bytes
	Store         auth.Store                             // Storage for usage logging (optional)
	Governance    *governance.Engine                     // Budget/rate/model-access enforcement (optional)
	MCPManager    mcp.Manager                            // MCP tool execution (optional)
	Observability *observability.ObservabilityManager    // Logging callbacks and tracing (optional)
	ResponseCache cache.Cache                            // Stored-response backend; memory when nil
	ResponseTTL   time.Duration                          // Stored-response lifetime; 1h when zero
}

// NewClientHandler creates a new handler that wraps litellm.Client.
func NewClientHandler(client *litellm.Client, logger *slog.Logger, cfg *ClientHandlerConfig) *ClientHandler {
	var swapper *ClientSwapper
	if client != nil {
		swapper = NewClientSwapper(client)
	}
	return NewClientHandlerWithSwapper(swapper, logger, cfg)
}

// NewClientHandlerWithSwapper creates a handler on a hot-swappable client.
// The swapper may be nil; requests then fail with an internal error until
// a client is installed.
func NewClientHandlerWithSwapper(swapper *ClientSwapper, logger *slog.Logger, cfg *ClientHandlerConfig) *ClientHandler {
	maxBodySize := int64(DefaultMaxBodySize)
	h := &ClientHandler{
		swapper: swapper,
		logger:  logger,
	}
	var responseCache cache.Cache
	var responseTTL time.Duration
	if cfg != nil {
		if cfg.MaxBodySize > 0 {
			maxBodySize = cfg.MaxBodySize
		}
		h.store = cfg.Store
		h.governance = cfg.Governance
		h.mcpManager = cfg.MCPManager
		h.observability = cfg.Observability
		responseCache = cfg.ResponseCache
		responseTTL = cfg.ResponseTTL
	}
	h.maxBodySize = maxBodySize
	h.responses = newResponseStore(responseCache, responseTTL)
	return h
}

// acquireClient returns the current client and a release func. The release
// must be called once the request is done so reloads can close the old
// client after the last reference drops.
func (h *ClientHandler) acquireClient() (*litellm.Client, func()) {
	if h.swapper == nil {
		return nil, func() {}
	}
	return h.swapper.Acquire()
}

// withModelIDCapture installs a deployment capture so the deployment the
// router picked can be reported in the x-litellm-model-id header.
func withModelIDCapture(ctx context.Context) (context.Context, *litellm.DeploymentCapture) {
	capture := &litellm.DeploymentCapture{}
	return litellm.WithDeploymentCapture(ctx, capture), capture
}

func setModelIDHeader(w http.ResponseWriter, capture *litellm.DeploymentCapture) {
	if capture == nil {
		return
	}
	if id := capture.ModelID(); id != "" {
		w.Header().Set("x-litellm-model-id", id)
	}
}

// ensureRequestID guarantees the request context carries a request ID and
// scopes router state to the authenticated tenant.
func (h *ClientHandler) ensureRequestID(r *http.Request) (*http.Request, string) {
	ctx, requestID := observability.GetOrCreateRequestID(r.Context())
	ctx = withRouterTenantScope(ctx)
	return r.WithContext(ctx), requestID
}

// ChatCompletions handles POST /v1/chat/completions requests.
func (h *ClientHandler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r, requestID := h.ensureRequestID(r)

	// Limit request body size to prevent OOM
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

	req := pool.GetChatRequest()
	defer pool.PutChatRequest(req)

	if unmarshalErr := json.Unmarshal(body, req); unmarshalErr != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "invalid JSON: "+unmarshalErr.Error()))
		return
	}

	if req.Model == "" {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "model is required"))
		return
	}
	if len(req.Messages) == 0 {
		h.writeError(w, llmerrors.NewInvalidRequestError("", req.Model, "messages is required"))
		return
	}

	payload := h.buildChatObservabilityPayload(r, req, start, requestID)
	ctx, endSpan := h.startSpan(r.Context(), payload)
	defer endSpan()
	h.observePre(ctx, payload)

	if evalErr := h.evaluateGovernance(ctx, r, req.Model, req.User, req.Tags, governance.CallTypeChatCompletion, estimateChatTokens(req)); evalErr != nil {
		h.observePost(ctx, payload, evalErr)
		h.writeError(w, evalErr)
		return
	}

	manager := h.getMCPManager(ctx)
	ctx, capture := withModelIDCapture(ctx)

	client, release := h.acquireClient()
	defer release()
	if client == nil {
		err := llmerrors.NewInternalError("", req.Model, "client not initialized")
		h.observePost(ctx, payload, err)
		h.writeError(w, err)
		return
	}

	if req.Stream {
		// Force include_usage to get accurate token counts from supported providers
		if req.StreamOptions == nil {
			req.StreamOptions = &litellm.StreamOptions{IncludeUsage: true}
		} else {
			req.StreamOptions.IncludeUsage = true
		}

		if manager != nil {
			if injector, ok := manager.(mcp.ToolInjector); ok {
				injector.InjectTools(ctx, req)
			}
		}

		h.handleStreamResponse(ctx, w, r, client, req, start, requestID, payload, capture)
		return
	}

	var resp *litellm.ChatResponse
	if manager != nil {
		executor := mcp.NewAgentExecutor(manager, 0, h.logger)
		resp, err = executor.Execute(ctx, req, func(execCtx context.Context, cr *litellm.ChatRequest) (*litellm.ChatResponse, error) {
			return client.ChatCompletion(execCtx, cr)
		})
	} else {
		resp, err = client.ChatCompletion(ctx, req)
	}
	if err != nil {
		h.observePost(ctx, payload, err)
		h.logger.Error("chat completion failed", "model", req.Model, "error", err)
		if llmErr, ok := err.(*llmerrors.LLMError); ok {
			h.writeError(w, llmErr)
		} else {
			h.writeError(w, llmerrors.NewServiceUnavailableError("", req.Model, err.Error()))
		}
		return
	}

	latency := time.Since(start)

	if resp.Usage == nil || resp.Usage.TotalTokens == 0 {
		promptTokens := tokenizer.EstimatePromptTokens(req.Model, req)
		completionTokens := tokenizer.EstimateCompletionTokens(req.Model, resp, "")
		resp.Usage = &litellm.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		}
	}

	metrics.RecordRequest("litellm", req.Model, http.StatusOK, latency)
	metrics.RecordTokens("litellm", req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	modelName := req.Model
	if resp.Model != "" {
		modelName = resp.Model
	}
	cost := client.CalculateCost(modelName, resp.Usage)
	h.accountUsage(ctx, governance.AccountInput{
		RequestID:   requestID,
		Model:       modelName,
		CallType:    governance.CallTypeChatCompletion,
		EndUserID:   req.User,
		RequestTags: req.Tags,
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
		if payload.APIProvider == "" {
			payload.APIProvider = "litellm"
		}
		if resp.Model != "" {
			payload.Model = resp.Model
		}
		payload.ID = resp.ID
	}
	h.observePost(ctx, payload, nil)

	setModelIDHeader(w, capture)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *ClientHandler) handleStreamResponse(ctx context.Context, w http.ResponseWriter, r *http.Request, client *litellm.Client, req *litellm.ChatRequest, start time.Time, requestID string, payload *observability.StandardLoggingPayload, capture *litellm.DeploymentCapture) {
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

	// Set SSE headers
	setModelIDHeader(w, capture)
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

	// Forward stream chunks
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			// Send [DONE] marker
			if _, writeErr := w.Write([]byte("data: [DONE]\n\n")); writeErr != nil {
				h.logger.Debug("failed to write done marker", "error", writeErr)
			}
			flusher.Flush()
			break
		}
		if err != nil {
			streamErr = err
			// Client disconnect is not an error worth logging at error level
			if r.Context().Err() != nil {
				h.logger.Debug("client disconnected during stream", "model", req.Model)
			} else {
				h.logger.Error("stream recv error", "error", err, "model", req.Model)
			}
			break
		}

		h.observeStreamEvent(ctx, payload, chunk)

		// Capture usage if present (OpenAI standard puts it in the last chunk)
		if chunk.Usage != nil {
			finalUsage = chunk.Usage
		}

		// Accumulate content for fallback token calculation
		if len(chunk.Choices) > 0 {
			completionContent.WriteString(chunk.Choices[0].Delta.Content)
		}

		data, marshalErr := json.Marshal(chunk)
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

	// Calculate fallback usage if not returned by provider
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

	if payload != nil {
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
	h.observePost(ctx, payload, streamErr)
}

func (h *ClientHandler) writeError(w http.ResponseWriter, err error) {
	var llmErr *llmerrors.LLMError
	if e, ok := err.(*llmerrors.LLMError); ok {
		llmErr = e
	} else {
		// Never leak raw internal error text to clients.
		llmErr = llmerrors.NewInternalError("", "", "internal server error")
	}

	transport.MirrorRateLimitHeaders(w.Header(), llmErr.ResponseHeaders)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(llmErr.HTTPStatusCode())

	resp := ErrorResponse{
		Error: ErrorDetail{
			Message: llmErr.Message,
			Type:    llmErr.Type,
			Code:    llmErr.Code,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}

// buildChatObservabilityPayload seeds the logging payload shared by the
// pre/post callbacks and tracing span for one request.
func (h *ClientHandler) buildChatObservabilityPayload(r *http.Request, req *litellm.ChatRequest, start time.Time, requestID string) *observability.StandardLoggingPayload {
	payload := &observability.StandardLoggingPayload{
		RequestID:      requestID,
		CallType:       observability.CallTypeChatCompletion,
		RequestedModel: req.Model,
		Model:          req.Model,
		StartTime:      start,
		RequestTags:    append([]string(nil), req.Tags...),
	}
	if req.User != "" {
		user := req.User
		payload.EndUser = &user
	}
	if authCtx := auth.GetAuthContext(r.Context()); authCtx != nil && authCtx.APIKey != nil {
		hashed := authCtx.APIKey.KeyHash
		payload.HashedAPIKey = &hashed
		payload.Team = authCtx.APIKey.TeamID
		payload.User = authCtx.APIKey.UserID
		payload.Organization = authCtx.APIKey.OrganizationID
	}
	return payload
}

// startSpan opens a tracing span for the request when tracing is configured.
func (h *ClientHandler) startSpan(ctx context.Context, payload *observability.StandardLoggingPayload) (context.Context, func()) {
	if h.observability == nil || payload == nil {
		return ctx, func() {}
	}
	tp := h.observability.TracerProvider()
	if tp == nil {
		return ctx, func() {}
	}
	ctx, span := observability.StartLLMSpan(ctx, tp.Tracer(), string(payload.CallType), observability.LLMSpanAttributes{
		Model: payload.Model,
	})
	return ctx, func() { span.End() }
}

func (h *ClientHandler) observePre(ctx context.Context, payload *observability.StandardLoggingPayload) {
	if h.observability == nil || payload == nil {
		return
	}
	h.observability.CallbackManager().LogPreAPICall(ctx, payload)
}

func (h *ClientHandler) observePost(ctx context.Context, payload *observability.StandardLoggingPayload, err error) {
	if h.observability == nil || payload == nil {
		return
	}
	payload.EndTime = time.Now()
	cm := h.observability.CallbackManager()
	cm.LogPostAPICall(ctx, payload)
	if err != nil {
		cm.LogFailureEvent(ctx, payload, err)
		return
	}
	cm.LogSuccessEvent(ctx, payload)
}

func (h *ClientHandler) observeStreamEvent(ctx context.Context, payload *observability.StandardLoggingPayload, chunk any) {
	if h.observability == nil || payload == nil {
		return
	}
	h.observability.CallbackManager().LogStreamEvent(ctx, payload, chunk)
}

// evaluateGovernance enforces per-key model access and, when a governance
// engine is configured, budget and tenant rate limits. Model access is
// checked even without an engine so a key's allow-list always holds.
// estimatedTokens feeds admission-time TPM reservations; zero is fine for
// call types without a usable prompt estimate.
func (h *ClientHandler) evaluateGovernance(ctx context.Context, r *http.Request, model, user string, tags []string, callType string, estimatedTokens int64) error {
	if err := h.checkModelAccess(ctx, model); err != nil {
		return err
	}
	if h.governance == nil {
		return nil
	}
	return h.governance.Evaluate(ctx, governance.RequestInput{
		Request:         r,
		Model:           model,
		CallType:        callType,
		EndUserID:       user,
		Tags:            tags,
		EstimatedTokens: estimatedTokens,
	})
}

// estimateChatTokens projects a chat request's admission-time token
// reservation: the prompt estimate plus the caller's max_tokens budget.
func estimateChatTokens(req *litellm.ChatRequest) int64 {
	if req == nil {
		return 0
	}
	return int64(tokenizer.EstimatePromptTokens(req.Model, req) + req.MaxTokens)
}

func (h *ClientHandler) checkModelAccess(ctx context.Context, model string) error {
	authCtx := auth.GetAuthContext(ctx)
	if authCtx == nil {
		return nil
	}
	access, err := auth.NewModelAccess(ctx, h.store, authCtx)
	if err != nil {
		h.logger.Error("failed to evaluate model access", "error", err, "model", model)
		return llmerrors.NewInternalError("", model, "failed to evaluate model access")
	}
	if access == nil || access.Allows(model) {
		return nil
	}
	return llmerrors.NewPermissionError("", model, "model access denied")
}

// getMCPManager prefers a request-scoped manager installed by middleware
// over the handler-wide one.
func (h *ClientHandler) getMCPManager(ctx context.Context) mcp.Manager {
	if m := mcp.GetManager(ctx); m != nil {
		return m
	}
	return h.mcpManager
}

// accountUsage records usage and spend after request completion. With a
// governance engine enabled the engine owns accounting (idempotent,
// optionally async); otherwise usage is logged straight to the store.
func (h *ClientHandler) accountUsage(ctx context.Context, in governance.AccountInput) {
	if h.governance.Enabled() {
		h.governance.Account(ctx, in)
		return
	}
	h.logUsage(ctx, in)
}

// logUsage writes a usage log entry and updates key/team spend.
func (h *ClientHandler) logUsage(ctx context.Context, in governance.AccountInput) {
	if h.store == nil {
		return
	}

	authCtx := auth.GetAuthContext(ctx)

	log := &auth.UsageLog{
		RequestID:    in.RequestID,
		Model:        in.Model,
		Provider:     in.Usage.Provider,
		CallType:     in.CallType,
		InputTokens:  in.Usage.PromptTokens,
		OutputTokens: in.Usage.CompletionTokens,
		TotalTokens:  in.Usage.TotalTokens,
		Cost:         in.Usage.Cost,
		StartTime:    in.Start,
		EndTime:      time.Now(),
		LatencyMs:    int(in.Latency.Milliseconds()),
		RequestTags:  append([]string(nil), in.RequestTags...),
	}
	if log.Provider == "" {
		log.Provider = "litellm"
	}
	if authCtx != nil && authCtx.APIKey != nil {
		log.APIKeyID = authCtx.APIKey.ID
		log.TeamID = authCtx.APIKey.TeamID
		log.OrganizationID = authCtx.APIKey.OrganizationID
		log.UserID = authCtx.APIKey.UserID
	}

	// Record usage asynchronously to avoid blocking the response
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.store.LogUsage(bgCtx, log); err != nil {
			h.logger.Warn("failed to log usage", "error", err, "request_id", in.RequestID)
		}

		if authCtx != nil && authCtx.APIKey != nil && log.Cost > 0 {
			if err := h.store.UpdateAPIKeySpent(bgCtx, authCtx.APIKey.ID, log.Cost); err != nil {
				h.logger.Warn("failed to update api key spend", "error", err, "key_id", authCtx.APIKey.ID)
			}

			if authCtx.APIKey.TeamID != nil {
				if err := h.store.UpdateTeamSpent(bgCtx, *authCtx.APIKey.TeamID, log.Cost); err != nil {
					h.logger.Warn("failed to update team spend", "error", err, "team_id", *authCtx.APIKey.TeamID)
				}
			}
		}
	}()
}

// HealthCheck handles GET /health/live and /health/ready endpoints.
func (h *ClientHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		h.logger.Error("failed to encode health response", "error", err)
	}
}

// ListModels handles GET /v1/models endpoint.
func (h *ClientHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	client, release := h.acquireClient()
	defer release()
	if client == nil {
		h.writeError(w, llmerrors.NewInternalError("", "", "client not initialized"))
		return
	}

	models, err := client.ListModels(r.Context())
	if err != nil {
		h.writeError(w, llmerrors.NewInternalError("", "", "failed to list models: "+err.Error()))
		return
	}

	// Convert to OpenAI format
	data := make([]map[string]any, 0, len(models))
	for _, m := range models {
		data = append(data, map[string]any{
			"id":       m.ID,
			"object":   m.Object,
			"owned_by": m.Provider,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   data,
	}); err != nil {
		h.logger.Error("failed to encode models response", "error", err)
	}
}

// GetClient returns the current underlying litellm.Client.
// This is useful for accessing client methods directly.
func (h *ClientHandler) GetClient() *litellm.Client {
	if h.swapper == nil {
		return nil
	}
	return h.swapper.Current()
}

// Embeddings handles POST /v1/embeddings requests.
func (h *ClientHandler) Embeddings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r, requestID := h.ensureRequestID(r)

	// Limit request body size to prevent OOM
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

	var req types.EmbeddingRequest
	if unmarshalErr := json.Unmarshal(body, &req); unmarshalErr != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "invalid JSON: "+unmarshalErr.Error()))
		return
	}

	if req.Model == "" {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "model is required"))
		return
	}
	if req.Input == nil || req.Input.IsEmpty() {
		h.writeError(w, llmerrors.NewInvalidRequestError("", req.Model, "input is required"))
		return
	}
	if validateErr := req.Input.Validate(); validateErr != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", req.Model, validateErr.Error()))
		return
	}

	payload := &observability.StandardLoggingPayload{
		RequestID:      requestID,
		CallType:       observability.CallTypeEmbedding,
		RequestedModel: req.Model,
		Model:          req.Model,
		StartTime:      start,
	}
	ctx, endSpan := h.startSpan(r.Context(), payload)
	defer endSpan()
	h.observePre(ctx, payload)

	if evalErr := h.evaluateGovernance(ctx, r, req.Model, req.User, nil, governance.CallTypeEmbedding, 0); evalErr != nil {
		h.observePost(ctx, payload, evalErr)
		h.writeError(w, evalErr)
		return
	}

	ctx, capture := withModelIDCapture(ctx)

	client, release := h.acquireClient()
	defer release()
	if client == nil {
		err := llmerrors.NewInternalError("", req.Model, "client not initialized")
		h.observePost(ctx, payload, err)
		h.writeError(w, err)
		return
	}

	resp, err := client.Embedding(ctx, &req)
	if err != nil {
		h.observePost(ctx, payload, err)
		h.logger.Error("embedding failed", "model", req.Model, "error", err)
		if llmErr, ok := err.(*llmerrors.LLMError); ok {
			h.writeError(w, llmErr)
		} else {
			h.writeError(w, llmerrors.NewServiceUnavailableError("", req.Model, err.Error()))
		}
		return
	}

	latency := time.Since(start)

	metrics.RecordRequest("litellm", req.Model, http.StatusOK, latency)
	if resp.Usage.TotalTokens > 0 {
		metrics.RecordTokens("litellm", req.Model, resp.Usage.PromptTokens, 0)
	}

	cost := client.CalculateCost(req.Model, &litellm.Usage{
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	})
	h.accountUsage(ctx, governance.AccountInput{
		RequestID: requestID,
		Model:     req.Model,
		CallType:  governance.CallTypeEmbedding,
		EndUserID: req.User,
		Usage: governance.Usage{
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
			Cost:         cost,
			Provider:     resp.Usage.Provider,
		},
		Start:   start,
		Latency: latency,
	})

	if payload != nil {
		payload.PromptTokens = resp.Usage.PromptTokens
		payload.TotalTokens = resp.Usage.TotalTokens
		payload.ResponseCost = cost
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
