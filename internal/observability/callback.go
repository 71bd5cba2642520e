// Package observability provides a callback system for observability integrations.
// This follows LiteLLM's CustomLogger pattern for extensible logging and tracing.
package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CallType represents the type of LLM API call.
type CallType string

const (
	CallTypeCompletion     CallType = "completion"
	CallTypeChatCompletion CallType = "chat_completion"
	CallTypeEmbedding      CallType = "embedding"
	CallTypeResponse       CallType = "response"
	CallTypeImageGen       CallType = "image_generation"
	CallTypeAudioTranscr   CallType = "audio_transcription"
	CallTypeAudioSpeech    CallType = "audio_speech"
	CallTypeModeration     CallType = "moderation"
	CallTypeRerank         CallType = "rerank"
)

// RequestStatus represents the status of a request.
type RequestStatus string

const (
	RequestStatusSuccess RequestStatus = "success"
	RequestStatusFailure RequestStatus = "failure"
)

// StandardLoggingPayload is the unified logging data structure.
// This aligns with LiteLLM's StandardLoggingPayload for consistency.
type StandardLoggingPayload struct {
	// Identifiers
	ID        string `json:"id"`
	RequestID string `json:"request_id"`

	// Call info
	CallType CallType      `json:"call_type"`
	Status   RequestStatus `json:"status"`

	// Model info
	RequestedModel string  `json:"requested_model"`
	Model          string  `json:"model"`
	ModelID        *string `json:"model_id,omitempty"`
	ModelGroup     *string `json:"model_group,omitempty"`

	// Provider info
	APIBase     string `json:"api_base"`
	APIProvider string `json:"api_provider"`

	// Token usage
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Cost
	ResponseCost                 float64        `json:"response_cost"`
	ResponseCostFailureDebugInfo map[string]any `json:"response_cost_failure_debug_info,omitempty"`
	SavedCacheCost               float64        `json:"saved_cache_cost,omitempty"`

	// Timing
	StartTime           time.Time  `json:"startTime"`
	EndTime             time.Time  `json:"endTime"`
	CompletionStartTime *time.Time `json:"completionStartTime,omitempty"` // TTFT

	// Auth context
	EndUser      *string `json:"end_user,omitempty"`
	User         *string `json:"user,omitempty"`
	UserEmail    *string `json:"user_email,omitempty"`
	HashedAPIKey *string `json:"hashed_api_key,omitempty"`
	APIKeyAlias  *string `json:"api_key_alias,omitempty"`
	Team         *string `json:"team,omitempty"`
	TeamAlias    *string `json:"team_alias,omitempty"`
	Organization *string `json:"organization,omitempty"`

	// Request details
	Messages        any            `json:"messages,omitempty"`
	Response        any            `json:"response,omitempty"`
	ModelParameters map[string]any `json:"model_parameters,omitempty"`
	HiddenParams    map[string]any `json:"hidden_params,omitempty"`

	// Error info
	ErrorStr       *string `json:"error_str,omitempty"`
	ExceptionClass *string `json:"exception_class,omitempty"`

	// Cache
	CacheHit *bool   `json:"cache_hit,omitempty"`
	CacheKey *string `json:"cache_key,omitempty"`

	// Metadata
	RequestTags        []string       `json:"request_tags,omitempty"`
	RequesterIPAddress *string        `json:"requester_ip_address,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// Callback defines the interface for observability callbacks.
// Implementations can log to various backends (Prometheus, OTEL, Langfuse, etc.)
type Callback interface {
	// Name returns the callback name for identification.
	Name() string

	// LogPreAPICall is called before making an LLM API call.
	LogPreAPICall(ctx context.Context, payload *StandardLoggingPayload) error

	// LogPostAPICall is called after receiving a response (success or failure).
	LogPostAPICall(ctx context.Context, payload *StandardLoggingPayload) error

	// LogStreamEvent is called for each streaming chunk.
	LogStreamEvent(ctx context.Context, payload *StandardLoggingPayload, chunk any) error

	// LogSuccessEvent is called when a request completes successfully.
	LogSuccessEvent(ctx context.Context, payload *StandardLoggingPayload) error

	// LogFailureEvent is called when a request fails.
	LogFailureEvent(ctx context.Context, payload *StandardLoggingPayload, err error) error

	// LogFallbackEvent is called when a fallback occurs.
	LogFallbackEvent(ctx context.Context, originalModel string, fallbackModel string, err error, success bool) error

	// Shutdown gracefully shuts down the callback.
	Shutdown(ctx context.Context) error
}

// AsyncCallback extends Callback with async methods.
type AsyncCallback interface {
	Callback

	// AsyncLogSuccessEvent is the async version of LogSuccessEvent.
	AsyncLogSuccessEvent(ctx context.Context, payload *StandardLoggingPayload) error

	// AsyncLogFailureEvent is the async version of LogFailureEvent.
	AsyncLogFailureEvent(ctx context.Context, payload *StandardLoggingPayload, err error) error
}

// LoggingCallbackManager routes logging events to registered callbacks.
// It owns exactly four ordered lists: sync success, sync failure, async
// success and async failure. Registration flows only through the Add*
// methods; each list dedupes by callback identity so a callback fires at
// most once per event. Sync callbacks run inline after the response is
// delivered; async callbacks run on their own goroutines. A failing or
// panicking callback is logged and never blocks the others.
type LoggingCallbackManager struct {
	mu sync.Mutex

	syncSuccess  []Callback
	syncFailure  []Callback
	asyncSuccess []Callback
	asyncFailure []Callback

	wg     sync.WaitGroup
	logger *Logger
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *LoggingCallbackManager {
	cfg := LoggerConfig{
		Level:      slog.LevelInfo,
		Output:     nil, // Will use default
		JSONFormat: true,
	}
	return &LoggingCallbackManager{
		logger: NewLogger(cfg, nil),
	}
}

func appendUnique(list []Callback, cb Callback) []Callback {
	for _, existing := range list {
		if existing == cb {
			return list
		}
	}
	return append(list, cb)
}

func removeByName(list []Callback, name string) []Callback {
	for i, cb := range list {
		if cb.Name() == name {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// AddSyncSuccess registers cb for inline success events.
func (m *LoggingCallbackManager) AddSyncSuccess(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncSuccess = appendUnique(m.syncSuccess, cb)
}

// AddSyncFailure registers cb for inline failure events.
func (m *LoggingCallbackManager) AddSyncFailure(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncFailure = appendUnique(m.syncFailure, cb)
}

// AddAsyncSuccess registers cb for off-thread success events.
func (m *LoggingCallbackManager) AddAsyncSuccess(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asyncSuccess = appendUnique(m.asyncSuccess, cb)
}

// AddAsyncFailure registers cb for off-thread failure events.
func (m *LoggingCallbackManager) AddAsyncFailure(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asyncFailure = appendUnique(m.asyncFailure, cb)
}

// Register adds cb to the sync success and failure lists, and to the
// async lists as well when cb implements AsyncCallback.
func (m *LoggingCallbackManager) Register(cb Callback) {
	m.AddSyncSuccess(cb)
	m.AddSyncFailure(cb)
	if _, ok := cb.(AsyncCallback); ok {
		m.AddAsyncSuccess(cb)
		m.AddAsyncFailure(cb)
	}
}

// Unregister removes the named callback from every list.
func (m *LoggingCallbackManager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncSuccess = removeByName(m.syncSuccess, name)
	m.syncFailure = removeByName(m.syncFailure, name)
	m.asyncSuccess = removeByName(m.asyncSuccess, name)
	m.asyncFailure = removeByName(m.asyncFailure, name)
}

// all returns every distinct registered callback in registration order.
func (m *LoggingCallbackManager) all() []Callback {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Callback
	for _, list := range [][]Callback{m.syncSuccess, m.syncFailure, m.asyncSuccess, m.asyncFailure} {
		for _, cb := range list {
			out = appendUnique(out, cb)
		}
	}
	return out
}

func (m *LoggingCallbackManager) snapshot(list []Callback) []Callback {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Callback, len(list))
	copy(out, list)
	return out
}

// invoke runs fn with panic recovery so one callback cannot take down the
// event loop or skip the callbacks after it.
func (m *LoggingCallbackManager) invoke(name, event string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("callback panicked", "callback", name, "event", event, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		m.logger.Error("callback failed", "callback", name, "event", event, "error", err)
	}
}

// LogPreAPICall notifies every registered callback before an upstream call.
func (m *LoggingCallbackManager) LogPreAPICall(ctx context.Context, payload *StandardLoggingPayload) {
	for _, cb := range m.all() {
		m.invoke(cb.Name(), "pre_api_call", func() error { return cb.LogPreAPICall(ctx, payload) })
	}
}

// LogPostAPICall notifies every registered callback after the upstream call returns.
func (m *LoggingCallbackManager) LogPostAPICall(ctx context.Context, payload *StandardLoggingPayload) {
	for _, cb := range m.all() {
		m.invoke(cb.Name(), "post_api_call", func() error { return cb.LogPostAPICall(ctx, payload) })
	}
}

// LogStreamEvent notifies every registered callback of a stream chunk.
func (m *LoggingCallbackManager) LogStreamEvent(ctx context.Context, payload *StandardLoggingPayload, chunk any) {
	for _, cb := range m.all() {
		m.invoke(cb.Name(), "stream_event", func() error { return cb.LogStreamEvent(ctx, payload, chunk) })
	}
}

// LogSuccessEvent runs the sync success list inline, then dispatches the
// async success list on goroutines.
func (m *LoggingCallbackManager) LogSuccessEvent(ctx context.Context, payload *StandardLoggingPayload) {
	for _, cb := range m.snapshot(m.syncSuccess) {
		m.invoke(cb.Name(), "success", func() error { return cb.LogSuccessEvent(ctx, payload) })
	}
	asyncCtx := context.WithoutCancel(ctx)
	for _, cb := range m.snapshot(m.asyncSuccess) {
		m.wg.Add(1)
		go func(cb Callback) {
			defer m.wg.Done()
			m.invoke(cb.Name(), "async_success", func() error {
				if ac, ok := cb.(AsyncCallback); ok {
					return ac.AsyncLogSuccessEvent(asyncCtx, payload)
				}
				return cb.LogSuccessEvent(asyncCtx, payload)
			})
		}(cb)
	}
}

// LogFailureEvent runs the sync failure list inline, then dispatches the
// async failure list on goroutines.
func (m *LoggingCallbackManager) LogFailureEvent(ctx context.Context, payload *StandardLoggingPayload, err error) {
	for _, cb := range m.snapshot(m.syncFailure) {
		m.invoke(cb.Name(), "failure", func() error { return cb.LogFailureEvent(ctx, payload, err) })
	}
	asyncCtx := context.WithoutCancel(ctx)
	for _, cb := range m.snapshot(m.asyncFailure) {
		m.wg.Add(1)
		go func(cb Callback) {
			defer m.wg.Done()
			m.invoke(cb.Name(), "async_failure", func() error {
				if ac, ok := cb.(AsyncCallback); ok {
					return ac.AsyncLogFailureEvent(asyncCtx, payload, err)
				}
				return cb.LogFailureEvent(asyncCtx, payload, err)
			})
		}(cb)
	}
}

// LogFallbackEvent notifies every registered callback that a fallback ran.
func (m *LoggingCallbackManager) LogFallbackEvent(ctx context.Context, originalModel, fallbackModel string, err error, success bool) {
	for _, cb := range m.all() {
		m.invoke(cb.Name(), "fallback", func() error {
			return cb.LogFallbackEvent(ctx, originalModel, fallbackModel, err, success)
		})
	}
}

// Wait blocks until in-flight async callbacks drain.
func (m *LoggingCallbackManager) Wait() {
	m.wg.Wait()
}

// Shutdown drains async work and shuts down every distinct callback.
func (m *LoggingCallbackManager) Shutdown(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}
	for _, cb := range m.all() {
		if err := cb.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}
