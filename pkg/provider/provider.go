// Package provider defines the public interface for LLM provider adapters.
// Each provider (OpenAI, Anthropic, etc.) implements this interface
// to handle request/response transformation and API communication.
package provider

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/BerriAI/litellm-go/pkg/types"
)

// CallType identifies the API surface a request targets. Fallbacks preserve
// the call type of the original request.
type CallType string

const (
	CallTypeChat           CallType = "completion"
	CallTypeTextCompletion CallType = "text_completion"
	CallTypeEmbedding      CallType = "embedding"
	CallTypeImage          CallType = "image_generation"
	CallTypeTranscription  CallType = "audio_transcription"
	CallTypeSpeech         CallType = "audio_speech"
	CallTypeModeration     CallType = "moderation"
	CallTypeRerank         CallType = "rerank"
	CallTypeResponses      CallType = "responses"
	CallTypeMessages       CallType = "anthropic_messages"
)

// ResponseTransformer rewrites a provider's raw streaming body into the
// OpenAI-style SSE the stream reader expects. Providers with binary wire
// formats (e.g. Bedrock's event stream) attach one to the request context.
type ResponseTransformer func(io.ReadCloser) io.ReadCloser

type responseTransformerCtxKey struct{}

// ResponseTransformerKey is the context key a provider's BuildRequest uses
// to attach a ResponseTransformer for the caller to apply.
var ResponseTransformerKey responseTransformerCtxKey

// TransformerFromRequest returns the ResponseTransformer attached to the
// request context, if any.
func TransformerFromRequest(req *http.Request) (ResponseTransformer, bool) {
	transformer, ok := req.Context().Value(ResponseTransformerKey).(ResponseTransformer)
	return transformer, ok
}

// Provider defines the interface that all LLM provider adapters must implement.
// It covers the full request lifecycle: building the upstream HTTP request,
// parsing buffered and streamed responses, and normalizing errors.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string

	// SupportedModels returns the list of models this provider can handle.
	SupportedModels() []string

	// SupportsModel checks if the provider supports the given model.
	SupportsModel(model string) bool

	// BuildRequest transforms a unified ChatRequest into a provider-specific
	// HTTP request: credential resolution, parameter mapping, URL completion
	// and body serialization.
	BuildRequest(ctx context.Context, req *types.ChatRequest) (*http.Request, error)

	// ParseResponse transforms a provider-specific response into a unified ChatResponse.
	// It handles response deserialization and format normalization.
	ParseResponse(resp *http.Response) (*types.ChatResponse, error)

	// ParseStreamChunk parses a single SSE chunk from a streaming response.
	// Returns nil, nil for keep-alive or empty chunks.
	ParseStreamChunk(data []byte) (*types.StreamChunk, error)

	// MapError converts a provider-specific error response into a standardized LLMError.
	MapError(statusCode int, body []byte) error
}

// Translator exposes the decomposed request-building steps of an adapter:
// credential validation, URL completion and parameter mapping. Concrete
// adapters implement it so each step can be exercised independently; the
// pipeline itself only depends on Provider.
type Translator interface {
	// ValidateEnvironment verifies the adapter has usable credentials and
	// returns the auth headers applied to upstream calls.
	ValidateEnvironment() (http.Header, error)

	// CompleteURL resolves the full upstream URL for a call type and model.
	CompleteURL(callType CallType, model string) (string, error)

	// MapParams translates OpenAI-shaped parameters into the provider dialect
	// in place. Unsupported parameters are dropped or clamped, never
	// forwarded blindly.
	MapParams(req *types.ChatRequest) error
}

// StreamHandler handles streaming responses from LLM providers.
// It provides an iterator-like interface for processing SSE events.
type StreamHandler interface {
	// Next returns the next chunk from the stream.
	// Returns io.EOF when the stream is complete.
	Next() (*types.StreamChunk, error)

	// Close releases resources associated with the stream.
	Close() error
}

// StreamDecoder is implemented by providers whose wire format is not SSE
// (e.g. the Bedrock event stream) and who decode the response body
// themselves.
type StreamDecoder interface {
	DecodeStream(resp *http.Response) (StreamHandler, error)
}

// EmbeddingProvider is implemented by providers that serve /embeddings.
type EmbeddingProvider interface {
	SupportEmbedding() bool
	BuildEmbeddingRequest(ctx context.Context, req *types.EmbeddingRequest) (*http.Request, error)
	ParseEmbeddingResponse(resp *http.Response) (*types.EmbeddingResponse, error)
}

// ImageProvider is implemented by providers that serve /images/generations.
type ImageProvider interface {
	BuildImageRequest(ctx context.Context, req *types.ImageGenerationRequest) (*http.Request, error)
	ParseImageResponse(resp *http.Response) (*types.ImageResponse, error)
}

// TranscriptionProvider is implemented by providers that serve /audio/transcriptions.
type TranscriptionProvider interface {
	BuildTranscriptionRequest(ctx context.Context, req *types.TranscriptionRequest) (*http.Request, error)
	ParseTranscriptionResponse(resp *http.Response) (*types.TranscriptionResponse, error)
}

// SpeechProvider is implemented by providers that serve /audio/speech.
type SpeechProvider interface {
	BuildSpeechRequest(ctx context.Context, req *types.SpeechRequest) (*http.Request, error)
	ParseSpeechResponse(resp *http.Response) (*types.SpeechResult, error)
}

// ModerationProvider is implemented by providers that serve /moderations.
type ModerationProvider interface {
	BuildModerationRequest(ctx context.Context, req *types.ModerationRequest) (*http.Request, error)
	ParseModerationResponse(resp *http.Response) (*types.ModerationResponse, error)
}

// RerankProvider is implemented by providers that serve /rerank.
type RerankProvider interface {
	BuildRerankRequest(ctx context.Context, req *types.RerankRequest) (*http.Request, error)
	ParseRerankResponse(resp *http.Response) (*types.RerankResponse, error)
}

// ResponsesProvider is implemented by providers with a native responses API.
// Providers without one are bridged through chat completions.
type ResponsesProvider interface {
	BuildResponsesRequest(ctx context.Context, req *types.ResponseRequest) (*http.Request, error)
	ParseResponsesResponse(resp *http.Response) (*types.ResponseResponse, error)
}

// Deployment represents a specific model deployment configuration.
// It contains all information needed to route requests to a provider.
type Deployment struct {
	ID            string            `json:"id"`
	ProviderName  string            `json:"provider_name"`
	ModelName     string            `json:"model_name"`
	ModelAlias    string            `json:"model_alias,omitempty"`
	BaseURL       string            `json:"base_url"`
	APIKey        string            `json:"-"` // Never serialize
	MaxConcurrent int               `json:"max_concurrent"`
	Timeout       int               `json:"timeout_seconds"`
	Priority      int               `json:"priority"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// TokenSource defines the interface for retrieving access tokens.
// It allows for dynamic token retrieval (e.g. OIDC, IAM) vs static API keys.
type TokenSource interface {
	// Token returns a valid access token or error.
	Token() (string, error)
}

// GetToken resolves the effective credential: a TokenSource wins over a
// static API key.
func GetToken(ts TokenSource, apiKey string) (string, error) {
	if ts != nil {
		return ts.Token()
	}
	return apiKey, nil
}

// Config contains provider-specific configuration.
type Config struct {
	Name          string
	Type          string
	APIKey        string
	TokenSource   TokenSource
	BaseURL       string
	Models        []string
	MaxConcurrent int
	Timeout       time.Duration
	Headers       map[string]string

	// AllowPrivateBaseURL permits loopback/private/link-local base URL
	// hosts, which ValidateBaseURL rejects otherwise.
	AllowPrivateBaseURL bool
}

// Factory creates provider instances from configuration.
type Factory func(cfg Config) (Provider, error)
