// Package transport owns the process-wide HTTP clients used for all
// upstream provider calls. No other component constructs clients; the
// pool limits here are the gateway's back-pressure floor.
package transport

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BerriAI/litellm-go/internal/version"
)

const (
	// DefaultTimeout bounds unary upstream calls end to end.
	DefaultTimeout = 10 * time.Minute

	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 20
	defaultIdleConnTimeout     = 90 * time.Second
)

var (
	sharedOnce   sync.Once
	sharedClient *http.Client

	streamOnce   sync.Once
	streamClient *http.Client
)

func newTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		Proxy:               http.ProxyFromEnvironment,
	}
}

// Shared returns the pooled client for unary request/response calls.
func Shared() *http.Client {
	sharedOnce.Do(func() {
		sharedClient = &http.Client{
			Transport: newTransport(),
			Timeout:   DefaultTimeout,
		}
	})
	return sharedClient
}

// Streaming returns the pooled client for streaming calls. It has no
// client-level timeout; stream lifetimes are bounded by context deadlines
// and the streaming duration cap.
func Streaming() *http.Client {
	streamOnce.Do(func() {
		streamClient = &http.Client{
			Transport: newTransport(),
		}
	})
	return streamClient
}

// NewClient returns a dedicated unary client with the standard pool
// limits and the given end-to-end timeout. Zero means no timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: newTransport(),
		Timeout:   timeout,
	}
}

// NewStreamingClient returns a dedicated streaming client. The timeout
// bounds only the wait for response headers; body reads are unbounded so
// long-lived streams are never cut by a client-level timeout.
func NewStreamingClient(headerTimeout time.Duration) *http.Client {
	tr := newTransport()
	tr.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: tr}
}

// UserAgent returns the upstream User-Agent, overridable via
// LITELLM_USER_AGENT.
func UserAgent() string {
	if ua := os.Getenv("LITELLM_USER_AGENT"); ua != "" {
		return ua
	}
	return "litellm/" + version.Version
}

// ProviderHeaderPrefix is prepended to mirrored upstream rate-limit
// headers so callers can distinguish gateway limits from provider limits.
const ProviderHeaderPrefix = "llm_provider-"

// MirrorRateLimitHeaders copies upstream x-ratelimit-* headers into dst
// verbatim and again under the llm_provider- prefix, and forwards
// Retry-After when present.
func MirrorRateLimitHeaders(dst, src http.Header) {
	if src == nil {
		return
	}
	for name, values := range src {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, "x-ratelimit-") {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
			dst.Add(ProviderHeaderPrefix+lower, v)
		}
	}
	if ra := src.Get("Retry-After"); ra != "" {
		dst.Set("Retry-After", ra)
	}
}
