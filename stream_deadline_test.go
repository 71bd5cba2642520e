package litellm

import (
	"io"
	"strings"
	"testing"
	"time"

	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
	"github.com/BerriAI/litellm-go/pkg/provider"
)

func TestStreamReader_DeadlineExceeded(t *testing.T) {
	body := io.NopCloser(strings.NewReader("data: {\"id\":\"c1\"}\n\n"))
	prov := &mockProvider{name: "test", models: []string{"test-model"}}
	deployment := &provider.Deployment{ID: "d1", ProviderName: "test", ModelName: "test-model"}

	stream := newStreamReader(body, prov, deployment, nil, time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, err := stream.Recv()
	if err == nil {
		t.Fatal("expected timeout error")
	}
	llmErr, ok := err.(*llmerrors.LLMError)
	if !ok {
		t.Fatalf("error type = %T, want *LLMError", err)
	}
	if llmErr.Type != "timeout_error" {
		t.Errorf("type = %q, want timeout_error", llmErr.Type)
	}

	if _, err := stream.Recv(); err != io.EOF {
		t.Errorf("closed stream Recv() error = %v, want io.EOF", err)
	}
}

func TestEnvStreamingDurationCap(t *testing.T) {
	t.Setenv("LITELLM_MAX_STREAMING_DURATION_SECONDS", "90")
	if got := envStreamingDurationCap(); got != 90*time.Second {
		t.Errorf("cap = %v, want 90s", got)
	}

	t.Setenv("LITELLM_MAX_STREAMING_DURATION_SECONDS", "not-a-number")
	if got := envStreamingDurationCap(); got != 0 {
		t.Errorf("cap = %v, want 0 for invalid value", got)
	}
}
