//go:build redis_e2e

package e2e

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BerriAI/litellm-go/tests/testutil"
)

// startRedisContainer runs a disposable Redis and returns its address.
func startRedisContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestRedisCache_IdenticalRequestsServedFromCache(t *testing.T) {
	redisAddr := startRedisContainer(t)

	mock := testutil.NewMockLLMServer()
	defer mock.Close()

	server, err := testutil.NewTestServer(
		testutil.WithMockProvider(mock.URL()),
		testutil.WithModels("gpt-4o-mock"),
		testutil.WithCache("redis", redisAddr),
	)
	require.NoError(t, err)
	defer server.Stop()
	require.NoError(t, server.Start())

	client := testutil.NewTestClient(server.URL())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req := &testutil.ChatCompletionRequest{
		Model: "gpt-4o-mock",
		Messages: []testutil.ChatMessage{
			{Role: "user", Content: "What is the capital of France?"},
		},
	}

	first, httpResp, err := client.ChatCompletion(ctx, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	testutil.AssertChatResponse(t, first)
	testutil.AssertRequestCount(t, mock, 1)

	second, httpResp, err := client.ChatCompletion(ctx, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	testutil.AssertChatResponse(t, second)

	// The second request must be served from Redis without touching the
	// provider again.
	testutil.AssertRequestCount(t, mock, 1)
}
