package api //nolint:revive // package name is intentional

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/BerriAI/litellm-go/pkg/types"
)

func newStoredResponsesHandler(t *testing.T) *ClientHandler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	return NewClientHandler(nil, logger, nil)
}

func TestResponseStore_RoundTrip(t *testing.T) {
	store := newResponseStore(nil, 0)
	ctx := context.Background()

	resp := &types.ResponseResponse{
		ID:     "resp_abc",
		Object: "response",
		Model:  "gpt-4o",
		Status: "completed",
	}
	require.NoError(t, store.Put(ctx, resp))

	got := store.Get(ctx, "resp_abc")
	require.NotNil(t, got)
	require.Equal(t, "resp_abc", got.ID)
	require.Equal(t, "gpt-4o", got.Model)

	require.NoError(t, store.Delete(ctx, "resp_abc"))
	require.Nil(t, store.Get(ctx, "resp_abc"))
}

func TestResponseStore_SkipsEmptyID(t *testing.T) {
	store := newResponseStore(nil, 0)
	require.NoError(t, store.Put(context.Background(), &types.ResponseResponse{}))
	require.NoError(t, store.Put(context.Background(), nil))
}

func TestRetrieveResponse(t *testing.T) {
	handler := newStoredResponsesHandler(t)
	require.NoError(t, handler.responses.Put(context.Background(), &types.ResponseResponse{
		ID:     "resp_1",
		Object: "response",
		Status: "completed",
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/responses/resp_1", nil)
	req.SetPathValue("id", "resp_1")
	rec := httptest.NewRecorder()
	handler.RetrieveResponse(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.ResponseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "resp_1", resp.ID)
}

func TestRetrieveResponse_NotFound(t *testing.T) {
	handler := newStoredResponsesHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/responses/resp_missing", nil)
	req.SetPathValue("id", "resp_missing")
	rec := httptest.NewRecorder()
	handler.RetrieveResponse(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteResponse(t *testing.T) {
	handler := newStoredResponsesHandler(t)
	require.NoError(t, handler.responses.Put(context.Background(), &types.ResponseResponse{
		ID:     "resp_2",
		Object: "response",
	}))

	req := httptest.NewRequest(http.MethodDelete, "/v1/responses/resp_2", nil)
	req.SetPathValue("id", "resp_2")
	rec := httptest.NewRecorder()
	handler.DeleteResponse(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, true, resp["deleted"])
	require.Nil(t, handler.responses.Get(context.Background(), "resp_2"))
}

func TestCancelResponse_CompletedResponse(t *testing.T) {
	handler := newStoredResponsesHandler(t)
	require.NoError(t, handler.responses.Put(context.Background(), &types.ResponseResponse{
		ID:     "resp_3",
		Object: "response",
		Status: "completed",
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/responses/resp_3/cancel", nil)
	req.SetPathValue("id", "resp_3")
	rec := httptest.NewRecorder()
	handler.CancelResponse(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResponses_StoreOptOut(t *testing.T) {
	require.True(t, shouldStoreResponse(nil))
	yes, no := true, false
	require.True(t, shouldStoreResponse(&yes))
	require.False(t, shouldStoreResponse(&no))
}
