package api //nolint:revive // package name is intentional

import (
	"net/http"

	"github.com/goccy/go-json"

	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
)

// shouldStoreResponse reports whether a responses request opts into
// retrieval. The OpenAI default is store=true.
func shouldStoreResponse(store *bool) bool {
	return store == nil || *store
}

// RetrieveResponse handles GET /v1/responses/{id}.
func (h *ClientHandler) RetrieveResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "response id is required"))
		return
	}

	resp := h.responses.Get(r.Context(), id)
	if resp == nil {
		h.writeError(w, llmerrors.NewNotFoundError("", "", "response not found: "+id))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// DeleteResponse handles DELETE /v1/responses/{id}.
func (h *ClientHandler) DeleteResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "response id is required"))
		return
	}

	if h.responses.Get(r.Context(), id) == nil {
		h.writeError(w, llmerrors.NewNotFoundError("", "", "response not found: "+id))
		return
	}
	if err := h.responses.Delete(r.Context(), id); err != nil {
		h.logger.Error("failed to delete response", "error", err, "response_id", id)
		h.writeError(w, llmerrors.NewInternalError("", "", "failed to delete response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"id":      id,
		"object":  "response",
		"deleted": true,
	}); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// CancelResponse handles POST /v1/responses/{id}/cancel. The gateway
// executes responses synchronously, so a stored response has already
// completed and can no longer be cancelled.
func (h *ClientHandler) CancelResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "response id is required"))
		return
	}

	resp := h.responses.Get(r.Context(), id)
	if resp == nil {
		h.writeError(w, llmerrors.NewNotFoundError("", "", "response not found: "+id))
		return
	}

	h.writeError(w, llmerrors.NewInvalidRequestError("", resp.Model,
		"only responses created with background=true can be cancelled"))
}
