package api //nolint:revive // package name is intentional

import (
	"net/http"

	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
)

// AudioTranslations handles POST /v1/audio/translations requests.
func (h *ClientHandler) AudioTranslations(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, llmerrors.NewInvalidRequestError("", "", "audio translations are not enabled"))
}

// Batches handles POST /v1/batches requests.
func (h *ClientHandler) Batches(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, llmerrors.NewInvalidRequestError("", "", "batch endpoint is not enabled"))
}
