package api //nolint:revive // package name is intentional

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/BerriAI/litellm-go/internal/governance"
	"github.com/BerriAI/litellm-go/internal/metrics"
	"github.com/BerriAI/litellm-go/internal/observability"
	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
	"github.com/BerriAI/litellm-go/pkg/types"
)

// AudioTranscriptions handles POST /v1/audio/transcriptions requests.
// The request arrives as multipart form data with a file part.
func (h *ClientHandler) AudioTranscriptions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r, requestID := h.ensureRequestID(r)

	req, ok := h.parseTranscriptionForm(w, r)
	if !ok {
		return
	}

	payload := &observability.StandardLoggingPayload{
		RequestID:      requestID,
		CallType:       observability.CallTypeAudioTranscr,
		RequestedModel: req.Model,
		Model:          req.Model,
		StartTime:      start,
	}
	ctx, endSpan := h.startSpan(r.Context(), payload)
	defer endSpan()
	h.observePre(ctx, payload)

	if evalErr := h.evaluateGovernance(ctx, r, req.Model, "", nil, governance.CallTypeTranscription, 0); evalErr != nil {
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
	resp, err := client.Transcription(ctx, req)
	if err != nil {
		h.observePost(ctx, payload, err)
		h.logger.Error("transcription failed", "model", req.Model, "error", err)
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
		CallType:  governance.CallTypeTranscription,
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

// parseTranscriptionForm decodes the multipart body into a transcription
// request. On failure it writes the error response and reports false.
func (h *ClientHandler) parseTranscriptionForm(w http.ResponseWriter, r *http.Request) (*types.TranscriptionRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := r.ParseMultipartForm(h.maxBodySize); err != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "invalid multipart form: "+err.Error()))
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "file is required"))
		return nil, false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "failed to read file"))
		return nil, false
	}

	req := &types.TranscriptionRequest{
		File:           data,
		FileName:       header.Filename,
		Model:          r.FormValue("model"),
		Language:       r.FormValue("language"),
		Prompt:         r.FormValue("prompt"),
		ResponseFormat: r.FormValue("response_format"),
	}
	if raw := r.FormValue("temperature"); raw != "" {
		temp, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.writeError(w, llmerrors.NewInvalidRequestError("", req.Model, "invalid temperature"))
			return nil, false
		}
		req.Temperature = &temp
	}

	if err := req.Validate(); err != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", req.Model, err.Error()))
		return nil, false
	}
	return req, true
}

// AudioSpeech handles POST /v1/audio/speech requests. The response body
// is the raw synthesized audio.
func (h *ClientHandler) AudioSpeech(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r, requestID := h.ensureRequestID(r)

	body, ok := h.readLimitedBody(w, r)
	if !ok {
		return
	}

	var req types.SpeechRequest
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
		CallType:       observability.CallTypeAudioSpeech,
		RequestedModel: req.Model,
		Model:          req.Model,
		StartTime:      start,
	}
	ctx, endSpan := h.startSpan(r.Context(), payload)
	defer endSpan()
	h.observePre(ctx, payload)

	if evalErr := h.evaluateGovernance(ctx, r, req.Model, "", nil, governance.CallTypeSpeech, 0); evalErr != nil {
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
	resp, err := client.Speech(ctx, &req)
	if err != nil {
		h.observePost(ctx, payload, err)
		h.logger.Error("speech synthesis failed", "model", req.Model, "error", err)
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
		CallType:  governance.CallTypeSpeech,
		Start:     start,
		Latency:   latency,
	})
	h.observePost(ctx, payload, nil)

	setModelIDHeader(w, capture)
	w.Header().Set("Content-Type", resp.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Audio)))
	if _, err := w.Write(resp.Audio); err != nil {
		h.logger.Error("failed to write audio response", "error", err)
	}
}
