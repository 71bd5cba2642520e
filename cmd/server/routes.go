package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BerriAI/litellm-go/internal/config"
)

type dataHandler interface {
	HealthCheck(http.ResponseWriter, *http.Request)
	ChatCompletions(http.ResponseWriter, *http.Request)
	Completions(http.ResponseWriter, *http.Request)
	Embeddings(http.ResponseWriter, *http.Request)
	ListModels(http.ResponseWriter, *http.Request)
}

// responsesHandler is implemented by handlers that serve the Responses
// API in addition to the core data routes.
type responsesHandler interface {
	Responses(http.ResponseWriter, *http.Request)
}

// storedResponsesHandler is implemented by handlers that keep completed
// responses addressable by ID.
type storedResponsesHandler interface {
	RetrieveResponse(http.ResponseWriter, *http.Request)
	DeleteResponse(http.ResponseWriter, *http.Request)
	CancelResponse(http.ResponseWriter, *http.Request)
}

// extrasHandler is implemented by handlers that serve image generation,
// moderation and rerank.
type extrasHandler interface {
	ImagesGenerations(http.ResponseWriter, *http.Request)
	Moderations(http.ResponseWriter, *http.Request)
	Rerank(http.ResponseWriter, *http.Request)
}

// messagesHandler is implemented by handlers that translate the
// Anthropic Messages API onto the gateway.
type messagesHandler interface {
	Messages(http.ResponseWriter, *http.Request)
}

// modelInfoHandler is implemented by handlers that report per-deployment
// routing and pricing detail.
type modelInfoHandler interface {
	ModelInfo(http.ResponseWriter, *http.Request)
}

// compatibilityHandler is implemented by handlers that answer the
// OpenAI-compatible endpoints the gateway does not proxy yet.
type compatibilityHandler interface {
	AudioTranscriptions(http.ResponseWriter, *http.Request)
	AudioTranslations(http.ResponseWriter, *http.Request)
	AudioSpeech(http.ResponseWriter, *http.Request)
	Batches(http.ResponseWriter, *http.Request)
}

type managementRegistrar interface {
	RegisterRoutes(*http.ServeMux)
}

type muxes struct {
	Data  *http.ServeMux
	Admin *http.ServeMux
}

var errNilConfig = errors.New("config is required")

func buildMuxes(cfg *config.Config, handler dataHandler, mgmtHandler managementRegistrar, logger *slog.Logger, uiAssets fs.FS) (muxes, error) {
	if cfg == nil {
		return muxes{}, errNilConfig
	}

	dataMux := http.NewServeMux()
	registerDataRoutes(dataMux, handler, cfg)

	if cfg.Server.AdminPort > 0 {
		adminMux := http.NewServeMux()
		if mgmtHandler != nil {
			registerAdminRoutes(adminMux, mgmtHandler, logger, uiAssets, true)
		}
		return muxes{Data: dataMux, Admin: adminMux}, nil
	}

	if mgmtHandler != nil {
		registerAdminRoutes(dataMux, mgmtHandler, logger, uiAssets, true)
	}

	return muxes{Data: dataMux}, nil
}

func registerDataRoutes(mux *http.ServeMux, handler dataHandler, cfg *config.Config) {
	if handler == nil || mux == nil {
		return
	}

	// Health endpoints
	mux.HandleFunc("GET /health/live", handler.HealthCheck)
	mux.HandleFunc("GET /health/ready", handler.HealthCheck)
	mux.HandleFunc("GET /health/liveliness", handler.HealthCheck)
	mux.HandleFunc("GET /health/readiness", handler.HealthCheck)

	// OpenAI-compatible endpoints, also reachable without the /v1 prefix.
	mux.HandleFunc("POST /v1/chat/completions", handler.ChatCompletions)
	mux.HandleFunc("POST /chat/completions", handler.ChatCompletions)
	mux.HandleFunc("POST /v1/completions", handler.Completions)
	mux.HandleFunc("POST /completions", handler.Completions)
	mux.HandleFunc("POST /v1/embeddings", handler.Embeddings)
	mux.HandleFunc("POST /embeddings", handler.Embeddings)
	mux.HandleFunc("GET /v1/models", handler.ListModels)
	mux.HandleFunc("GET /models", handler.ListModels)

	if rh, ok := handler.(responsesHandler); ok {
		mux.HandleFunc("POST /v1/responses", rh.Responses)
		mux.HandleFunc("POST /responses", rh.Responses)
	}
	if sh, ok := handler.(storedResponsesHandler); ok {
		mux.HandleFunc("GET /v1/responses/{id}", sh.RetrieveResponse)
		mux.HandleFunc("DELETE /v1/responses/{id}", sh.DeleteResponse)
		mux.HandleFunc("POST /v1/responses/{id}/cancel", sh.CancelResponse)
	}
	if eh, ok := handler.(extrasHandler); ok {
		mux.HandleFunc("POST /v1/images/generations", eh.ImagesGenerations)
		mux.HandleFunc("POST /images/generations", eh.ImagesGenerations)
		mux.HandleFunc("POST /v1/moderations", eh.Moderations)
		mux.HandleFunc("POST /moderations", eh.Moderations)
		mux.HandleFunc("POST /v1/rerank", eh.Rerank)
		mux.HandleFunc("POST /v2/rerank", eh.Rerank)
		mux.HandleFunc("POST /rerank", eh.Rerank)
	}
	if mh, ok := handler.(messagesHandler); ok {
		mux.HandleFunc("POST /v1/messages", mh.Messages)
	}
	if ih, ok := handler.(modelInfoHandler); ok {
		mux.HandleFunc("GET /v1/model/info", ih.ModelInfo)
		mux.HandleFunc("GET /model/info", ih.ModelInfo)
	}
	if ch, ok := handler.(compatibilityHandler); ok {
		mux.HandleFunc("POST /v1/audio/transcriptions", ch.AudioTranscriptions)
		mux.HandleFunc("POST /v1/audio/translations", ch.AudioTranslations)
		mux.HandleFunc("POST /v1/audio/speech", ch.AudioSpeech)
		mux.HandleFunc("POST /v1/batches", ch.Batches)
	}

	// Metrics endpoint
	if cfg != nil && cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	if cfg != nil {
		mux.HandleFunc("GET /.well-known/litellm-ui-config", uiConfigHandler(cfg))
	}
}

func registerAdminRoutes(mux *http.ServeMux, mgmtHandler managementRegistrar, logger *slog.Logger, uiAssets fs.FS, enableUI bool) {
	if mux == nil || mgmtHandler == nil {
		return
	}

	mgmtHandler.RegisterRoutes(mux)

	if !enableUI || uiAssets == nil {
		return
	}

	uiFS, err := fs.Sub(uiAssets, "ui_assets")
	if err != nil {
		if logger != nil {
			logger.Error("failed to load UI assets", "error", err)
		}
		return
	}

	// Serve UI at root
	mux.Handle("/", http.FileServer(http.FS(uiFS)))
}
