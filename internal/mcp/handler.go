package mcp

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/BerriAI/litellm-go/pkg/types"
)

// HTTPHandler provides HTTP endpoints for MCP management.
type HTTPHandler struct {
	manager Manager
}

// NewHTTPHandler creates a new HTTP handler for MCP management.
func NewHTTPHandler(manager Manager) *HTTPHandler {
	return &HTTPHandler{manager: manager}
}

// RegisterRoutes mounts the MCP endpoints on mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /mcp/clients", h.ListClients)
	mux.HandleFunc("POST /mcp/clients", h.AddClient)
	mux.HandleFunc("GET /mcp/clients/{id}", h.GetClient)
	mux.HandleFunc("DELETE /mcp/clients/{id}", h.RemoveClient)
	mux.HandleFunc("POST /mcp/clients/{id}/reconnect", h.ReconnectClient)
	mux.HandleFunc("GET /mcp/tools", h.ListTools)
	mux.HandleFunc("POST /mcp/tools/call", h.CallTool)
}

// ListClients handles GET /mcp/clients
func (h *HTTPHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients := h.manager.GetClients()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"clients": clients,
		"count":   len(clients),
	})
}

// GetClient handles GET /mcp/clients/{id}
func (h *HTTPHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	client, err := h.manager.GetClient(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(client)
}

// AddClient handles POST /mcp/clients
func (h *HTTPHandler) AddClient(w http.ResponseWriter, r *http.Request) {
	var cfg ClientConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.manager.AddClient(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "created",
		"id":     cfg.ID,
	})
}

// RemoveClient handles DELETE /mcp/clients/{id}
func (h *HTTPHandler) RemoveClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	if err := h.manager.RemoveClient(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReconnectClient handles POST /mcp/clients/{id}/reconnect
func (h *HTTPHandler) ReconnectClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	if err := h.manager.ReconnectClient(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "reconnected",
		"id":     id,
	})
}

// ListTools handles GET /mcp/tools. Tools are reported in their OpenAI
// function-schema form so clients can pass them straight to chat requests.
func (h *HTTPHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	tools := h.manager.GetAvailableTools(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"tools": tools,
		"count": len(tools),
	})
}

// CallTool handles POST /mcp/tools/call. The request names a tool and
// carries its arguments; the call is proxied to the owning MCP server.
func (h *HTTPHandler) CallTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	args := string(req.Arguments)
	if args == "" {
		args = "{}"
	}
	result, err := h.manager.ExecuteToolCall(r.Context(), types.ToolCall{
		ID:   "call_" + req.Name,
		Type: "function",
		Function: types.ToolCallFunction{
			Name:      req.Name,
			Arguments: args,
		},
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
