package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/BerriAI/litellm-go/pkg/types"
)

func newToolsManager() *MockManager {
	manager := NewMockManager()
	manager.AddMockClient("client-1", "Client 1", ConnectionTypeHTTP, []types.Tool{
		{
			Type: "function",
			Function: types.ToolFunction{
				Name: "tool_one",
			},
		},
		{
			Type: "function",
			Function: types.ToolFunction{
				Name: "tool_two",
			},
		},
	})
	return manager
}

func TestHTTPHandlerListTools(t *testing.T) {
	handler := NewHTTPHandler(newToolsManager())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := httptest.NewRequest("GET", "/mcp/tools", nil)
	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, req)

	if recorder.Code != 200 {
		t.Fatalf("status code = %d, want %d", recorder.Code, 200)
	}

	var payload struct {
		Tools []types.Tool `json:"tools"`
		Count int          `json:"count"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if payload.Count != 2 {
		t.Fatalf("count = %d, want %d", payload.Count, 2)
	}

	toolSet := make(map[string]bool)
	for _, tool := range payload.Tools {
		toolSet[tool.Function.Name] = true
	}

	if !toolSet["tool_one"] || !toolSet["tool_two"] {
		t.Fatalf("tools = %v, want tool_one and tool_two", payload.Tools)
	}
}

func TestHTTPHandlerCallTool(t *testing.T) {
	manager := newToolsManager()
	manager.SetExecuteFunc(func(_ context.Context, toolCall types.ToolCall) (*ToolExecutionResult, error) {
		return &ToolExecutionResult{
			ToolCallID: toolCall.ID,
			ToolName:   toolCall.Function.Name,
			Content:    "executed " + toolCall.Function.Arguments,
		}, nil
	})

	handler := NewHTTPHandler(manager)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := httptest.NewRequest("POST", "/mcp/tools/call",
		strings.NewReader(`{"name":"tool_one","arguments":{"city":"paris"}}`))
	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, req)

	if recorder.Code != 200 {
		t.Fatalf("status code = %d, want %d", recorder.Code, 200)
	}

	var result ToolExecutionResult
	if err := json.NewDecoder(recorder.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.ToolName != "tool_one" {
		t.Fatalf("tool name = %q, want tool_one", result.ToolName)
	}
	if !strings.Contains(result.Content, "paris") {
		t.Fatalf("content = %q, want arguments forwarded", result.Content)
	}
}

func TestHTTPHandlerCallTool_NameRequired(t *testing.T) {
	handler := NewHTTPHandler(newToolsManager())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := httptest.NewRequest("POST", "/mcp/tools/call", strings.NewReader(`{}`))
	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", recorder.Code, http.StatusBadRequest)
	}
}
