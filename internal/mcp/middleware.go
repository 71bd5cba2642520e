package mcp

import (
	"net/http"
)

// Middleware returns an HTTP middleware that injects the MCP manager into request context.
func Middleware(manager Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithManager(r.Context(), manager)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
