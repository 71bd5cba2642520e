package main

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/BerriAI/litellm-go/internal/auth"
	"github.com/BerriAI/litellm-go/internal/config"
)

// bootstrapTokenHeader carries the one-time admin token used to create
// the first management key before any exist.
const bootstrapTokenHeader = "X-Litellm-Bootstrap-Token" // #nosec G101 -- header name, not a credential.

// managementPathPrefixes identify admin-surface routes that require a
// management key regardless of the data-plane auth settings.
var managementPathPrefixes = []string{
	"/key/",
	"/team/",
	"/user/",
	"/organization/",
	"/spend/",
	"/audit/",
	"/invitation/",
}

// managementAuthzMiddleware restricts management routes to management
// keys, proxy admins, or callers presenting the bootstrap token. The
// bootstrap token works even with auth disabled so operators can seed
// the first key.
func managementAuthzMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isManagementPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if token := r.Header.Get(bootstrapTokenHeader); token != "" && cfg.Auth.BootstrapToken != "" &&
				subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Auth.BootstrapToken)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			authCtx := auth.GetAuthContext(r.Context())
			if authCtx == nil || (authCtx.APIKey == nil && authCtx.User == nil) {
				writeManagementError(w, http.StatusUnauthorized, "management routes require authentication")
				return
			}

			if authCtx.APIKey != nil && authCtx.APIKey.KeyType == auth.KeyTypeManagement {
				next.ServeHTTP(w, r)
				return
			}
			if authCtx.UserRole == auth.UserRoleProxyAdmin {
				next.ServeHTTP(w, r)
				return
			}

			writeManagementError(w, http.StatusForbidden, "management routes require a management key")
		})
	}
}

func isManagementPath(path string) bool {
	for _, prefix := range managementPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func writeManagementError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"message":"` + message + `","type":"authentication_error"}}`))
}
