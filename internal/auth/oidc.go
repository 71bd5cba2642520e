package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCConfig contains configuration for OIDC authentication.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Claim mapping. RoleClaim names the claim carrying roles or groups;
	// RolesMap translates claim values to gateway roles.
	RoleClaim        string
	RolesMap         map[string]string
	UseRoleHierarchy bool

	TeamIDJWTField  string
	TeamIDsJWTField string
	TeamAliasMap    map[string]string

	OrgIDJWTField string
	OrgAliasMap   map[string]string

	UserIDJWTField    string
	UserEmailJWTField string
	EndUserIDJWTField string

	DefaultRole   string
	DefaultTeamID string

	// Upsert behavior on login.
	UserIDUpsert bool
	TeamIDUpsert bool

	// UserAllowedEmailDomain restricts logins to one email domain.
	UserAllowedEmailDomain string

	// UserInfo endpoint enrichment.
	UserInfoEnabled  bool
	UserInfoCacheTTL int // seconds
}

// OIDCMiddleware creates a new OIDC authentication middleware.
func OIDCMiddleware(cfg OIDCConfig) (func(http.Handler) http.Handler, error) {
	return OIDCMiddlewareWithSync(cfg, nil)
}

// OIDCMiddlewareWithSync creates an OIDC middleware that additionally
// synchronizes user role, team and organization membership from JWT
// claims on each verified login. A nil syncer disables sync.
func OIDCMiddlewareWithSync(cfg OIDCConfig, syncer *UserTeamSyncer) (func(http.Handler) http.Handler, error) {
	provider, err := oidc.NewProvider(context.Background(), cfg.IssuerURL)
	if err != nil {
		return nil, err
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check if already authenticated
			if GetAuthContext(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			rawToken := strings.TrimPrefix(authHeader, "Bearer ")

			// API keys also arrive as bearer tokens; only JWT-shaped
			// tokens go through the verifier.
			if !isLikelyJWT(rawToken) {
				next.ServeHTTP(w, r)
				return
			}

			idToken, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				// Not a valid OIDC token, pass to next handler (might be API Key)
				next.ServeHTTP(w, r)
				return
			}

			var claims map[string]interface{}
			if err := idToken.Claims(&claims); err != nil {
				http.Error(w, "failed to parse claims", http.StatusInternalServerError)
				return
			}

			identity := ExtractOIDCIdentity(cfg, claims, idToken.Subject)

			if !IsEmailDomainAllowed(cfg, identity.Email) {
				http.Error(w, "email domain not allowed", http.StatusForbidden)
				return
			}

			if syncer != nil {
				syncReq := &SyncRequest{
					UserID:    identity.UserID,
					Email:     identity.User.Email,
					SSOUserID: identity.SSOUserID,
					Role:      string(identity.Role),
					TeamIDs:   identity.TeamIDs,
				}
				if identity.OrgID != "" {
					syncReq.OrganizationID = &identity.OrgID
				}
				if _, err := syncer.SyncUserTeams(r.Context(), syncReq); err != nil {
					// Sync failures must not block a verified login.
					slog.Warn("user-team sync failed",
						"user_id", identity.UserID, "error", err)
				}
			}

			authCtx := &AuthContext{
				User:     identity.User,
				UserRole: identity.Role,
			}

			ctx := context.WithValue(r.Context(), AuthContextKey, authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}
