package auth

import "strings"

// apiKeyPrefixes are bearer-token prefixes that identify gateway API
// keys; these never go through the OIDC verifier.
var apiKeyPrefixes = []string{"sk-", "pk-", "api-", "key-", "ak-", "test-"}

// isLikelyJWT reports whether a bearer token is shaped like a JWT
// (three non-empty dot-separated segments) rather than an API key.
func isLikelyJWT(token string) bool {
	if token == "" {
		return false
	}
	for _, prefix := range apiKeyPrefixes {
		if strings.HasPrefix(token, prefix) {
			return false
		}
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
	}
	return true
}

type oidcUserInfo struct {
	UserID string
	Email  string
}

func extractUserInfo(cfg OIDCConfig, claims map[string]interface{}, subject string) oidcUserInfo {
	userID := extractStringClaim(claims, cfg.UserIDJWTField)
	if userID == "" {
		userID = subject
	}

	emailField := cfg.UserEmailJWTField
	if emailField == "" {
		emailField = "email"
	}
	email := extractStringClaim(claims, emailField)
	if userID == "" {
		userID = email
	}

	return oidcUserInfo{UserID: userID, Email: email}
}

// roleRank orders gateway roles from least to most privileged for
// hierarchy resolution.
var roleRank = map[string]int{
	string(UserRoleInternalUser): 1,
	string(UserRoleTeam):         2,
	string(UserRoleOrgAdmin):     3,
	string(UserRoleProxyAdmin):   4,
}

// extractRole resolves the gateway role from the configured role claim.
// Claim values pass through RolesMap; with UseRoleHierarchy the most
// privileged mapped role wins, otherwise the first mapped value does.
func extractRole(cfg OIDCConfig, claims map[string]interface{}) string {
	roleClaim := cfg.RoleClaim
	if roleClaim == "" {
		roleClaim = "roles"
	}

	candidates := extractStringSliceClaim(claims, roleClaim)
	if len(candidates) == 0 {
		if v := extractStringClaim(claims, roleClaim); v != "" {
			candidates = []string{v}
		}
	}

	best := ""
	for _, candidate := range candidates {
		mapped := candidate
		if len(cfg.RolesMap) > 0 {
			var ok bool
			mapped, ok = cfg.RolesMap[candidate]
			if !ok {
				continue
			}
		}
		if !cfg.UseRoleHierarchy {
			return mapped
		}
		if roleRank[mapped] > roleRank[best] {
			best = mapped
		}
	}
	if best != "" {
		return best
	}
	if cfg.DefaultRole != "" {
		return cfg.DefaultRole
	}
	return string(UserRoleInternalUser)
}

// extractTeamIDs collects team IDs from the plural and singular team
// claims, translating aliases where configured.
func extractTeamIDs(cfg OIDCConfig, claims map[string]interface{}) []string {
	var teamIDs []string
	seen := make(map[string]bool)

	add := func(id string) {
		if id == "" {
			return
		}
		if alias, ok := cfg.TeamAliasMap[id]; ok {
			id = alias
		}
		if !seen[id] {
			seen[id] = true
			teamIDs = append(teamIDs, id)
		}
	}

	for _, id := range extractStringSliceClaim(claims, cfg.TeamIDsJWTField) {
		add(id)
	}
	add(extractStringClaim(claims, cfg.TeamIDJWTField))

	return teamIDs
}

func extractOrgID(cfg OIDCConfig, claims map[string]interface{}) string {
	orgID := extractStringClaim(claims, cfg.OrgIDJWTField)
	if orgID == "" {
		return ""
	}
	if alias, ok := cfg.OrgAliasMap[orgID]; ok {
		return alias
	}
	return orgID
}

// extractStringClaim reads a claim as a string, following dotted paths
// into nested objects (e.g. "resource_access.account.id").
func extractStringClaim(claims map[string]interface{}, field string) string {
	if field == "" {
		return ""
	}
	val := lookupClaim(claims, field)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

func extractStringSliceClaim(claims map[string]interface{}, field string) []string {
	if field == "" {
		return nil
	}
	switch v := lookupClaim(claims, field).(type) {
	case []string:
		return v
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	}
	return nil
}

func lookupClaim(claims map[string]interface{}, field string) interface{} {
	if claims == nil {
		return nil
	}
	if v, ok := claims[field]; ok {
		return v
	}
	parts := strings.Split(field, ".")
	if len(parts) < 2 {
		return nil
	}
	var current interface{} = claims
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
