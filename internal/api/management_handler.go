package api //nolint:revive // package name is intentional

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/BerriAI/litellm-go/internal/auth"
)

// ManagementHandler serves the admin surface: invitation links for
// onboarding users into teams and organizations, and the dynamic SSO
// settings document. Routes registered here sit behind the management
// authorization middleware.
type ManagementHandler struct {
	invitations *auth.InvitationService
	invStore    auth.InvitationLinkStore
	sso         *auth.SSOConfigManager
	logger      *slog.Logger
}

// NewManagementHandler creates the admin-surface handler.
func NewManagementHandler(invitations *auth.InvitationService, invStore auth.InvitationLinkStore, sso *auth.SSOConfigManager, logger *slog.Logger) *ManagementHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManagementHandler{
		invitations: invitations,
		invStore:    invStore,
		sso:         sso,
		logger:      logger,
	}
}

// RegisterRoutes mounts the management endpoints on mux.
func (h *ManagementHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /invitation/new", h.CreateInvitation)
	mux.HandleFunc("POST /invitation/accept", h.AcceptInvitation)
	mux.HandleFunc("GET /invitation/info", h.InvitationInfo)
	mux.HandleFunc("GET /invitation/list", h.ListInvitations)
	mux.HandleFunc("POST /invitation/deactivate", h.DeactivateInvitation)
	mux.HandleFunc("POST /invitation/delete", h.DeleteInvitation)
	mux.HandleFunc("GET /sso/settings", h.GetSSOSettings)
	mux.HandleFunc("POST /sso/settings", h.UpdateSSOSettings)
}

// invitationCreateResponse carries the one-time raw token; the store
// only keeps its hash.
type invitationCreateResponse struct {
	ID             string     `json:"id"`
	Token          string     `json:"token"`
	TeamID         *string    `json:"team_id,omitempty"`
	OrganizationID *string    `json:"organization_id,omitempty"`
	Role           string     `json:"role,omitempty"`
	MaxUses        int        `json:"max_uses,omitempty"`
	MaxBudget      *float64   `json:"max_budget,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Description    string     `json:"description,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CreateInvitation handles POST /invitation/new.
func (h *ManagementHandler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	var req auth.CreateInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeManagementError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TeamID == nil && req.OrganizationID == nil {
		h.writeManagementError(w, http.StatusBadRequest, "team_id or organization_id is required")
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = managementCaller(r)
	}

	link, rawToken, err := h.invitations.CreateInvitationLink(r.Context(), &req)
	if err != nil {
		h.logger.Error("failed to create invitation link", "error", err)
		h.writeManagementError(w, http.StatusInternalServerError, "failed to create invitation link")
		return
	}

	h.writeManagementJSON(w, http.StatusCreated, invitationCreateResponse{
		ID:             link.ID,
		Token:          rawToken,
		TeamID:         link.TeamID,
		OrganizationID: link.OrganizationID,
		Role:           link.Role,
		MaxUses:        link.MaxUses,
		MaxBudget:      link.MaxBudget,
		ExpiresAt:      link.ExpiresAt,
		Description:    link.Description,
		CreatedAt:      link.CreatedAt,
	})
}

// AcceptInvitation handles POST /invitation/accept. The caller joins
// the team or organization the link targets.
func (h *ManagementHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req auth.AcceptInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeManagementError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" || req.UserID == "" {
		h.writeManagementError(w, http.StatusBadRequest, "token and user_id are required")
		return
	}

	result, err := h.invitations.AcceptInvitation(r.Context(), &req)
	if err != nil {
		h.logger.Error("failed to accept invitation", "error", err)
		h.writeManagementError(w, http.StatusInternalServerError, "failed to accept invitation")
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	h.writeManagementJSON(w, status, result)
}

// InvitationInfo handles GET /invitation/info?id=...
func (h *ManagementHandler) InvitationInfo(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeManagementError(w, http.StatusBadRequest, "id is required")
		return
	}

	link, err := h.invStore.GetInvitationLink(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load invitation link", "error", err, "invitation_id", id)
		h.writeManagementError(w, http.StatusInternalServerError, "failed to load invitation link")
		return
	}
	if link == nil {
		h.writeManagementError(w, http.StatusNotFound, "invitation not found")
		return
	}
	h.writeManagementJSON(w, http.StatusOK, link)
}

// ListInvitations handles GET /invitation/list with optional team_id,
// organization_id, created_by, is_active, limit and offset filters.
func (h *ManagementHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := auth.InvitationLinkFilter{}
	if v := q.Get("team_id"); v != "" {
		filter.TeamID = &v
	}
	if v := q.Get("organization_id"); v != "" {
		filter.OrganizationID = &v
	}
	if v := q.Get("created_by"); v != "" {
		filter.CreatedBy = &v
	}
	if v := q.Get("is_active"); v != "" {
		active := v == "true"
		filter.IsActive = &active
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	links, err := h.invitations.ListInvitations(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list invitation links", "error", err)
		h.writeManagementError(w, http.StatusInternalServerError, "failed to list invitation links")
		return
	}
	if links == nil {
		links = []*auth.InvitationLink{}
	}
	h.writeManagementJSON(w, http.StatusOK, map[string]any{"invitations": links})
}

// DeactivateInvitation handles POST /invitation/deactivate.
func (h *ManagementHandler) DeactivateInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invitationID(w, r)
	if !ok {
		return
	}
	if err := h.invitations.DeactivateInvitation(r.Context(), id); err != nil {
		h.logger.Error("failed to deactivate invitation", "error", err, "invitation_id", id)
		h.writeManagementError(w, http.StatusInternalServerError, "failed to deactivate invitation")
		return
	}
	h.writeManagementJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": false})
}

// DeleteInvitation handles POST /invitation/delete.
func (h *ManagementHandler) DeleteInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invitationID(w, r)
	if !ok {
		return
	}
	if err := h.invStore.DeleteInvitationLink(r.Context(), id); err != nil {
		h.logger.Error("failed to delete invitation", "error", err, "invitation_id", id)
		h.writeManagementError(w, http.StatusInternalServerError, "failed to delete invitation")
		return
	}
	h.writeManagementJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// GetSSOSettings handles GET /sso/settings.
func (h *ManagementHandler) GetSSOSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.sso.GetConfig(r.Context())
	if err != nil {
		h.logger.Error("failed to load sso settings", "error", err)
		h.writeManagementError(w, http.StatusInternalServerError, "failed to load sso settings")
		return
	}
	if cfg == nil {
		h.writeManagementJSON(w, http.StatusOK, map[string]any{"sso_settings": nil})
		return
	}
	h.writeManagementJSON(w, http.StatusOK, map[string]any{"sso_settings": cfg.SSOSettings})
}

// UpdateSSOSettings handles POST /sso/settings. The document is stored
// whole; partial updates are the caller's responsibility.
func (h *ManagementHandler) UpdateSSOSettings(w http.ResponseWriter, r *http.Request) {
	var settings auth.SSOSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		h.writeManagementError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := &auth.SSOConfig{SSOSettings: settings}
	if err := h.sso.UpdateConfig(r.Context(), cfg); err != nil {
		h.logger.Error("failed to save sso settings", "error", err)
		h.writeManagementError(w, http.StatusInternalServerError, "failed to save sso settings")
		return
	}
	h.writeManagementJSON(w, http.StatusOK, map[string]any{"sso_settings": cfg.SSOSettings})
}

func (h *ManagementHandler) invitationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		h.writeManagementError(w, http.StatusBadRequest, "id is required")
		return "", false
	}
	return req.ID, true
}

func (h *ManagementHandler) writeManagementJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode management response", "error", err)
	}
}

func (h *ManagementHandler) writeManagementError(w http.ResponseWriter, status int, msg string) {
	h.writeManagementJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Message: msg,
			Type:    "management_error",
			Code:    strconv.Itoa(status),
		},
	})
}

// managementCaller identifies the admin performing the action, for
// audit fields like created_by.
func managementCaller(r *http.Request) string {
	authCtx := auth.GetAuthContext(r.Context())
	if authCtx != nil {
		if authCtx.User != nil {
			return authCtx.User.ID
		}
		if authCtx.APIKey != nil {
			if authCtx.APIKey.UserID != nil && *authCtx.APIKey.UserID != "" {
				return *authCtx.APIKey.UserID
			}
			return authCtx.APIKey.ID
		}
	}
	return "system"
}
