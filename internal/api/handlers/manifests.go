package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dexploarer/forge-sub003/internal/api"
	"github.com/Dexploarer/forge-sub003/internal/api/middleware"
	"github.com/Dexploarer/forge-sub003/internal/domain"
)

type ManifestStore interface {
	Upsert(ctx context.Context, scope domain.ManifestScope, manifestType string, content []json.RawMessage) (*domain.PreviewManifest, error)
	Get(ctx context.Context, scope domain.ManifestScope, manifestType string) (*domain.PreviewManifest, error)
	List(ctx context.Context, scope domain.ManifestScope, limit int, cursor string) ([]*domain.PreviewManifest, string, error)
	Deactivate(ctx context.Context, id string) error
}

type ManifestsHandler struct {
	manifests ManifestStore
	users     UserSource
}

func NewManifestsHandler(manifests ManifestStore, users UserSource) *ManifestsHandler {
	return &ManifestsHandler{manifests: manifests, users: users}
}

type UpsertManifestRequest struct {
	ManifestType string            `json:"manifestType"`
	Scope        string            `json:"scope,omitempty"`
	Content      []json.RawMessage `json:"content"`
}

type ManifestResponse struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId,omitempty"`
	TeamID       string            `json:"teamId,omitempty"`
	ManifestType string            `json:"manifestType"`
	Content      []json.RawMessage `json:"content"`
	Version      int32             `json:"version"`
	IsActive     bool              `json:"isActive"`
	CreatedAt    string            `json:"createdAt"`
	UpdatedAt    string            `json:"updatedAt"`
}

type ManifestListResponse struct {
	Manifests []*ManifestResponse `json:"manifests"`
	Cursor    string              `json:"cursor,omitempty"`
}

// Upsert creates or version-bumps the active manifest for the caller's scope.
// Scope defaults to the caller's user scope; "team" targets the caller's team
// and "global" targets the CDN-published scope.
func (h *ManifestsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpsertManifestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ManifestType == "" {
		api.Error(w, http.StatusBadRequest, "manifestType is required")
		return
	}

	scope, ok := h.resolveScope(w, r, userID, req.Scope)
	if !ok {
		return
	}

	manifest, err := h.manifests.Upsert(r.Context(), scope, req.ManifestType, req.Content)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, manifestToResponse(manifest))
}

func (h *ManifestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	manifestType := chi.URLParam(r, "manifestType")
	scope, ok := h.resolveScope(w, r, userID, r.URL.Query().Get("scope"))
	if !ok {
		return
	}

	manifest, err := h.manifests.Get(r.Context(), scope, manifestType)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, manifestToResponse(manifest))
}

func (h *ManifestsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	scope, ok := h.resolveScope(w, r, userID, r.URL.Query().Get("scope"))
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	cursor := r.URL.Query().Get("cursor")

	manifests, nextCursor, err := h.manifests.List(r.Context(), scope, limit, cursor)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*ManifestResponse, len(manifests))
	for i, m := range manifests {
		responses[i] = manifestToResponse(m)
	}

	api.JSON(w, http.StatusOK, ManifestListResponse{
		Manifests: responses,
		Cursor:    nextCursor,
	})
}

func (h *ManifestsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.manifests.Deactivate(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// resolveScope maps the request's scope selector to a manifest scope. A team
// scope requires the caller to belong to a team. Writes an error response and
// returns false on failure.
func (h *ManifestsHandler) resolveScope(w http.ResponseWriter, r *http.Request, userID, selector string) (domain.ManifestScope, bool) {
	switch selector {
	case "", "user":
		return domain.UserScope(userID), true
	case "team":
		user, err := h.users.GetUser(r.Context(), userID)
		if err != nil {
			api.HandleError(w, err)
			return domain.ManifestScope{}, false
		}
		if user.TeamID == nil {
			api.Error(w, http.StatusBadRequest, "user does not belong to a team")
			return domain.ManifestScope{}, false
		}
		return domain.TeamScope(*user.TeamID), true
	case "global":
		return domain.GlobalScope(), true
	default:
		api.Error(w, http.StatusBadRequest, "invalid scope")
		return domain.ManifestScope{}, false
	}
}

func manifestToResponse(m *domain.PreviewManifest) *ManifestResponse {
	resp := &ManifestResponse{
		ID:           m.ID,
		ManifestType: m.ManifestType,
		Content:      m.Content,
		Version:      m.Version,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    m.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if m.UserID != nil {
		resp.UserID = *m.UserID
	}
	if m.TeamID != nil {
		resp.TeamID = *m.TeamID
	}
	return resp
}
