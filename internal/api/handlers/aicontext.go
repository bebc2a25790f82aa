package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Dexploarer/forge-sub003/internal/api"
	"github.com/Dexploarer/forge-sub003/internal/api/middleware"
	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/Dexploarer/forge-sub003/internal/service"
)

type PolicyStore interface {
	GetOrDefault(ctx context.Context, userID string) (*domain.RetrievalPolicy, error)
	Save(ctx context.Context, policy *domain.RetrievalPolicy) error
}

type ContextBuilder interface {
	BuildContext(ctx context.Context, input service.BuildContextInput) (*service.ContextResult, error)
}

type UserSource interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

type AIContextHandler struct {
	policies PolicyStore
	builder  ContextBuilder
	users    UserSource
}

func NewAIContextHandler(policies PolicyStore, builder ContextBuilder, users UserSource) *AIContextHandler {
	return &AIContextHandler{policies: policies, builder: builder, users: users}
}

type PreferencesResponse struct {
	UseOwnPreview     bool   `json:"useOwnPreview"`
	UseCdnContent     bool   `json:"useCdnContent"`
	UseTeamPreview    bool   `json:"useTeamPreview"`
	UseAllSubmissions bool   `json:"useAllSubmissions"`
	MaxContextItems   int    `json:"maxContextItems"`
	PreferRecent      bool   `json:"preferRecent"`
	UpdatedAt         string `json:"updatedAt,omitempty"`
}

type PreferencesRequest struct {
	UseOwnPreview     bool `json:"useOwnPreview"`
	UseCdnContent     bool `json:"useCdnContent"`
	UseTeamPreview    bool `json:"useTeamPreview"`
	UseAllSubmissions bool `json:"useAllSubmissions"`
	MaxContextItems   int  `json:"maxContextItems"`
	PreferRecent      bool `json:"preferRecent"`
}

type BuildRequest struct {
	Query     string   `json:"query,omitempty"`
	Types     []string `json:"types,omitempty"`
	ProjectID string   `json:"projectId,omitempty"`
	Threshold float32  `json:"threshold,omitempty"`
}

type BuildMetadata struct {
	UserID     string `json:"userId"`
	TeamID     string `json:"teamId,omitempty"`
	Query      string `json:"query,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

type BuildResponse struct {
	Context    []service.ContextItem `json:"context"`
	TotalItems int                   `json:"totalItems"`
	Sources    service.SourceCounts  `json:"sources"`
	Metadata   BuildMetadata         `json:"metadata"`
}

func (h *AIContextHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	policy, err := h.policies.GetOrDefault(r.Context(), userID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, policyToResponse(policy))
}

func (h *AIContextHandler) PutPreferences(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req PreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	policy := &domain.RetrievalPolicy{
		UserID:            userID,
		UseOwnPreview:     req.UseOwnPreview,
		UseCdnContent:     req.UseCdnContent,
		UseTeamPreview:    req.UseTeamPreview,
		UseAllSubmissions: req.UseAllSubmissions,
		MaxContextItems:   req.MaxContextItems,
		PreferRecent:      req.PreferRecent,
	}

	if err := h.policies.Save(r.Context(), policy); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, policyToResponse(policy))
}

// Build assembles a context payload for the authenticated user. The user's
// team scope is resolved server-side, never taken from the request.
func (h *AIContextHandler) Build(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	start := time.Now()
	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	contentTypes := make([]domain.ContentType, 0, len(req.Types))
	for _, t := range req.Types {
		parsed, err := domain.ParseContentType(t)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		contentTypes = append(contentTypes, parsed)
	}

	teamID := ""
	if user, err := h.users.GetUser(r.Context(), userID); err == nil && user.TeamID != nil {
		teamID = *user.TeamID
	}

	result, err := h.builder.BuildContext(r.Context(), service.BuildContextInput{
		UserID:       userID,
		Query:        req.Query,
		ContentTypes: contentTypes,
		TeamID:       teamID,
		ProjectID:    req.ProjectID,
		Threshold:    req.Threshold,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, BuildResponse{
		Context:    result.Context,
		TotalItems: result.TotalItems,
		Sources:    result.Sources,
		Metadata: BuildMetadata{
			UserID:     userID,
			TeamID:     teamID,
			Query:      req.Query,
			DurationMS: time.Since(start).Milliseconds(),
		},
	})
}

func policyToResponse(policy *domain.RetrievalPolicy) PreferencesResponse {
	updatedAt := ""
	if !policy.UpdatedAt.IsZero() {
		updatedAt = policy.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return PreferencesResponse{
		UseOwnPreview:     policy.UseOwnPreview,
		UseCdnContent:     policy.UseCdnContent,
		UseTeamPreview:    policy.UseTeamPreview,
		UseAllSubmissions: policy.UseAllSubmissions,
		MaxContextItems:   policy.MaxContextItems,
		PreferRecent:      policy.PreferRecent,
		UpdatedAt:         updatedAt,
	}
}
