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
	"github.com/Dexploarer/forge-sub003/internal/service"
	"github.com/Dexploarer/forge-sub003/internal/vectorstore"
)

type EmbedderService interface {
	Embed(ctx context.Context, input service.EmbedInput) (*service.EmbedResult, error)
	EmbedBatch(ctx context.Context, inputs []service.EmbedInput) (*service.BatchResult, error)
	Get(ctx context.Context, contentType, contentID string) (*vectorstore.Record, error)
	Delete(ctx context.Context, contentType, contentID string) error
}

type EmbeddingSearcher interface {
	Search(ctx context.Context, input service.SearchInput) ([]service.SearchHit, error)
}

type EmbeddingsHandler struct {
	embedder EmbedderService
	search   EmbeddingSearcher
}

func NewEmbeddingsHandler(embedder EmbedderService, search EmbeddingSearcher) *EmbeddingsHandler {
	return &EmbeddingsHandler{embedder: embedder, search: search}
}

type SearchRequest struct {
	Query       string  `json:"query"`
	ContentType string  `json:"contentType,omitempty"`
	ProjectID   string  `json:"projectId,omitempty"`
	Limit       int     `json:"limit,omitempty"`
	Threshold   float32 `json:"threshold,omitempty"`
}

type SearchResultResponse struct {
	ID          string  `json:"id"`
	ContentType string  `json:"contentType"`
	ContentID   string  `json:"contentId"`
	Content     string  `json:"content"`
	Similarity  float32 `json:"similarity"`
	CreatedAt   string  `json:"createdAt,omitempty"`
}

type SearchResponse struct {
	Query       string                  `json:"query"`
	ContentType string                  `json:"contentType"`
	Results     []*SearchResultResponse `json:"results"`
	Count       int                     `json:"count"`
	Duration    int64                   `json:"duration"`
}

type BuildContextRequest struct {
	Query       string  `json:"query"`
	ContentType string  `json:"contentType,omitempty"`
	ProjectID   string  `json:"projectId,omitempty"`
	Limit       int     `json:"limit,omitempty"`
	Threshold   float32 `json:"threshold,omitempty"`
}

type ContextSourceResponse struct {
	Type       string  `json:"type"`
	ID         string  `json:"id"`
	Similarity float32 `json:"similarity"`
}

type BuildContextResponse struct {
	Query      string                   `json:"query"`
	HasContext bool                     `json:"hasContext"`
	Context    string                   `json:"context"`
	Sources    []*ContextSourceResponse `json:"sources"`
	Duration   int64                    `json:"duration"`
}

type EmbedRequest struct {
	ContentType string            `json:"contentType"`
	ContentID   string            `json:"contentId"`
	ProjectID   string            `json:"projectId,omitempty"`
	Data        json.RawMessage   `json:"data"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type EmbedResponse struct {
	Success     bool   `json:"success"`
	ContentType string `json:"contentType"`
	ContentID   string `json:"contentId"`
	EmbeddingID string `json:"embeddingId"`
	Duration    int64  `json:"duration"`
}

type BatchItem struct {
	ID       string            `json:"id"`
	Data     json.RawMessage   `json:"data"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type BatchRequest struct {
	ContentType string      `json:"contentType"`
	ProjectID   string      `json:"projectId,omitempty"`
	Items       []BatchItem `json:"items"`
}

type BatchFailureResponse struct {
	Index     int    `json:"index"`
	ContentID string `json:"contentId,omitempty"`
	Reason    string `json:"reason"`
}

type BatchResponse struct {
	Success     bool                    `json:"success"`
	ContentType string                  `json:"contentType"`
	Count       int                     `json:"count"`
	Failures    []*BatchFailureResponse `json:"failures,omitempty"`
	Duration    int64                   `json:"duration"`
}

// Search handles both GET (query params) and POST (JSON body) variants.
func (h *EmbeddingsHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	start := time.Now()
	var req SearchRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		q := r.URL.Query()
		req.Query = q.Get("q")
		req.ContentType = q.Get("type")
		req.ProjectID = q.Get("projectId")
		if limit := q.Get("limit"); limit != "" {
			if n, err := strconv.Atoi(limit); err == nil {
				req.Limit = n
			}
		}
		if threshold := q.Get("threshold"); threshold != "" {
			if f, err := strconv.ParseFloat(threshold, 32); err == nil {
				req.Threshold = float32(f)
			}
		}
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	hits, err := h.search.Search(r.Context(), service.SearchInput{
		Query:       req.Query,
		ContentType: req.ContentType,
		Limit:       req.Limit,
		Threshold:   req.Threshold,
		ProjectID:   req.ProjectID,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	results := make([]*SearchResultResponse, len(hits))
	for i, hit := range hits {
		createdAt := ""
		if !hit.CreatedAt.IsZero() {
			createdAt = hit.CreatedAt.UTC().Format(time.RFC3339Nano)
		}
		results[i] = &SearchResultResponse{
			ID:          hit.PointID,
			ContentType: string(hit.ContentType),
			ContentID:   hit.ContentID,
			Content:     hit.SourceText,
			Similarity:  hit.Score,
			CreatedAt:   createdAt,
		}
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "all"
	}

	api.JSON(w, http.StatusOK, SearchResponse{
		Query:       req.Query,
		ContentType: contentType,
		Results:     results,
		Count:       len(results),
		Duration:    time.Since(start).Milliseconds(),
	})
}

// BuildContext returns a prompt-ready text block for a query. Context building
// is best effort: a failed search produces an empty context, not an error.
func (h *EmbeddingsHandler) BuildContext(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	start := time.Now()
	var req BuildContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	hits, err := h.search.Search(r.Context(), service.SearchInput{
		Query:       req.Query,
		ContentType: req.ContentType,
		Limit:       req.Limit,
		Threshold:   req.Threshold,
		ProjectID:   req.ProjectID,
	})
	if err != nil {
		hits = nil
	}

	sources := make([]*ContextSourceResponse, len(hits))
	for i, hit := range hits {
		sources[i] = &ContextSourceResponse{
			Type:       string(hit.ContentType),
			ID:         hit.ContentID,
			Similarity: hit.Score,
		}
	}

	promptContext := service.BuildPromptContext(hits)

	api.JSON(w, http.StatusOK, BuildContextResponse{
		Query:      req.Query,
		HasContext: promptContext != "",
		Context:    promptContext,
		Sources:    sources,
		Duration:   time.Since(start).Milliseconds(),
	})
}

func (h *EmbeddingsHandler) Embed(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	start := time.Now()
	var req EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.embedder.Embed(r.Context(), service.EmbedInput{
		ContentType: req.ContentType,
		ContentID:   req.ContentID,
		Data:        req.Data,
		ProjectID:   req.ProjectID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, EmbedResponse{
		Success:     true,
		ContentType: string(result.ContentType),
		ContentID:   result.ContentID,
		EmbeddingID: result.PointID,
		Duration:    time.Since(start).Milliseconds(),
	})
}

func (h *EmbeddingsHandler) Batch(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	start := time.Now()
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Items) == 0 {
		api.Error(w, http.StatusBadRequest, "items are required")
		return
	}

	inputs := make([]service.EmbedInput, len(req.Items))
	for i, item := range req.Items {
		inputs[i] = service.EmbedInput{
			ContentType: req.ContentType,
			ContentID:   item.ID,
			Data:        item.Data,
			ProjectID:   req.ProjectID,
			Metadata:    item.Metadata,
		}
	}

	result, err := h.embedder.EmbedBatch(r.Context(), inputs)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	failures := make([]*BatchFailureResponse, len(result.Failures))
	for i, f := range result.Failures {
		failures[i] = &BatchFailureResponse{
			Index:     f.Index,
			ContentID: f.ContentID,
			Reason:    f.Reason,
		}
	}

	api.JSON(w, http.StatusOK, BatchResponse{
		Success:     len(result.Failures) == 0,
		ContentType: req.ContentType,
		Count:       result.Embedded,
		Failures:    failures,
		Duration:    time.Since(start).Milliseconds(),
	})
}

func (h *EmbeddingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	contentType := chi.URLParam(r, "contentType")
	contentID := chi.URLParam(r, "contentId")

	if err := h.embedder.Delete(r.Context(), contentType, contentID); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
