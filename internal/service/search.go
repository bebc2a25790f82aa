package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/Dexploarer/forge-sub003/internal/telemetry"
	"github.com/Dexploarer/forge-sub003/internal/vectorstore"
)

// DefaultSimilarityThreshold filters out weak matches when the caller does
// not pass an explicit threshold.
const DefaultSimilarityThreshold = 0.7

// DefaultSearchLimit caps results when the caller passes no limit
const DefaultSearchLimit = 10

// SearchVectorStore defines the vector store operations search needs
type SearchVectorStore interface {
	Search(ctx context.Context, params vectorstore.SearchParams) ([]vectorstore.ScoredRecord, error)
}

// SearchInput represents input for a semantic search
type SearchInput struct {
	Query       string
	ContentType string
	Limit       int
	Threshold   float32
	ProjectID   string
}

// SearchHit is a single semantic search result
type SearchHit struct {
	PointID     string
	ContentType domain.ContentType
	ContentID   string
	Score       float32
	SourceText  string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// SearchService answers natural-language queries against the vector store
type SearchService struct {
	client EmbeddingClient
	store  SearchVectorStore
}

// NewSearchService creates a new SearchService instance
func NewSearchService(client EmbeddingClient, store SearchVectorStore) *SearchService {
	return &SearchService{
		client: client,
		store:  store,
	}
}

// Search embeds the query and returns scored hits above the threshold,
// ordered by similarity descending
func (s *SearchService) Search(ctx context.Context, input SearchInput) ([]SearchHit, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		ContentType: input.ContentType,
		Operation:   "search",
	})
	defer span.End()

	if strings.TrimSpace(input.Query) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query is required")
	}

	contentType := domain.ContentTypeAll
	if input.ContentType != "" {
		parsed, err := domain.ParseSearchContentType(input.ContentType)
		if err != nil {
			return nil, err
		}
		contentType = parsed
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	threshold := input.Threshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	embedding, err := s.client.GenerateEmbedding(ctx, input.Query)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingProviderDown, "embedding provider unavailable", err)
	}

	records, err := s.store.Search(ctx, vectorstore.SearchParams{
		ContentType: contentType,
		Vector:      embedding,
		Limit:       limit,
		Threshold:   threshold,
		ProjectID:   input.ProjectID,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	hits := make([]SearchHit, 0, len(records))
	for _, r := range records {
		hits = append(hits, SearchHit{
			PointID:     r.ID,
			ContentType: r.Payload.ContentType,
			ContentID:   r.Payload.ContentID,
			Score:       r.Score,
			SourceText:  r.Payload.SourceText,
			Metadata:    r.Payload.Metadata,
			CreatedAt:   r.Payload.CreatedAt,
		})
	}
	return hits, nil
}

// BuildPromptContext renders hits as a plain-text block suitable for
// inclusion in an LLM prompt
func BuildPromptContext(hits []SearchHit) string {
	if len(hits) == 0 {
		return ""
	}

	var b strings.Builder
	for i, hit := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s %s] (relevance %.2f)\n%s", hit.ContentType, hit.ContentID, hit.Score, hit.SourceText)
	}
	return b.String()
}
