package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/Dexploarer/forge-sub003/internal/telemetry"
	"github.com/Dexploarer/forge-sub003/internal/vectorstore"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderVectorStore defines the vector store operations the embedder needs
type EmbedderVectorStore interface {
	Upsert(ctx context.Context, key domain.ContentKey, vector []float32, payload vectorstore.Payload) error
	Get(ctx context.Context, key domain.ContentKey) (*vectorstore.Record, error)
	Delete(ctx context.Context, key domain.ContentKey) error
}

// EmbedInput is a single piece of content to embed
type EmbedInput struct {
	ContentType string
	ContentID   string
	Data        json.RawMessage
	ProjectID   string
	Metadata    map[string]string
}

// EmbedResult describes a stored embedding
type EmbedResult struct {
	PointID     string
	ContentType domain.ContentType
	ContentID   string
	SourceText  string
}

// BatchFailure records one item of a batch that could not be embedded
type BatchFailure struct {
	Index     int
	ContentID string
	Reason    string
}

// BatchResult summarizes a batch embed: Embedded counts stored items,
// Failures lists the rest.
type BatchResult struct {
	Embedded int
	Failures []BatchFailure
}

// EmbedderService turns game content records into vectors and keeps the
// vector store in sync. One record per (contentType, contentId); re-embedding
// overwrites in place.
type EmbedderService struct {
	client EmbeddingClient
	store  EmbedderVectorStore
}

// NewEmbedderService creates a new EmbedderService instance
func NewEmbedderService(client EmbeddingClient, store EmbedderVectorStore) *EmbedderService {
	return &EmbedderService{
		client: client,
		store:  store,
	}
}

// Embed generates and stores an embedding for a single content record
func (s *EmbedderService) Embed(ctx context.Context, input EmbedInput) (*EmbedResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "EmbedderService.Embed", telemetry.SpanAttributes{
		ContentType: input.ContentType,
		ContentID:   input.ContentID,
		Operation:   "embed",
	})
	defer span.End()

	contentType, err := domain.ParseContentType(input.ContentType)
	if err != nil {
		return nil, err
	}
	if input.ContentID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "contentId is required")
	}

	text, err := BuildEmbeddingText(contentType, input.Data)
	if err != nil {
		return nil, err
	}

	embedding, err := s.client.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingProviderDown, "embedding provider unavailable", err)
	}

	key := domain.ContentKey{Type: contentType, ID: input.ContentID}
	payload := vectorstore.Payload{
		ContentType: contentType,
		ContentID:   input.ContentID,
		SourceText:  text,
		ProjectID:   input.ProjectID,
		Metadata:    input.Metadata,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.Upsert(ctx, key, embedding, payload); err != nil {
		return nil, mapStoreError(err)
	}

	return &EmbedResult{
		PointID:     vectorstore.PointID(key),
		ContentType: contentType,
		ContentID:   input.ContentID,
		SourceText:  text,
	}, nil
}

// EmbedBatch embeds many records with one provider call. Items that fail
// validation are skipped and reported; a provider failure fails the whole
// batch since no vectors were produced.
func (s *EmbedderService) EmbedBatch(ctx context.Context, inputs []EmbedInput) (*BatchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "EmbedderService.EmbedBatch", telemetry.SpanAttributes{
		Operation: "embed_batch",
	})
	defer span.End()

	if len(inputs) == 0 {
		return &BatchResult{}, nil
	}

	result := &BatchResult{}

	type validItem struct {
		index int
		key   domain.ContentKey
		text  string
		input EmbedInput
	}
	valid := make([]validItem, 0, len(inputs))
	texts := make([]string, 0, len(inputs))

	for i, input := range inputs {
		contentType, err := domain.ParseContentType(input.ContentType)
		if err != nil {
			result.Failures = append(result.Failures, BatchFailure{
				Index:     i,
				ContentID: input.ContentID,
				Reason:    err.Error(),
			})
			continue
		}
		if input.ContentID == "" {
			result.Failures = append(result.Failures, BatchFailure{
				Index:  i,
				Reason: "contentId is required",
			})
			continue
		}
		text, err := BuildEmbeddingText(contentType, input.Data)
		if err != nil {
			result.Failures = append(result.Failures, BatchFailure{
				Index:     i,
				ContentID: input.ContentID,
				Reason:    err.Error(),
			})
			continue
		}
		valid = append(valid, validItem{
			index: i,
			key:   domain.ContentKey{Type: contentType, ID: input.ContentID},
			text:  text,
			input: input,
		})
		texts = append(texts, text)
	}

	if len(valid) == 0 {
		return result, nil
	}

	embeddings, err := s.client.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingProviderDown, "embedding provider unavailable", err)
	}

	now := time.Now().UTC()
	for i, item := range valid {
		payload := vectorstore.Payload{
			ContentType: item.key.Type,
			ContentID:   item.key.ID,
			SourceText:  item.text,
			ProjectID:   item.input.ProjectID,
			Metadata:    item.input.Metadata,
			CreatedAt:   now,
		}
		if err := s.store.Upsert(ctx, item.key, embeddings[i], payload); err != nil {
			result.Failures = append(result.Failures, BatchFailure{
				Index:     item.index,
				ContentID: item.key.ID,
				Reason:    mapStoreError(err).Error(),
			})
			continue
		}
		result.Embedded++
	}

	return result, nil
}

// Get returns the stored embedding record for a content key
func (s *EmbedderService) Get(ctx context.Context, contentType, contentID string) (*vectorstore.Record, error) {
	parsed, err := domain.ParseContentType(contentType)
	if err != nil {
		return nil, err
	}

	record, err := s.store.Get(ctx, domain.ContentKey{Type: parsed, ID: contentID})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return record, nil
}

// Delete removes a stored embedding. Deleting a record that does not exist
// returns ErrEmbeddingNotFound; the underlying store delete is idempotent, so
// the existence check happens here.
func (s *EmbedderService) Delete(ctx context.Context, contentType, contentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "EmbedderService.Delete", telemetry.SpanAttributes{
		ContentType: contentType,
		ContentID:   contentID,
		Operation:   "delete",
	})
	defer span.End()

	parsed, err := domain.ParseContentType(contentType)
	if err != nil {
		return err
	}

	key := domain.ContentKey{Type: parsed, ID: contentID}
	if _, err := s.store.Get(ctx, key); err != nil {
		return mapStoreError(err)
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return mapStoreError(err)
	}
	return nil
}

// BuildEmbeddingText concatenates a record's embeddable fields into the text
// sent to the embedding provider. Fields are taken in registry order; empty
// and non-string fields are skipped.
func BuildEmbeddingText(contentType domain.ContentType, data json.RawMessage) (string, error) {
	var record map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &record); err != nil {
			return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "content data is not a JSON object", err)
		}
	}

	var parts []string
	for _, field := range domain.EmbeddableFields(contentType) {
		value, ok := record[field]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				parts = append(parts, v)
			}
		case []any:
			var items []string
			for _, elem := range v {
				if s, ok := elem.(string); ok && s != "" {
					items = append(items, s)
				}
			}
			if len(items) > 0 {
				parts = append(parts, strings.Join(items, ", "))
			}
		}
	}

	if len(parts) == 0 {
		return "", domain.ErrEmptyEmbeddingText
	}

	return strings.Join(parts, "\n"), nil
}

// mapStoreError translates vector store failures into domain errors
func mapStoreError(err error) error {
	switch {
	case errors.Is(err, vectorstore.ErrNotFound):
		return domain.ErrEmbeddingNotFound
	case errors.Is(err, vectorstore.ErrStoreUnavailable):
		return domain.NewDomainErrorWithCause(domain.ErrCodeVectorStoreDown, "vector store unavailable", err)
	default:
		return fmt.Errorf("vector store operation failed: %w", err)
	}
}
