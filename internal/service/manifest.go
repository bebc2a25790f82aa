package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/Dexploarer/forge-sub003/internal/telemetry"
)

// ManifestRepositoryInterface defines the repository interface for preview
// manifest persistence
type ManifestRepositoryInterface interface {
	FindActive(ctx context.Context, scope domain.ManifestScope, manifestType string) (*domain.PreviewManifest, error)
	UpsertActive(ctx context.Context, scope domain.ManifestScope, manifestType string, content []json.RawMessage, newID string) (*domain.PreviewManifest, error)
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context, scope domain.ManifestScope, limit int, cursor string) ([]*domain.PreviewManifest, string, error)
}

// ManifestJobQueue enqueues manifest records for background re-embedding
type ManifestJobQueue interface {
	Create(ctx context.Context, job *domain.EmbeddingJob) error
}

// ManifestPublisher pushes global manifests to the CDN bucket
type ManifestPublisher interface {
	PublishManifest(ctx context.Context, manifest *domain.PreviewManifest) (string, error)
}

// ManifestService manages scoped preview manifests. Upserting a manifest
// bumps its version, queues its records for re-embedding, and republishes to
// the CDN when the scope is global.
type ManifestService struct {
	repo      ManifestRepositoryInterface
	jobs      ManifestJobQueue
	publisher ManifestPublisher
	uuidGen   UUIDGenerator
}

// NewManifestService creates a new ManifestService instance
func NewManifestService(
	repo ManifestRepositoryInterface,
	jobs ManifestJobQueue,
	publisher ManifestPublisher,
) *ManifestService {
	return &ManifestService{
		repo:      repo,
		jobs:      jobs,
		publisher: publisher,
		uuidGen:   &DefaultUUIDGenerator{},
	}
}

// NewManifestServiceWithUUIDGen creates a new ManifestService with custom UUID generator (for testing)
func NewManifestServiceWithUUIDGen(
	repo ManifestRepositoryInterface,
	jobs ManifestJobQueue,
	publisher ManifestPublisher,
	uuidGen UUIDGenerator,
) *ManifestService {
	return &ManifestService{
		repo:      repo,
		jobs:      jobs,
		publisher: publisher,
		uuidGen:   uuidGen,
	}
}

// Upsert creates or version-bumps the active manifest for a scope
func (s *ManifestService) Upsert(ctx context.Context, scope domain.ManifestScope, manifestType string, content []json.RawMessage) (*domain.PreviewManifest, error) {
	ctx, span := telemetry.StartSpan(ctx, "ManifestService.Upsert", telemetry.SpanAttributes{
		Operation: "manifest_upsert",
	})
	defer span.End()

	if manifestType == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "manifestType is required")
	}

	manifest, err := s.repo.UpsertActive(ctx, scope, manifestType, content, s.uuidGen.NewString())
	if err != nil {
		return nil, err
	}

	s.enqueueEmbeddingJobs(ctx, manifest)

	if manifest.IsGlobal() && s.publisher != nil {
		if _, err := s.publisher.PublishManifest(ctx, manifest); err != nil {
			// CDN publish is best-effort; the manifest row is the source of truth
			log.Printf("manifest: cdn publish failed for %s: %v", manifest.ID, err)
		}
	}

	return manifest, nil
}

// Get returns the active manifest for a scope, or ErrManifestNotFound
func (s *ManifestService) Get(ctx context.Context, scope domain.ManifestScope, manifestType string) (*domain.PreviewManifest, error) {
	if manifestType == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "manifestType is required")
	}
	return s.repo.FindActive(ctx, scope, manifestType)
}

// List returns manifests for a scope with cursor pagination
func (s *ManifestService) List(ctx context.Context, scope domain.ManifestScope, limit int, cursor string) ([]*domain.PreviewManifest, string, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.List(ctx, scope, limit, cursor)
}

// Deactivate retires a manifest without deleting its row
func (s *ManifestService) Deactivate(ctx context.Context, id string) error {
	if id == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "manifest ID is required")
	}
	return s.repo.Deactivate(ctx, id)
}

// enqueueEmbeddingJobs queues one re-embedding job per manifest record.
// Failures are logged: the poll worker re-reads pending jobs, and a missed
// record is re-enqueued on the next manifest update.
func (s *ManifestService) enqueueEmbeddingJobs(ctx context.Context, manifest *domain.PreviewManifest) {
	if s.jobs == nil {
		return
	}

	contentType := manifest.ContentType()
	now := time.Now().UTC()
	for i, record := range manifest.Content {
		job := &domain.EmbeddingJob{
			ID:          s.uuidGen.NewString(),
			ManifestID:  manifest.ID,
			ContentType: contentType,
			ContentID:   recordContentID(record, manifest.ID, i),
			Payload:     record,
			Status:      domain.EmbeddingJobStatusPending,
			CreatedAt:   now,
		}
		if err := s.jobs.Create(ctx, job); err != nil {
			log.Printf("manifest: failed to enqueue embedding job for %s/%s: %v", contentType, job.ContentID, err)
		}
	}
}
