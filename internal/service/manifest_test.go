package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockManifestRepository is a mock for ManifestRepositoryInterface
type MockManifestRepository struct {
	mock.Mock
}

func (m *MockManifestRepository) FindActive(ctx context.Context, scope domain.ManifestScope, manifestType string) (*domain.PreviewManifest, error) {
	args := m.Called(ctx, scope, manifestType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PreviewManifest), args.Error(1)
}

func (m *MockManifestRepository) UpsertActive(ctx context.Context, scope domain.ManifestScope, manifestType string, content []json.RawMessage, newID string) (*domain.PreviewManifest, error) {
	args := m.Called(ctx, scope, manifestType, content, newID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PreviewManifest), args.Error(1)
}

func (m *MockManifestRepository) Deactivate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockManifestRepository) List(ctx context.Context, scope domain.ManifestScope, limit int, cursor string) ([]*domain.PreviewManifest, string, error) {
	args := m.Called(ctx, scope, limit, cursor)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]*domain.PreviewManifest), args.String(1), args.Error(2)
}

// MockJobQueue is a mock for ManifestJobQueue
type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) Create(ctx context.Context, job *domain.EmbeddingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// MockPublisher is a mock for ManifestPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishManifest(ctx context.Context, manifest *domain.PreviewManifest) (string, error) {
	args := m.Called(ctx, manifest)
	return args.String(0), args.Error(1)
}

func TestManifestService_Upsert_EnqueuesJobs(t *testing.T) {
	repo := new(MockManifestRepository)
	jobs := new(MockJobQueue)
	uuidGen := new(MockUUIDGen)
	svc := NewManifestServiceWithUUIDGen(repo, jobs, nil, uuidGen)

	userID := "user-a"
	scope := domain.UserScope(userID)
	content := []json.RawMessage{
		json.RawMessage(`{"id":"guard","name":"Guard"}`),
		json.RawMessage(`{"id":"smith","name":"Smith"}`),
	}
	stored := &domain.PreviewManifest{
		ID:           "m-1",
		UserID:       &userID,
		ManifestType: "npcs",
		Content:      content,
		Version:      2,
		IsActive:     true,
		UpdatedAt:    time.Now().UTC(),
	}

	uuidGen.On("NewString").Return("uuid-fixed")
	repo.On("UpsertActive", mock.Anything, scope, "npcs", content, "uuid-fixed").Return(stored, nil)
	jobs.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.EmbeddingJob) bool {
		return j.ManifestID == "m-1" && j.ContentType == domain.ContentTypeNPC &&
			j.Status == domain.EmbeddingJobStatusPending
	})).Return(nil).Twice()

	manifest, err := svc.Upsert(context.Background(), scope, "npcs", content)

	require.NoError(t, err)
	assert.Equal(t, int32(2), manifest.Version)
	jobs.AssertExpectations(t)
}

func TestManifestService_Upsert_GlobalPublishesToCDN(t *testing.T) {
	repo := new(MockManifestRepository)
	jobs := new(MockJobQueue)
	publisher := new(MockPublisher)
	uuidGen := new(MockUUIDGen)
	svc := NewManifestServiceWithUUIDGen(repo, jobs, publisher, uuidGen)

	scope := domain.GlobalScope()
	content := []json.RawMessage{json.RawMessage(`{"id":"era-1","title":"The Sundering"}`)}
	stored := &domain.PreviewManifest{
		ID:           "m-global",
		ManifestType: "lore",
		Content:      content,
		Version:      1,
		IsActive:     true,
	}

	uuidGen.On("NewString").Return("uuid-fixed")
	repo.On("UpsertActive", mock.Anything, scope, "lore", content, "uuid-fixed").Return(stored, nil)
	jobs.On("Create", mock.Anything, mock.AnythingOfType("*domain.EmbeddingJob")).Return(nil)
	publisher.On("PublishManifest", mock.Anything, stored).Return("https://cdn.example/manifests/m-global.json", nil)

	_, err := svc.Upsert(context.Background(), scope, "lore", content)

	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestManifestService_Upsert_UserScopeSkipsCDN(t *testing.T) {
	repo := new(MockManifestRepository)
	jobs := new(MockJobQueue)
	publisher := new(MockPublisher)
	uuidGen := new(MockUUIDGen)
	svc := NewManifestServiceWithUUIDGen(repo, jobs, publisher, uuidGen)

	userID := "user-a"
	scope := domain.UserScope(userID)
	stored := &domain.PreviewManifest{
		ID:           "m-1",
		UserID:       &userID,
		ManifestType: "npcs",
		Version:      1,
		IsActive:     true,
	}

	uuidGen.On("NewString").Return("uuid-fixed")
	repo.On("UpsertActive", mock.Anything, scope, "npcs", mock.Anything, "uuid-fixed").Return(stored, nil)

	_, err := svc.Upsert(context.Background(), scope, "npcs", nil)

	require.NoError(t, err)
	publisher.AssertNotCalled(t, "PublishManifest")
}

func TestManifestService_Upsert_CDNFailureIsNotFatal(t *testing.T) {
	repo := new(MockManifestRepository)
	publisher := new(MockPublisher)
	uuidGen := new(MockUUIDGen)
	svc := NewManifestServiceWithUUIDGen(repo, nil, publisher, uuidGen)

	scope := domain.GlobalScope()
	stored := &domain.PreviewManifest{ID: "m-global", ManifestType: "lore", Version: 1, IsActive: true}

	uuidGen.On("NewString").Return("uuid-fixed")
	repo.On("UpsertActive", mock.Anything, scope, "lore", mock.Anything, "uuid-fixed").Return(stored, nil)
	publisher.On("PublishManifest", mock.Anything, stored).Return("", errors.New("bucket unreachable"))

	manifest, err := svc.Upsert(context.Background(), scope, "lore", nil)

	require.NoError(t, err)
	assert.Equal(t, "m-global", manifest.ID)
}

func TestManifestService_Upsert_MissingType(t *testing.T) {
	svc := NewManifestService(new(MockManifestRepository), nil, nil)

	manifest, err := svc.Upsert(context.Background(), domain.GlobalScope(), "", nil)

	assert.Nil(t, manifest)
	assert.Error(t, err)
}

func TestManifestService_Get_NotFound(t *testing.T) {
	repo := new(MockManifestRepository)
	svc := NewManifestService(repo, nil, nil)

	scope := domain.UserScope("user-a")
	repo.On("FindActive", mock.Anything, scope, "npcs").Return(nil, domain.ErrManifestNotFound)

	manifest, err := svc.Get(context.Background(), scope, "npcs")

	assert.Nil(t, manifest)
	assert.Equal(t, domain.ErrManifestNotFound, err)
}

func TestManifestService_Deactivate_MissingID(t *testing.T) {
	svc := NewManifestService(new(MockManifestRepository), nil, nil)

	err := svc.Deactivate(context.Background(), "")

	assert.Error(t, err)
}
