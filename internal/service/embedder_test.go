package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/Dexploarer/forge-sub003/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEmbeddingClient is a mock for EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

// MockVectorStore is a mock for the vector store client
type MockVectorStore struct {
	mock.Mock
}

func (m *MockVectorStore) Upsert(ctx context.Context, key domain.ContentKey, vector []float32, payload vectorstore.Payload) error {
	args := m.Called(ctx, key, vector, payload)
	return args.Error(0)
}

func (m *MockVectorStore) Get(ctx context.Context, key domain.ContentKey) (*vectorstore.Record, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*vectorstore.Record), args.Error(1)
}

func (m *MockVectorStore) Delete(ctx context.Context, key domain.ContentKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockVectorStore) Search(ctx context.Context, params vectorstore.SearchParams) ([]vectorstore.ScoredRecord, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorstore.ScoredRecord), args.Error(1)
}

func npcData(t *testing.T) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"name":        "Captain Mara Voss",
		"description": "A stern harbor guard captain",
		"personality": "Disciplined, suspicious of outsiders",
		"location":    "Saltmere Docks",
	})
	require.NoError(t, err)
	return data
}

func TestBuildEmbeddingText_FieldOrder(t *testing.T) {
	data, err := json.Marshal(map[string]any{
		"location":    "Saltmere Docks",
		"name":        "Captain Mara Voss",
		"description": "A stern harbor guard captain",
	})
	require.NoError(t, err)

	text, err := BuildEmbeddingText(domain.ContentTypeNPC, data)

	require.NoError(t, err)
	// Registry order, not JSON key order
	assert.Equal(t, "Captain Mara Voss\nA stern harbor guard captain\nSaltmere Docks", text)
}

func TestBuildEmbeddingText_SkipsEmptyFields(t *testing.T) {
	data, err := json.Marshal(map[string]any{
		"name":        "Ash Blade",
		"description": "",
		"effect":      "Burns on hit",
	})
	require.NoError(t, err)

	text, err := BuildEmbeddingText(domain.ContentTypeItem, data)

	require.NoError(t, err)
	assert.Equal(t, "Ash Blade\nBurns on hit", text)
}

func TestBuildEmbeddingText_StringArrays(t *testing.T) {
	data, err := json.Marshal(map[string]any{
		"name": "Harbor Tileset",
		"tags": []string{"dock", "water", "medieval"},
	})
	require.NoError(t, err)

	text, err := BuildEmbeddingText(domain.ContentTypeAsset, data)

	require.NoError(t, err)
	assert.Equal(t, "Harbor Tileset\ndock, water, medieval", text)
}

func TestBuildEmbeddingText_AllFieldsEmpty(t *testing.T) {
	data := json.RawMessage(`{"irrelevant": "value"}`)

	text, err := BuildEmbeddingText(domain.ContentTypeNPC, data)

	assert.Empty(t, text)
	assert.Equal(t, domain.ErrEmptyEmbeddingText, err)
}

func TestBuildEmbeddingText_InvalidJSON(t *testing.T) {
	_, err := BuildEmbeddingText(domain.ContentTypeNPC, json.RawMessage(`[1,2,3]`))

	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
}

func TestEmbedderService_Embed_Success(t *testing.T) {
	mockClient := new(MockEmbeddingClient)
	mockStore := new(MockVectorStore)
	svc := NewEmbedderService(mockClient, mockStore)

	ctx := context.Background()
	embedding := make([]float32, 1536)
	key := domain.ContentKey{Type: domain.ContentTypeNPC, ID: "npc-1"}

	mockClient.On("GenerateEmbedding", mock.Anything, mock.AnythingOfType("string")).Return(embedding, nil)
	mockStore.On("Upsert", mock.Anything, key, embedding, mock.AnythingOfType("vectorstore.Payload")).Return(nil)

	result, err := svc.Embed(ctx, EmbedInput{
		ContentType: "npc",
		ContentID:   "npc-1",
		Data:        npcData(t),
	})

	require.NoError(t, err)
	assert.Equal(t, vectorstore.PointID(key), result.PointID)
	assert.Equal(t, domain.ContentTypeNPC, result.ContentType)
	assert.Contains(t, result.SourceText, "Captain Mara Voss")
	mockClient.AssertExpectations(t)
	mockStore.AssertExpectations(t)
}

func TestEmbedderService_Embed_InvalidContentType(t *testing.T) {
	svc := NewEmbedderService(new(MockEmbeddingClient), new(MockVectorStore))

	result, err := svc.Embed(context.Background(), EmbedInput{
		ContentType: "spaceship",
		ContentID:   "s-1",
		Data:        json.RawMessage(`{"name":"x"}`),
	})

	assert.Nil(t, result)
	assert.Equal(t, domain.ErrInvalidContentType, err)
}

func TestEmbedderService_Embed_MissingContentID(t *testing.T) {
	svc := NewEmbedderService(new(MockEmbeddingClient), new(MockVectorStore))

	result, err := svc.Embed(context.Background(), EmbedInput{
		ContentType: "npc",
		Data:        npcData(t),
	})

	assert.Nil(t, result)
	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
}

func TestEmbedderService_Embed_ProviderDown(t *testing.T) {
	mockClient := new(MockEmbeddingClient)
	mockStore := new(MockVectorStore)
	svc := NewEmbedderService(mockClient, mockStore)

	mockClient.On("GenerateEmbedding", mock.Anything, mock.AnythingOfType("string")).
		Return(nil, errors.New("connection refused"))

	result, err := svc.Embed(context.Background(), EmbedInput{
		ContentType: "npc",
		ContentID:   "npc-1",
		Data:        npcData(t),
	})

	assert.Nil(t, result)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeEmbeddingProviderDown, domainErr.Code)
}

func TestEmbedderService_Embed_StoreUnavailable(t *testing.T) {
	mockClient := new(MockEmbeddingClient)
	mockStore := new(MockVectorStore)
	svc := NewEmbedderService(mockClient, mockStore)

	mockClient.On("GenerateEmbedding", mock.Anything, mock.AnythingOfType("string")).
		Return(make([]float32, 1536), nil)
	mockStore.On("Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(vectorstore.ErrStoreUnavailable)

	_, err := svc.Embed(context.Background(), EmbedInput{
		ContentType: "npc",
		ContentID:   "npc-1",
		Data:        npcData(t),
	})

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeVectorStoreDown, domainErr.Code)
}

func TestEmbedderService_EmbedBatch_MixedValidity(t *testing.T) {
	mockClient := new(MockEmbeddingClient)
	mockStore := new(MockVectorStore)
	svc := NewEmbedderService(mockClient, mockStore)

	inputs := []EmbedInput{
		{ContentType: "npc", ContentID: "npc-1", Data: npcData(t)},
		{ContentType: "npc", ContentID: "npc-2", Data: json.RawMessage(`{}`)}, // no embeddable text
		{ContentType: "npc", ContentID: "npc-3", Data: npcData(t)},
	}

	embeddings := [][]float32{make([]float32, 1536), make([]float32, 1536)}
	mockClient.On("GenerateEmbeddings", mock.Anything, mock.AnythingOfType("[]string")).Return(embeddings, nil)
	mockStore.On("Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()

	result, err := svc.EmbedBatch(context.Background(), inputs)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Embedded)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Index)
	assert.Equal(t, "npc-2", result.Failures[0].ContentID)
	mockStore.AssertExpectations(t)
}

func TestEmbedderService_EmbedBatch_ProviderFailureFailsWholeBatch(t *testing.T) {
	mockClient := new(MockEmbeddingClient)
	mockStore := new(MockVectorStore)
	svc := NewEmbedderService(mockClient, mockStore)

	mockClient.On("GenerateEmbeddings", mock.Anything, mock.AnythingOfType("[]string")).
		Return(nil, errors.New("rate limited"))

	result, err := svc.EmbedBatch(context.Background(), []EmbedInput{
		{ContentType: "lore", ContentID: "l-1", Data: json.RawMessage(`{"title":"The Sundering"}`)},
		{ContentType: "lore", ContentID: "l-2", Data: json.RawMessage(`{"title":"The Long Thaw"}`)},
	})

	assert.Nil(t, result)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeEmbeddingProviderDown, domainErr.Code)
	mockStore.AssertNotCalled(t, "Upsert")
}

func TestEmbedderService_EmbedBatch_Empty(t *testing.T) {
	svc := NewEmbedderService(new(MockEmbeddingClient), new(MockVectorStore))

	result, err := svc.EmbedBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Embedded)
	assert.Empty(t, result.Failures)
}

func TestEmbedderService_Delete_Success(t *testing.T) {
	mockStore := new(MockVectorStore)
	svc := NewEmbedderService(new(MockEmbeddingClient), mockStore)

	key := domain.ContentKey{Type: domain.ContentTypeQuest, ID: "q-9"}
	mockStore.On("Get", mock.Anything, key).Return(&vectorstore.Record{ID: "p-1"}, nil)
	mockStore.On("Delete", mock.Anything, key).Return(nil)

	err := svc.Delete(context.Background(), "quest", "q-9")

	assert.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestEmbedderService_Delete_NotFound(t *testing.T) {
	mockStore := new(MockVectorStore)
	svc := NewEmbedderService(new(MockEmbeddingClient), mockStore)

	key := domain.ContentKey{Type: domain.ContentTypeQuest, ID: "missing"}
	mockStore.On("Get", mock.Anything, key).Return(nil, vectorstore.ErrNotFound)

	err := svc.Delete(context.Background(), "quest", "missing")

	assert.Equal(t, domain.ErrEmbeddingNotFound, err)
	mockStore.AssertNotCalled(t, "Delete")
}

func TestEmbedderService_Delete_StoreUnavailable(t *testing.T) {
	mockStore := new(MockVectorStore)
	svc := NewEmbedderService(new(MockEmbeddingClient), mockStore)

	mockStore.On("Get", mock.Anything, mock.Anything).Return(nil, vectorstore.ErrStoreUnavailable)

	err := svc.Delete(context.Background(), "quest", "q-9")

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeVectorStoreDown, domainErr.Code)
}

func TestEmbedderService_Get_InvalidType(t *testing.T) {
	svc := NewEmbedderService(new(MockEmbeddingClient), new(MockVectorStore))

	record, err := svc.Get(context.Background(), "all", "id-1")

	assert.Nil(t, record)
	assert.Equal(t, domain.ErrInvalidContentType, err)
}
