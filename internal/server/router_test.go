package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Dexploarer/forge-sub003/internal/api/handlers"
	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/Dexploarer/forge-sub003/internal/service"
	"github.com/Dexploarer/forge-sub003/internal/vectorstore"
)

type MockAuthValidator struct {
	mock.Mock
}

func (m *MockAuthValidator) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

type MockEmbedderService struct {
	mock.Mock
}

func (m *MockEmbedderService) Embed(ctx context.Context, input service.EmbedInput) (*service.EmbedResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.EmbedResult), args.Error(1)
}

func (m *MockEmbedderService) EmbedBatch(ctx context.Context, inputs []service.EmbedInput) (*service.BatchResult, error) {
	args := m.Called(ctx, inputs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BatchResult), args.Error(1)
}

func (m *MockEmbedderService) Get(ctx context.Context, contentType, contentID string) (*vectorstore.Record, error) {
	args := m.Called(ctx, contentType, contentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*vectorstore.Record), args.Error(1)
}

func (m *MockEmbedderService) Delete(ctx context.Context, contentType, contentID string) error {
	args := m.Called(ctx, contentType, contentID)
	return args.Error(0)
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, input service.SearchInput) ([]service.SearchHit, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.SearchHit), args.Error(1)
}

type MockPolicyStore struct {
	mock.Mock
}

func (m *MockPolicyStore) GetOrDefault(ctx context.Context, userID string) (*domain.RetrievalPolicy, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RetrievalPolicy), args.Error(1)
}

func (m *MockPolicyStore) Save(ctx context.Context, policy *domain.RetrievalPolicy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

type MockContextBuilder struct {
	mock.Mock
}

func (m *MockContextBuilder) BuildContext(ctx context.Context, input service.BuildContextInput) (*service.ContextResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ContextResult), args.Error(1)
}

type MockUserSource struct {
	mock.Mock
}

func (m *MockUserSource) GetUser(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockManifestStore struct {
	mock.Mock
}

func (m *MockManifestStore) Upsert(ctx context.Context, scope domain.ManifestScope, manifestType string, content []json.RawMessage) (*domain.PreviewManifest, error) {
	args := m.Called(ctx, scope, manifestType, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PreviewManifest), args.Error(1)
}

func (m *MockManifestStore) Get(ctx context.Context, scope domain.ManifestScope, manifestType string) (*domain.PreviewManifest, error) {
	args := m.Called(ctx, scope, manifestType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PreviewManifest), args.Error(1)
}

func (m *MockManifestStore) List(ctx context.Context, scope domain.ManifestScope, limit int, cursor string) ([]*domain.PreviewManifest, string, error) {
	args := m.Called(ctx, scope, limit, cursor)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]*domain.PreviewManifest), args.String(1), args.Error(2)
}

func (m *MockManifestStore) Deactivate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func setupRouter() (http.Handler, *MockAuthValidator, *MockSearcher, *MockPolicyStore) {
	authValidator := new(MockAuthValidator)
	searcher := new(MockSearcher)
	policies := new(MockPolicyStore)

	cfg := RouterConfig{
		AuthValidator:     authValidator,
		EmbeddingsHandler: handlers.NewEmbeddingsHandler(new(MockEmbedderService), searcher),
		AIContextHandler:  handlers.NewAIContextHandler(policies, new(MockContextBuilder), new(MockUserSource)),
		ManifestsHandler:  handlers.NewManifestsHandler(new(MockManifestStore), new(MockUserSource)),
	}

	router := NewRouter(cfg)
	return router, authValidator, searcher, policies
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouter_HealthEndpoint_DegradedDependencies(t *testing.T) {
	dbHealth := new(MockHealthChecker)
	dbHealth.On("Health", mock.Anything).Return(nil)
	vectorHealth := new(MockHealthChecker)
	vectorHealth.On("Health", mock.Anything).Return(context.DeadlineExceeded)

	cfg := RouterConfig{
		AuthValidator:     new(MockAuthValidator),
		EmbeddingsHandler: handlers.NewEmbeddingsHandler(new(MockEmbedderService), new(MockSearcher)),
		AIContextHandler:  handlers.NewAIContextHandler(new(MockPolicyStore), new(MockContextBuilder), new(MockUserSource)),
		ManifestsHandler:  handlers.NewManifestsHandler(new(MockManifestStore), new(MockUserSource)),
		DatabaseHealth:    dbHealth,
		VectorHealth:      vectorHealth,
	}
	router := NewRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
	assert.Equal(t, "ok", resp["database"])
	assert.Equal(t, "unreachable", resp["vectorStore"])
}

func TestRouter_AuthenticatedRoutes_RequireAuth(t *testing.T) {
	router, authValidator, _, _ := setupRouter()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/embeddings/search"},
		{http.MethodPost, "/api/embeddings/search"},
		{http.MethodPost, "/api/embeddings/build-context"},
		{http.MethodPost, "/api/embeddings/embed"},
		{http.MethodPost, "/api/embeddings/batch"},
		{http.MethodDelete, "/api/embeddings/npc/guard"},
		{http.MethodGet, "/api/ai-context/preferences"},
		{http.MethodPut, "/api/ai-context/preferences"},
		{http.MethodPost, "/api/ai-context/build"},
		{http.MethodPut, "/api/manifests/"},
		{http.MethodGet, "/api/manifests/"},
		{http.MethodGet, "/api/manifests/npcs"},
		{http.MethodDelete, "/api/manifests/m-1"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	authValidator.AssertExpectations(t)
}

func TestRouter_AuthenticatedRoutes_WithValidAuth(t *testing.T) {
	router, authValidator, _, policies := setupRouter()

	token := "frg_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	authValidator.On("ValidateAPIKey", mock.Anything, token).Return("user-1", nil)
	policies.On("GetOrDefault", mock.Anything, "user-1").Return(domain.DefaultRetrievalPolicy("user-1"), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ai-context/preferences", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp handlers.PreferencesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.DefaultMaxContextItems, resp.MaxContextItems)
	authValidator.AssertExpectations(t)
	policies.AssertExpectations(t)
}

func TestRouter_SearchRoute_PassesQuery(t *testing.T) {
	router, authValidator, searcher, _ := setupRouter()

	token := "frg_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	authValidator.On("ValidateAPIKey", mock.Anything, token).Return("user-1", nil)
	searcher.On("Search", mock.Anything, mock.MatchedBy(func(input service.SearchInput) bool {
		return input.Query == "guard" && input.ContentType == "npc"
	})).Return([]service.SearchHit{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/embeddings/search?q=guard&type=npc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	searcher.AssertExpectations(t)
}
