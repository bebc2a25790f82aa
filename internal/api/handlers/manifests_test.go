package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Dexploarer/forge-sub003/internal/domain"
)

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

func userManifest(userID, manifestType string) *domain.PreviewManifest {
	now := time.Now().UTC()
	return &domain.PreviewManifest{
		ID:           "m-1",
		UserID:       &userID,
		ManifestType: manifestType,
		Content:      []json.RawMessage{json.RawMessage(`{"id":"guard","name":"Guard"}`)},
		Version:      1,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestManifestsHandler_Upsert_UserScope(t *testing.T) {
	mockStore := new(MockManifestStore)
	mockStore.On("Upsert", mock.Anything, domain.UserScope("user-1"), "npcs", mock.Anything).
		Return(userManifest("user-1", "npcs"), nil)

	handler := NewManifestsHandler(mockStore, new(MockUserSource))

	body := []byte(`{"manifestType":"npcs","content":[{"id":"guard","name":"Guard"}]}`)
	req := authedRequest(http.MethodPut, "/api/manifests", body)
	w := httptest.NewRecorder()

	handler.Upsert(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp ManifestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "m-1", resp.ID)
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, "npcs", resp.ManifestType)
	assert.Equal(t, int32(1), resp.Version)
	mockStore.AssertExpectations(t)
}

func TestManifestsHandler_Upsert_TeamScopeRequiresTeam(t *testing.T) {
	mockUsers := new(MockUserSource)
	mockUsers.On("GetUser", mock.Anything, "user-1").Return(&domain.User{ID: "user-1", Name: "alice"}, nil)

	handler := NewManifestsHandler(new(MockManifestStore), mockUsers)

	body := []byte(`{"manifestType":"npcs","scope":"team","content":[]}`)
	req := authedRequest(http.MethodPut, "/api/manifests", body)
	w := httptest.NewRecorder()

	handler.Upsert(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "does not belong to a team")
}

func TestManifestsHandler_Upsert_MissingType(t *testing.T) {
	handler := NewManifestsHandler(new(MockManifestStore), new(MockUserSource))

	body := []byte(`{"content":[]}`)
	req := authedRequest(http.MethodPut, "/api/manifests", body)
	w := httptest.NewRecorder()

	handler.Upsert(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "manifestType is required")
}

func TestManifestsHandler_Get_NotFound(t *testing.T) {
	mockStore := new(MockManifestStore)
	mockStore.On("Get", mock.Anything, domain.UserScope("user-1"), "npcs").
		Return(nil, domain.ErrManifestNotFound)

	handler := NewManifestsHandler(mockStore, new(MockUserSource))

	router := chi.NewRouter()
	router.Get("/api/manifests/{manifestType}", handler.Get)

	req := authedRequest(http.MethodGet, "/api/manifests/npcs", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "MANIFEST_4004")
}

func TestManifestsHandler_List_GlobalScope(t *testing.T) {
	mockStore := new(MockManifestStore)
	mockStore.On("List", mock.Anything, domain.GlobalScope(), 0, "").
		Return([]*domain.PreviewManifest{}, "", nil)

	handler := NewManifestsHandler(mockStore, new(MockUserSource))

	req := authedRequest(http.MethodGet, "/api/manifests?scope=global", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockStore.AssertExpectations(t)
}

func TestManifestsHandler_InvalidScope(t *testing.T) {
	handler := NewManifestsHandler(new(MockManifestStore), new(MockUserSource))

	req := authedRequest(http.MethodGet, "/api/manifests?scope=galaxy", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid scope")
}

func TestManifestsHandler_Deactivate(t *testing.T) {
	mockStore := new(MockManifestStore)
	mockStore.On("Deactivate", mock.Anything, "m-1").Return(nil)

	handler := NewManifestsHandler(mockStore, new(MockUserSource))

	router := chi.NewRouter()
	router.Delete("/api/manifests/{id}", handler.Deactivate)

	req := authedRequest(http.MethodDelete, "/api/manifests/m-1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockStore.AssertExpectations(t)
}
