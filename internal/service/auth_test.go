package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockUserRepository is a mock for UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByName(ctx context.Context, name string) (*domain.User, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAPIKeyRepository is a mock for APIKeyRepository
type MockAPIKeyRepository struct {
	mock.Mock
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) GetByID(ctx context.Context, id string) (*domain.APIKey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) Revoke(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockUUIDGen is a mock UUID generator returning fixed values
type MockUUIDGen struct {
	mock.Mock
}

func (m *MockUUIDGen) NewString() string {
	return m.Called().String(0)
}

func newAuthService(t *testing.T) (*AuthService, *MockUserRepository, *MockAPIKeyRepository, *MockUUIDGen) {
	t.Helper()
	userRepo := new(MockUserRepository)
	keyRepo := new(MockAPIKeyRepository)
	uuidGen := new(MockUUIDGen)
	return NewAuthService(userRepo, keyRepo, uuidGen), userRepo, keyRepo, uuidGen
}

func TestAuthService_CreateUser(t *testing.T) {
	svc, userRepo, _, uuidGen := newAuthService(t)

	uuidGen.On("NewString").Return("uuid-1")
	userRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)

	user, err := svc.CreateUser(context.Background(), "alice", nil)

	require.NoError(t, err)
	assert.Equal(t, "uuid-1", user.ID)
	assert.Equal(t, "alice", user.Name)
	assert.Nil(t, user.TeamID)
	userRepo.AssertExpectations(t)
}

func TestAuthService_CreateUser_MissingName(t *testing.T) {
	svc, userRepo, _, _ := newAuthService(t)

	user, err := svc.CreateUser(context.Background(), "", nil)

	assert.Nil(t, user)
	assert.Error(t, err)
	userRepo.AssertNotCalled(t, "Create")
}

func TestAuthService_CreateAPIKey(t *testing.T) {
	svc, userRepo, keyRepo, uuidGen := newAuthService(t)

	uuidGen.On("NewString").Return("key-uuid")
	userRepo.On("GetByID", mock.Anything, "user-a").Return(&domain.User{ID: "user-a", Name: "alice"}, nil)
	keyRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.APIKey")).Return(nil)

	token, err := svc.CreateAPIKey(context.Background(), "user-a", "laptop")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "frg_"))
	assert.Len(t, token, len("frg_")+64)
	assert.True(t, IsValidAPIToken(token))
	keyRepo.AssertExpectations(t)
}

func TestAuthService_CreateAPIKey_UserNotFound(t *testing.T) {
	svc, userRepo, keyRepo, _ := newAuthService(t)

	userRepo.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrUserNotFound)

	token, err := svc.CreateAPIKey(context.Background(), "missing", "laptop")

	assert.Empty(t, token)
	assert.Equal(t, domain.ErrUserNotFound, err)
	keyRepo.AssertNotCalled(t, "Create")
}

func TestAuthService_ValidateAPIKey(t *testing.T) {
	svc, _, keyRepo, _ := newAuthService(t)

	token := "frg_" + strings.Repeat("ab", 32)
	keyRepo.On("GetByHash", mock.Anything, hashToken(token)).
		Return(&domain.APIKey{ID: "k-1", UserID: "user-a", Name: "laptop", KeyHash: hashToken(token)}, nil)

	userID, err := svc.ValidateAPIKey(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, "user-a", userID)
}

func TestAuthService_ValidateAPIKey_BadFormat(t *testing.T) {
	svc, _, keyRepo, _ := newAuthService(t)

	userID, err := svc.ValidateAPIKey(context.Background(), "not-a-key")

	assert.Empty(t, userID)
	assert.Equal(t, domain.ErrInvalidAPIKey, err)
	keyRepo.AssertNotCalled(t, "GetByHash")
}

func TestAuthService_ValidateAPIKey_UnknownKey(t *testing.T) {
	svc, _, keyRepo, _ := newAuthService(t)

	token := "frg_" + strings.Repeat("cd", 32)
	keyRepo.On("GetByHash", mock.Anything, hashToken(token)).Return(nil, domain.ErrAPIKeyNotFound)

	userID, err := svc.ValidateAPIKey(context.Background(), token)

	assert.Empty(t, userID)
	assert.Equal(t, domain.ErrInvalidAPIKey, err)
}

func TestAuthService_ValidateAPIKey_Revoked(t *testing.T) {
	svc, _, keyRepo, _ := newAuthService(t)

	token := "frg_" + strings.Repeat("ef", 32)
	revokedAt := time.Now().UTC()
	key := &domain.APIKey{ID: "k-1", UserID: "user-a", Name: "laptop", KeyHash: hashToken(token), RevokedAt: &revokedAt}
	keyRepo.On("GetByHash", mock.Anything, hashToken(token)).Return(key, nil)

	userID, err := svc.ValidateAPIKey(context.Background(), token)

	assert.Empty(t, userID)
	assert.Equal(t, domain.ErrAPIKeyRevoked, err)
}

func TestIsValidAPIToken(t *testing.T) {
	assert.True(t, IsValidAPIToken("frg_"+strings.Repeat("0", 64)))
	assert.False(t, IsValidAPIToken("ntx_"+strings.Repeat("0", 64)))
	assert.False(t, IsValidAPIToken("frg_"+strings.Repeat("0", 63)))
	assert.False(t, IsValidAPIToken("frg_"+strings.Repeat("g", 64)))
	assert.False(t, IsValidAPIToken(""))
}
