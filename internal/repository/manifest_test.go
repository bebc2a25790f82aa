//go:build integration

package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/Dexploarer/forge-sub003/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func TestManifestRepository_UpsertActive_VersionBump(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewManifestRepository(pool)
	scope := domain.UserScope("user-a")

	first, err := repo.UpsertActive(ctx, scope, "npcs",
		[]json.RawMessage{json.RawMessage(`{"id":"guard","name":"Guard"}`)}, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, int32(1), first.Version)
	assert.True(t, first.IsActive)

	second, err := repo.UpsertActive(ctx, scope, "npcs",
		[]json.RawMessage{json.RawMessage(`{"id":"guard","name":"Guard v2"}`)}, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "update must reuse the existing row")
	assert.Equal(t, int32(2), second.Version)

	// Still exactly one active manifest for the scope
	found, err := repo.FindActive(ctx, scope, "npcs")
	require.NoError(t, err)
	assert.Equal(t, int32(2), found.Version)
	require.Len(t, found.Content, 1)
	assert.JSONEq(t, `{"id":"guard","name":"Guard v2"}`, string(found.Content[0]))
}

func TestManifestRepository_ScopeIsolation(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewManifestRepository(pool)
	content := []json.RawMessage{json.RawMessage(`{"id":"x"}`)}

	_, err := repo.UpsertActive(ctx, domain.UserScope("user-a"), "npcs", content, uuid.NewString())
	require.NoError(t, err)
	_, err = repo.UpsertActive(ctx, domain.TeamScope("team-1"), "npcs", content, uuid.NewString())
	require.NoError(t, err)
	_, err = repo.UpsertActive(ctx, domain.GlobalScope(), "npcs", content, uuid.NewString())
	require.NoError(t, err)

	own, err := repo.FindActiveByUser(ctx, "user-a")
	require.NoError(t, err)
	assert.Len(t, own, 1)

	team, err := repo.FindActiveByTeam(ctx, "team-1")
	require.NoError(t, err)
	assert.Len(t, team, 1)

	global, err := repo.FindActiveGlobal(ctx)
	require.NoError(t, err)
	assert.Len(t, global, 1)
	assert.True(t, global[0].IsGlobal())

	allTeams, err := repo.FindActiveAllTeams(ctx)
	require.NoError(t, err)
	assert.Len(t, allTeams, 1)
}

func TestManifestRepository_FindActive_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewManifestRepository(pool)

	_, err := repo.FindActive(ctx, domain.UserScope("nobody"), "npcs")
	assert.ErrorIs(t, err, domain.ErrManifestNotFound)
}

func TestManifestRepository_Deactivate(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewManifestRepository(pool)
	scope := domain.UserScope("user-a")

	m, err := repo.UpsertActive(ctx, scope, "npcs",
		[]json.RawMessage{json.RawMessage(`{"id":"guard"}`)}, uuid.NewString())
	require.NoError(t, err)

	require.NoError(t, repo.Deactivate(ctx, m.ID))

	_, err = repo.FindActive(ctx, scope, "npcs")
	assert.ErrorIs(t, err, domain.ErrManifestNotFound)

	// Deactivating again still finds the row, it is just inactive
	assert.ErrorIs(t, repo.Deactivate(ctx, "missing"), domain.ErrManifestNotFound)
}

func TestPolicyRepository_GetUpsert(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	userRepo := NewUserRepository(pool)
	policyRepo := NewPolicyRepository(pool)

	user := domain.NewUser(uuid.NewString(), "alice", nil, nowUTC())
	require.NoError(t, userRepo.Create(ctx, user))

	_, err := policyRepo.Get(ctx, user.ID)
	assert.ErrorIs(t, err, domain.ErrPolicyNotFound)

	policy := domain.DefaultRetrievalPolicy(user.ID)
	policy.MaxContextItems = 42
	policy.UpdatedAt = nowUTC()
	require.NoError(t, policyRepo.Upsert(ctx, policy))

	saved, err := policyRepo.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, saved.MaxContextItems)
	assert.True(t, saved.UseOwnPreview)

	policy.UseTeamPreview = true
	require.NoError(t, policyRepo.Upsert(ctx, policy))

	saved, err = policyRepo.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, saved.UseTeamPreview)
}

func TestEmbeddingJobRepository_ClaimPending(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewEmbeddingJobRepository(pool)

	job := &domain.EmbeddingJob{
		ID:          uuid.NewString(),
		ManifestID:  "m-1",
		ContentType: domain.ContentTypeNPC,
		ContentID:   "guard",
		Payload:     json.RawMessage(`{"id":"guard","name":"Guard"}`),
		Status:      domain.EmbeddingJobStatusPending,
		CreatedAt:   nowUTC(),
	}
	require.NoError(t, repo.Create(ctx, job))

	claimed, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, domain.EmbeddingJobStatusProcessing, claimed[0].Status)
	assert.Equal(t, "guard", claimed[0].ContentID)

	// Claimed jobs are no longer pending
	again, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusCompleted, ""))
	done, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmbeddingJobStatusCompleted, done.Status)
	assert.NotNil(t, done.ProcessedAt)
}
