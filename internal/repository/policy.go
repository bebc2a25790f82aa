package repository

import (
	"context"
	"errors"

	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PolicyRepository struct {
	pool *pgxpool.Pool
}

func NewPolicyRepository(pool *pgxpool.Pool) *PolicyRepository {
	return &PolicyRepository{pool: pool}
}

func (r *PolicyRepository) Get(ctx context.Context, userID string) (*domain.RetrievalPolicy, error) {
	var p domain.RetrievalPolicy
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, use_own_preview, use_cdn_content, use_team_preview, use_all_submissions,
		        max_context_items, prefer_recent, updated_at
		 FROM retrieval_policies WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.UseOwnPreview, &p.UseCdnContent, &p.UseTeamPreview, &p.UseAllSubmissions,
		&p.MaxContextItems, &p.PreferRecent, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPolicyNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PolicyRepository) Upsert(ctx context.Context, policy *domain.RetrievalPolicy) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO retrieval_policies
		   (user_id, use_own_preview, use_cdn_content, use_team_preview, use_all_submissions,
		    max_context_items, prefer_recent, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO UPDATE SET
		   use_own_preview = EXCLUDED.use_own_preview,
		   use_cdn_content = EXCLUDED.use_cdn_content,
		   use_team_preview = EXCLUDED.use_team_preview,
		   use_all_submissions = EXCLUDED.use_all_submissions,
		   max_context_items = EXCLUDED.max_context_items,
		   prefer_recent = EXCLUDED.prefer_recent,
		   updated_at = EXCLUDED.updated_at`,
		policy.UserID, policy.UseOwnPreview, policy.UseCdnContent, policy.UseTeamPreview,
		policy.UseAllSubmissions, policy.MaxContextItems, policy.PreferRecent, policy.UpdatedAt,
	)
	return err
}
