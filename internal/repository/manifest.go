package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/Dexploarer/forge-sub003/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ManifestRepository struct {
	pool *pgxpool.Pool
}

func NewManifestRepository(pool *pgxpool.Pool) *ManifestRepository {
	return &ManifestRepository{pool: pool}
}

const manifestColumns = `id, user_id, team_id, manifest_type, content, version, is_active, created_at, updated_at`

func scanManifest(row pgx.Row) (*domain.PreviewManifest, error) {
	var m domain.PreviewManifest
	var content []byte
	err := row.Scan(&m.ID, &m.UserID, &m.TeamID, &m.ManifestType, &content, &m.Version, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to decode manifest content: %w", err)
		}
	}
	return &m, nil
}

// FindActive returns the single active manifest for a scope, or
// ErrManifestNotFound. NULL scope columns match NULL inputs, so the global
// scope is (NULL, NULL).
func (r *ManifestRepository) FindActive(ctx context.Context, scope domain.ManifestScope, manifestType string) (*domain.PreviewManifest, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+manifestColumns+` FROM preview_manifests
		 WHERE user_id IS NOT DISTINCT FROM $1
		   AND team_id IS NOT DISTINCT FROM $2
		   AND manifest_type = $3
		   AND is_active = true`,
		scope.UserID, scope.TeamID, manifestType,
	)
	m, err := scanManifest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrManifestNotFound
		}
		return nil, err
	}
	return m, nil
}

// UpsertActive updates the active manifest for a scope, bumping its version,
// or inserts version 1 when none exists. The active row is locked for the
// duration of the transaction, so concurrent updates to the same scope
// serialize on the row lock.
func (r *ManifestRepository) UpsertActive(ctx context.Context, scope domain.ManifestScope, manifestType string, content []json.RawMessage, newID string) (*domain.PreviewManifest, error) {
	encoded, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest content: %w", err)
	}
	if content == nil {
		encoded = []byte("[]")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	var existingID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM preview_manifests
		 WHERE user_id IS NOT DISTINCT FROM $1
		   AND team_id IS NOT DISTINCT FROM $2
		   AND manifest_type = $3
		   AND is_active = true
		 FOR UPDATE`,
		scope.UserID, scope.TeamID, manifestType,
	).Scan(&existingID)

	var row pgx.Row
	switch {
	case err == nil:
		row = tx.QueryRow(ctx,
			`UPDATE preview_manifests
			 SET content = $1, version = version + 1, updated_at = $2
			 WHERE id = $3
			 RETURNING `+manifestColumns,
			encoded, now, existingID,
		)
	case errors.Is(err, pgx.ErrNoRows):
		row = tx.QueryRow(ctx,
			`INSERT INTO preview_manifests (id, user_id, team_id, manifest_type, content, version, is_active, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, 1, true, $6, $6)
			 RETURNING `+manifestColumns,
			newID, scope.UserID, scope.TeamID, manifestType, encoded, now,
		)
	default:
		return nil, err
	}

	m, err := scanManifest(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// FindActiveByUser returns all active manifests owned by a user
func (r *ManifestRepository) FindActiveByUser(ctx context.Context, userID string) ([]*domain.PreviewManifest, error) {
	return r.findActiveWhere(ctx,
		`user_id = $1 AND is_active = true`, userID)
}

// FindActiveByTeam returns all active manifests shared with a team
func (r *ManifestRepository) FindActiveByTeam(ctx context.Context, teamID string) ([]*domain.PreviewManifest, error) {
	return r.findActiveWhere(ctx,
		`team_id = $1 AND is_active = true`, teamID)
}

// FindActiveGlobal returns all active globally published manifests
func (r *ManifestRepository) FindActiveGlobal(ctx context.Context) ([]*domain.PreviewManifest, error) {
	return r.findActiveWhere(ctx,
		`user_id IS NULL AND team_id IS NULL AND is_active = true`)
}

// FindActiveAllTeams returns every team-scoped active manifest
func (r *ManifestRepository) FindActiveAllTeams(ctx context.Context) ([]*domain.PreviewManifest, error) {
	return r.findActiveWhere(ctx,
		`team_id IS NOT NULL AND is_active = true`)
}

func (r *ManifestRepository) findActiveWhere(ctx context.Context, where string, args ...any) ([]*domain.PreviewManifest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+manifestColumns+` FROM preview_manifests WHERE `+where+` ORDER BY updated_at DESC`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var manifests []*domain.PreviewManifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, rows.Err()
}

// Deactivate retires a manifest without deleting its row
func (r *ManifestRepository) Deactivate(ctx context.Context, id string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE preview_manifests SET is_active = false, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrManifestNotFound
	}
	return nil
}

// List returns a scope's manifests (active and inactive) newest first, with
// cursor pagination
func (r *ManifestRepository) List(ctx context.Context, scope domain.ManifestScope, limit int, cursor string) ([]*domain.PreviewManifest, string, error) {
	decoded, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	query := `SELECT ` + manifestColumns + ` FROM preview_manifests
		 WHERE user_id IS NOT DISTINCT FROM $1
		   AND team_id IS NOT DISTINCT FROM $2`
	args := []any{scope.UserID, scope.TeamID}

	if decoded != nil {
		query += ` AND (updated_at, id) < ($3, $4)`
		args = append(args, decoded.Timestamp, decoded.LastID)
	}
	query += fmt.Sprintf(` ORDER BY updated_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var manifests []*domain.PreviewManifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, "", err
		}
		manifests = append(manifests, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := pagination.CreateNextCursor(manifests, limit,
		func(m *domain.PreviewManifest) string { return m.ID },
		func(m *domain.PreviewManifest) time.Time { return m.UpdatedAt },
	)
	return manifests, next, nil
}
