package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PreviewManifest holds a scoped blob of generated or candidate game content.
// Scope is (UserID, TeamID): both nil means the manifest is global and visible
// to every retrieval policy that opts into CDN content.
type PreviewManifest struct {
	ID           string
	UserID       *string
	TeamID       *string
	ManifestType string
	Content      []json.RawMessage
	Version      int32
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ManifestScope identifies the owner of a manifest
type ManifestScope struct {
	UserID *string
	TeamID *string
}

// UserScope returns a scope for a single user's own manifests
func UserScope(userID string) ManifestScope {
	return ManifestScope{UserID: &userID}
}

// TeamScope returns a scope for a team's shared manifests
func TeamScope(teamID string) ManifestScope {
	return ManifestScope{TeamID: &teamID}
}

// GlobalScope returns the global (CDN) scope
func GlobalScope() ManifestScope {
	return ManifestScope{}
}

// IsGlobal reports whether the manifest is globally published
func (m *PreviewManifest) IsGlobal() bool {
	return m.UserID == nil && m.TeamID == nil
}

// Scope returns the manifest's owning scope
func (m *PreviewManifest) Scope() ManifestScope {
	return ManifestScope{UserID: m.UserID, TeamID: m.TeamID}
}

// ContentType returns the embedder content type for this manifest's records
func (m *PreviewManifest) ContentType() ContentType {
	return ContentTypeForManifest(m.ManifestType)
}

// ValidatePreviewManifest validates a PreviewManifest instance
func ValidatePreviewManifest(m *PreviewManifest) error {
	if m == nil {
		return fmt.Errorf("manifest cannot be nil")
	}
	if m.ID == "" {
		return fmt.Errorf("manifest ID is required")
	}
	if m.ManifestType == "" {
		return fmt.Errorf("manifest ManifestType is required")
	}
	if m.Version < 1 {
		return fmt.Errorf("manifest Version must be >= 1, got %d", m.Version)
	}
	return nil
}
