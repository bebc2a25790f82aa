package domain

import "time"

// DefaultMaxContextItems caps aggregated context when the user has not saved
// an explicit policy.
const DefaultMaxContextItems = 100

// RetrievalPolicy is a user's per-source configuration for context building.
// A user with no saved policy gets DefaultRetrievalPolicy; the row is only
// materialized on the first explicit write.
type RetrievalPolicy struct {
	UserID            string
	UseOwnPreview     bool
	UseCdnContent     bool
	UseTeamPreview    bool
	UseAllSubmissions bool
	MaxContextItems   int
	PreferRecent      bool
	UpdatedAt         time.Time
}

// DefaultRetrievalPolicy returns the conservative preset applied when a user
// has never saved preferences: own preview and CDN content on, team sharing
// off, recency preferred.
func DefaultRetrievalPolicy(userID string) *RetrievalPolicy {
	return &RetrievalPolicy{
		UserID:            userID,
		UseOwnPreview:     true,
		UseCdnContent:     true,
		UseTeamPreview:    false,
		UseAllSubmissions: false,
		MaxContextItems:   DefaultMaxContextItems,
		PreferRecent:      true,
	}
}

// ValidateRetrievalPolicy validates a RetrievalPolicy instance
func ValidateRetrievalPolicy(p *RetrievalPolicy) error {
	if p == nil {
		return NewDomainError(ErrCodeValidation, "retrieval policy cannot be nil")
	}
	if p.UserID == "" {
		return NewDomainError(ErrCodeValidation, "retrieval policy UserID is required")
	}
	if p.MaxContextItems <= 0 {
		return ErrInvalidMaxContextItems
	}
	return nil
}
