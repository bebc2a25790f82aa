package service

import (
	"context"
	"errors"
	"time"

	"github.com/Dexploarer/forge-sub003/internal/domain"
)

// PolicyRepositoryInterface defines the repository interface for retrieval
// policy persistence
type PolicyRepositoryInterface interface {
	Get(ctx context.Context, userID string) (*domain.RetrievalPolicy, error)
	Upsert(ctx context.Context, policy *domain.RetrievalPolicy) error
}

// PolicyService manages per-user retrieval policies. Policies are
// read-defaulted: no row exists until the user saves preferences.
type PolicyService struct {
	repo PolicyRepositoryInterface
}

// NewPolicyService creates a new PolicyService instance
func NewPolicyService(repo PolicyRepositoryInterface) *PolicyService {
	return &PolicyService{repo: repo}
}

// GetOrDefault returns the user's saved policy, or the documented defaults
// when none has been saved
func (s *PolicyService) GetOrDefault(ctx context.Context, userID string) (*domain.RetrievalPolicy, error) {
	if userID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "user ID is required")
	}

	policy, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrPolicyNotFound) {
			return domain.DefaultRetrievalPolicy(userID), nil
		}
		return nil, err
	}
	return policy, nil
}

// Save validates and persists a policy, materializing the row on first write
func (s *PolicyService) Save(ctx context.Context, policy *domain.RetrievalPolicy) error {
	if err := domain.ValidateRetrievalPolicy(policy); err != nil {
		return err
	}

	policy.UpdatedAt = time.Now().UTC()
	return s.repo.Upsert(ctx, policy)
}
