package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/Dexploarer/forge-sub003/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// Source tags reported in context provenance
const (
	SourceOwnPreview   = "ownPreview"
	SourceTeamPreview  = "teamPreview"
	SourceCDN          = "cdn"
	SourceVectorSearch = "vectorSearch"
)

// ContextPolicySource loads a user's retrieval policy
type ContextPolicySource interface {
	GetOrDefault(ctx context.Context, userID string) (*domain.RetrievalPolicy, error)
}

// ContextManifestSource defines the manifest lookups the aggregator needs
type ContextManifestSource interface {
	FindActiveByUser(ctx context.Context, userID string) ([]*domain.PreviewManifest, error)
	FindActiveByTeam(ctx context.Context, teamID string) ([]*domain.PreviewManifest, error)
	FindActiveGlobal(ctx context.Context) ([]*domain.PreviewManifest, error)
	FindActiveAllTeams(ctx context.Context) ([]*domain.PreviewManifest, error)
}

// ContextSearcher defines the semantic search the aggregator needs
type ContextSearcher interface {
	Search(ctx context.Context, input SearchInput) ([]SearchHit, error)
}

// ContextItem is one entry of an aggregated context payload
type ContextItem struct {
	Type      domain.ContentType `json:"type"`
	ID        string             `json:"id"`
	Source    string             `json:"source"`
	Data      json.RawMessage    `json:"data,omitempty"`
	Score     float32            `json:"score,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt,omitempty"`
}

// SourceCounts reports how many included items each source contributed. The
// counts reflect the final payload after dedup and truncation, so they sum to
// TotalItems.
type SourceCounts struct {
	OwnPreview   int `json:"ownPreview"`
	TeamPreview  int `json:"teamPreview"`
	CDN          int `json:"cdn"`
	VectorSearch int `json:"vectorSearch"`
}

// BuildContextInput represents input for BuildContext
type BuildContextInput struct {
	UserID       string
	Query        string
	ContentTypes []domain.ContentType
	TeamID       string
	ProjectID    string
	Threshold    float32
}

// ContextResult is the aggregated, deduplicated, size-bounded context payload
type ContextResult struct {
	Context    []ContextItem `json:"context"`
	TotalItems int           `json:"totalItems"`
	Sources    SourceCounts  `json:"sources"`
}

// AggregatorService builds policy-driven context payloads by combining the
// user's own preview manifests, team manifests, globally published content,
// and vector search results.
type AggregatorService struct {
	policies  ContextPolicySource
	manifests ContextManifestSource
	search    ContextSearcher
}

// NewAggregatorService creates a new AggregatorService instance
func NewAggregatorService(
	policies ContextPolicySource,
	manifests ContextManifestSource,
	search ContextSearcher,
) *AggregatorService {
	return &AggregatorService{
		policies:  policies,
		manifests: manifests,
		search:    search,
	}
}

// BuildContext assembles a context payload for a user. Source fetches run
// concurrently and fail independently: a source that errors contributes zero
// items and the failure is logged, never raised. The only way this returns an
// error is a context cancellation.
func (s *AggregatorService) BuildContext(ctx context.Context, input BuildContextInput) (*ContextResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "AggregatorService.BuildContext", telemetry.SpanAttributes{
		UserID:    input.UserID,
		Operation: "build_context",
	})
	defer span.End()

	policy, err := s.policies.GetOrDefault(ctx, input.UserID)
	if err != nil {
		log.Printf("aggregator: policy load failed for user %s, using defaults: %v", input.UserID, err)
		policy = domain.DefaultRetrievalPolicy(input.UserID)
	}

	typeFilter := make(map[domain.ContentType]bool, len(input.ContentTypes))
	for _, t := range input.ContentTypes {
		typeFilter[t] = true
	}

	// One slot per source; each fetch writes only its own slot.
	var own, team, cdn, vector []ContextItem

	g, fetchCtx := errgroup.WithContext(ctx)

	if policy.UseOwnPreview {
		g.Go(func() error {
			manifests, err := s.manifests.FindActiveByUser(fetchCtx, input.UserID)
			if err != nil {
				log.Printf("aggregator: own preview fetch failed for user %s: %v", input.UserID, err)
				return nil
			}
			own = explodeManifests(manifests, SourceOwnPreview, typeFilter)
			return nil
		})
	}

	if policy.UseAllSubmissions {
		g.Go(func() error {
			manifests, err := s.manifests.FindActiveAllTeams(fetchCtx)
			if err != nil {
				log.Printf("aggregator: all-teams fetch failed: %v", err)
				return nil
			}
			team = explodeManifests(manifests, SourceTeamPreview, typeFilter)
			return nil
		})
	} else if policy.UseTeamPreview && input.TeamID != "" {
		teamID := input.TeamID
		g.Go(func() error {
			manifests, err := s.manifests.FindActiveByTeam(fetchCtx, teamID)
			if err != nil {
				log.Printf("aggregator: team preview fetch failed for team %s: %v", teamID, err)
				return nil
			}
			team = explodeManifests(manifests, SourceTeamPreview, typeFilter)
			return nil
		})
	}

	if policy.UseCdnContent {
		g.Go(func() error {
			manifests, err := s.manifests.FindActiveGlobal(fetchCtx)
			if err != nil {
				log.Printf("aggregator: cdn fetch failed: %v", err)
				return nil
			}
			cdn = explodeManifests(manifests, SourceCDN, typeFilter)
			return nil
		})
	}

	if input.Query != "" {
		g.Go(func() error {
			hits, err := s.searchAll(fetchCtx, input, policy.MaxContextItems)
			if err != nil {
				log.Printf("aggregator: vector search failed for user %s: %v", input.UserID, err)
				return nil
			}
			vector = hits
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifestItems := make([]ContextItem, 0, len(own)+len(team)+len(cdn))
	manifestItems = append(manifestItems, own...)
	manifestItems = append(manifestItems, team...)
	manifestItems = append(manifestItems, cdn...)

	var merged []ContextItem
	if policy.PreferRecent {
		merged = mergeByRecency(manifestItems, vector)
	} else {
		merged = append(manifestItems, vector...)
	}

	deduped := dedupeItems(merged)
	if len(deduped) > policy.MaxContextItems {
		deduped = deduped[:policy.MaxContextItems]
	}

	result := &ContextResult{
		Context:    deduped,
		TotalItems: len(deduped),
	}
	for _, item := range deduped {
		switch item.Source {
		case SourceOwnPreview:
			result.Sources.OwnPreview++
		case SourceTeamPreview:
			result.Sources.TeamPreview++
		case SourceCDN:
			result.Sources.CDN++
		case SourceVectorSearch:
			result.Sources.VectorSearch++
		}
	}

	return result, nil
}

// searchAll runs one vector search per requested content type, or a single
// fan-out search when no types were requested
func (s *AggregatorService) searchAll(ctx context.Context, input BuildContextInput, limit int) ([]ContextItem, error) {
	types := input.ContentTypes
	if len(types) == 0 {
		types = []domain.ContentType{domain.ContentTypeAll}
	}

	var items []ContextItem
	for _, t := range types {
		hits, err := s.search.Search(ctx, SearchInput{
			Query:       input.Query,
			ContentType: string(t),
			Limit:       limit,
			Threshold:   input.Threshold,
			ProjectID:   input.ProjectID,
		})
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			data, _ := json.Marshal(map[string]string{"text": hit.SourceText})
			items = append(items, ContextItem{
				Type:   hit.ContentType,
				ID:     hit.ContentID,
				Source: SourceVectorSearch,
				Data:   data,
				Score:  hit.Score,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// explodeManifests flattens manifest content blobs into one item per record.
// Records without an "id" field get a synthetic id derived from the manifest
// so dedup still has a stable key.
func explodeManifests(manifests []*domain.PreviewManifest, source string, typeFilter map[domain.ContentType]bool) []ContextItem {
	var items []ContextItem
	for _, m := range manifests {
		contentType := m.ContentType()
		if len(typeFilter) > 0 && !typeFilter[contentType] {
			continue
		}
		for i, record := range m.Content {
			items = append(items, ContextItem{
				Type:      contentType,
				ID:        recordContentID(record, m.ID, i),
				Source:    source,
				Data:      record,
				UpdatedAt: m.UpdatedAt,
			})
		}
	}
	return items
}

// recordContentID extracts a record's "id" field, falling back to a
// manifest-derived synthetic id
func recordContentID(record json.RawMessage, manifestID string, index int) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(record, &probe); err == nil && probe.ID != "" {
		return probe.ID
	}
	return fmt.Sprintf("%s#%d", manifestID, index)
}

// mergeByRecency interleaves manifest items (sorted by updatedAt descending)
// with vector hits (sorted by score descending) by their relative position in
// each ranking. Manifest items win positional ties; within each list the sort
// is stable, so arrival order breaks equal keys.
func mergeByRecency(manifestItems, vectorItems []ContextItem) []ContextItem {
	sort.SliceStable(manifestItems, func(i, j int) bool {
		return manifestItems[i].UpdatedAt.After(manifestItems[j].UpdatedAt)
	})
	sort.SliceStable(vectorItems, func(i, j int) bool {
		return vectorItems[i].Score > vectorItems[j].Score
	})

	if len(vectorItems) == 0 {
		return manifestItems
	}
	if len(manifestItems) == 0 {
		return vectorItems
	}

	merged := make([]ContextItem, 0, len(manifestItems)+len(vectorItems))
	mi, vi := 0, 0
	for mi < len(manifestItems) && vi < len(vectorItems) {
		mFrac := float64(mi) / float64(len(manifestItems))
		vFrac := float64(vi) / float64(len(vectorItems))
		if mFrac <= vFrac {
			merged = append(merged, manifestItems[mi])
			mi++
		} else {
			merged = append(merged, vectorItems[vi])
			vi++
		}
	}
	merged = append(merged, manifestItems[mi:]...)
	merged = append(merged, vectorItems[vi:]...)
	return merged
}

// dedupeItems drops later duplicates of the same (contentType, contentId)
func dedupeItems(items []ContextItem) []ContextItem {
	seen := make(map[domain.ContentKey]bool, len(items))
	result := make([]ContextItem, 0, len(items))
	for _, item := range items {
		key := domain.ContentKey{Type: item.Type, ID: item.ID}
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, item)
	}
	return result
}
