// Package vectorstore wraps the external vector database behind a small
// client interface: collection lifecycle, point upsert/delete, and
// nearest-neighbor search with a similarity threshold.
package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/google/uuid"
)

// ErrStoreUnavailable is returned by every operation when the backing vector
// database cannot be reached. There is no local fallback or cache.
var ErrStoreUnavailable = errors.New("vector store unavailable")

// ErrNotFound is returned by Get when no record exists for the key. Delete
// never returns it: deletes are idempotent at this layer.
var ErrNotFound = errors.New("embedding record not found")

// Payload is the metadata stored alongside each vector
type Payload struct {
	ContentType domain.ContentType
	ContentID   string
	SourceText  string
	ProjectID   string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// Record is a stored embedding: one per (contentType, contentId) pair
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// ScoredRecord is a search hit with its cosine similarity score
type ScoredRecord struct {
	Record
	Score float32
}

// SearchParams controls a similarity search. ContentType may be
// domain.ContentTypeAll to fan out across every collection and merge by
// score. Results below Threshold are excluded.
type SearchParams struct {
	ContentType domain.ContentType
	Vector      []float32
	Limit       int
	Threshold   float32
	ProjectID   string
}

// Client is the vector store contract. Upsert replaces any existing record
// with the same key; Delete succeeds whether or not the record exists.
type Client interface {
	EnsureCollections(ctx context.Context) error
	Upsert(ctx context.Context, key domain.ContentKey, vector []float32, payload Payload) error
	Search(ctx context.Context, params SearchParams) ([]ScoredRecord, error)
	Get(ctx context.Context, key domain.ContentKey) (*Record, error)
	Delete(ctx context.Context, key domain.ContentKey) error
	Health(ctx context.Context) error
	Close() error
}

// pointNamespace seeds deterministic point IDs so that re-embedding the same
// content key always targets the same point (upsert, not append).
var pointNamespace = uuid.MustParse("9a1c41d4-52b7-4ba8-9f0e-1d26f4f3a7c1")

// PointID derives the stable vector-store point ID for a content key
func PointID(key domain.ContentKey) string {
	return uuid.NewSHA1(pointNamespace, []byte(key.String())).String()
}
