package vectorstore

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const (
	payloadKeyContentType = "content_type"
	payloadKeyContentID   = "content_id"
	payloadKeySourceText  = "source_text"
	payloadKeyProjectID   = "project_id"
	payloadKeyCreatedAt   = "created_at"
	metadataKeyPrefix     = "meta_"
)

// QdrantConfig configures the Qdrant gRPC client
type QdrantConfig struct {
	Host             string
	Port             int
	UseTLS           bool
	APIKey           string
	VectorSize       uint64
	CollectionPrefix string
	RequestTimeout   time.Duration
	RetryAttempts    int
}

// ApplyDefaults sets default values for unset fields
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.VectorSize == 0 {
		c.VectorSize = 1536
	}
	if c.CollectionPrefix == "" {
		c.CollectionPrefix = "forge_"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
}

// QdrantClient implements Client over Qdrant's official gRPC client. Each
// content type owns one collection (<prefix><type>) with cosine distance.
type QdrantClient struct {
	client *qdrant.Client
	config QdrantConfig
}

// NewQdrantClient creates a Qdrant-backed vector store client. Connection
// failures are not surfaced here: the store may come up after the server, so
// reachability is checked per-operation and via Health.
func NewQdrantClient(cfg QdrantConfig) (*QdrantClient, error) {
	cfg.ApplyDefaults()
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid qdrant port: %d", cfg.Port)
	}

	qcfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
	}
	if !cfg.UseTLS {
		qcfg.GrpcOptions = append(qcfg.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantClient{client: client, config: cfg}, nil
}

// CollectionName returns the collection holding a content type's vectors
func (c *QdrantClient) CollectionName(t domain.ContentType) string {
	return c.config.CollectionPrefix + string(t)
}

// Health checks that the Qdrant backend is reachable
func (c *QdrantClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	if _, err := c.client.HealthCheck(ctx); err != nil {
		return classifyError(err)
	}
	return nil
}

// EnsureCollections creates any missing per-type collections
func (c *QdrantClient) EnsureCollections(ctx context.Context) error {
	for _, t := range domain.EmbeddableContentTypes() {
		name := c.CollectionName(t)
		exists, err := c.collectionExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		err = c.retryOperation(ctx, func(ctx context.Context) error {
			return c.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     c.config.VectorSize,
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		log.Printf("vectorstore: created collection %s", name)
	}
	return nil
}

func (c *QdrantClient) collectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := c.retryOperation(ctx, func(ctx context.Context) error {
		info, err := c.client.GetCollectionInfo(ctx, name)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	return exists, err
}

// Upsert replaces any existing record with the same content key. The point ID
// is derived from the key, so re-embedding overwrites in place.
func (c *QdrantClient) Upsert(ctx context.Context, key domain.ContentKey, vector []float32, payload Payload) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(PointID(key)),
		Vectors: qdrant.NewVectors(vector...),
		Payload: encodePayload(payload),
	}

	return c.retryOperation(ctx, func(ctx context.Context) error {
		_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: c.CollectionName(key.Type),
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
}

// Search returns up to Limit records with similarity >= Threshold, ordered by
// score descending. ContentTypeAll fans out across every collection and
// merges by score; arrival order breaks ties.
func (c *QdrantClient) Search(ctx context.Context, params SearchParams) ([]ScoredRecord, error) {
	if params.Limit <= 0 {
		return nil, nil
	}

	types := []domain.ContentType{params.ContentType}
	if params.ContentType == domain.ContentTypeAll {
		types = domain.EmbeddableContentTypes()
	}

	var merged []ScoredRecord
	for _, t := range types {
		hits, err := c.searchCollection(ctx, t, params)
		if err != nil {
			return nil, err
		}
		merged = append(merged, hits...)
	}

	if len(types) > 1 {
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].Score > merged[j].Score
		})
	}
	if len(merged) > params.Limit {
		merged = merged[:params.Limit]
	}
	return merged, nil
}

func (c *QdrantClient) searchCollection(ctx context.Context, t domain.ContentType, params SearchParams) ([]ScoredRecord, error) {
	var filter *qdrant.Filter
	if params.ProjectID != "" {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadKeyProjectID, params.ProjectID),
			},
		}
	}

	var results []*qdrant.ScoredPoint
	err := c.retryOperation(ctx, func(ctx context.Context) error {
		res, err := c.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: c.CollectionName(t),
			Query:          qdrant.NewQuery(params.Vector...),
			Limit:          qdrant.PtrOf(uint64(params.Limit)),
			ScoreThreshold: qdrant.PtrOf(params.Threshold),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	hits := make([]ScoredRecord, 0, len(results))
	for _, r := range results {
		hits = append(hits, ScoredRecord{
			Record: Record{
				ID:      r.Id.GetUuid(),
				Payload: decodePayload(r.Payload),
			},
			Score: r.Score,
		})
	}
	return hits, nil
}

// Get retrieves the record for a content key, or ErrNotFound
func (c *QdrantClient) Get(ctx context.Context, key domain.ContentKey) (*Record, error) {
	var points []*qdrant.RetrievedPoint
	err := c.retryOperation(ctx, func(ctx context.Context) error {
		res, err := c.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: c.CollectionName(key.Type),
			Ids:            []*qdrant.PointId{qdrant.NewIDUUID(PointID(key))},
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}

	return &Record{
		ID:      points[0].Id.GetUuid(),
		Payload: decodePayload(points[0].Payload),
	}, nil
}

// Delete removes the record for a content key. Deleting a missing record is
// not an error; callers that need a 404 must existence-check with Get first.
func (c *QdrantClient) Delete(ctx context.Context, key domain.ContentKey) error {
	return c.retryOperation(ctx, func(ctx context.Context) error {
		_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: c.CollectionName(key.Type),
			Points: qdrant.NewPointsSelector(
				qdrant.NewIDUUID(PointID(key)),
			),
		})
		return err
	})
}

// Close closes the underlying gRPC connection
func (c *QdrantClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// retryOperation retries transient failures with exponential backoff, then
// classifies the final error.
func (c *QdrantClient) retryOperation(ctx context.Context, operation func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		err := operation(opCtx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == c.config.RetryAttempts {
			break
		}

		log.Printf("vectorstore: retrying after transient error (attempt %d/%d): %v",
			attempt+1, c.config.RetryAttempts, err)

		select {
		case <-opCtx.Done():
			return fmt.Errorf("operation canceled: %w", opCtx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return classifyError(lastErr)
}

// classifyError maps unreachable-backend failures onto ErrStoreUnavailable
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return err
}

func isTransientError(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func encodePayload(p Payload) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		payloadKeyContentType: qdrant.NewValueString(string(p.ContentType)),
		payloadKeyContentID:   qdrant.NewValueString(p.ContentID),
		payloadKeySourceText:  qdrant.NewValueString(p.SourceText),
		payloadKeyCreatedAt:   qdrant.NewValueString(p.CreatedAt.UTC().Format(time.RFC3339Nano)),
	}
	if p.ProjectID != "" {
		payload[payloadKeyProjectID] = qdrant.NewValueString(p.ProjectID)
	}
	for k, v := range p.Metadata {
		payload[metadataKeyPrefix+k] = qdrant.NewValueString(v)
	}
	return payload
}

func decodePayload(values map[string]*qdrant.Value) Payload {
	p := Payload{}
	if values == nil {
		return p
	}

	for k, v := range values {
		s := v.GetStringValue()
		switch k {
		case payloadKeyContentType:
			p.ContentType = domain.ContentType(s)
		case payloadKeyContentID:
			p.ContentID = s
		case payloadKeySourceText:
			p.SourceText = s
		case payloadKeyProjectID:
			p.ProjectID = s
		case payloadKeyCreatedAt:
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				p.CreatedAt = ts
			}
		default:
			if len(k) > len(metadataKeyPrefix) && k[:len(metadataKeyPrefix)] == metadataKeyPrefix {
				if p.Metadata == nil {
					p.Metadata = make(map[string]string)
				}
				p.Metadata[k[len(metadataKeyPrefix):]] = s
			}
		}
	}
	return p
}

// Ensure QdrantClient implements Client
var _ Client = (*QdrantClient)(nil)
