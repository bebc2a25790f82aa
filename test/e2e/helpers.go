//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dexploarer/forge-sub003/internal/api/handlers"
	"github.com/Dexploarer/forge-sub003/internal/jobs"
	"github.com/Dexploarer/forge-sub003/internal/repository"
	"github.com/Dexploarer/forge-sub003/internal/server"
	"github.com/Dexploarer/forge-sub003/internal/service"
	"github.com/Dexploarer/forge-sub003/internal/storage"
	"github.com/Dexploarer/forge-sub003/internal/testutil"
	"github.com/Dexploarer/forge-sub003/internal/vectorstore"
)

const testVectorSize = 64

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	QdrantC      *testutil.QdrantContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	VectorClient vectorstore.Client
	CDNClient    *storage.CDNClient
	Worker       *jobs.Worker
	ServerURL    string
	ServerCloser func()
	UserID       string
	TeamID       string
	APIKeyToken  string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	qdC := testutil.NewQdrantContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	vectorClient, err := vectorstore.NewQdrantClient(vectorstore.QdrantConfig{
		Host:       qdC.Host,
		Port:       qdC.GrpcPort,
		VectorSize: testVectorSize,
	})
	if err != nil {
		t.Fatalf("failed to create vector client: %v", err)
	}
	if err := vectorClient.EnsureCollections(ctx); err != nil {
		t.Fatalf("failed to ensure collections: %v", err)
	}

	cdnClient, err := storage.NewCDNClient(ctx, storage.CDNClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-cdn",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create CDN client: %v", err)
	}
	if err := cdnClient.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, worker, serverCloser := startServer(t, pool, vectorClient, cdnClient, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		QdrantC:      qdC,
		RustFSC:      s3C,
		Pool:         pool,
		VectorClient: vectorClient,
		CDNClient:    cdnClient,
		Worker:       worker,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.VectorClient != nil {
		e.VectorClient.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.QdrantC != nil {
		e.QdrantC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// Bootstrap creates a user with a team and an API key for testing
func (e *E2ETestEnv) Bootstrap() {
	userRepo := repository.NewUserRepository(e.Pool)
	apiKeyRepo := repository.NewAPIKeyRepository(e.Pool)
	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(userRepo, apiKeyRepo, uuidGen)

	e.TeamID = uuidGen.NewString()
	user, err := authSvc.CreateUser(e.Ctx, "e2e-user", &e.TeamID)
	if err != nil {
		e.T.Fatalf("failed to create user: %v", err)
	}
	e.UserID = user.ID

	token, err := authSvc.CreateAPIKey(e.Ctx, user.ID, "e2e-test-key")
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}
	e.APIKeyToken = token
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (json.RawMessage, int, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (json.RawMessage, int, error) {
	return e.doRequest("POST", path, body, authToken)
}

// Put performs a PUT request
func (e *E2ETestEnv) Put(path string, body interface{}, authToken string) (json.RawMessage, int, error) {
	return e.doRequest("PUT", path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (json.RawMessage, int, error) {
	return e.doRequest("DELETE", path, nil, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (json.RawMessage, int, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, 0, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		return respBody, resp.StatusCode, fmt.Errorf("HTTP %d (%s): %s", resp.StatusCode, errResp.Code, errResp.Error)
	}

	return respBody, resp.StatusCode, nil
}

// startServer starts the HTTP server with all handlers wired to the containers
func startServer(t *testing.T, pool *pgxpool.Pool, vectorClient vectorstore.Client, cdnClient *storage.CDNClient, port int) (string, *jobs.Worker, func()) {
	userRepo := repository.NewUserRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	manifestRepo := repository.NewManifestRepository(pool)
	policyRepo := repository.NewPolicyRepository(pool)
	embeddingJobRepo := repository.NewEmbeddingJobRepository(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	embeddingClient := &fakeEmbeddingClient{}

	embedderSvc := service.NewEmbedderService(embeddingClient, vectorClient)
	searchSvc := service.NewSearchService(embeddingClient, vectorClient)
	policySvc := service.NewPolicyService(policyRepo)
	manifestSvc := service.NewManifestService(manifestRepo, embeddingJobRepo, cdnClient)
	aggregatorSvc := service.NewAggregatorService(policySvc, manifestRepo, searchSvc)
	authSvc := service.NewAuthService(userRepo, apiKeyRepo, uuidGen)

	processor := jobs.NewEmbeddingWorker(embeddingJobRepo, embedderSvc)
	worker := jobs.NewWorker(processor, 200*time.Millisecond)
	ctx, cancelWorker := context.WithCancel(context.Background())
	go worker.Start(ctx)

	cfg := server.RouterConfig{
		AuthValidator:     authSvc,
		EmbeddingsHandler: handlers.NewEmbeddingsHandler(embedderSvc, searchSvc),
		AIContextHandler:  handlers.NewAIContextHandler(policySvc, aggregatorSvc, authSvc),
		ManifestsHandler:  handlers.NewManifestsHandler(manifestSvc, authSvc),
		DatabaseHealth:    &pgxHealth{pool: pool},
		VectorHealth:      vectorClient,
	}

	router := server.NewRouter(cfg)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, worker, func() {
		cancelWorker()
		worker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

type pgxHealth struct {
	pool *pgxpool.Pool
}

func (p *pgxHealth) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// fakeEmbeddingClient derives deterministic unit vectors from token hashes so
// that texts sharing words land close together in vector space without
// calling a real embedding provider.
type fakeEmbeddingClient struct{}

func (c *fakeEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, testVectorSize)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := sha256.Sum256([]byte(word))
		for i := 0; i < testVectorSize; i++ {
			bits := binary.LittleEndian.Uint32(h[(i*4)%28 : (i*4)%28+4])
			vec[i] += float32(int32(bits%2001)-1000) / 1000
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (c *fakeEmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
