package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/Dexploarer/forge-sub003/internal/api/handlers"
	"github.com/Dexploarer/forge-sub003/internal/config"
	"github.com/Dexploarer/forge-sub003/internal/database"
	"github.com/Dexploarer/forge-sub003/internal/domain"
	"github.com/Dexploarer/forge-sub003/internal/jobs"
	"github.com/Dexploarer/forge-sub003/internal/openai"
	"github.com/Dexploarer/forge-sub003/internal/repository"
	"github.com/Dexploarer/forge-sub003/internal/server"
	"github.com/Dexploarer/forge-sub003/internal/service"
	"github.com/Dexploarer/forge-sub003/internal/storage"
	"github.com/Dexploarer/forge-sub003/internal/telemetry"
	"github.com/Dexploarer/forge-sub003/internal/vectorstore"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the forge API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.PoolConfig{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	userRepo := repository.NewUserRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	manifestRepo := repository.NewManifestRepository(pool)
	policyRepo := repository.NewPolicyRepository(pool)
	embeddingJobRepo := repository.NewEmbeddingJobRepository(pool)

	if cfg.InitUserName != "" {
		if err := bootstrapInitialUser(ctx, cfg, userRepo, apiKeyRepo); err != nil {
			return fmt.Errorf("failed to bootstrap initial user: %w", err)
		}
	}

	vectorClient, err := vectorstore.NewQdrantClient(vectorstore.QdrantConfig{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: cfg.QdrantUseTLS,
	})
	if err != nil {
		return fmt.Errorf("failed to create vector store client: %w", err)
	}
	defer vectorClient.Close()

	// Collection creation is best effort: an unreachable vector store must not
	// block startup, the API degrades instead
	if err := vectorClient.EnsureCollections(ctx); err != nil {
		log.Printf("vector store collections not ready (continuing): %v", err)
	}

	var publisher service.ManifestPublisher
	if cfg.HasS3() {
		cdnClient, err := storage.NewCDNClient(ctx, storage.CDNClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create CDN client: %w", err)
		}
		if err := cdnClient.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure CDN bucket: %w", err)
		}
		log.Printf("CDN bucket '%s' ready", cfg.S3Bucket)
		publisher = cdnClient
	}

	var embeddingClient service.EmbeddingClient
	if cfg.HasOpenAI() {
		embeddingClient = openai.NewClient(cfg.OpenAIAPIKey)
	} else {
		log.Println("no embedding provider configured, embedding operations will be unavailable")
		embeddingClient = &unavailableEmbeddingClient{}
	}

	uuidGen := &service.DefaultUUIDGenerator{}

	embedderSvc := service.NewEmbedderService(embeddingClient, vectorClient)
	searchSvc := service.NewSearchService(embeddingClient, vectorClient)
	policySvc := service.NewPolicyService(policyRepo)
	manifestSvc := service.NewManifestService(manifestRepo, embeddingJobRepo, publisher)
	aggregatorSvc := service.NewAggregatorService(policySvc, manifestRepo, searchSvc)
	authSvc := service.NewAuthService(userRepo, apiKeyRepo, uuidGen)

	embeddingProcessor := jobs.NewEmbeddingWorker(embeddingJobRepo, embedderSvc)
	embeddingWorker := jobs.NewWorker(embeddingProcessor, 10*time.Second)
	go embeddingWorker.Start(ctx)
	log.Println("embedding worker started")

	routerCfg := server.RouterConfig{
		AuthValidator:     authSvc,
		EmbeddingsHandler: handlers.NewEmbeddingsHandler(embedderSvc, searchSvc),
		AIContextHandler:  handlers.NewAIContextHandler(policySvc, aggregatorSvc, authSvc),
		ManifestsHandler:  handlers.NewManifestsHandler(manifestSvc, authSvc),
		DatabaseHealth:    &poolHealth{pool: pool},
		VectorHealth:      vectorClient,
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	embeddingWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// poolHealth adapts a pgxpool to the router's health-check interface
type poolHealth struct {
	pool *pgxpool.Pool
}

func (p *poolHealth) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// unavailableEmbeddingClient stands in when no provider API key is configured
type unavailableEmbeddingClient struct{}

func (c *unavailableEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, domain.ErrEmbeddingProviderUnavailable
}

func (c *unavailableEmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, domain.ErrEmbeddingProviderUnavailable
}

func bootstrapInitialUser(ctx context.Context, cfg *config.Config, userRepo *repository.UserRepository, apiKeyRepo *repository.APIKeyRepository) error {
	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(userRepo, apiKeyRepo, uuidGen)

	user, err := userRepo.GetByName(ctx, cfg.InitUserName)
	if err != nil && err != domain.ErrUserNotFound {
		return fmt.Errorf("failed to check existing user: %w", err)
	}

	if user == nil {
		user, err = authSvc.CreateUser(ctx, cfg.InitUserName, nil)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		log.Printf("bootstrap: created user '%s' (id: %s)", user.Name, user.ID)
	} else {
		log.Printf("bootstrap: user '%s' already exists (id: %s)", user.Name, user.ID)
	}

	if cfg.InitAPIKey != "" {
		if !service.IsValidAPIToken(cfg.InitAPIKey) {
			return fmt.Errorf("invalid FORGE_INIT_API_KEY format (expected 'frg_<64 hex chars>')")
		}

		existingKey, err := authSvc.GetAPIKeyByToken(ctx, cfg.InitAPIKey)
		if err == nil && existingKey != nil {
			log.Printf("bootstrap: API key already exists (id: %s)", existingKey.ID)
			return nil
		}

		if err := authSvc.CreateAPIKeyWithToken(ctx, user.ID, "bootstrap", cfg.InitAPIKey); err != nil {
			return fmt.Errorf("failed to create API key: %w", err)
		}
		log.Printf("bootstrap: created API key")
	}

	return nil
}

func runMigrations(databaseURL string) error {
	// golang-migrate needs a database/sql handle
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
