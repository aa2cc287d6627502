package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"lexcase-backend/internal/analysis"
	"lexcase-backend/internal/cases"
	"lexcase-backend/internal/credits"
	"lexcase-backend/internal/documents"
	"lexcase-backend/internal/llm"
	openai "lexcase-backend/internal/llm/openai"
	"lexcase-backend/internal/queue"
	"lexcase-backend/internal/shared/config"
	"lexcase-backend/internal/shared/server"
	"lexcase-backend/internal/shared/storage/db"
	"lexcase-backend/internal/shared/storage/object"
	localstore "lexcase-backend/internal/shared/storage/object/local"
	s3store "lexcase-backend/internal/shared/storage/object/s3"
	"lexcase-backend/internal/shared/storage/redisdb"
)

// App holds shared dependencies for the api and worker processes.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Redis  *redis.Client
	Store  object.ObjectStore
	Queue  queue.Client

	CasesRepo     cases.Repo
	DocumentsRepo documents.Repo
	AnalysisRepo  analysis.Repo

	DocumentsService *documents.Service
	AnalysisService  *analysis.Service
	JobProcessor     JobProcessor

	CaseHandler     *cases.Handler
	DocumentHandler *documents.Handler
	AnalysisHandler *analysis.Handler
}

// JobProcessor allows callers to override job processing for tests.
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) error
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := buildRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Redis:  redisClient,
		Store:  store,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		AnalysisHandler: app.AnalysisHandler,
		CaseHandler:     app.CaseHandler,
		DocumentHandler: app.DocumentHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: REDIS_URL empty; using in-memory cache and locks")
			return nil, nil
		}
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	client, err := redisdb.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: redis connect failed; using in-memory cache and locks: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return client, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context) (queue.Client, error) {
	if strings.TrimSpace(os.Getenv("LEX_SQS_QUEUE_URL")) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	var caseRepo cases.Repo
	var docRepo documents.Repo
	var analysisRepo analysis.Repo
	var creditsChecker credits.Checker

	if app.DB != nil {
		caseRepo = &cases.PGRepo{DB: app.DB}
		docRepo = &documents.PGRepo{DB: app.DB}
		analysisRepo = &analysis.PGRepo{DB: app.DB}
		creditsChecker = &credits.PGChecker{DB: app.DB}
	} else {
		caseRepo = cases.NewMemoryRepo()
		docRepo = documents.NewMemoryRepo()
		analysisRepo = analysis.NewMemoryRepo()
		memChecker := credits.NewMemoryChecker()
		memChecker.Unlimited = true
		creditsChecker = memChecker
	}

	var cache analysis.Cache
	var locks analysis.Locker
	if app.Redis != nil {
		cache = &analysis.RedisCache{Client: app.Redis, Cases: caseRepo}
		locks = &analysis.RedisLocker{Client: app.Redis}
	} else {
		cache = analysis.NewMemoryCache(caseRepo)
		locks = analysis.NewMemoryLocker()
	}

	docSvc := &documents.Service{
		Repo:  docRepo,
		Store: app.Store,
	}

	llmClient := llm.Client(llm.PlaceholderClient{})
	if app.Config.LLMProvider == "openai" {
		openaiClient, err := openai.NewClient(os.Getenv("OPENAI_API_KEY"), app.Config.LLMModel)
		if err != nil {
			return err
		}
		llmClient = openaiClient
	}

	analysisSvc := &analysis.Service{
		Repo:       analysisRepo,
		Cache:      cache,
		Locks:      locks,
		Cases:      caseRepo,
		Docs:       docSvc,
		DocRepo:    docRepo,
		LLM:        llmClient,
		Queue:      app.Queue,
		Credits:    creditsChecker,
		Model:      app.Config.LLMModel,
		CacheTTL:   app.Config.CacheTTL,
		LockTTL:    app.Config.LockTTL,
		LLMTimeout: app.Config.LLMTimeout,
	}

	app.CasesRepo = caseRepo
	app.DocumentsRepo = docRepo
	app.AnalysisRepo = analysisRepo
	app.DocumentsService = docSvc
	app.AnalysisService = analysisSvc
	app.JobProcessor = analysisSvc
	app.CaseHandler = cases.NewHandler(caseRepo)
	app.DocumentHandler = documents.NewHandler(docSvc)
	app.AnalysisHandler = analysis.NewHandler(analysisSvc)

	return nil
}
