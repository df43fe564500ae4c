package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/config"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/ports"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/usecase"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/chunking"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/export/xlsx"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/llm/embedcache"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/llm/ollama"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/llm/openai"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/partition"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/pdfgeom"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/queue/nats"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/repository/postgres"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/resilience"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/storage/localfs"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/storage/minio"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/vector/pgvector"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config
	Logger *zap.Logger

	Queue     *nats.Queue
	Catalog   ports.FilingCatalog
	AuditUC   ports.Auditor
	IngestUC  ports.FilingIngestor
	IndexUC   ports.FilingIndexer
	VaultUC   ports.VaultPurger
	Citations ports.CitationLocator
	Drafter   ports.ReportDrafter
	Exporter  ports.WorkpaperExporter

	closeFn func()
}

type llmPorts struct {
	embedder   ports.Embedder
	classifier ports.RelevanceClassifier
	generator  ports.AnswerGenerator
}

// New wires every adapter. recorder may be nil.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, recorder usecase.AuditRecorder) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewFilingRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := newStorage(cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg))
	store, err := newEvidenceStore(cfg, db, executor)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init evidence store: %w", err)
	}

	llm, err := newLLM(cfg, executor)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init llm: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	decoder := partition.NewDecoder()
	grouper := chunking.NewGrouper(cfg.ChunkMaxChars, cfg.ChunkSoftMaxChars)

	retriever := usecase.NewEvidenceRetriever(llm.embedder, store)
	grader := usecase.NewRelevanceGrader(llm.classifier, cfg.GradeParallelism)
	answerer := usecase.NewAnswerGenerator(llm.generator)
	auditUC := usecase.NewAuditUseCase(retriever, grader, answerer, recorder)

	logger.Info("bootstrap complete",
		zap.String("vector_backend", cfg.VectorBackend),
		zap.String("llm_backend", cfg.LLMBackend),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.Int("embedding_dimension", cfg.EmbeddingDimension),
	)

	return &App{
		Config: cfg,
		Logger: logger,
		Queue:  queue,

		Catalog:   usecase.NewCatalogUseCase(repo),
		AuditUC:   auditUC,
		IngestUC:  usecase.NewIngestFilingUseCase(repo, storage, queue, decoder),
		IndexUC:   usecase.NewIndexFilingUseCase(repo, storage, decoder, grouper, llm.embedder, store, cfg.EmbeddingDimension),
		VaultUC:   usecase.NewVaultUseCase(repo, store),
		Citations: usecase.NewCitationUseCase(store, repo, storage, pdfgeom.NewReader()),
		Drafter:   usecase.NewDraftUseCase(llm.generator),
		Exporter:  usecase.NewExportUseCase(auditUC, xlsx.NewWriter()),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
			_ = logger.Sync()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	out.BreakerFailureRatio = cfg.ResilienceFailureRatio
	out.BreakerOpenTimeout = time.Duration(cfg.ResilienceOpenTimeoutSec) * time.Second
	return out
}

func newStorage(cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendMinIO:
		return minio.New(minio.Config{
			Endpoint:  cfg.MinIOEndpoint,
			Region:    cfg.MinIORegion,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	default:
		return localfs.New(cfg.StoragePath)
	}
}

func newEvidenceStore(cfg config.Config, db *sql.DB, executor *resilience.Executor) (ports.EvidenceStore, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendQdrant:
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor), nil
	default:
		return pgvector.New(db, cfg.PGVectorTable, executor)
	}
}

func newLLM(cfg config.Config, executor *resilience.Executor) (llmPorts, error) {
	var out llmPorts
	var embedder ports.Embedder
	switch cfg.LLMBackend {
	case config.LLMBackendOpenAI:
		client := openai.New(openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			ChatModel:  cfg.OpenAIChatModel,
			EmbedModel: cfg.OpenAIEmbedModel,
			Dimensions: cfg.EmbeddingDimension,
		}, executor)
		embedder = openai.NewEmbedder(client)
		out.classifier = openai.NewClassifier(client)
		out.generator = openai.NewGenerator(client)
	default:
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.LLMTimeout(), executor)
		embedder = ollama.NewEmbedder(client)
		out.classifier = ollama.NewClassifier(client)
		out.generator = ollama.NewGenerator(client)
	}

	if cfg.EmbedCacheSize > 0 {
		cached, err := embedcache.New(embedder, cfg.EmbedCacheSize)
		if err != nil {
			return llmPorts{}, err
		}
		embedder = cached
	}
	out.embedder = embedder
	return out, nil
}
