package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/grounded-rag/internal/config"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
	"github.com/kirillkom/grounded-rag/internal/core/ranking"
	"github.com/kirillkom/grounded-rag/internal/core/usecase"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/embedcache"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/glossary"
	neo4jgraph "github.com/kirillkom/grounded-rag/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/grounded-rag/internal/observability/metrics"
)

// Dependencies are the process-level collaborators a binary hands to New.
type Dependencies struct {
	Service string
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics
}

type App struct {
	Config config.Config

	Queue    ports.ChunkRepairQueue
	RankUC   *usecase.RankChunksUseCase
	RepairUC *usecase.RepairChunkUseCase

	closers []func()
}

func New(ctx context.Context, cfg config.Config, deps Dependencies) (*App, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg}

	profile, err := glossary.Load(cfg.GlossaryPath, cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("load scoring profile: %w", err)
	}
	scoring := profile.Scoring

	executor := resilience.NewExecutor(cfg.Resilience,
		resilience.WithLogger(logger),
		resilience.WithStateListener(func(operation string, _, to gobreaker.State) {
			if deps.Metrics != nil {
				deps.Metrics.SetBreakerState(deps.Service, operation, to)
			}
		}),
	)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	chunkRepo := postgres.NewChunkRepository(db, scoring.EmbeddingDimension)

	sources := usecase.RankSources{
		Chunks:     chunkRepo,
		Glossary:   profile.Table,
		Reflection: postgres.NewReflectionRepository(db),
		Preference: postgres.NewPreferenceRepository(db),
		Summaries:  postgres.NewDocumentRepository(db),
	}

	// Repairs go to the store the candidates came from.
	var repairer ports.ChunkStatusRepairer = chunkRepo
	if cfg.CandidateSource == config.SourceQdrant {
		points := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection,
			qdrant.WithExecutor(executor),
			qdrant.WithPageSize(cfg.QdrantPageSize),
			qdrant.WithDimension(scoring.EmbeddingDimension),
		)
		sources.Chunks = points
		repairer = points
	}

	switch cfg.AnchorSource {
	case config.SourceNeo4j:
		driver, err := neo4jgraph.NewDriver(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init anchor graph: %w", err)
		}
		app.closers = append(app.closers, func() { _ = driver.Close(context.Background()) })
		graph := neo4jgraph.NewAnchorGraph(driver, cfg.Neo4jDatabase)
		sources.Anchors = graph
		sources.Weights = graph
	default:
		anchorRepo := postgres.NewAnchorRepository(db)
		sources.Anchors = anchorRepo
		sources.Weights = anchorRepo
	}

	if cfg.RepairEnabled {
		queue, err := nats.New(cfg.NATSURL, cfg.NATSRepairSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init repair queue: %w", err)
		}
		app.closers = append(app.closers, queue.Close)
		app.Queue = queue
		sources.RepairQueue = queue
	}

	embedder, err := newEmbedder(cfg, executor, deps)
	if err != nil {
		app.Close()
		return nil, err
	}

	ranker := ranking.NewRanker(ranking.TokenOverlapMatcher{MinOverlap: cfg.FuzzyMinOverlap}, logger)
	app.RankUC = usecase.NewRankChunksUseCase(embedder, sources, ranker, usecase.RankSettings{
		Scoring:          scoring,
		CandidateLimit:   cfg.CandidateLimit,
		ReflectionWindow: cfg.ReflectionWindow,
	}, logger)
	app.RepairUC = usecase.NewRepairChunkUseCase(repairer, logger)

	logger.Info("bootstrap_completed",
		"candidate_source", cfg.CandidateSource,
		"anchor_source", cfg.AnchorSource,
		"glossary_terms", len(profile.Table.Terms()),
		"acronym_pairs", len(profile.Table.AcronymPairs()),
		"repair_enabled", cfg.RepairEnabled,
	)
	return app, nil
}

func newEmbedder(cfg config.Config, executor *resilience.Executor, deps Dependencies) (ports.Embedder, error) {
	client := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, ollama.WithExecutor(executor))
	embedder := ollama.NewEmbedder(client)
	if cfg.EmbedCacheSize <= 0 {
		return embedder, nil
	}

	cached, err := embedcache.New(embedder, embedder.Model(), cfg.EmbedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	if deps.Metrics != nil {
		cached.OnLookup = func(hit bool) {
			deps.Metrics.RecordEmbedCacheLookup(deps.Service, hit)
		}
	}
	return cached, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
