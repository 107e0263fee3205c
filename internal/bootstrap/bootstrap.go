package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/dzaytsev/ragfusion/internal/config"
	"github.com/dzaytsev/ragfusion/internal/core/domain"
	"github.com/dzaytsev/ragfusion/internal/core/ports"
	"github.com/dzaytsev/ragfusion/internal/core/usecase"
	"github.com/dzaytsev/ragfusion/internal/infrastructure/embedding"
	"github.com/dzaytsev/ragfusion/internal/infrastructure/queue/nats"
	"github.com/dzaytsev/ragfusion/internal/infrastructure/repository/postgres"
	"github.com/dzaytsev/ragfusion/internal/infrastructure/resilience"
	redisstore "github.com/dzaytsev/ragfusion/internal/infrastructure/session/redis"
	"github.com/dzaytsev/ragfusion/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue    *nats.Queue
	SearchUC ports.SearchService
	Cache    ports.AnswerCache
	Feedback ports.FeedbackLog
	Indexer  ports.VectorIndexer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	feedback := postgres.NewFeedbackRepository(db)
	if err := feedback.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	redisClient, err := redisstore.Open(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("open redis: %w", err)
	}
	sessions := redisstore.NewStore(redisClient)

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init rating queue: %w", err)
	}

	embedder := embedding.New(cfg.EmbedURL, cfg.EmbedDenseModel, cfg.EmbedLateModel, executor)

	documents := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		UpsertBatchSize: cfg.UpsertBatchSize,
		UpsertRate:      rate.Limit(cfg.UpsertRatePerSec),
	})
	answers := qdrant.NewCacheClient(cfg.QdrantURL, cfg.QdrantCacheCollection)

	vectorizer := usecase.NewVectorizer(embedder, cfg.StopwordList(), logger)
	fusion := usecase.NewFusionEngine(documents, cfg.DenseSearchLimit, cfg.SparseSearchLimit, logger)
	reranker := usecase.NewReranker(documents, logger)

	searchUC := usecase.NewSearchUseCase(vectorizer, fusion, reranker, answers, usecase.SearchConfig{
		Fusion: domain.FusionParams{
			TopK:            cfg.SearchTopK,
			Alpha:           cfg.FusionAlpha,
			FusionThreshold: cfg.FusionThreshold,
			DenseThreshold:  cfg.DenseThreshold,
			SparseThreshold: cfg.SparseThreshold,
		},
		Prefetch: domain.PrefetchLimits{
			Dense:  cfg.PrefetchDense,
			Sparse: cfg.PrefetchSparse,
		},
		RerankLimit:     cfg.RerankLimit,
		CacheThreshold:  cfg.CacheScoreThreshold,
		MinCachedRating: cfg.CacheMinRating,
	}, logger)

	sessionTTL := time.Duration(cfg.SessionTimeoutSeconds) * time.Second
	cache := usecase.NewSessionCache(sessions, answers, embedder, sessionTTL, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:    queue,
		SearchUC: searchUC,
		Cache:    cache,
		Feedback: feedback,
		Indexer:  documents,

		closeFn: func() {
			queue.Close()
			_ = redisClient.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
