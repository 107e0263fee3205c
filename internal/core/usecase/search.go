package usecase

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
	"github.com/dzaytsev/ragfusion/internal/core/ports"
)

type SearchConfig struct {
	Fusion          domain.FusionParams
	Prefetch        domain.PrefetchLimits
	RerankLimit     int
	CacheThreshold  float64
	MinCachedRating float64
}

// SearchUseCase answers one query: it vectorizes the normalized text, then
// runs the fresh retrieval and the QA cache lookup as a race-free join. Both
// legs complete before the result is assembled; a cached answer, when
// present, is preferred by the caller.
type SearchUseCase struct {
	vectorizer *Vectorizer
	fusion     *FusionEngine
	reranker   *Reranker
	answers    ports.AnswerStore
	cfg        SearchConfig
	logger     *slog.Logger
}

func NewSearchUseCase(
	vectorizer *Vectorizer,
	fusion *FusionEngine,
	reranker *Reranker,
	answers ports.AnswerStore,
	cfg SearchConfig,
	logger *slog.Logger,
) *SearchUseCase {
	return &SearchUseCase{
		vectorizer: vectorizer,
		fusion:     fusion,
		reranker:   reranker,
		answers:    answers,
		cfg:        cfg,
		logger:     logger,
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error) {
	normalized := uc.vectorizer.Normalize(query)

	if opts.Mode == domain.ModeRerank {
		return uc.searchRerank(ctx, normalized, opts)
	}
	return uc.searchFusion(ctx, normalized, opts)
}

func (uc *SearchUseCase) searchFusion(ctx context.Context, normalized string, opts domain.SearchOptions) (*domain.SearchResult, error) {
	dense, sparse, err := uc.vectorizer.Vectorize(ctx, normalized)
	if err != nil {
		// Fresh search needs both vectors, but the cache lookup degrades to
		// the dense vector alone. A cached answer still beats a dead end.
		return uc.lookupOnly(ctx, normalized, err)
	}

	params := uc.cfg.Fusion
	if opts.TopK > 0 {
		params.TopK = opts.TopK
	}

	var (
		hits   []domain.HybridHit
		cached *domain.CachedAnswer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fused, err := uc.fusion.Fuse(gctx, dense, sparse, params)
		if err != nil {
			return err
		}
		hits = fused
		return nil
	})
	g.Go(func() error {
		found, err := uc.lookupCached(gctx, dense)
		if err != nil {
			uc.logger.Warn("cache_lookup_failed", "error", err)
			return nil
		}
		cached = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.SearchResult{
		Query:  normalized,
		Hits:   hits,
		Cached: cached,
	}, nil
}

func (uc *SearchUseCase) searchRerank(ctx context.Context, normalized string, opts domain.SearchOptions) (*domain.SearchResult, error) {
	dense, sparse, err := uc.vectorizer.Vectorize(ctx, normalized)
	if err != nil {
		return nil, err
	}
	late, err := uc.vectorizer.VectorizeLate(ctx, normalized)
	if err != nil {
		return nil, err
	}

	limit := uc.cfg.RerankLimit
	if opts.TopK > 0 {
		limit = opts.TopK
	}
	points, err := uc.reranker.Rerank(ctx, dense, sparse, late, uc.cfg.Prefetch, limit)
	if err != nil {
		return nil, err
	}

	hits := make([]domain.HybridHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, domain.HybridHit{
			ID:      p.ID,
			Score:   p.Score,
			Source:  domain.SourceLate,
			Payload: p.Payload,
		})
	}
	return &domain.SearchResult{
		Query: normalized,
		Hits:  hits,
	}, nil
}

// lookupOnly is the degraded path taken when the full vectorization failed:
// if the dense vector alone can be computed, a cache hit can still be served.
// The original embedding error propagates otherwise.
func (uc *SearchUseCase) lookupOnly(ctx context.Context, normalized string, embedErr error) (*domain.SearchResult, error) {
	dense, err := uc.vectorizer.VectorizeForLookup(ctx, normalized)
	if err != nil {
		return nil, embedErr
	}
	cached, err := uc.lookupCached(ctx, dense)
	if err != nil || cached == nil {
		return nil, embedErr
	}
	uc.logger.Warn("degraded_cache_hit", "error", embedErr)
	return &domain.SearchResult{
		Query:  normalized,
		Hits:   []domain.HybridHit{},
		Cached: cached,
	}, nil
}

func (uc *SearchUseCase) lookupCached(ctx context.Context, dense []float32) (*domain.CachedAnswer, error) {
	found, err := uc.answers.Lookup(ctx, dense, 1)
	if err != nil {
		return nil, err
	}
	for _, answer := range found {
		if answer.Score < uc.cfg.CacheThreshold {
			continue
		}
		if answer.Rating < uc.cfg.MinCachedRating {
			continue
		}
		return &answer, nil
	}
	return nil, nil
}
