package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
	"github.com/dzaytsev/ragfusion/internal/core/ports"
)

// Reranker is the two-stage retrieval strategy: stage 1 gathers candidates
// per available signal without fusion, stage 2 reranks their union with the
// max-similarity comparator of the late-interaction space. No thresholds, no
// normalization; this path is an alternative to fusion, not composed with it.
type Reranker struct {
	searcher ports.VectorSearcher
	logger   *slog.Logger
}

const defaultPrefetchLimit = 20

func NewReranker(searcher ports.VectorSearcher, logger *slog.Logger) *Reranker {
	return &Reranker{
		searcher: searcher,
		logger:   logger,
	}
}

func (r *Reranker) Rerank(
	ctx context.Context,
	dense []float32,
	sparse domain.SparseVector,
	late domain.LateVector,
	prefetch domain.PrefetchLimits,
	finalLimit int,
) ([]domain.ScoredPoint, error) {
	if len(late) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "rerank", errors.New("late-interaction query vector is required"))
	}
	if len(dense) == 0 && sparse.IsEmpty() {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "rerank", errors.New("at least one prefetch vector is required"))
	}
	if finalLimit <= 0 {
		finalLimit = 10
	}
	// A supplied vector always gets a prefetch branch; a zero limit here is a
	// misconfiguration, not a request to skip the signal.
	if len(dense) > 0 && prefetch.Dense <= 0 {
		prefetch.Dense = defaultPrefetchLimit
	}
	if !sparse.IsEmpty() && prefetch.Sparse <= 0 {
		prefetch.Sparse = defaultPrefetchLimit
	}

	hits, err := r.searcher.QueryLateRerank(ctx, dense, sparse, late, prefetch, finalLimit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "late rerank query", err)
	}
	r.logger.Info("rerank_done", "hits", len(hits), "final_limit", finalLimit)
	return hits, nil
}
