package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
	"github.com/dzaytsev/ragfusion/internal/core/ports"
)

// FusionEngine combines dense and sparse retrieval signals into one ranked
// list. Dense (cosine, bounded) and sparse (BM25-like, unbounded) scores live
// on different scales, so each signal is min-max normalized within its own
// surviving hit list before the weighted combination; that keeps alpha a
// meaningful weight instead of a unit mismatch.
type FusionEngine struct {
	searcher    ports.VectorSearcher
	denseLimit  int
	sparseLimit int
	logger      *slog.Logger
}

func NewFusionEngine(searcher ports.VectorSearcher, denseLimit, sparseLimit int, logger *slog.Logger) *FusionEngine {
	if denseLimit <= 0 {
		denseLimit = 50
	}
	if sparseLimit <= 0 {
		sparseLimit = 50
	}
	return &FusionEngine{
		searcher:    searcher,
		denseLimit:  denseLimit,
		sparseLimit: sparseLimit,
		logger:      logger,
	}
}

// scoreRecord is the per-candidate accumulator built during one fusion run.
// order remembers first-encounter position (dense hits first, then
// sparse-only hits) and breaks ties between equal fused scores.
type scoreRecord struct {
	dense     float64
	sparse    float64
	rawDense  float64
	rawSparse float64
	payload   domain.DocumentPayload
	order     int
}

// Fuse runs both signal queries, filters by per-signal raw thresholds,
// normalizes, merges by candidate id and returns up to params.TopK hits
// sorted by descending fused score. A failed signal query degrades to zero
// hits for that signal; only a request with no query vectors at all is an
// error.
func (e *FusionEngine) Fuse(
	ctx context.Context,
	dense []float32,
	sparse domain.SparseVector,
	params domain.FusionParams,
) ([]domain.HybridHit, error) {
	if len(dense) == 0 && sparse.IsEmpty() {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "fuse", errors.New("both dense and sparse query vectors are empty"))
	}

	denseHits, sparseHits := e.runSignalQueries(ctx, dense, sparse, params)
	if len(denseHits) == 0 && len(sparseHits) == 0 {
		e.logger.Warn("no_hits_above_thresholds")
		return []domain.HybridHit{}, nil
	}
	e.logger.Info("signal_hits", "dense", len(denseHits), "sparse", len(sparseHits))

	acc := make(map[string]*scoreRecord, len(denseHits)+len(sparseHits))
	order := 0

	if len(denseHits) > 0 {
		normalized, err := normalizeScores(rawScores(denseHits))
		if err != nil {
			return nil, err
		}
		for i, hit := range denseHits {
			acc[hit.ID] = &scoreRecord{
				dense:    normalized[i],
				rawDense: hit.Score,
				payload:  hit.Payload,
				order:    order,
			}
			order++
		}
	}

	if len(sparseHits) > 0 {
		normalized, err := normalizeScores(rawScores(sparseHits))
		if err != nil {
			return nil, err
		}
		for i, hit := range sparseHits {
			rec, ok := acc[hit.ID]
			if !ok {
				rec = &scoreRecord{payload: hit.Payload, order: order}
				order++
				acc[hit.ID] = rec
			}
			rec.sparse = normalized[i]
			rec.rawSparse = hit.Score
		}
	}

	type rankedHit struct {
		hit   domain.HybridHit
		order int
	}
	ranked := make([]rankedHit, 0, len(acc))
	for id, rec := range acc {
		fused := params.Alpha*rec.dense + (1-params.Alpha)*rec.sparse
		if fused < params.FusionThreshold {
			continue
		}
		source := domain.SourceSparse
		if rec.dense >= rec.sparse {
			source = domain.SourceDense
		}
		payload := rec.payload
		payload.DenseScore = rec.rawDense
		payload.SparseScore = rec.rawSparse
		ranked = append(ranked, rankedHit{
			hit: domain.HybridHit{
				ID:      id,
				Score:   fused,
				Source:  source,
				Payload: payload,
			},
			order: rec.order,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].hit.Score != ranked[j].hit.Score {
			return ranked[i].hit.Score > ranked[j].hit.Score
		}
		return ranked[i].order < ranked[j].order
	})
	if params.TopK > 0 && len(ranked) > params.TopK {
		ranked = ranked[:params.TopK]
	}

	out := make([]domain.HybridHit, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.hit)
	}
	return out, nil
}

// runSignalQueries issues the dense and sparse lookups concurrently. Each
// signal failure is absorbed: the signal contributes zero hits and fusion
// proceeds with the remaining one.
func (e *FusionEngine) runSignalQueries(
	ctx context.Context,
	dense []float32,
	sparse domain.SparseVector,
	params domain.FusionParams,
) ([]domain.ScoredPoint, []domain.ScoredPoint) {
	var denseHits, sparseHits []domain.ScoredPoint

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(dense) == 0 {
			return nil
		}
		hits, err := e.searcher.QueryDense(gctx, dense, e.denseLimit)
		if err != nil {
			e.logger.Error("signal_query_failed", "signal", domain.SourceDense, "error", err)
			return nil
		}
		denseHits = filterByThreshold(hits, params.DenseThreshold)
		return nil
	})
	g.Go(func() error {
		if sparse.IsEmpty() {
			return nil
		}
		hits, err := e.searcher.QuerySparse(gctx, sparse, e.sparseLimit)
		if err != nil {
			e.logger.Error("signal_query_failed", "signal", domain.SourceSparse, "error", err)
			return nil
		}
		sparseHits = filterByThreshold(hits, params.SparseThreshold)
		return nil
	})
	_ = g.Wait()

	return denseHits, sparseHits
}

// normalizeScores rescales raw scores into [0,1] via min-max normalization.
// A uniformly-scored list maps to all ones so the signal is not discarded.
func normalizeScores(scores []float64) ([]float64, error) {
	if len(scores) == 0 {
		return nil, domain.WrapError(domain.ErrEmptyScoreSet, "normalize scores", errors.New("nothing to normalize"))
	}

	minScore, maxScore := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	out := make([]float64, len(scores))
	if maxScore == minScore {
		for i := range out {
			out[i] = 1.0
		}
		return out, nil
	}
	for i, s := range scores {
		out[i] = (s - minScore) / (maxScore - minScore)
	}
	return out, nil
}

func filterByThreshold(hits []domain.ScoredPoint, threshold float64) []domain.ScoredPoint {
	out := make([]domain.ScoredPoint, 0, len(hits))
	for _, hit := range hits {
		if hit.Score >= threshold {
			out = append(out, hit)
		}
	}
	return out
}

func rawScores(hits []domain.ScoredPoint) []float64 {
	out := make([]float64, len(hits))
	for i, hit := range hits {
		out[i] = hit.Score
	}
	return out
}
