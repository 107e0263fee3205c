package usecase

import (
	"context"
	"testing"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
)

func TestRerankRequiresLateVector(t *testing.T) {
	r := NewReranker(&fakeSearcher{}, testLogger())

	_, err := r.Rerank(context.Background(), []float32{0.1}, domain.SparseVector{}, nil, domain.PrefetchLimits{Dense: 20}, 5)
	if err == nil {
		t.Fatalf("expected error without late vector")
	}
	if !domain.IsKind(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestRerankRequiresPrefetchVector(t *testing.T) {
	r := NewReranker(&fakeSearcher{}, testLogger())

	late := domain.LateVector{{0.1, 0.2}}
	_, err := r.Rerank(context.Background(), nil, domain.SparseVector{}, late, domain.PrefetchLimits{}, 5)
	if err == nil {
		t.Fatalf("expected error without prefetch vectors")
	}
	if !domain.IsKind(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestRerankPassesLimitsThrough(t *testing.T) {
	searcher := &fakeSearcher{
		lateHits: []domain.ScoredPoint{
			{ID: "x", Score: 12.5},
			{ID: "y", Score: 10.0},
		},
	}
	r := NewReranker(searcher, testLogger())

	limits := domain.PrefetchLimits{Dense: 25, Sparse: 25}
	hits, err := r.Rerank(context.Background(), []float32{0.1}, domain.SparseVector{}, domain.LateVector{{0.1}}, limits, 7)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "x" {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if searcher.lastPrefetch != limits {
		t.Fatalf("prefetch limits not passed through: %+v", searcher.lastPrefetch)
	}
	if searcher.lastLateLimit != 7 {
		t.Fatalf("final limit not passed through: %d", searcher.lastLateLimit)
	}
}

func TestRerankDefaultsZeroPrefetchLimits(t *testing.T) {
	searcher := &fakeSearcher{
		lateHits: []domain.ScoredPoint{{ID: "x", Score: 12.5}},
	}
	r := NewReranker(searcher, testLogger())

	sparse := domain.SparseVector{Indices: []uint32{3}, Values: []float32{1.0}}
	_, err := r.Rerank(context.Background(), []float32{0.1}, sparse, domain.LateVector{{0.1}}, domain.PrefetchLimits{}, 5)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if searcher.lastPrefetch.Dense != defaultPrefetchLimit || searcher.lastPrefetch.Sparse != defaultPrefetchLimit {
		t.Fatalf("expected defaulted prefetch limits, got %+v", searcher.lastPrefetch)
	}
}

func TestRerankDefaultsPrefetchOnlyForSuppliedVectors(t *testing.T) {
	searcher := &fakeSearcher{
		lateHits: []domain.ScoredPoint{{ID: "x", Score: 12.5}},
	}
	r := NewReranker(searcher, testLogger())

	_, err := r.Rerank(context.Background(), []float32{0.1}, domain.SparseVector{}, domain.LateVector{{0.1}}, domain.PrefetchLimits{}, 5)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if searcher.lastPrefetch.Dense != defaultPrefetchLimit {
		t.Fatalf("expected defaulted dense prefetch, got %+v", searcher.lastPrefetch)
	}
	if searcher.lastPrefetch.Sparse != 0 {
		t.Fatalf("missing sparse vector must not get a prefetch branch: %+v", searcher.lastPrefetch)
	}
}
