package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSearcher struct {
	denseHits  []domain.ScoredPoint
	sparseHits []domain.ScoredPoint
	lateHits   []domain.ScoredPoint

	denseErr  error
	sparseErr error
	lateErr   error

	denseLimit    int
	sparseLimit   int
	lastPrefetch  domain.PrefetchLimits
	lastLateLimit int
}

func (f *fakeSearcher) QueryDense(_ context.Context, _ []float32, limit int) ([]domain.ScoredPoint, error) {
	f.denseLimit = limit
	return f.denseHits, f.denseErr
}

func (f *fakeSearcher) QuerySparse(_ context.Context, _ domain.SparseVector, limit int) ([]domain.ScoredPoint, error) {
	f.sparseLimit = limit
	return f.sparseHits, f.sparseErr
}

func (f *fakeSearcher) QueryLateRerank(
	_ context.Context,
	_ []float32,
	_ domain.SparseVector,
	_ domain.LateVector,
	prefetch domain.PrefetchLimits,
	limit int,
) ([]domain.ScoredPoint, error) {
	f.lastPrefetch = prefetch
	f.lastLateLimit = limit
	return f.lateHits, f.lateErr
}

type fakeEmbedder struct {
	dense  []float32
	sparse domain.SparseVector
	late   domain.LateVector

	denseErr  error
	sparseErr error
	lateErr   error

	denseCalls  int
	denseInputs []string
}

func (f *fakeEmbedder) EmbedDense(_ context.Context, text string) ([]float32, error) {
	f.denseCalls++
	f.denseInputs = append(f.denseInputs, text)
	return f.dense, f.denseErr
}

func (f *fakeEmbedder) EmbedSparse(_ context.Context, _ string) (domain.SparseVector, error) {
	return f.sparse, f.sparseErr
}

func (f *fakeEmbedder) EmbedLate(_ context.Context, _ string) (domain.LateVector, error) {
	return f.late, f.lateErr
}

type fakeAnswerStore struct {
	byID      map[string]domain.QAAggregate
	lookups   []domain.CachedAnswer
	lookupErr error
	getErr    error
	upsertErr error

	upserts []domain.QAAggregate
	vectors [][]float32
}

func newFakeAnswerStore() *fakeAnswerStore {
	return &fakeAnswerStore{byID: make(map[string]domain.QAAggregate)}
}

func (f *fakeAnswerStore) GetByID(_ context.Context, id string) (*domain.QAAggregate, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	agg, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &agg, nil
}

func (f *fakeAnswerStore) Lookup(_ context.Context, _ []float32, _ int) ([]domain.CachedAnswer, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.lookups, nil
}

func (f *fakeAnswerStore) Upsert(_ context.Context, agg domain.QAAggregate, dense []float32) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, agg)
	f.vectors = append(f.vectors, dense)
	f.byID[agg.ID] = agg
	return nil
}

type fakeSessionStore struct {
	entries map[string][][]byte
	ttls    map[string]time.Duration

	appendErr  error
	entriesErr error
	deleteErr  error
	listErr    error

	deleted  []string
	lastTTL  time.Duration
	appended int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		entries: make(map[string][][]byte),
		ttls:    make(map[string]time.Duration),
	}
}

func (f *fakeSessionStore) Append(_ context.Context, sessionID string, entry []byte, ttl time.Duration) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries[sessionID] = append(f.entries[sessionID], entry)
	f.ttls[sessionID] = ttl
	f.lastTTL = ttl
	f.appended++
	return nil
}

func (f *fakeSessionStore) Entries(_ context.Context, sessionID string) ([][]byte, error) {
	if f.entriesErr != nil {
		return nil, f.entriesErr
	}
	return f.entries[sessionID], nil
}

func (f *fakeSessionStore) RemainingTTL(_ context.Context, sessionID string) (time.Duration, error) {
	return f.ttls[sessionID], nil
}

func (f *fakeSessionStore) Delete(_ context.Context, sessionID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.entries, sessionID)
	delete(f.ttls, sessionID)
	f.deleted = append(f.deleted, sessionID)
	return nil
}

func (f *fakeSessionStore) Sessions(_ context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]string, 0, len(f.entries))
	for id := range f.entries {
		out = append(out, id)
	}
	return out, nil
}
