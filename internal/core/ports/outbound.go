package ports

import (
	"context"
	"time"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
)

// Embedder builds the per-space representations of a query or question text.
type Embedder interface {
	EmbedDense(ctx context.Context, text string) ([]float32, error)
	EmbedSparse(ctx context.Context, text string) (domain.SparseVector, error)
	EmbedLate(ctx context.Context, text string) (domain.LateVector, error)
}

// VectorSearcher runs nearest-neighbor queries against the document
// collection's named vector spaces.
type VectorSearcher interface {
	QueryDense(ctx context.Context, vector []float32, limit int) ([]domain.ScoredPoint, error)
	QuerySparse(ctx context.Context, vector domain.SparseVector, limit int) ([]domain.ScoredPoint, error)
	// QueryLateRerank gathers prefetch candidates per supplied signal and
	// reranks their union in the late-interaction space (max-sim comparator).
	QueryLateRerank(
		ctx context.Context,
		dense []float32,
		sparse domain.SparseVector,
		late domain.LateVector,
		prefetch domain.PrefetchLimits,
		limit int,
	) ([]domain.ScoredPoint, error)
}

// VectorIndexer is the write surface of the document collection: batched
// point upsert and scroll-based detection of already-ingested files.
type VectorIndexer interface {
	UpsertDocuments(ctx context.Context, points []domain.DocumentPoint) error
	NewFilePaths(ctx context.Context, candidates []string) ([]string, error)
}

// AnswerStore persists and looks up QA aggregates in the cache collection.
type AnswerStore interface {
	GetByID(ctx context.Context, id string) (*domain.QAAggregate, error)
	Lookup(ctx context.Context, dense []float32, limit int) ([]domain.CachedAnswer, error)
	Upsert(ctx context.Context, agg domain.QAAggregate, dense []float32) error
}

// SessionStore is the ephemeral per-session event list. TTL is the sole
// expiry mechanism; only the flush path inspects it.
type SessionStore interface {
	Append(ctx context.Context, sessionID string, entry []byte, ttl time.Duration) error
	Entries(ctx context.Context, sessionID string) ([][]byte, error)
	RemainingTTL(ctx context.Context, sessionID string) (time.Duration, error)
	Delete(ctx context.Context, sessionID string) error
	Sessions(ctx context.Context) ([]string, error)
}

// RatingQueue carries rating events from the API to the cache worker.
type RatingQueue interface {
	PublishRating(ctx context.Context, event domain.RatingEvent) error
	SubscribeRatings(ctx context.Context, handler func(context.Context, domain.RatingEvent) error) error
}

// FeedbackLog is the append-only audit trail of rating events.
type FeedbackLog interface {
	Append(ctx context.Context, event domain.RatingEvent) error
}
