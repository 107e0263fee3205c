package ports

import (
	"context"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
)

// SearchService is the inbound contract for hybrid retrieval.
type SearchService interface {
	Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error)
}

// AnswerCache is the inbound contract of the session answer cache.
type AnswerCache interface {
	Add(ctx context.Context, event domain.RatingEvent) error
	Flush(ctx context.Context, immediate bool) error
	FlushSession(ctx context.Context, sessionID string) error
}
