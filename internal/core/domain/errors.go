package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery means the caller supplied no usable query vectors, or a
	// required vector is missing for the requested retrieval strategy.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrEmptyScoreSet guards score normalization against empty input; hitting
	// it means an upstream empty-check was skipped.
	ErrEmptyScoreSet = errors.New("empty score set")
	// ErrEmbedding covers failed embedding provider calls.
	ErrEmbedding = errors.New("embedding failure")
	// ErrRetrieval covers a failed single-signal vector store query. Absorbed
	// by the fusion engine, never surfaced to callers.
	ErrRetrieval = errors.New("retrieval failure")
	// ErrCachePersist covers a failed per-item merge during a session flush.
	ErrCachePersist = errors.New("cache persist failure")
	ErrNotFound     = errors.New("not found")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
