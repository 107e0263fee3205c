package usecase

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
	"github.com/dzaytsev/ragfusion/internal/core/ports"
)

// Vectorizer normalizes a raw query and turns it into the per-space vector
// representations required by retrieval.
type Vectorizer struct {
	embedder  ports.Embedder
	stopwords map[string]struct{}
	logger    *slog.Logger
}

func NewVectorizer(embedder ports.Embedder, stopwords []string, logger *slog.Logger) *Vectorizer {
	set := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return &Vectorizer{
		embedder:  embedder,
		stopwords: set,
		logger:    logger,
	}
}

// Normalize lowercases the query, splits it into alphanumeric tokens and
// drops stop words and single-character noise. Falls back to the raw query
// when nothing survives, so the embedding call always has input.
func (v *Vectorizer) Normalize(query string) string {
	tokens := splitAlphaNumLower(query)
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) < 2 {
			continue
		}
		if _, ok := v.stopwords[token]; ok {
			continue
		}
		kept = append(kept, token)
	}
	normalized := strings.Join(kept, " ")
	if normalized == "" {
		normalized = strings.TrimSpace(query)
	}
	v.logger.Debug("query_normalized", "raw", query, "normalized", normalized)
	return normalized
}

// Vectorize produces the dense and sparse query vectors. The two embedding
// calls are independent and run concurrently; both must succeed, there is no
// partial result.
func (v *Vectorizer) Vectorize(ctx context.Context, normalized string) ([]float32, domain.SparseVector, error) {
	var (
		dense  []float32
		sparse domain.SparseVector
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := v.embedder.EmbedDense(gctx, normalized)
		if err != nil {
			return domain.WrapError(domain.ErrEmbedding, "embed dense query", err)
		}
		dense = vec
		return nil
	})
	g.Go(func() error {
		vec, err := v.embedder.EmbedSparse(gctx, normalized)
		if err != nil {
			return domain.WrapError(domain.ErrEmbedding, "embed sparse query", err)
		}
		sparse = vec
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, domain.SparseVector{}, err
	}
	return dense, sparse, nil
}

// VectorizeForLookup computes only the dense vector. The QA cache lookup
// path needs nothing else and may proceed even when the sparse leg is
// unavailable.
func (v *Vectorizer) VectorizeForLookup(ctx context.Context, normalized string) ([]float32, error) {
	dense, err := v.embedder.EmbedDense(ctx, normalized)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed lookup query", err)
	}
	return dense, nil
}

// VectorizeLate computes the late-interaction multi-vector for the rerank
// retrieval strategy.
func (v *Vectorizer) VectorizeLate(ctx context.Context, normalized string) (domain.LateVector, error) {
	late, err := v.embedder.EmbedLate(ctx, normalized)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed late query", err)
	}
	return late, nil
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
