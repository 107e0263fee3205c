package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
)

const defaultUpsertBatchSize = 64

// Client talks to the document collection over the Qdrant HTTP API. The
// collection carries three named vector spaces: "dense" (cosine), "sparse"
// (inner product with store-side IDF weighting) and "late" (multi-vector,
// max-sim comparator).
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	batchSize int
	limiter   *rate.Limiter

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

type Options struct {
	// UpsertBatchSize bounds how many points go into one upsert request.
	UpsertBatchSize int
	// UpsertRate throttles upsert batches; zero disables pacing.
	UpsertRate rate.Limit
}

func New(baseURL, collection string, opts Options) *Client {
	batchSize := opts.UpsertBatchSize
	if batchSize <= 0 {
		batchSize = defaultUpsertBatchSize
	}
	var limiter *rate.Limiter
	if opts.UpsertRate > 0 {
		limiter = rate.NewLimiter(opts.UpsertRate, 1)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		batchSize:  batchSize,
		limiter:    limiter,
	}
}

func (c *Client) QueryDense(ctx context.Context, vector []float32, limit int) ([]domain.ScoredPoint, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"query":        vector,
		"using":        domain.VectorSpaceDense,
		"limit":        limit,
		"with_payload": true,
	}
	return c.queryPoints(ctx, reqBody, "dense query")
}

func (c *Client) QuerySparse(ctx context.Context, vector domain.SparseVector, limit int) ([]domain.ScoredPoint, error) {
	if vector.IsEmpty() {
		return nil, nil
	}
	reqBody := map[string]any{
		"query": map[string]any{
			"indices": vector.Indices,
			"values":  vector.Values,
		},
		"using":        domain.VectorSpaceSparse,
		"limit":        limit,
		"with_payload": true,
	}
	return c.queryPoints(ctx, reqBody, "sparse query")
}

// QueryLateRerank gathers prefetch candidates in the dense and sparse spaces,
// then rescores their union with the late-interaction query.
func (c *Client) QueryLateRerank(
	ctx context.Context,
	dense []float32,
	sparse domain.SparseVector,
	late domain.LateVector,
	prefetch domain.PrefetchLimits,
	limit int,
) ([]domain.ScoredPoint, error) {
	if len(late) == 0 {
		return nil, fmt.Errorf("late rerank requires a late-interaction query vector")
	}

	prefetches := make([]map[string]any, 0, 2)
	if len(dense) > 0 && prefetch.Dense > 0 {
		prefetches = append(prefetches, map[string]any{
			"query": dense,
			"using": domain.VectorSpaceDense,
			"limit": prefetch.Dense,
		})
	}
	if !sparse.IsEmpty() && prefetch.Sparse > 0 {
		prefetches = append(prefetches, map[string]any{
			"query": map[string]any{
				"indices": sparse.Indices,
				"values":  sparse.Values,
			},
			"using": domain.VectorSpaceSparse,
			"limit": prefetch.Sparse,
		})
	}
	if len(prefetches) == 0 {
		return nil, fmt.Errorf("late rerank requires at least one prefetch signal")
	}

	reqBody := map[string]any{
		"prefetch":     prefetches,
		"query":        late,
		"using":        domain.VectorSpaceLate,
		"limit":        limit,
		"with_payload": true,
	}
	return c.queryPoints(ctx, reqBody, "late rerank query")
}

func (c *Client) queryPoints(ctx context.Context, reqBody map[string]any, operation string) ([]domain.ScoredPoint, error) {
	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)

	var queryResp struct {
		Result struct {
			Points []queryPoint `json:"points"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, url, reqBody, &queryResp, operation); err != nil {
		return nil, err
	}

	out := make([]domain.ScoredPoint, 0, len(queryResp.Result.Points))
	for _, p := range queryResp.Result.Points {
		out = append(out, domain.ScoredPoint{
			ID:      p.id(),
			Score:   p.Score,
			Payload: p.Payload,
		})
	}
	return out, nil
}

func (c *Client) UpsertDocuments(ctx context.Context, points []domain.DocumentPoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx, len(points[0].Dense)); err != nil {
		return err
	}

	for start := 0; start < len(points); start += c.batchSize {
		end := start + c.batchSize
		if end > len(points) {
			end = len(points)
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("upsert pacing: %w", err)
			}
		}
		if err := c.upsertBatch(ctx, points[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) upsertBatch(ctx context.Context, batch []domain.DocumentPoint) error {
	type point struct {
		ID      string                 `json:"id"`
		Vector  map[string]any         `json:"vector"`
		Payload domain.DocumentPayload `json:"payload"`
	}

	body := make([]point, 0, len(batch))
	for _, p := range batch {
		body = append(body, point{
			ID: p.ID,
			Vector: map[string]any{
				domain.VectorSpaceDense: p.Dense,
				domain.VectorSpaceSparse: map[string]any{
					"indices": p.Sparse.Indices,
					"values":  p.Sparse.Values,
				},
				domain.VectorSpaceLate: p.Late,
			},
			Payload: p.Payload,
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.putJSON(ctx, url, map[string]any{"points": body}, "upsert")
}

// NewFilePaths returns the candidates whose file_path payload is not yet
// present in the collection. Existing paths are collected with a paginated
// scroll over payload-only points.
func (c *Client) NewFilePaths(ctx context.Context, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	existing := make(map[string]struct{})
	var offset any
	for {
		reqBody := map[string]any{
			"limit":        1000,
			"with_payload": []string{"file_path"},
			"with_vector":  false,
		}
		if offset != nil {
			reqBody["offset"] = offset
		}

		url := fmt.Sprintf("%s/collections/%s/points/scroll", c.baseURL, c.collection)
		var scrollResp struct {
			Result struct {
				Points []struct {
					Payload domain.DocumentPayload `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := c.postJSON(ctx, url, reqBody, &scrollResp, "scroll"); err != nil {
			// A missing collection simply means nothing is indexed yet.
			if isNotFoundStatus(err) {
				break
			}
			return nil, err
		}
		for _, p := range scrollResp.Result.Points {
			if p.Payload.FilePath != "" {
				existing[p.Payload.FilePath] = struct{}{}
			}
		}
		if scrollResp.Result.NextPageOffset == nil {
			break
		}
		offset = scrollResp.Result.NextPageOffset
	}

	out := make([]string, 0, len(candidates))
	for _, path := range candidates {
		if _, ok := existing[path]; !ok {
			out = append(out, path)
		}
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, denseSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == denseSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			domain.VectorSpaceDense: map[string]any{
				"size":     denseSize,
				"distance": "Cosine",
			},
			domain.VectorSpaceLate: map[string]any{
				"size":     denseSize,
				"distance": "Cosine",
				"multivector_config": map[string]any{
					"comparator": "max_sim",
				},
			},
		},
		"sparse_vectors": map[string]any{
			domain.VectorSpaceSparse: map[string]any{
				"modifier": "idf",
			},
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	if err := c.putJSONAllowConflict(ctx, url, reqBody, "ensure collection"); err != nil {
		return err
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = denseSize
	c.ensureMu.Unlock()
	return nil
}
