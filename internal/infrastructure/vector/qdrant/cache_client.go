package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
)

// CacheClient persists QA aggregates in a dedicated collection with a single
// dense vector per point, embedded from the question text. Lookup is a plain
// cosine nearest-neighbor query; rating state lives in the payload.
type CacheClient struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func NewCacheClient(baseURL, collection string) *CacheClient {
	return &CacheClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type qaPayload struct {
	Question    string  `json:"question"`
	Answer      string  `json:"answer"`
	DisplayDocs string  `json:"display_docs"`
	GroupID     string  `json:"group_id,omitempty"`
	Rating      float64 `json:"rating"`
	RatingCount int     `json:"rating_count"`
}

func (p qaPayload) toAggregate(id string) domain.QAAggregate {
	return domain.QAAggregate{
		ID:          id,
		Question:    p.Question,
		Answer:      p.Answer,
		DisplayDocs: p.DisplayDocs,
		GroupID:     p.GroupID,
		Rating:      p.Rating,
		RatingCount: p.RatingCount,
	}
}

func (c *CacheClient) GetByID(ctx context.Context, id string) (*domain.QAAggregate, error) {
	reqBody := map[string]any{
		"ids":          []string{id},
		"with_payload": true,
	}

	url := fmt.Sprintf("%s/collections/%s/points", c.baseURL, c.collection)
	var retrieveResp struct {
		Result []struct {
			ID      any       `json:"id"`
			Payload qaPayload `json:"payload"`
		} `json:"result"`
	}
	err := doJSON(ctx, c.httpClient, http.MethodPost, url, reqBody, &retrieveResp, "retrieve aggregate", false)
	if err != nil {
		if isNotFoundStatus(err) {
			return nil, domain.WrapError(domain.ErrNotFound, "retrieve aggregate", err)
		}
		return nil, err
	}
	if len(retrieveResp.Result) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "retrieve aggregate", fmt.Errorf("no point with id %s", id))
	}

	agg := retrieveResp.Result[0].Payload.toAggregate(id)
	return &agg, nil
}

func (c *CacheClient) Lookup(ctx context.Context, dense []float32, limit int) ([]domain.CachedAnswer, error) {
	if len(dense) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	reqBody := map[string]any{
		"query":        dense,
		"limit":        limit,
		"with_payload": true,
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	var queryResp struct {
		Result struct {
			Points []struct {
				ID      any       `json:"id"`
				Score   float64   `json:"score"`
				Payload qaPayload `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	err := doJSON(ctx, c.httpClient, http.MethodPost, url, reqBody, &queryResp, "cache lookup", false)
	if err != nil {
		// Nothing upserted yet means nothing cached, not a failure.
		if isNotFoundStatus(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]domain.CachedAnswer, 0, len(queryResp.Result.Points))
	for _, p := range queryResp.Result.Points {
		out = append(out, domain.CachedAnswer{
			QAAggregate: p.Payload.toAggregate(fmt.Sprintf("%v", p.ID)),
			Score:       p.Score,
		})
	}
	return out, nil
}

func (c *CacheClient) Upsert(ctx context.Context, agg domain.QAAggregate, dense []float32) error {
	if len(dense) == 0 {
		return fmt.Errorf("aggregate %s has no dense vector", agg.ID)
	}
	if err := c.ensureCollection(ctx, len(dense)); err != nil {
		return err
	}

	reqBody := map[string]any{
		"points": []map[string]any{
			{
				"id":     agg.ID,
				"vector": dense,
				"payload": qaPayload{
					Question:    agg.Question,
					Answer:      agg.Answer,
					DisplayDocs: agg.DisplayDocs,
					GroupID:     agg.GroupID,
					Rating:      agg.Rating,
					RatingCount: agg.RatingCount,
				},
			},
		},
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return doJSON(ctx, c.httpClient, http.MethodPut, url, reqBody, nil, "aggregate upsert", false)
}

func (c *CacheClient) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := doJSON(ctx, c.httpClient, http.MethodPut, url, reqBody, nil, "ensure cache collection", true)
	if err != nil {
		return err
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}
