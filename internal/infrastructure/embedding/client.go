package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
	"github.com/dzaytsev/ragfusion/internal/infrastructure/resilience"
)

// Client talks to the embedding inference service for the dense and
// late-interaction spaces. Sparse vectors are computed locally: the BM25
// representation needs no model inference, only tokenization and term
// weighting (see sparse.go).
type Client struct {
	baseURL    string
	denseModel string
	lateModel  string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, denseModel, lateModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		denseModel: denseModel,
		lateModel:  lateModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *Client) EmbedDense(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": c.denseModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := c.execute(ctx, "embedding.dense", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("empty dense embedding result")
	}
	return response.Embeddings[0], nil
}

func (c *Client) EmbedSparse(_ context.Context, text string) (domain.SparseVector, error) {
	return encodeSparseQuery(text), nil
}

func (c *Client) EmbedLate(ctx context.Context, text string) (domain.LateVector, error) {
	request := map[string]any{
		"model": c.lateModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings []domain.LateVector `json:"embeddings"`
	}
	err := c.execute(ctx, "embedding.late", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/embed_tokens", request, &response, "embed tokens")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty late-interaction embedding result")
	}
	return response.Embeddings[0], nil
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyEmbeddingError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(operation, err)
}
