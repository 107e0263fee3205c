package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
)

type statusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *statusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func isNotFoundStatus(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// queryPoint is the wire shape of one scored point. Point ids come back as
// either strings (uuid) or numbers depending on how they were written.
type queryPoint struct {
	ID      any                    `json:"id"`
	Score   float64                `json:"score"`
	Payload domain.DocumentPayload `json:"payload"`
}

func (p queryPoint) id() string {
	switch v := p.ID.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%d", int64(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

func doJSON(
	ctx context.Context,
	httpClient *http.Client,
	method, url string,
	payload any,
	out any,
	operation string,
	allowConflict bool,
) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict && allowConflict {
		return nil
	}
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(respBody),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, payload, out any, operation string) error {
	return doJSON(ctx, c.httpClient, http.MethodPost, url, payload, out, operation, false)
}

func (c *Client) putJSON(ctx context.Context, url string, payload any, operation string) error {
	return doJSON(ctx, c.httpClient, http.MethodPut, url, payload, nil, operation, false)
}

func (c *Client) putJSONAllowConflict(ctx context.Context, url string, payload any, operation string) error {
	return doJSON(ctx, c.httpClient, http.MethodPut, url, payload, nil, operation, true)
}
