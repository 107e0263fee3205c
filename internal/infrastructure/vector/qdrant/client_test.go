package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
)

func TestQueryDenseUsesNamedSpace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/docs/points/query" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req["using"] != "dense" {
			http.Error(w, "wrong space", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"id":"p1","score":0.9,"payload":{"doc_id":"DOC_0001","document":"text a","file_path":"a.txt"}},
			{"id":"p2","score":0.7,"payload":{"doc_id":"DOC_0002","document":"text b","file_path":"b.txt"}}
		]}}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs", Options{})
	points, err := client.QueryDense(context.Background(), []float32{0.1, 0.2}, 10)
	if err != nil {
		t.Fatalf("QueryDense() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].ID != "p1" || points[0].Score != 0.9 {
		t.Fatalf("unexpected first point: %+v", points[0])
	}
	if points[0].Payload.DocID != "DOC_0001" {
		t.Fatalf("payload not decoded: %+v", points[0].Payload)
	}
}

func TestQuerySparseSendsIndicesAndValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		query, ok := req["query"].(map[string]any)
		if !ok || query["indices"] == nil || query["values"] == nil {
			http.Error(w, "missing sparse query", http.StatusBadRequest)
			return
		}
		if req["using"] != "sparse" {
			http.Error(w, "wrong space", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"points":[{"id":"p1","score":11.5,"payload":{}}]}}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs", Options{})
	sparse := domain.SparseVector{Indices: []uint32{3, 17}, Values: []float32{1.1, 0.8}}
	points, err := client.QuerySparse(context.Background(), sparse, 5)
	if err != nil {
		t.Fatalf("QuerySparse() error = %v", err)
	}
	if len(points) != 1 || points[0].Score != 11.5 {
		t.Fatalf("unexpected points: %+v", points)
	}
}

func TestQuerySparseEmptyVectorSkipsRequest(t *testing.T) {
	client := New("http://unreachable.invalid", "docs", Options{})
	points, err := client.QuerySparse(context.Background(), domain.SparseVector{}, 5)
	if err != nil {
		t.Fatalf("QuerySparse() error = %v", err)
	}
	if points != nil {
		t.Fatalf("expected nil points for empty vector, got %+v", points)
	}
}

func TestQueryLateRerankBuildsPrefetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		prefetch, ok := req["prefetch"].([]any)
		if !ok || len(prefetch) != 2 {
			http.Error(w, "expected two prefetch branches", http.StatusBadRequest)
			return
		}
		if req["using"] != "late" {
			http.Error(w, "wrong space", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"points":[{"id":"p1","score":4.2,"payload":{"doc_id":"DOC_0001"}}]}}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs", Options{})
	points, err := client.QueryLateRerank(
		context.Background(),
		[]float32{0.1, 0.2},
		domain.SparseVector{Indices: []uint32{5}, Values: []float32{1.0}},
		domain.LateVector{{0.1, 0.2}, {0.3, 0.4}},
		domain.PrefetchLimits{Dense: 20, Sparse: 20},
		10,
	)
	if err != nil {
		t.Fatalf("QueryLateRerank() error = %v", err)
	}
	if len(points) != 1 || points[0].Payload.DocID != "DOC_0001" {
		t.Fatalf("unexpected points: %+v", points)
	}
}

func TestQueryLateRerankRequiresPrefetchSignal(t *testing.T) {
	client := New("http://unreachable.invalid", "docs", Options{})
	_, err := client.QueryLateRerank(
		context.Background(),
		nil,
		domain.SparseVector{},
		domain.LateVector{{0.1}},
		domain.PrefetchLimits{},
		10,
	)
	if err == nil {
		t.Fatalf("expected error when no prefetch signal is available")
	}
}

func TestUpsertDocumentsEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", Options{})
	points := []domain.DocumentPoint{
		{
			ID:      "p1",
			Dense:   []float32{0.1, 0.2},
			Sparse:  domain.SparseVector{Indices: []uint32{1}, Values: []float32{1.0}},
			Late:    domain.LateVector{{0.1, 0.2}},
			Payload: domain.DocumentPayload{DocID: "DOC_0001", FilePath: "a.txt"},
		},
	}

	if err := client.UpsertDocuments(context.Background(), points); err != nil {
		t.Fatalf("first UpsertDocuments() error = %v", err)
	}
	if err := client.UpsertDocuments(context.Background(), points); err != nil {
		t.Fatalf("second UpsertDocuments() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
}

func TestUpsertDocumentsSplitsBatches(t *testing.T) {
	var upsertCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			atomic.AddInt32(&upsertCalls, 1)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", Options{UpsertBatchSize: 2})
	points := make([]domain.DocumentPoint, 5)
	for i := range points {
		points[i] = domain.DocumentPoint{
			ID:    "p",
			Dense: []float32{0.1},
			Late:  domain.LateVector{{0.1}},
		}
	}

	if err := client.UpsertDocuments(context.Background(), points); err != nil {
		t.Fatalf("UpsertDocuments() error = %v", err)
	}
	if got := atomic.LoadInt32(&upsertCalls); got != 3 {
		t.Fatalf("expected 3 upsert batches, got %d", got)
	}
}

func TestNewFilePathsFiltersExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/docs/points/scroll" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"payload":{"file_path":"a.txt"}},
			{"payload":{"file_path":"b.txt"}}
		],"next_page_offset":null}}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs", Options{})
	fresh, err := client.NewFilePaths(context.Background(), []string{"a.txt", "c.txt"})
	if err != nil {
		t.Fatalf("NewFilePaths() error = %v", err)
	}
	if len(fresh) != 1 || fresh[0] != "c.txt" {
		t.Fatalf("expected only c.txt, got %v", fresh)
	}
}

func TestNewFilePathsMissingCollectionTreatsAllAsNew(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "docs", Options{})
	fresh, err := client.NewFilePaths(context.Background(), []string{"a.txt", "b.txt"})
	if err != nil {
		t.Fatalf("NewFilePaths() error = %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("expected all candidates new, got %v", fresh)
	}
}

func TestQueryErrorIncludesResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "docs", Options{})
	_, err := client.QueryDense(context.Background(), []float32{0.1}, 5)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}
