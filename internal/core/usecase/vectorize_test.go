package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
)

func TestNormalizeDropsStopwordsAndNoise(t *testing.T) {
	v := NewVectorizer(&fakeEmbedder{}, []string{"the", "a", "для"}, testLogger())

	got := v.Normalize("The risk level for DOC_0001, a summary!")
	want := "risk level for doc 0001 summary"
	if got != want {
		t.Fatalf("Normalize() = %q, want %q", got, want)
	}
}

func TestNormalizeFallsBackToRawQuery(t *testing.T) {
	v := NewVectorizer(&fakeEmbedder{}, []string{"the"}, testLogger())
	if got := v.Normalize("the"); got != "the" {
		t.Fatalf("expected raw fallback, got %q", got)
	}
}

func TestVectorizeReturnsBothVectors(t *testing.T) {
	embedder := &fakeEmbedder{
		dense:  []float32{0.1, 0.2},
		sparse: domain.SparseVector{Indices: []uint32{3}, Values: []float32{1.5}},
	}
	v := NewVectorizer(embedder, nil, testLogger())

	dense, sparse, err := v.Vectorize(context.Background(), "query")
	if err != nil {
		t.Fatalf("Vectorize() error = %v", err)
	}
	if len(dense) != 2 || sparse.IsEmpty() {
		t.Fatalf("expected both vectors, got dense=%v sparse=%v", dense, sparse)
	}
}

func TestVectorizeFailsWhenEitherLegFails(t *testing.T) {
	embedder := &fakeEmbedder{
		dense:     []float32{0.1},
		sparseErr: errors.New("sparse provider down"),
	}
	v := NewVectorizer(embedder, nil, testLogger())

	_, _, err := v.Vectorize(context.Background(), "query")
	if err == nil {
		t.Fatalf("expected error when a leg fails")
	}
	if !domain.IsKind(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestVectorizeForLookupUsesDenseOnly(t *testing.T) {
	embedder := &fakeEmbedder{
		dense:     []float32{0.5},
		sparseErr: errors.New("sparse provider down"),
	}
	v := NewVectorizer(embedder, nil, testLogger())

	dense, err := v.VectorizeForLookup(context.Background(), "query")
	if err != nil {
		t.Fatalf("VectorizeForLookup() error = %v", err)
	}
	if len(dense) != 1 {
		t.Fatalf("expected dense vector, got %v", dense)
	}
}
