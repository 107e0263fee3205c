package config

import "testing"

func TestLoadIncludesFusionDefaults(t *testing.T) {
	t.Setenv("FUSION_ALPHA", "")
	t.Setenv("FUSION_THRESHOLD", "")
	t.Setenv("DENSE_THRESHOLD", "")
	t.Setenv("SPARSE_THRESHOLD", "")
	t.Setenv("SEARCH_TOP_K", "")

	cfg := Load()
	if cfg.FusionAlpha != 0.5 {
		t.Fatalf("expected default alpha 0.5, got %v", cfg.FusionAlpha)
	}
	if cfg.FusionThreshold != 0.3 {
		t.Fatalf("expected default fusion threshold 0.3, got %v", cfg.FusionThreshold)
	}
	if cfg.DenseThreshold != 0.5 {
		t.Fatalf("expected default dense threshold 0.5, got %v", cfg.DenseThreshold)
	}
	if cfg.SparseThreshold != 5.0 {
		t.Fatalf("expected default sparse threshold 5.0, got %v", cfg.SparseThreshold)
	}
	if cfg.SearchTopK != 5 {
		t.Fatalf("expected default top k 5, got %d", cfg.SearchTopK)
	}
}

func TestLoadParsesFusionOverrides(t *testing.T) {
	t.Setenv("FUSION_ALPHA", "0.7")
	t.Setenv("SEARCH_TOP_K", "8")
	t.Setenv("SESSION_TIMEOUT_SECONDS", "120")

	cfg := Load()
	if cfg.FusionAlpha != 0.7 {
		t.Fatalf("expected alpha 0.7, got %v", cfg.FusionAlpha)
	}
	if cfg.SearchTopK != 8 {
		t.Fatalf("expected top k 8, got %d", cfg.SearchTopK)
	}
	if cfg.SessionTimeoutSeconds != 120 {
		t.Fatalf("expected session timeout 120, got %d", cfg.SessionTimeoutSeconds)
	}
}

func TestLoadFallsBackOnUnparsableValues(t *testing.T) {
	t.Setenv("FUSION_ALPHA", "not-a-number")
	t.Setenv("SEARCH_TOP_K", "many")

	cfg := Load()
	if cfg.FusionAlpha != 0.5 {
		t.Fatalf("expected fallback alpha 0.5, got %v", cfg.FusionAlpha)
	}
	if cfg.SearchTopK != 5 {
		t.Fatalf("expected fallback top k 5, got %d", cfg.SearchTopK)
	}
}

func TestStopwordListSplitsAndTrims(t *testing.T) {
	t.Setenv("QUERY_STOPWORDS", " the , a ,, for ")

	cfg := Load()
	words := cfg.StopwordList()
	if len(words) != 3 {
		t.Fatalf("expected 3 stopwords, got %v", words)
	}
	if words[0] != "the" || words[1] != "a" || words[2] != "for" {
		t.Fatalf("unexpected stopwords: %v", words)
	}
}
