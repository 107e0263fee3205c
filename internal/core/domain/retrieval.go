package domain

// Named vector spaces of the document collection.
const (
	VectorSpaceDense  = "dense"
	VectorSpaceSparse = "sparse"
	VectorSpaceLate   = "late"
)

const (
	SourceDense  = "dense"
	SourceSparse = "sparse"
	SourceLate   = "late"
)

// SparseVector is a lexical term-weight vector (BM25-style), compared by
// inner product with IDF weighting on the store side.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

func (v SparseVector) IsEmpty() bool {
	return len(v.Indices) == 0
}

// LateVector is a per-token multi-vector representation compared via
// max-similarity aggregation.
type LateVector [][]float32

// DocumentPayload is the fixed payload schema of a document point. The two
// underscore fields carry raw per-signal scores for downstream diagnostics.
type DocumentPayload struct {
	DocID       string  `json:"doc_id,omitempty"`
	Document    string  `json:"document,omitempty"`
	FilePath    string  `json:"file_path,omitempty"`
	ChunkIndex  int     `json:"chunk_index,omitempty"`
	DenseScore  float64 `json:"_dense_score"`
	SparseScore float64 `json:"_sparse_score"`
}

type ScoredPoint struct {
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Payload DocumentPayload `json:"payload"`
}

// HybridHit is one fused retrieval result. Score is a linear combination of
// min-max normalized per-signal scores, so it always lies in [0,1].
type HybridHit struct {
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Source  string          `json:"source"`
	Payload DocumentPayload `json:"payload"`
}

// FusionParams are the per-request knobs of the score fusion engine.
type FusionParams struct {
	TopK            int
	Alpha           float64
	FusionThreshold float64
	DenseThreshold  float64
	SparseThreshold float64
}

// PrefetchLimits bound stage-1 candidate gathering of the late-interaction
// rerank path, per signal.
type PrefetchLimits struct {
	Dense  int
	Sparse int
}

// DocumentPoint is one record handed to the vector store with all of its
// named-space vectors.
type DocumentPoint struct {
	ID      string
	Dense   []float32
	Sparse  SparseVector
	Late    LateVector
	Payload DocumentPayload
}

const (
	ModeFusion = "fusion"
	ModeRerank = "rerank"
)

type SearchOptions struct {
	TopK int
	Mode string
}

// SearchResult joins the fresh retrieval hits with an optional previously
// rated answer found in the QA cache. Both legs complete before the result is
// assembled; the caller prefers Cached when present.
type SearchResult struct {
	Query  string        `json:"query"`
	Hits   []HybridHit   `json:"hits"`
	Cached *CachedAnswer `json:"cached,omitempty"`
}
