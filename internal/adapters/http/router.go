package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
	"github.com/dzaytsev/ragfusion/internal/core/ports"
	"github.com/dzaytsev/ragfusion/internal/observability/metrics"
)

type Router struct {
	service string

	search   ports.SearchService
	cache    ports.AnswerCache
	feedback ports.FeedbackLog
	ratings  ports.RatingQueue
	indexer  ports.VectorIndexer
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
}

func NewRouter(
	service string,
	search ports.SearchService,
	cache ports.AnswerCache,
	feedback ports.FeedbackLog,
	ratings ports.RatingQueue,
	indexer ports.VectorIndexer,
	serverMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
) *Router {
	return &Router{
		service:  service,
		search:   search,
		cache:    cache,
		feedback: feedback,
		ratings:  ratings,
		indexer:  indexer,
		metrics:  serverMetrics,
		logger:   logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/search", rt.searchDocuments)
	mux.HandleFunc("/v1/answers/rate", rt.rateAnswer)
	mux.HandleFunc("/v1/sessions/", rt.clearSession)
	mux.HandleFunc("/v1/documents/precheck", rt.precheckDocuments)
	mux.Handle("/metrics", rt.metrics.Handler())

	var handler http.Handler = mux
	handler = rt.metrics.Middleware(rt.service, handler)
	handler = accessLogMiddleware(rt.logger, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) searchDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
		Mode  string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ModeFusion
	}
	if mode != domain.ModeFusion && mode != domain.ModeRerank {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode must be fusion or rerank"})
		return
	}

	start := time.Now()
	result, err := rt.search.Search(r.Context(), req.Query, domain.SearchOptions{
		TopK: req.TopK,
		Mode: mode,
	})
	if err != nil {
		rt.metrics.RecordSearch(rt.service, mode, 0, time.Since(start), err)
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	rt.metrics.RecordSearch(rt.service, mode, len(result.Hits), time.Since(start), nil)
	rt.metrics.RecordCacheLookup(rt.service, result.Cached != nil)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) rateAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.RatingEvent
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id and user_id are required"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rating must be between 1 and 5"})
		return
	}

	if err := rt.feedback.Append(r.Context(), req); err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if err := rt.ratings.PublishRating(r.Context(), req); err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	rt.metrics.RecordRatingSubmitted(rt.service)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (rt *Router) clearSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	sessionID, action, found := strings.Cut(rest, "/")
	if !found || action != "clear" || sessionID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if err := rt.cache.FlushSession(r.Context(), sessionID); err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	rt.metrics.RecordSessionClear(rt.service)
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

// precheckDocuments filters a candidate file list down to the paths not yet
// present in the document collection, so an external ingest job only embeds
// new material.
func (rt *Router) precheckDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		FilePaths []string `json:"file_paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.FilePaths) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file_paths is required"})
		return
	}

	fresh, err := rt.indexer.NewFilePaths(r.Context(), req.FilePaths)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"new_file_paths": fresh})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
