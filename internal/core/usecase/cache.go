package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
	"github.com/dzaytsev/ragfusion/internal/core/ports"
)

// SessionCache buffers per-session question/answer/rating events in the
// ephemeral store and reconciles them into the persistent QA cache when a
// session ends. A session terminates either by idle timeout or an explicit
// clear; both paths run the same flush.
type SessionCache struct {
	sessions ports.SessionStore
	answers  ports.AnswerStore
	embedder ports.Embedder
	ttl      time.Duration
	logger   *slog.Logger
}

func NewSessionCache(
	sessions ports.SessionStore,
	answers ports.AnswerStore,
	embedder ports.Embedder,
	ttl time.Duration,
	logger *slog.Logger,
) *SessionCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionCache{
		sessions: sessions,
		answers:  answers,
		embedder: embedder,
		ttl:      ttl,
		logger:   logger,
	}
}

// Add appends one entry to the session's ordered event list and resets the
// key's time-to-live. Entries are never overwritten; superseding happens at
// flush time.
func (c *SessionCache) Add(ctx context.Context, event domain.RatingEvent) error {
	entry := domain.CacheEntry{
		UserID:      event.UserID,
		QuestionID:  event.QuestionID,
		Question:    event.Question,
		Answer:      event.Answer,
		DisplayDocs: event.DisplayDocs,
		Rating:      event.Rating,
		Timestamp:   time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.sessions.Append(ctx, event.SessionID, data, c.ttl); err != nil {
		return fmt.Errorf("append session entry: %w", err)
	}
	c.logger.Info("session_entry_added",
		"session_id", event.SessionID,
		"question_id", event.QuestionID,
		"rated", event.Rating != nil,
	)
	return nil
}

// Flush scans all session keys and reconciles the due ones. Without
// immediate, a key is only due once its TTL has elapsed; immediate forces
// reconciliation regardless of timer state.
func (c *SessionCache) Flush(ctx context.Context, immediate bool) error {
	sessionIDs, err := c.sessions.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	for _, sessionID := range sessionIDs {
		if !immediate {
			remaining, err := c.sessions.RemainingTTL(ctx, sessionID)
			if err != nil {
				c.logger.Error("session_ttl_check_failed", "session_id", sessionID, "error", err)
				continue
			}
			if remaining > 0 {
				continue
			}
		}
		c.flushSession(ctx, sessionID)
	}
	return nil
}

// FlushSession forces reconciliation of a single session; used by the
// explicit clear-history action. A timer firing later on the deleted key is
// a no-op because the key no longer exists.
func (c *SessionCache) FlushSession(ctx context.Context, sessionID string) error {
	c.flushSession(ctx, sessionID)
	return nil
}

// flushSession never aborts partway: one QA failing to merge is logged and
// skipped so the remaining entries are not lost, and the key is deleted after
// all merges were attempted (at-most-once delivery).
func (c *SessionCache) flushSession(ctx context.Context, sessionID string) {
	raw, err := c.sessions.Entries(ctx, sessionID)
	if err != nil {
		c.logger.Error("session_read_failed", "session_id", sessionID, "error", err)
		return
	}
	if len(raw) == 0 {
		c.logger.Info("session_empty", "session_id", sessionID)
		return
	}

	surviving := dedupeLatestByQuestion(raw, func(data []byte, err error) {
		c.logger.Error("session_entry_decode_failed", "session_id", sessionID, "error", err)
	})

	merged := 0
	for _, entry := range surviving {
		if !entry.Rated() {
			continue
		}
		if err := c.mergeRating(ctx, entry); err != nil {
			c.logger.Error("merge_rating_failed",
				"session_id", sessionID,
				"question_id", entry.QuestionID,
				"error", domain.WrapError(domain.ErrCachePersist, "flush session", err),
			)
			continue
		}
		merged++
	}

	if err := c.sessions.Delete(ctx, sessionID); err != nil {
		c.logger.Error("session_delete_failed", "session_id", sessionID, "error", err)
		return
	}
	c.logger.Info("session_flushed",
		"session_id", sessionID,
		"entries", len(raw),
		"surviving", len(surviving),
		"merged", merged,
	)
}

// dedupeLatestByQuestion keeps one entry per distinct question id, the one
// with the latest timestamp. Entries without a question id are fresh answers
// that never hit the cache before; each of them is kept as-is.
func dedupeLatestByQuestion(raw [][]byte, onDecodeErr func([]byte, error)) []domain.CacheEntry {
	latest := make(map[string]domain.CacheEntry)
	fresh := make([]domain.CacheEntry, 0, len(raw))

	for _, data := range raw {
		var entry domain.CacheEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			onDecodeErr(data, err)
			continue
		}
		if entry.QuestionID == "" {
			fresh = append(fresh, entry)
			continue
		}
		if prev, ok := latest[entry.QuestionID]; !ok || entry.Timestamp.After(prev.Timestamp) {
			latest[entry.QuestionID] = entry
		}
	}

	out := fresh
	for _, entry := range latest {
		out = append(out, entry)
	}
	return out
}

// mergeRating folds one rated entry into the persistent cache. An existing
// question id updates the stored weighted mean; a fresh answer mints a new
// group id with a count of one. The record's dense embedding is always
// recomputed from the question text so the upserted point stays retrievable
// by semantic lookup.
func (c *SessionCache) mergeRating(ctx context.Context, entry domain.CacheEntry) error {
	rating := *entry.Rating

	var agg domain.QAAggregate
	if entry.QuestionID != "" {
		current, err := c.answers.GetByID(ctx, entry.QuestionID)
		if err != nil {
			return fmt.Errorf("fetch aggregate %s: %w", entry.QuestionID, err)
		}
		agg = *current
		agg.Rating = (agg.Rating*float64(agg.RatingCount) + rating) / float64(agg.RatingCount+1)
		agg.RatingCount++
		agg.Answer = entry.Answer
		agg.DisplayDocs = entry.DisplayDocs
		c.logger.Info("qa_updated", "question_id", agg.ID, "rating", agg.Rating, "rating_count", agg.RatingCount)
	} else {
		agg = domain.QAAggregate{
			ID:          uuid.NewString(),
			Question:    entry.Question,
			Answer:      entry.Answer,
			DisplayDocs: entry.DisplayDocs,
			GroupID:     uuid.NewString(),
			Rating:      rating,
			RatingCount: 1,
		}
		c.logger.Info("qa_created", "question_id", agg.ID, "group_id", agg.GroupID)
	}

	dense, err := c.embedder.EmbedDense(ctx, entry.Question)
	if err != nil {
		return domain.WrapError(domain.ErrEmbedding, "embed question", err)
	}
	if err := c.answers.Upsert(ctx, agg, dense); err != nil {
		return fmt.Errorf("upsert aggregate %s: %w", agg.ID, err)
	}
	return nil
}
