package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
)

// FeedbackRepository is the append-only audit trail of rating events. The QA
// cache stores only the reconciled aggregates; this table keeps every raw
// event as submitted.
type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *FeedbackRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS rating_feedback (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	question_id TEXT,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	display_docs TEXT NOT NULL DEFAULT '',
	rating DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rating_feedback_session ON rating_feedback(session_id);
CREATE INDEX IF NOT EXISTS idx_rating_feedback_created_at ON rating_feedback(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *FeedbackRepository) Append(ctx context.Context, event domain.RatingEvent) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO rating_feedback (
	session_id, user_id, question_id, question, answer, display_docs, rating, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		event.SessionID, event.UserID, nullableString(event.QuestionID), event.Question,
		event.Answer, event.DisplayDocs, event.Rating, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert rating feedback: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
