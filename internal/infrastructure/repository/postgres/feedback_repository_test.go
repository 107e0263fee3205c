package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dzaytsev/ragfusion/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*FeedbackRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &FeedbackRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestAppendInsertsEvent(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rating := 4.0
	mock.ExpectExec("INSERT INTO rating_feedback").
		WithArgs("sess-1", "user-1", "qa-1", "what is the risk level", "medium", "DOC_0001", rating, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Append(context.Background(), domain.RatingEvent{
		SessionID:   "sess-1",
		UserID:      "user-1",
		QuestionID:  "qa-1",
		Question:    "what is the risk level",
		Answer:      "medium",
		DisplayDocs: "DOC_0001",
		Rating:      &rating,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendNullsEmptyQuestionID(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO rating_feedback").
		WithArgs("sess-1", "user-1", nil, "q", "a", "", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Append(context.Background(), domain.RatingEvent{
		SessionID: "sess-1",
		UserID:    "user-1",
		Question:  "q",
		Answer:    "a",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendWrapsInsertError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO rating_feedback").
		WillReturnError(errors.New("connection reset"))

	err := repo.Append(context.Background(), domain.RatingEvent{SessionID: "sess-1", UserID: "user-1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
