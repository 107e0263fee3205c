package domain

import "time"

// CacheEntry is one session-buffered interaction. Entries are append-only:
// a later entry for the same question id supersedes earlier ones at flush
// time, nothing is mutated in place.
type CacheEntry struct {
	UserID      string    `json:"user_id"`
	QuestionID  string    `json:"question_id,omitempty"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	DisplayDocs string    `json:"display_docs"`
	Rating      *float64  `json:"rating"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e CacheEntry) Rated() bool {
	return e.Rating != nil
}

// QAAggregate is the persisted cache record for one question/answer group.
// Rating is the running weighted mean of every rating merged into the record;
// RatingCount grows by exactly one per merge. The record's dense embedding is
// computed from the question text so it stays retrievable by semantic lookup.
type QAAggregate struct {
	ID          string  `json:"id"`
	Question    string  `json:"question"`
	Answer      string  `json:"answer"`
	DisplayDocs string  `json:"display_docs"`
	GroupID     string  `json:"group_id,omitempty"`
	Rating      float64 `json:"rating"`
	RatingCount int     `json:"rating_count"`
}

// CachedAnswer is a QA cache lookup hit with its similarity score.
type CachedAnswer struct {
	QAAggregate
	Score float64 `json:"score"`
}

// RatingEvent is the wire form of one user rating action, published by the
// API and consumed by the session cache worker.
type RatingEvent struct {
	SessionID   string   `json:"session_id"`
	UserID      string   `json:"user_id"`
	QuestionID  string   `json:"question_id,omitempty"`
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	DisplayDocs string   `json:"display_docs"`
	Rating      *float64 `json:"rating"`
}
