package models

import "time"

// OracleInteraction is a persisted question and answer pair.
type OracleInteraction struct {
	ID         string    `json:"id" bson:"_id"`
	UserID     string    `json:"user_id" bson:"user_id"`
	Question   string    `json:"question" bson:"question"`
	Response   string    `json:"response" bson:"response"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	IsFavorite bool      `json:"is_favorite" bson:"is_favorite"`
}

// NewOracleInteraction creates an interaction stamped with the current time.
func NewOracleInteraction(id, userID, question, response string) *OracleInteraction {
	return &OracleInteraction{
		ID:        id,
		UserID:    userID,
		Question:  question,
		Response:  response,
		CreatedAt: time.Now().UTC(),
	}
}

// QueryStatus is the lifecycle state of a streaming query.
type QueryStatus string

const (
	QueryPending   QueryStatus = "pending"
	QueryStreaming QueryStatus = "streaming"
	QueryCompleted QueryStatus = "completed"
	QueryCancelled QueryStatus = "cancelled"
	QueryFailed    QueryStatus = "failed"
)

// IsActive reports whether the query still holds the controller slot.
func (s QueryStatus) IsActive() bool {
	return s == QueryPending || s == QueryStreaming
}

// IsTerminal reports whether the query has finished.
func (s QueryStatus) IsTerminal() bool {
	return !s.IsActive()
}
