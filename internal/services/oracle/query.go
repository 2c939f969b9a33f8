package oracle

import (
	"context"
	"strings"
	"sync"

	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// Observer receives the progress of a query. Callbacks for one query arrive
// from a single goroutine, in order.
type Observer interface {
	OnStatus(q *Query, status models.QueryStatus)
	OnText(q *Query, increment, accumulated string)
	OnError(q *Query, err error)
	OnSaved(q *Query, interaction *models.OracleInteraction)
}

// ObserverFuncs adapts optional functions to Observer.
type ObserverFuncs struct {
	Status func(q *Query, status models.QueryStatus)
	Text   func(q *Query, increment, accumulated string)
	Error  func(q *Query, err error)
	Saved  func(q *Query, interaction *models.OracleInteraction)
}

func (o ObserverFuncs) OnStatus(q *Query, status models.QueryStatus) {
	if o.Status != nil {
		o.Status(q, status)
	}
}

func (o ObserverFuncs) OnText(q *Query, increment, accumulated string) {
	if o.Text != nil {
		o.Text(q, increment, accumulated)
	}
}

func (o ObserverFuncs) OnError(q *Query, err error) {
	if o.Error != nil {
		o.Error(q, err)
	}
}

func (o ObserverFuncs) OnSaved(q *Query, interaction *models.OracleInteraction) {
	if o.Saved != nil {
		o.Saved(q, interaction)
	}
}

// Query is one question-to-answer exchange.
type Query struct {
	ID       string
	Question string

	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	status      models.QueryStatus
	text        strings.Builder
	err         error
	interaction *models.OracleInteraction
}

// Snapshot is a point-in-time copy of a query.
type Snapshot struct {
	ID       string             `json:"id"`
	Question string             `json:"question"`
	Status   models.QueryStatus `json:"status"`
	Text     string             `json:"text"`
	Error    string             `json:"error,omitempty"`
}

func newQuery(id, question string, cancel context.CancelFunc) *Query {
	return &Query{
		ID:       id,
		Question: question,
		cancel:   cancel,
		done:     make(chan struct{}),
		status:   models.QueryPending,
	}
}

// Status returns the current status.
func (q *Query) Status() models.QueryStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// Text returns the accumulated response text.
func (q *Query) Text() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.text.String()
}

// Err returns the error surfaced for the query, if any. A completed query may
// carry a persistence error.
func (q *Query) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Interaction returns the persisted record once saved.
func (q *Query) Interaction() *models.OracleInteraction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.interaction
}

// Done is closed when the query has finished, including persistence.
func (q *Query) Done() <-chan struct{} {
	return q.done
}

// Snapshot returns a copy of the query state.
func (q *Query) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Snapshot{ID: q.ID, Question: q.Question, Status: q.status, Text: q.text.String()}
	if q.err != nil {
		s.Error = q.err.Error()
	}
	return s
}

// Cancel aborts the query if it is still active. The partial text is
// discarded and no error is recorded.
func (q *Query) Cancel() bool {
	q.mu.Lock()
	if !q.status.IsActive() {
		q.mu.Unlock()
		return false
	}
	q.status = models.QueryCancelled
	q.text.Reset()
	q.mu.Unlock()

	q.cancel()
	return true
}

// transition moves an active query to next. It fails once the query was cancelled.
func (q *Query) transition(next models.QueryStatus) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.status.IsActive() {
		return false
	}
	q.status = next
	return true
}

// append adds an increment unless the query is no longer active.
func (q *Query) append(increment string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.status.IsActive() {
		return "", false
	}
	q.text.WriteString(increment)
	return q.text.String(), true
}

// fail records err and moves an active query to failed, keeping partial text.
func (q *Query) fail(err error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.status.IsActive() {
		return false
	}
	q.status = models.QueryFailed
	q.err = err
	return true
}

func (q *Query) saved(interaction *models.OracleInteraction) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.interaction = interaction
}

func (q *Query) saveFailed(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}
