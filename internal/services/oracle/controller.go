// Package oracle runs streaming questions against the completion backend for
// one client context and persists the finished answers.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/esoteric-oracle/oracle-service/internal/core/completion"
	apperrors "github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

const (
	// DefaultMaxQuestionLength caps the question size in runes.
	DefaultMaxQuestionLength = 2000

	persistTimeout = 30 * time.Second
)

// SessionSource yields the current session snapshot.
type SessionSource interface {
	Current() *models.Session
}

// Config holds the configuration for a controller.
type Config struct {
	Source            completion.Client
	Recorder          Recorder
	Sessions          SessionSource
	MaxQuestionLength int
	NowFunc           func() time.Time
}

// Controller owns at most one active query. Starting a query cancels the
// previous one atomically.
type Controller struct {
	source    completion.Client
	recorder  Recorder
	sessions  SessionSource
	maxLength int
	now       func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	current *Query
}

// NewController creates a controller.
func NewController(cfg *Config) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("completion source is required")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session source is required")
	}

	maxLength := cfg.MaxQuestionLength
	if maxLength <= 0 {
		maxLength = DefaultMaxQuestionLength
	}
	now := cfg.NowFunc
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		source:     cfg.Source,
		recorder:   cfg.Recorder,
		sessions:   cfg.Sessions,
		maxLength:  maxLength,
		now:        now,
		baseCtx:    ctx,
		baseCancel: cancel,
	}, nil
}

// Ask starts a query for question and returns its handle immediately.
// Progress is delivered to obs. Any active query is cancelled first.
func (c *Controller) Ask(question string, obs Observer) *Query {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	question = strings.TrimSpace(question)

	var userID string
	if s := c.sessions.Current(); s != nil {
		userID = s.User.ID
	}

	c.mu.Lock()
	if prev := c.current; prev != nil {
		prev.Cancel()
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	q := newQuery(uuid.NewString(), question, cancel)
	c.current = q
	c.mu.Unlock()

	go c.run(ctx, q, userID, obs)
	return q
}

// Cancel aborts the active query, if any.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return false
	}
	return c.current.Cancel()
}

// Current returns the most recent query, or nil.
func (c *Controller) Current() *Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Close cancels the active query and every pending save.
func (c *Controller) Close() {
	c.Cancel()
	c.baseCancel()
}

func (c *Controller) run(ctx context.Context, q *Query, userID string, obs Observer) {
	defer close(q.done)
	defer q.cancel()
	defer func() {
		if q.Status() == models.QueryCancelled {
			obs.OnStatus(q, models.QueryCancelled)
		}
	}()

	obs.OnStatus(q, models.QueryPending)

	if err := c.validate(q.Question, userID); err != nil {
		c.fail(q, obs, err)
		return
	}

	reader, err := c.source.Stream(ctx, &completion.Request{Question: q.Question})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if _, ok := apperrors.GetDomainError(err); !ok {
			err = apperrors.NewConnectionFailedError("completion backend", err)
		}
		c.fail(q, obs, err)
		return
	}
	defer reader.Close()

	if !q.transition(models.QueryStreaming) {
		return
	}
	obs.OnStatus(q, models.QueryStreaming)

	dec := &textDecoder{}
	for {
		data, readErr := reader.Read()
		if len(data) > 0 {
			if !c.emit(q, obs, dec.Decode(data)) {
				return
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return
			}
			c.emit(q, obs, dec.Flush())
			c.fail(q, obs, apperrors.NewTransportInterruptedError(readErr))
			return
		}
	}
	if !c.emit(q, obs, dec.Flush()) {
		return
	}

	if !q.transition(models.QueryCompleted) {
		return
	}
	obs.OnStatus(q, models.QueryCompleted)

	c.persist(q, obs, userID)
}

// emit appends a non-empty increment and reports whether the query is still active.
func (c *Controller) emit(q *Query, obs Observer, increment string) bool {
	if increment == "" {
		return q.Status().IsActive()
	}
	accumulated, ok := q.append(increment)
	if !ok {
		return false
	}
	obs.OnText(q, increment, accumulated)
	return true
}

func (c *Controller) fail(q *Query, obs Observer, err error) {
	if !q.fail(err) {
		return
	}
	log.Warn().Err(err).Str("query_id", q.ID).Msg("Oracle query failed")
	obs.OnStatus(q, models.QueryFailed)
	obs.OnError(q, err)
}

// persist saves the finished answer. A failure is surfaced but the query stays
// completed and keeps its text.
func (c *Controller) persist(q *Query, obs Observer, userID string) {
	interaction := models.NewOracleInteraction(uuid.NewString(), userID, q.Question, q.Text())
	interaction.CreatedAt = c.now().UTC()

	ctx, cancel := context.WithTimeout(c.baseCtx, persistTimeout)
	defer cancel()

	if err := c.recorder.Record(ctx, interaction); err != nil {
		werr := apperrors.NewWriteFailedError("interaction", err)
		q.saveFailed(werr)
		log.Error().Err(err).Str("query_id", q.ID).Str("user_id", userID).Msg("Failed to save oracle interaction")
		obs.OnError(q, werr)
		return
	}

	q.saved(interaction)
	obs.OnSaved(q, interaction)
}

func (c *Controller) validate(question, userID string) error {
	if userID == "" {
		return apperrors.NewUnauthenticatedError("sign in to ask the oracle")
	}
	if question == "" {
		return apperrors.NewValidationError("question is required", "")
	}
	if utf8.RuneCountInString(question) > c.maxLength {
		return apperrors.NewValidationError("question is too long", fmt.Sprintf("at most %d characters", c.maxLength))
	}
	return nil
}
