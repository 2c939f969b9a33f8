package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// Recorder persists completed interactions.
type Recorder interface {
	Record(ctx context.Context, interaction *models.OracleInteraction) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, interaction *models.OracleInteraction) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, interaction *models.OracleInteraction) error {
	return f(ctx, interaction)
}

// RetryingRecorder retries a Recorder with exponential backoff.
type RetryingRecorder struct {
	next       Recorder
	maxRetries uint64
	initial    time.Duration
}

// NewRetryingRecorder wraps next. retries is the number of attempts after the first.
func NewRetryingRecorder(next Recorder, retries int, initial time.Duration) (*RetryingRecorder, error) {
	if next == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if retries < 0 {
		retries = 0
	}
	if initial <= 0 {
		initial = backoff.DefaultInitialInterval
	}
	return &RetryingRecorder{next: next, maxRetries: uint64(retries), initial: initial}, nil
}

// Record persists interaction, retrying until the attempts run out or ctx ends.
func (r *RetryingRecorder) Record(ctx context.Context, interaction *models.OracleInteraction) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initial
	policy.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := r.next.Record(ctx, interaction)
		if err != nil {
			log.Warn().Err(err).Str("interaction_id", interaction.ID).Int("attempt", attempt).Msg("Failed to persist interaction")
		}
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx))
}
