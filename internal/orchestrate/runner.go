// Package orchestrate runs the pipeline stages as ordered, dependent steps
// with a bounded retry, once or on a fixed interval.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/urban-pulse-etl/internal/observability"
)

// Step is one named unit of work. A step only runs after every earlier step
// has succeeded.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepError reports the step that exhausted its retries.
type StepError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Runner executes steps in order. Each step gets retries extra attempts
// separated by a constant delay.
type Runner struct {
	retries int
	delay   time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the clock that drives Schedule.
func WithClock(c clockwork.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// NewRunner creates a Runner. Negative retries are treated as zero.
func NewRunner(retries int, delay time.Duration, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Runner {
	r := &Runner{
		retries: max(retries, 0),
		delay:   delay,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		metrics: metrics,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes steps in order and stops at the first step that still fails
// after its retries. Context cancellation is never retried.
func (r *Runner) Run(ctx context.Context, steps []Step) error {
	for _, step := range steps {
		if err := r.runStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, step Step) error {
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := step.Run(ctx)
		if err == nil {
			r.metrics.StepAttempts.WithLabelValues(step.Name, "success").Inc()
			return struct{}{}, nil
		}
		r.metrics.StepAttempts.WithLabelValues(step.Name, "error").Inc()
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.delay)),
		backoff.WithMaxTries(uint(r.retries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("step failed, retrying", "step", step.Name, "attempt", attempts, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		r.logger.Error("step failed", "step", step.Name, "attempts", attempts, "error", err)
		return &StepError{Step: step.Name, Attempts: attempts, Err: err}
	}
	r.logger.Debug("step complete", "step", step.Name, "attempts", attempts)
	return nil
}

// Schedule calls cycle immediately and then once per interval until ctx is
// cancelled. A failed cycle is logged and the schedule continues.
func (r *Runner) Schedule(ctx context.Context, interval time.Duration, cycle func(ctx context.Context) error) error {
	if interval <= 0 {
		return errors.New("schedule interval must be positive")
	}

	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("schedule started", "interval", interval)
	for {
		if err := cycle(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("scheduled cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("schedule stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}
