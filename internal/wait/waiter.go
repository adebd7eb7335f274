// Package wait polls resources until they reach a status.
package wait

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
	"github.com/juju/clock"
)

// Static errors for err113 compliance.
var (
	ErrFetchRequired  = fmt.Errorf("%w: fetch function is required", cloudcore.ErrValidation)
	ErrStatusRequired = fmt.Errorf("%w: status function is required", cloudcore.ErrValidation)
	ErrTargetRequired = fmt.Errorf("%w: target status is required", cloudcore.ErrValidation)

	errBudgetExhausted = errors.New("wait budget exhausted")
)

// Spec describes one wait.
type Spec[R any] struct {
	// ResourceID is passed to Fetch and named in errors.
	ResourceID string
	// Target is the status that ends the wait successfully. Optional for
	// UntilDeleted, where disappearance is the usual outcome.
	Target string
	// ErrorStatuses end the wait with a ResourceStateError.
	ErrorStatuses []string

	// Interval between fetches. Defaults to the waiter's interval.
	Interval time.Duration
	// Timeout bounds the whole wait. When both Timeout and MaxAttempts are
	// zero the waiter's default timeout applies.
	Timeout time.Duration
	// MaxAttempts bounds the number of fetches. Zero means unbounded.
	MaxAttempts int

	// Fetch loads the resource.
	Fetch func(ctx context.Context, id string) (R, error)
	// Status extracts the resource's status. Statuses compare case-insensitively.
	Status func(R) string
	// Failed reports a generic error flag some APIs set independently of
	// the status. Optional.
	Failed func(R) bool
}

// Waiter holds polling defaults and the clock used to sleep.
type Waiter struct {
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	logger   cloudcore.Logger
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithClock sets the clock used for sleeps, timeouts and elapsed time.
func WithClock(clk clock.Clock) Option {
	return func(w *Waiter) {
		w.clock = clk
	}
}

// WithInterval sets the default poll interval.
func WithInterval(interval time.Duration) Option {
	return func(w *Waiter) {
		w.interval = interval
	}
}

// WithTimeout sets the default timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(w *Waiter) {
		w.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger cloudcore.Logger) Option {
	return func(w *Waiter) {
		w.logger = logger
	}
}

// New creates a Waiter.
func New(opts ...Option) *Waiter {
	waiter := &Waiter{
		clock:    clock.WallClock,
		interval: constants.DefaultPollInterval,
		timeout:  constants.DefaultPollTimeout,
	}

	for _, opt := range opts {
		opt(waiter)
	}

	waiter.logger = cloudcore.LoggerOrNop(waiter.logger)

	return waiter
}

// ForStatus fetches the resource until its status equals spec.Target.
//
// The wait fails with a ResourceStateError when the resource's Failed flag is
// set or its status is one of spec.ErrorStatuses, with a TimeoutError when
// the time or attempt budget runs out, and with ErrCanceled when ctx is
// canceled. Fetch errors are returned as is.
func ForStatus[R any](ctx context.Context, w *Waiter, spec Spec[R]) (R, error) {
	if spec.Status == nil {
		var zero R

		return zero, ErrStatusRequired
	}

	if strings.TrimSpace(spec.Target) == "" {
		var zero R

		return zero, ErrTargetRequired
	}

	return poll(ctx, w, spec, false)
}

// UntilDeleted fetches the resource until Fetch reports it not found, or its
// status equals spec.Target when one is set.
func UntilDeleted[R any](ctx context.Context, w *Waiter, spec Spec[R]) error {
	_, err := poll(ctx, w, spec, true)

	return err
}

// ForStatusAsync runs ForStatus in its own goroutine.
func ForStatusAsync[R any](ctx context.Context, w *Waiter, spec Spec[R]) *cloudcore.Future[R] {
	return cloudcore.Go(ctx, func(ctx context.Context) (R, error) {
		return ForStatus(ctx, w, spec)
	})
}

// UntilDeletedAsync runs UntilDeleted in its own goroutine.
func UntilDeletedAsync[R any](ctx context.Context, w *Waiter, spec Spec[R]) *cloudcore.Future[struct{}] {
	return cloudcore.Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, UntilDeleted(ctx, w, spec)
	})
}

type progress struct {
	start      time.Time
	attempts   int
	lastStatus string
}

func poll[R any](ctx context.Context, w *Waiter, spec Spec[R], deleted bool) (R, error) {
	var last R

	if spec.Fetch == nil {
		return last, ErrFetchRequired
	}

	interval := spec.Interval
	if interval <= 0 {
		interval = w.interval
	}

	timeout := spec.Timeout
	if timeout <= 0 && spec.MaxAttempts <= 0 {
		timeout = w.timeout
	}

	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if timeout > 0 {
		timer := w.clock.AfterFunc(timeout, func() { cancel(errBudgetExhausted) })
		defer timer.Stop()
	}

	state := progress{start: w.clock.Now()}

	for {
		state.attempts++

		resource, err := spec.Fetch(waitCtx, spec.ResourceID)
		if err != nil {
			if deleted && cloudcore.IsNotFound(err) {
				w.logger.Debug("Resource deleted", map[string]interface{}{
					"resource": spec.ResourceID,
					"attempts": state.attempts,
				})

				return resource, nil
			}

			if waitCtx.Err() != nil {
				return last, stopped(ctx, spec, w.clock, state)
			}

			return last, fmt.Errorf("fetching %s: %w", spec.ResourceID, err)
		}

		last = resource

		if spec.Status != nil {
			state.lastStatus = spec.Status(resource)
		}

		w.logger.Debug("Polled resource", map[string]interface{}{
			"resource": spec.ResourceID,
			"status":   state.lastStatus,
			"target":   spec.Target,
			"attempt":  state.attempts,
		})

		if spec.Failed != nil && spec.Failed(resource) {
			return resource, &cloudcore.ResourceStateError{ResourceID: spec.ResourceID, Status: state.lastStatus}
		}

		if spec.Target != "" && strings.EqualFold(state.lastStatus, spec.Target) {
			return resource, nil
		}

		if containsFold(spec.ErrorStatuses, state.lastStatus) {
			return resource, &cloudcore.ResourceStateError{ResourceID: spec.ResourceID, Status: state.lastStatus}
		}

		if spec.MaxAttempts > 0 && state.attempts >= spec.MaxAttempts {
			return resource, timeoutError(spec, w.clock, state)
		}

		select {
		case <-waitCtx.Done():
			return resource, stopped(ctx, spec, w.clock, state)
		case <-w.clock.After(interval):
		}
	}
}

// stopped tells a caller cancellation apart from the wait's own timeout.
func stopped[R any](ctx context.Context, spec Spec[R], clk clock.Clock, state progress) error {
	if ctx.Err() != nil {
		return fmt.Errorf("waiting for %s: %w: %w", spec.ResourceID, cloudcore.ErrCanceled, context.Cause(ctx))
	}

	return timeoutError(spec, clk, state)
}

func timeoutError[R any](spec Spec[R], clk clock.Clock, state progress) error {
	return &cloudcore.TimeoutError{
		ResourceID:   spec.ResourceID,
		TargetStatus: spec.Target,
		Elapsed:      clk.Now().Sub(state.start),
		Attempts:     state.attempts,
		LastStatus:   state.lastStatus,
	}
}

func containsFold(values []string, value string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, value) {
			return true
		}
	}

	return false
}
