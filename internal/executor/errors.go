package executor

import (
	"context"
	"errors"

	"github.com/cexll/gamegen/internal/builder"
	"github.com/cexll/gamegen/internal/costcontrol"
	"github.com/cexll/gamegen/internal/game"
)

// ErrDuplicateBuild is returned when an identical build task is already running.
var ErrDuplicateBuild = errors.New("an identical build is already in progress")

// NonRetryableError marks task failures that should not be retried by the dispatcher.
type NonRetryableError struct {
	err error
}

// NonRetryable wraps err so that IsNonRetryable reports true for it.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{err: err}
}

func (e *NonRetryableError) Error() string {
	return e.err.Error()
}

func (e *NonRetryableError) Unwrap() error {
	return e.err
}

// IsNonRetryable reports whether the provided error originated from a non-retryable failure.
func IsNonRetryable(err error) bool {
	if err == nil {
		return false
	}

	var target *NonRetryableError
	return errors.As(err, &target)
}

// classify marks errors that another attempt cannot fix. An expired attempt
// deadline is final: the build it started may still be running remotely.
func classify(err error) error {
	var failed *builder.BuildFailedError
	var limit *costcontrol.LimitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &failed),
		errors.As(err, &limit),
		errors.Is(err, builder.ErrBuildTimeout),
		errors.Is(err, game.ErrUnsupportedPlatform),
		errors.Is(err, game.ErrMissingDescription),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return NonRetryable(err)
	default:
		return err
	}
}
