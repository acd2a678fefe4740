package domain

import (
	"context"
	"errors"
)

// FailureReason tags why a fetch produced no value.
type FailureReason string

const (
	FailureNone      FailureReason = ""
	FailureNotFound  FailureReason = "not_found"
	FailureExhausted FailureReason = "retries_exhausted"
	FailureDecode    FailureReason = "decode"
	FailureCancelled FailureReason = "cancelled"
)

// Outcome carries either a value or a tagged failure, so fetch errors never
// cross component boundaries as plain errors.
type Outcome[T any] struct {
	Value   T
	Failure FailureReason
	Err     error
}

// OK reports whether the outcome holds a usable value.
func (o Outcome[T]) OK() bool { return o.Failure == FailureNone }

// Succeed wraps a value.
func Succeed[T any](v T) Outcome[T] { return Outcome[T]{Value: v} }

// Fail wraps an error, classifying it by reason.
func Fail[T any](err error) Outcome[T] {
	return Outcome[T]{Failure: Classify(err), Err: err}
}

// Classify maps an error onto a FailureReason.
func Classify(err error) FailureReason {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrRetriesExhausted):
		// Checked first: an exhausted budget may wrap per-request timeouts.
		return FailureExhausted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCancelled
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	default:
		return FailureDecode
	}
}
