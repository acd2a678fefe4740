package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuth             = errors.New("authentication failed")
	ErrInput            = errors.New("invalid input")
	ErrConfig           = errors.New("invalid configuration")
	ErrNotFound         = errors.New("not found")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// AuthError is returned when the credential exchange fails. It is fatal for a run.
type AuthError struct {
	Err        error
	StatusCode int // 0 when no response was received
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth: token endpoint returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("auth: %v", e.Err)
}

func (e *AuthError) Unwrap() []error { return []error{ErrAuth, e.Err} }

// InputError is returned when the username source cannot be read.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() []error { return []error{ErrInput, e.Err} }

// FetchError describes a request that failed after its retry budget was spent.
type FetchError struct {
	Endpoint   string
	Attempts   int
	StatusCode int   // last HTTP status, 0 for transport errors
	Err        error // last underlying error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() []error { return []error{ErrRetriesExhausted, e.Err} }

// StatusError is a non-2xx response that is not a rate limit.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, e.Body)
}
