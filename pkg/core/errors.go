package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors
var (
	ErrCancelled       = errors.New("editions: cancelled")
	ErrTimeoutRequired = errors.New("editions: a positive timeout and poll interval are required")
	ErrStageInFlight   = errors.New("editions: a stage is already in flight for this run")
	ErrStageOutOfOrder = errors.New("editions: previous stage has not succeeded")
	ErrRunFinished     = errors.New("editions: run already finished")
	ErrNotFound        = errors.New("editions: not found")
	ErrNotLoggedIn     = errors.New("editions: no session, call Login first")
)

// Validation errors
var (
	ErrInvalidID     = errors.New("editions: invalid remote id (must be numeric)")
	ErrInvalidTitle  = errors.New("editions: invalid document title")
	ErrUnsafePath    = errors.New("editions: path escapes destination directory")
	ErrArchiveTooBig = errors.New("editions: archive exceeds size limit")
)

// SubmissionError reports that the remote service rejected or never received
// a work item. It is never retried.
type SubmissionError struct {
	Kind       JobKind
	DocumentID string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.DocumentID != "" {
		return fmt.Sprintf("submit %s for document %s: %v", e.Kind, e.DocumentID, e.Err)
	}
	return fmt.Sprintf("submit %s: %v", e.Kind, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// PollError reports a transient failure while querying status.
type PollError struct {
	Err error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll: %v", e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// ParseError reports a malformed or unexpected remote payload.
type ParseError struct {
	What string
	Raw  string
	Err  error
}

func (e *ParseError) Error() string {
	msg := "parse " + e.What
	if e.Raw != "" {
		msg += fmt.Sprintf(" %q", truncate(e.Raw, 120))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that a wait expired. Missing lists what never
// reached the expected state.
type TimeoutError struct {
	What    string
	After   time.Duration
	Missing []string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for %s; missing: %s",
		e.After, e.What, strings.Join(e.Missing, ", "))
}

// JobFailedError reports that the remote service marked a job as failed.
type JobFailedError struct {
	Job RemoteJob
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("remote %s job %s failed", e.Job.Kind, e.Job.ID)
}

// HTTPError is a non-2xx response from a remote API.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, truncate(e.Body, 256))
}

// NotFound reports a 404 response.
func (e *HTTPError) NotFound() bool {
	return e.StatusCode == 404
}

// NoRetryError marks an error that must not be retried.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
