package core

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a single requested record does not exist (or is not visible to the caller).
var ErrNotFound = errors.New("not found")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return fmt.Sprintf("%s: %s", err.Fields[0].Field, err.Fields[0].Error)
		}
		return ""
	}
	return err.Err.Error()
}

// StorageError reports that the backing store could not serve the operation.
// It is returned to callers as is; nothing retries it internally.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(err error, op string) error {
	return &StorageError{Op: op, Err: err}
}

func (err StorageError) Error() string {
	return fmt.Sprintf("storage unavailable: %s: %v", err.Op, err.Err)
}

func (err StorageError) Unwrap() error { return err.Err }

func IsStorageUnavailable(err error) bool {
	_, ok := errors.Cause(err).(*StorageError)
	return ok
}

// RateLimitedError is returned when a caller exceeded its request budget.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func NewRateLimitedError(retryAfter time.Duration) error {
	return &RateLimitedError{RetryAfter: retryAfter}
}

func (err RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", err.RetryAfter)
}

// RetryAfterSeconds rounds the hint up to whole seconds (never below 1).
func (err RateLimitedError) RetryAfterSeconds() int {
	secs := int((err.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// RecipientResolutionError is raised when a rule's recipients could not be looked up.
type RecipientResolutionError struct {
	Policy string
	Err    error
}

func NewRecipientResolutionError(err error, policy string) error {
	return &RecipientResolutionError{Policy: policy, Err: err}
}

func (err RecipientResolutionError) Error() string {
	return fmt.Sprintf("resolving %q recipients: %v", err.Policy, err.Err)
}

func (err RecipientResolutionError) Unwrap() error { return err.Err }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
