package crawler

import (
	"errors"
	"strings"
)

var (
	// ErrJobNotFound is returned when a job id is unknown to the queue.
	ErrJobNotFound = errors.New("job not found")
	// ErrDomainNotFound is returned when no record exists for a domain.
	ErrDomainNotFound = errors.New("domain not found")
	// ErrNoContent signals that no usable page content could be fetched.
	ErrNoContent = errors.New("no content")
	// ErrTraversal marks an error that escaped per-page absorption.
	ErrTraversal = errors.New("traversal failed")
	// ErrQueueClosed is returned by queue operations after Close.
	ErrQueueClosed = errors.New("queue closed")
)

// ValidationError lists required parameters that were missing or empty.
type ValidationError struct {
	Missing []string
}

// NewValidationError builds a ValidationError for the named parameters.
func NewValidationError(missing ...string) *ValidationError {
	return &ValidationError{Missing: missing}
}

func (e *ValidationError) Error() string {
	return "missing parameters: " + strings.Join(e.Missing, ", ")
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsBlank reports whether a request value counts as missing: empty after
// trimming, or the literal "NULL" in any case.
func IsBlank(value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || strings.EqualFold(v, "NULL")
}
