package ai

import (
	"errors"
	"fmt"
	"time"
)

// ErrProbeFailed is returned by health probes that get an empty reply.
var ErrProbeFailed = errors.New("ai provider health probe failed")

// InvalidInputError reports a malformed analysis request.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

// TransientProviderError wraps a backend failure that is safe to retry.
type TransientProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransientProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s transient failure (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s transient failure: %v", e.Provider, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// PermanentProviderError wraps a backend failure that retrying will not fix
// (authentication, bad configuration).
type PermanentProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *PermanentProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *PermanentProviderError) Unwrap() error { return e.Err }

// TimeoutError is raised when a backend call exceeds the inference timeout.
type TimeoutError struct {
	Provider string
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %s timeout after %s", e.Provider, e.After)
}

// NoHealthyProviderError is returned when no registered provider is eligible.
type NoHealthyProviderError struct{}

func (e *NoHealthyProviderError) Error() string {
	return "no healthy ai provider available"
}

// AllProvidersExhaustedError is returned when failover finds no other eligible
// provider. It carries the last provider's error.
type AllProvidersExhaustedError struct {
	LastProvider string
	Err          error
}

func (e *AllProvidersExhaustedError) Error() string {
	return fmt.Sprintf("all ai providers exhausted, last provider %s: %v", e.LastProvider, e.Err)
}

func (e *AllProvidersExhaustedError) Unwrap() error { return e.Err }

// RetriesExhaustedError is returned when the retry budget runs out.
type RetriesExhaustedError struct {
	MaxRetries int
	Err        error
}

func (e *RetriesExhaustedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retries exhausted (max %d): %v", e.MaxRetries, e.Err)
	}
	return fmt.Sprintf("retries exhausted (max %d)", e.MaxRetries)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

// ParseError is returned when no JSON object can be located in a reply.
type ParseError struct {
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable JSON reply %q: %v", e.Snippet, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError is returned when a decoded reply misses a required field or a
// field has the wrong type.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("reply schema violation: %s", e.Reason)
	}
	return fmt.Sprintf("reply schema violation at %s: %s", e.Field, e.Reason)
}
