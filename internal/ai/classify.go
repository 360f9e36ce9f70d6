package ai

import (
	"errors"
	"strings"
)

// Class tells the orchestrator whether a failed call is worth repeating on the
// same provider.
type Class int

const (
	Permanent Class = iota
	Retryable
)

func (c Class) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "permanent"
}

// retryablePatterns is matched case-sensitively against error messages.
// Keep the list as is; callers depend on exactly these keywords.
var retryablePatterns = []string{
	"timeout",
	"network",
	"fetch",
	"JSON",
	"SyntaxError",
}

// Classify decides whether err is retryable.
func Classify(err error) Class {
	if err == nil {
		return Permanent
	}

	var (
		timeoutErr   *TimeoutError
		transientErr *TransientProviderError
		parseErr     *ParseError
		schemaErr    *SchemaError
	)
	switch {
	case errors.As(err, &timeoutErr), errors.As(err, &transientErr), errors.As(err, &parseErr):
		return Retryable
	case errors.As(err, &schemaErr):
		return Permanent
	}

	msg := err.Error()
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return Retryable
		}
	}
	return Permanent
}
