package ai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
)

// ClassifyTransport maps transport-level errors from a backend call to the
// provider error taxonomy. Context errors are returned unchanged so the
// orchestrator can tell its own timeout from caller cancellation.
func ClassifyTransport(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientProviderError{Provider: provider, Err: err}
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return &TransientProviderError{Provider: provider, Err: err}
	}
	return &PermanentProviderError{Provider: provider, Err: err}
}

// ClassifyStatus maps an HTTP status from a backend to the provider error taxonomy.
func ClassifyStatus(provider string, status int, err error) error {
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return &TransientProviderError{Provider: provider, StatusCode: status, Err: err}
	}
	return &PermanentProviderError{Provider: provider, StatusCode: status, Err: err}
}
