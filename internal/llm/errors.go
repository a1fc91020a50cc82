package llm

import (
	"context"
	"errors"
	"net"
	"strings"
)

// retryableError marks a failure worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError checks if an error should be retried.
func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// transientMarkers are substrings the provider clients put in status errors.
var transientMarkers = []string{
	"429",
	"rate limit",
	"status code: 500",
	"status code: 502",
	"status code: 503",
	"status code: 504",
	"timeout",
	"connection reset",
}

// classify wraps transient provider errors. Cancellation of the caller's
// context is never retried.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &retryableError{err: err}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return &retryableError{err: err}
		}
	}
	return err
}
