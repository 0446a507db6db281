package retry

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Classifier is implemented by errors that know their own retry class.
// It takes precedence over all other classification rules.
type Classifier interface {
	Recoverable() bool
}

// StatusCoder is implemented by errors carrying an HTTP status code, such as
// a rejected part transfer or an API error response.
type StatusCoder interface {
	HTTPStatusCode() int
}

// Recoverable reports whether the error is transient and the operation
// should be retried.
//
// Classification rules, in order:
//   - errors implementing Classifier are honored as-is
//   - HTTP 429 and 5xx are recoverable; other 4xx are not
//   - context cancellation is not recoverable
//   - network errors and timeouts are recoverable
//   - anything unclassifiable defaults to recoverable
func Recoverable(err error) bool {
	if err == nil {
		return false
	}

	var classifier Classifier
	if errors.As(err, &classifier) {
		return classifier.Recoverable()
	}

	var coder StatusCoder
	if errors.As(err, &coder) {
		code := coder.HTTPStatusCode()
		switch {
		case code == 429:
			return true
		case code >= 500:
			return true
		case code >= 400:
			return false
		}
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// A deadline reported by the transport is a timeout, retry it.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "temporary failure") {
		return true
	}

	return true
}
