package s3

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/evidentia/custody/pkg/retry"
)

// classifiedError tags an S3 failure with its retry class so the session's
// retry executor does not have to know smithy error codes.
type classifiedError struct {
	err         error
	recoverable bool
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

func (e *classifiedError) Recoverable() bool {
	return e.recoverable
}

var _ retry.Classifier = (*classifiedError)(nil)

// Throttling and availability error codes S3 returns for transient
// conditions.
var transientCodes = map[string]bool{
	"RequestTimeout":       true,
	"SlowDown":             true,
	"ServiceUnavailable":   true,
	"InternalError":        true,
	"Throttling":           true,
	"ThrottlingException":  true,
	"RequestLimitExceeded": true,
}

// classify wraps an S3 error with its retry class.
func classify(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, recoverable: isTransient(err)}
}

func isTransient(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if transientCodes[apiErr.ErrorCode()] {
			return true
		}
		switch apiErr.ErrorFault() {
		case smithy.FaultServer:
			return true
		case smithy.FaultClient:
			return false
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "i/o timeout") {
		return true
	}

	// Unclassified errors default to recoverable.
	return true
}
