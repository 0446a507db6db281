package upload

import (
	"errors"
	"fmt"

	"github.com/evidentia/custody/pkg/retry"
)

// ErrorCode identifies a class of upload failure.
type ErrorCode string

const (
	// ErrNotInitiated means an operation ran before Initiate, or after the
	// session was torn down.
	ErrNotInitiated ErrorCode = "NOT_INITIATED"

	// ErrInvalidPartNumber means a part number below 1 was requested.
	ErrInvalidPartNumber ErrorCode = "INVALID_PART_NUMBER"

	// ErrInitiationFailed means a new session could not be opened.
	ErrInitiationFailed ErrorCode = "INITIATION_FAILED"

	// ErrNegotiationFailed means the collaborator refused to authorize a
	// part. Never retried.
	ErrNegotiationFailed ErrorCode = "NEGOTIATION_FAILED"

	// ErrTransferFailed means the binary transfer of a part failed.
	ErrTransferFailed ErrorCode = "TRANSFER_FAILED"

	// ErrConfirmationMissing means a transfer reported success but
	// returned no confirmation token.
	ErrConfirmationMissing ErrorCode = "CONFIRMATION_MISSING"

	// ErrRetriesExhausted wraps the last underlying error after the retry
	// budget ran out.
	ErrRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"

	// ErrCompletionFailed means assembling the final object failed.
	ErrCompletionFailed ErrorCode = "COMPLETION_FAILED"
)

// Error is a structured upload failure. It carries the attempt count and a
// recoverable flag so callers can decide whether offering a retry makes
// sense.
type Error struct {
	Code        ErrorCode
	Message     string
	Attempts    int
	Recoverable bool
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is an upload Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var uploadErr *Error
	return errors.As(err, &uploadErr) && uploadErr.Code == code
}

func newError(code ErrorCode, message string, recoverable bool) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		Attempts:    1,
		Recoverable: recoverable,
	}
}

// wrapExhausted converts a retry failure into an upload Error, preserving
// the attempt count and recoverable flag.
func wrapExhausted(message string, err error) *Error {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return &Error{
			Code:        ErrRetriesExhausted,
			Message:     message,
			Attempts:    exhausted.Attempts,
			Recoverable: exhausted.Recoverable,
			Err:         exhausted.Err,
		}
	}
	return &Error{
		Code:        ErrRetriesExhausted,
		Message:     message,
		Attempts:    1,
		Recoverable: retry.Recoverable(err),
		Err:         err,
	}
}
