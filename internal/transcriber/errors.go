package transcriber

import (
	"errors"
	"fmt"
)

// Code is a stable identifier for a transcription failure
type Code string

const (
	CodeFileNotFound      Code = "FILE_NOT_FOUND"
	CodeFileTooLarge      Code = "FILE_TOO_LARGE"
	CodeFailed            Code = "FAILED"
	CodeModelNotAvailable Code = "MODEL_NOT_AVAILABLE"
	CodeInvalidContainer  Code = "INVALID_CONTAINER"
)

// Error is returned by every Provider operation
type Error struct {
	Code        Code
	Message     string
	Recoverable bool
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newFileNotFound(path string, cause error) *Error {
	return &Error{
		Code:    CodeFileNotFound,
		Message: fmt.Sprintf("audio file not found: %s", path),
		Cause:   cause,
	}
}

func newFileTooLarge(size, limit int) *Error {
	return &Error{
		Code:        CodeFileTooLarge,
		Message:     fmt.Sprintf("audio is %d bytes, limit is %d", size, limit),
		Recoverable: true,
	}
}

func newFailed(message string, cause error) *Error {
	return &Error{
		Code:        CodeFailed,
		Message:     message,
		Recoverable: true,
		Cause:       cause,
	}
}

func newModelNotAvailable(cause error) *Error {
	return &Error{
		Code:    CodeModelNotAvailable,
		Message: "local model is not available",
		Cause:   cause,
	}
}

func newInvalidContainer(cause error) *Error {
	return &Error{
		Code:    CodeInvalidContainer,
		Message: "audio is not a valid WAV container",
		Cause:   cause,
	}
}

// IsCode reports whether err carries a transcription Error with the given code
func IsCode(err error, code Code) bool {
	var te *Error
	return errors.As(err, &te) && te.Code == code
}

// IsRecoverable reports whether retrying the operation that produced err may succeed
func IsRecoverable(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Recoverable
}

// asFailed passes transcription errors through and wraps anything else as FAILED
func asFailed(message string, err error) error {
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return newFailed(message, err)
}
