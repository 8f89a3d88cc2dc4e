package tracker

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode classifies tracker failures. The API maps each code to an HTTP status.
type ErrorCode string

const (
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeDatabase     ErrorCode = "DATABASE_ERROR"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnsupported  ErrorCode = "UNSUPPORTED"
	// ErrCodeCanceled marks a cycle abandoned because its context ended.
	// Nothing of such a cycle is persisted.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// Error is a coded tracker failure, optionally wrapping its cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// canceled returns a CANCELED error once ctx is done.
func canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return WrapError(ErrCodeCanceled, "refresh canceled", err)
	}
	return nil
}
