// Package apperr defines the error taxonomy shared by intent handlers and the
// HTTP surface. Errors carry a stable machine code, a human message, an
// optional wrapped cause and an HTTP status.
package apperr

import (
	"errors"
	"net/http"
)

// Stable error codes returned to callers.
const (
	CodeValidation     = "validation_error"
	CodePollClosed     = "poll_closed"
	CodeInvalidRef     = "invalid_reference"
	CodeNotFound       = "not_found"
	CodeUnknownSender  = "unknown_sender"
	CodeStorageTimeout = "storage_timeout"
	CodeInternal       = "internal_error"
)

type AppError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Err     error  `json:"-"`
	status  int
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *AppError) StatusCode() int {
	if e == nil || e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}

// Validation rejects bad input shape or range before any state change.
func Validation(msg string) *AppError {
	return newAppError(CodeValidation, msg, nil, http.StatusBadRequest)
}

// PollClosed rejects a vote against an inactive or time-expired poll.
func PollClosed(msg string) *AppError {
	return newAppError(CodePollClosed, msg, nil, http.StatusConflict)
}

// InvalidReference rejects an option/poll id mismatch.
func InvalidReference(msg string) *AppError {
	return newAppError(CodeInvalidRef, msg, nil, http.StatusBadRequest)
}

// NotFound reports a missing kick target or poll.
func NotFound(msg string) *AppError {
	return newAppError(CodeNotFound, msg, nil, http.StatusNotFound)
}

// UnknownSender rejects chat from a connection that never joined.
func UnknownSender(msg string) *AppError {
	return newAppError(CodeUnknownSender, msg, nil, http.StatusForbidden)
}

// StorageTimeout reports a durable-store operation exceeding its bound.
func StorageTimeout(msg string, err error) *AppError {
	return newAppError(CodeStorageTimeout, msg, err, http.StatusServiceUnavailable)
}

// Internal wraps an unexpected failure.
func Internal(msg string, err error) *AppError {
	return newAppError(CodeInternal, msg, err, http.StatusInternalServerError)
}

// FromError extracts an *AppError from err, wrapping unknown errors as internal.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(http.StatusText(http.StatusInternalServerError), err)
}

func newAppError(code, msg string, err error, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: msg,
		Err:     err,
		status:  status,
	}
}
