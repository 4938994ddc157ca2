// Package apperror is the error vocabulary shared by every layer: services
// return *AppError sentinels, the HTTP layer maps them onto status codes and
// envelope payloads without string matching.
package apperror

import "fmt"

// AppError carries a stable machine code, a message safe to show callers,
// the HTTP status the error maps to, and optionally the underlying cause.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New builds a sentinel with no underlying cause. Modules declare their
// sentinels as package vars and compare with errors.Is.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap attaches a cause to a new AppError. A nil cause yields nil so call
// sites can wrap unconditionally.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}
