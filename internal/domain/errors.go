package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes classify the errors returned by repositories and services.
const (
	CodeNotFound      = 1
	CodeAlreadyExists = 2
	CodeValidation    = 3
	CodeInternal      = 4
)

var codeStatus = map[int]int{
	CodeNotFound:      http.StatusNotFound,
	CodeAlreadyExists: http.StatusConflict,
	CodeValidation:    http.StatusBadRequest,
	CodeInternal:      http.StatusInternalServerError,
}

// AppError is a classified failure. Message is safe to show to API clients
// unless Code is CodeInternal; Err keeps the underlying cause.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// Sentinels for each code. The Is helpers below compare codes, so they also
// match errors built by NewAppError, Validationf and NotFoundf.
var (
	ErrNotFound      = NewAppError(CodeNotFound, "not found", nil)
	ErrAlreadyExists = NewAppError(CodeAlreadyExists, "already exists", nil)
	ErrValidation    = NewAppError(CodeValidation, "validation error", nil)
	ErrInternal      = NewAppError(CodeInternal, "internal error", nil)
)

func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func Validationf(format string, args ...any) *AppError {
	return NewAppError(CodeValidation, fmt.Sprintf(format, args...), nil)
}

func NotFoundf(format string, args ...any) *AppError {
	return NewAppError(CodeNotFound, fmt.Sprintf(format, args...), nil)
}

func IsNotFound(err error) bool      { return codeOf(err) == CodeNotFound }
func IsAlreadyExists(err error) bool { return codeOf(err) == CodeAlreadyExists }
func IsValidation(err error) bool    { return codeOf(err) == CodeValidation }
func IsInternal(err error) bool      { return codeOf(err) == CodeInternal }

// codeOf returns the code of the outermost AppError in err's chain, or 0.
func codeOf(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return 0
	}
	return appErr.Code
}

// HTTPStatusCode picks the response status for err. Unknown codes, plain
// errors and nil all give 500.
func HTTPStatusCode(err error) int {
	if status, ok := codeStatus[codeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
