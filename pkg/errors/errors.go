package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrSchema       = errors.New("schema error")
	ErrCommit       = errors.New("commit error")
	ErrQuerySyntax  = errors.New("query syntax error")
	ErrSearch       = errors.New("search error")
	ErrInvalidLimit = errors.New("limit must be a positive integer")
	ErrWriterBusy   = errors.New("index already has an active writer")
	ErrLinkNotFound = errors.New("link not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrInternal     = errors.New("internal error")
	ErrTimeout      = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Wrap annotates sentinel with a formatted message and an optional cause so
// that both errors.Is(err, sentinel) and errors.Is(err, cause) hold.
func Wrap(sentinel error, cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return fmt.Errorf("%w: %s: %w", sentinel, msg, cause)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrLinkNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSchema), errors.Is(err, ErrQuerySyntax),
		errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidLimit):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrWriterBusy):
		return http.StatusConflict
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
