package errors

import (
	"errors"
	"fmt"
)

// CodeError is the structured error type for coderag.
// It carries a stable code plus enough context to log, retry or show to a user.
type CodeError struct {
	// Code is the unique error code (e.g., "ERR_402_INVALID_WEIGHTS").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *CodeError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CodeError) Unwrap() error {
	return e.Cause
}

// Is matches another CodeError by code, so errors.Is works against the
// package-level sentinels built with New.
func (e *CodeError) Is(target error) bool {
	if t, ok := target.(*CodeError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *CodeError) WithDetail(key, value string) *CodeError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *CodeError) WithSuggestion(suggestion string) *CodeError {
	e.Suggestion = suggestion
	return e
}

// New creates a CodeError. Category, severity and the retryable flag are
// derived from the code.
func New(code string, message string, cause error) *CodeError {
	return &CodeError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CodeError from an existing error, reusing its message.
func Wrap(code string, err error) *CodeError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *CodeError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *CodeError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *CodeError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first CodeError in err's chain.
func As(err error) (*CodeError, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsRetryable reports whether any CodeError in the chain is retryable.
func IsRetryable(err error) bool {
	ce, ok := As(err)
	return ok && ce.Retryable
}

// IsFatal reports whether the first CodeError in the chain is fatal.
func IsFatal(err error) bool {
	ce, ok := As(err)
	return ok && ce.Severity == SeverityFatal
}

// GetCode extracts the error code, or "" if the chain holds no CodeError.
func GetCode(err error) string {
	if ce, ok := As(err); ok {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category, or "" if the chain holds no CodeError.
func GetCategory(err error) Category {
	if ce, ok := As(err); ok {
		return ce.Category
	}
	return ""
}
