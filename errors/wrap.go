package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already a registry Error, the wrapper keeps its code and metadata.
// Otherwise, it creates a new Internal error wrapping the original.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var regErr *Error
	if errors.As(err, &regErr) {
		wrapped := &Error{
			code:      regErr.code,
			category:  regErr.category,
			message:   message,
			cause:     err,
			metadata:  regErr.Metadata(),
			retryable: regErr.retryable,
			timestamp: regErr.timestamp,
			agentID:   regErr.agentID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsRegistryError extracts a registry Error from an error chain.
// Returns nil if none is found.
func AsRegistryError(err error) *Error {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	if regErr := AsRegistryError(err); regErr != nil {
		return regErr.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	if regErr := AsRegistryError(err); regErr != nil {
		return regErr.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable.
// Errors outside the taxonomy are never retryable.
func IsRetryable(err error) bool {
	if regErr := AsRegistryError(err); regErr != nil {
		return regErr.Retryable()
	}
	return false
}

// IsTransient checks if the error is transient.
func IsTransient(err error) bool {
	return IsCategory(err, CategoryTransient)
}

// Code extracts the error code from an error, if available.
// Returns empty string if err is not a registry Error.
func Code(err error) ErrorCode {
	if regErr := AsRegistryError(err); regErr != nil {
		return regErr.code
	}
	return ""
}

// GetMetadata extracts metadata from an error.
// Returns nil if err is not a registry Error.
func GetMetadata(err error) map[string]string {
	if regErr := AsRegistryError(err); regErr != nil {
		return regErr.Metadata()
	}
	return nil
}

// HTTPStatus maps any error to the status the API should answer with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if regErr := AsRegistryError(err); regErr != nil {
		return regErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to show a caller: the outermost
// registry error message, or a generic description for anything else.
func PublicMessage(err error) string {
	if regErr := AsRegistryError(err); regErr != nil {
		return regErr.message
	}
	return ErrCodeInternal.Description()
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}
