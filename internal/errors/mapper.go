package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorMapper maps external errors to the agent error taxonomy
type ErrorMapper interface {
	MapError(err error) error
	IsRetryable(err error) bool
	Category(err error) string
}

// DefaultErrorMapper implements the agent error taxonomy mapping
type DefaultErrorMapper struct{}

// NewDefaultErrorMapper creates a new error mapper
func NewDefaultErrorMapper() *DefaultErrorMapper {
	return &DefaultErrorMapper{}
}

// MapError maps errors without a category to one based on their shape.
// Errors that already carry a category are returned unchanged.
func (m *DefaultErrorMapper) MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	if m.Category(err) != CategoryUnknown {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timeout: %w", ErrTransient)
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "does not exist"):
		return fmt.Errorf("%s: %w", err.Error(), ErrNotFound)

	case strings.Contains(errStr, "access denied"), strings.Contains(errStr, "unauthorized"), strings.Contains(errStr, "session expired"):
		return fmt.Errorf("%s: %w", err.Error(), ErrAuthentication)

	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "too many requests"):
		return fmt.Errorf("%s: %w", err.Error(), ErrRateLimited)

	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"),
		strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "connection reset"):
		return fmt.Errorf("%s: %w", err.Error(), ErrTransient)

	case strings.Contains(errStr, "invalid input"), strings.Contains(errStr, "bad request"):
		return fmt.Errorf("%s: %w", err.Error(), ErrInvalidInput)

	default:
		return fmt.Errorf("%s: %w", err.Error(), ErrInternal)
	}
}

// IsRetryable determines if an error should trigger a retry
func (m *DefaultErrorMapper) IsRetryable(err error) bool {
	return IsRetryable(err)
}

const (
	CategoryCommandParse     = "command_parse_error"
	CategoryMalformedCommand = "malformed_command"
	CategoryAuthentication   = "authentication"
	CategoryTransient        = "transient"
	CategoryRemoteValidation = "remote_validation"
	CategoryRateLimited      = "rate_limited"
	CategoryMethodNotAllowed = "method_not_allowed"
	CategoryDelegation       = "delegation_failed"
	CategoryInvalidInput     = "invalid_input"
	CategoryNotFound         = "not_found"
	CategoryInternal         = "internal"
	CategoryUnknown          = "unknown"
)

// Category returns the stable category name for an error
func (m *DefaultErrorMapper) Category(err error) string {
	return Category(err)
}

// Category returns the stable category name for an error
func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrCommandParse):
		return CategoryCommandParse
	case errors.Is(err, ErrMalformedCommand):
		return CategoryMalformedCommand
	case errors.Is(err, ErrAuthentication):
		return CategoryAuthentication
	case errors.Is(err, ErrTransient):
		return CategoryTransient
	case errors.Is(err, ErrRemoteValidation):
		return CategoryRemoteValidation
	case errors.Is(err, ErrRateLimited):
		return CategoryRateLimited
	case errors.Is(err, ErrMethodNotAllowed):
		return CategoryMethodNotAllowed
	case errors.Is(err, ErrDelegation):
		return CategoryDelegation
	case errors.Is(err, ErrInvalidInput):
		return CategoryInvalidInput
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrInternal):
		return CategoryInternal
	default:
		return CategoryUnknown
	}
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCategory wraps an error with a specific category, keeping the cause text
func WrapWithCategory(err error, message string, category error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %v: %w", message, err, category)
}

// IsCategory checks if error belongs to specific category
func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

// CommandParse wraps error as command parse error
func CommandParse(message string) error {
	return fmt.Errorf("%s: %w", message, ErrCommandParse)
}

// MalformedCommand wraps error as malformed command
func MalformedCommand(message string) error {
	return fmt.Errorf("%s: %w", message, ErrMalformedCommand)
}

// Authentication wraps error as authentication failure
func Authentication(message string) error {
	return fmt.Errorf("%s: %w", message, ErrAuthentication)
}

// Transient wraps error as transient
func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

// RemoteValidation wraps error as remote validation fault
func RemoteValidation(message string) error {
	return fmt.Errorf("%s: %w", message, ErrRemoteValidation)
}

// MethodNotAllowed wraps error as method not allowed
func MethodNotAllowed(message string) error {
	return fmt.Errorf("%s: %w", message, ErrMethodNotAllowed)
}

// Delegation wraps error as delegation failure
func Delegation(message string) error {
	return fmt.Errorf("%s: %w", message, ErrDelegation)
}

// NotFound wraps error as not found
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// InvalidInput wraps error as invalid input
func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

// Internal wraps error as internal
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

// IsRetryable reports whether an error is transient and may be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient)
}
