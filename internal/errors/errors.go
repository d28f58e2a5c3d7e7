package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrCommandParse - command marker present but payload is not valid JSON (inline annotation, turn continues)
	ErrCommandParse = errors.New("command parse error")

	// ErrMalformedCommand - payload parsed but misses required fields (inline annotation, turn continues)
	ErrMalformedCommand = errors.New("malformed command")

	// ErrAuthentication - remote store rejected credentials (re-authenticate once, then fail the call)
	ErrAuthentication = errors.New("authentication failed")

	// ErrTransient - timeout or connection refusal (retry with backoff, then fail the call)
	ErrTransient = errors.New("transient error")

	// ErrRemoteValidation - remote store rejected the operation's business logic (never retried)
	ErrRemoteValidation = errors.New("remote validation error")

	// ErrRateLimited - client exceeded its window ceiling (rejected before any network call)
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrMethodNotAllowed - remote method is outside the configured allow-list
	ErrMethodNotAllowed = errors.New("method not allowed")

	// ErrDelegation - delegation target illegal or payload malformed
	ErrDelegation = errors.New("delegation failed")

	// ErrInvalidInput - invalid input (validation error at the boundary)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - resource not found
	ErrNotFound = errors.New("not found")

	// ErrInternal - internal error (generic message + trace id)
	ErrInternal = errors.New("internal error")
)
