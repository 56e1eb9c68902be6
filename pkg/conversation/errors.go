package conversation

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conversation package.
var (
	// ErrMissingAPIKey indicates the API key was not provided.
	ErrMissingAPIKey = errors.New("conversation: API key is required")

	// ErrNotConnected indicates the provider is not connected.
	ErrNotConnected = errors.New("conversation: not connected")

	// ErrAlreadyConnected indicates the provider is already connected.
	ErrAlreadyConnected = errors.New("conversation: already connected")

	// ErrConnectionClosed indicates the connection was closed by the server.
	ErrConnectionClosed = errors.New("conversation: connection closed")

	// ErrInvalidMessage indicates a malformed server message.
	ErrInvalidMessage = errors.New("conversation: invalid message")

	// ErrProviderNotSupported indicates the requested provider is not available.
	ErrProviderNotSupported = errors.New("conversation: provider not supported")
)

// APIError is an error reported by the service inside the session.
type APIError struct {
	// Code is the numeric status code, if any.
	Code int

	// Status is the status name, e.g. "RESOURCE_EXHAUSTED".
	Status string

	// Message is the human-readable error message.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("conversation: API error [%s]: %s", e.Status, e.Message)
	}
	if e.Code != 0 {
		return fmt.Sprintf("conversation: API error (%d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("conversation: API error: %s", e.Message)
}

// IsRetryable returns true for rate limiting and server-side failures.
func (e *APIError) IsRetryable() bool {
	return e.Code == 429 || e.Code >= 500 || e.Status == "RESOURCE_EXHAUSTED" || e.Status == "UNAVAILABLE"
}

// ConnectionError represents a websocket failure.
type ConnectionError struct {
	// Reason describes the failed operation.
	Reason string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if reconnecting may succeed.
	Retryable bool
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("conversation: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("conversation: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if reconnection should be attempted.
func (e *ConnectionError) IsRetryable() bool {
	return e.Retryable
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error, retryable bool) *ConnectionError {
	return &ConnectionError{
		Reason:    reason,
		Cause:     cause,
		Retryable: retryable,
	}
}

// IsNotConnected returns true if the error indicates no connection.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrConnectionClosed)
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.IsRetryable()
	}
	return false
}
