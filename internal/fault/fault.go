// Package fault defines the error kinds shared across the runtime and the
// mapping from kinds to HTTP status classes. Components wrap causes with a
// kind; boundaries (gateway, runner) switch on the kind rather than on
// concrete error values.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation policy and transport mapping.
type Kind string

const (
	// InvalidInput is a schema-invalid request or tool call. Not retryable.
	InvalidInput Kind = "invalid_input"
	// UnknownResource is an unknown session, entity, agent, or tool.
	UnknownResource Kind = "unknown_resource"
	// TransferDenied is an attempted transfer outside permitted edges.
	// Surfaced as an event; the turn continues.
	TransferDenied Kind = "transfer_denied"
	// ToolTimeout is a tool handler exceeding its deadline.
	ToolTimeout Kind = "tool_timeout"
	// RequestTimeout is a transport request exceeding its deadline.
	RequestTimeout Kind = "request_timeout"
	// ConnectionReset is a dropped HA or client socket; triggers reconnect.
	ConnectionReset Kind = "connection_reset"
	// AuthRejected is fatal for the affected connection.
	AuthRejected Kind = "auth_rejected"
	// PayloadTooLarge is enforced at the transport boundary.
	PayloadTooLarge Kind = "payload_too_large"
	// Persistence is a chat-history write failure; the turn rolls back.
	Persistence Kind = "persistence_error"
	// CommandNotAllowed is a strict-mode shell violation.
	CommandNotAllowed Kind = "command_not_allowed"
	// Internal is unexpected; logged with context, returned generically.
	Internal Kind = "internal"
)

// Error carries a kind, a message, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from an error chain; unknown errors are Internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to its HTTP status class.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput:
		return http.StatusBadRequest
	case UnknownResource:
		return http.StatusNotFound
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ToolTimeout, RequestTimeout:
		return http.StatusGatewayTimeout
	case AuthRejected:
		return http.StatusUnauthorized
	case TransferDenied, CommandNotAllowed:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
