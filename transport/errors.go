package transport

import "errors"

// Sentinel errors for client construction and connection state.
var (
	// ErrEmptyURL indicates no sync endpoint URL was provided.
	ErrEmptyURL = errors.New("transport: endpoint URL is empty")

	// ErrUnreachable indicates repeated dial failures. It is delivered to
	// subscriptions as an error result, wrapped around the dial error.
	ErrUnreachable = errors.New("transport: deployment unreachable")
)

// ServerError is a failure the server reported for one subscription. It
// flows to listeners as an error result, not as a connection fault.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "transport: server error: " + e.Message
}
