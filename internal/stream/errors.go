package stream

import (
	"errors"
	"fmt"
)

// ErrAborted ends a stream whose context was cancelled. It is a normal
// outcome of a user stop, not a failure.
var ErrAborted = errors.New("stream aborted")

// TransportError is a non-2xx response or a network failure of a backend.
type TransportError struct {
	Status  int // 0 for network failures
	Message string
}

func (e *TransportError) Error() string {
	return e.Message
}

// ParseError is an event payload that could not be decoded. Streams log and
// skip these.
type ParseError struct {
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed stream event %q: %v", truncate(e.Payload, 80), e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
