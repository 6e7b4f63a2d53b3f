package http

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a failed roster call, so callers can decide per kind
// whether to log-and-continue or abort.
type ErrorKind string

const (
	// KindTransport covers connection-level failures.
	KindTransport ErrorKind = "transport"
	// KindTimeout covers deadline and timeout failures.
	KindTimeout ErrorKind = "timeout"
	// KindProtocol covers non-2xx responses and undecodable bodies.
	KindProtocol ErrorKind = "protocol"
)

// APIError is the error returned by all SignService calls.
type APIError struct {
	Kind   ErrorKind
	Op     string
	Status int
	Err    error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s error (%d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Kind returns the classification of err, or KindTransport if err carries
// none.
func Kind(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransport
}

// classify wraps a request-level error with its kind.
func classify(op string, err error) *APIError {
	kind := KindTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &APIError{Kind: kind, Op: op, Err: err}
}

// protocolErr wraps an unexpected response with KindProtocol.
func protocolErr(op string, status int, body []byte) *APIError {
	return &APIError{
		Kind:   KindProtocol,
		Op:     op,
		Status: status,
		Err:    fmt.Errorf("unexpected server response: %s", body),
	}
}
