package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransportError indicates the remote call never produced a usable response:
// timeout, abort, connection refused, or connectivity lost mid-call.
// Transport failures are always retryable on a later sync run.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: no connection to server: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError indicates the server answered with a structured failure
// (success=false in the response envelope), typically business validation.
type RemoteError struct {
	Op      string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: server rejected request: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: server rejected request (status %d)", e.Op, e.Status)
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRemoteRejection reports whether err is a structured server rejection.
func IsRemoteRejection(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// classifyTransport decides whether a raw HTTP client error is a transport
// failure. Context deadline/cancel and any net.Error count; everything else
// is passed through unchanged.
func classifyTransport(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransportError{Op: op, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransportError{Op: op, Err: err}
	}

	// url.Error wraps dial failures that are not net.Error themselves
	// (DNS, proxy); treat any error that reached the wire layer as transport.
	return &TransportError{Op: op, Err: err}
}
