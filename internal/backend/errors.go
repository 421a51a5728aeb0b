package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// NetworkErrorKind distinguishes a call that ran out of time from one that
// never reached the backend.
type NetworkErrorKind int

const (
	Unreachable NetworkErrorKind = iota + 1
	Timeout
)

func (k NetworkErrorKind) String() string {
	if k == Timeout {
		return "timeout"
	}
	return "unreachable"
}

// NetworkError is a transport-level failure. These are the only errors
// worth retrying.
type NetworkError struct {
	Kind NetworkErrorKind
	Op   string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a well-formed rejection from the backend.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("backend rejected request (%d): %s", e.Status, e.Message)
}

// IsTransient reports whether err is a NetworkError.
func IsTransient(err error) bool {
	var nerr *NetworkError
	return errors.As(err, &nerr)
}

func classify(op string, err error) error {
	kind := Unreachable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = Timeout
	}
	return &NetworkError{Kind: kind, Op: op, Err: err}
}
