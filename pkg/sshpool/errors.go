package sshpool

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a pool failure.
type Kind int

const (
	// KindNone means the error is nil.
	KindNone Kind = iota
	// KindConnection covers exhausted authentication and network failures
	// while opening a session.
	KindConnection
	// KindTimeout means a connect, liveness probe or command exceeded its bound.
	KindTimeout
	// KindCanceled means the caller's context was canceled.
	KindCanceled
	// KindSession covers failures of an established session, such as a
	// channel that could not be opened.
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindSession:
		return "session"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the failure type returned by every Pool operation.
type Error struct {
	Kind Kind
	Host string
	Op   string // "connect", "run"
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("%s %s: timed out: %v", e.Op, e.Host, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Op, e.Host, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies err. Errors that did not come from the pool are reported
// as KindSession so callers can switch exhaustively.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindSession
}

// wrap builds an *Error, deriving the kind from err for timeouts and
// cancellation and using fallback otherwise.
func wrap(host, op string, fallback Kind, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Kind: classify(err, fallback), Host: host, Op: op, Err: err}
}

// cause returns the underlying failure of a pool error.
func cause(err error) error {
	var pe *Error
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err
	}
	return err
}

func classify(err error, fallback Kind) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return fallback
}
