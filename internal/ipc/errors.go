package ipc

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTimeout      = errors.New("ipc: call timed out")
	ErrRemote       = errors.New("ipc: remote handler failed")
	ErrTransport    = errors.New("ipc: publish failed")
	ErrUnroutable   = errors.New("ipc: unroutable envelope")
	ErrClientClosed = errors.New("ipc: client closed")
)

// TimeoutError is returned when no reply arrived before the call's deadline.
type TimeoutError struct {
	Topic         string
	CorrelationID string
	After         time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ipc: %s (correlation %s) timed out after %s", e.Topic, e.CorrelationID, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// RemoteError carries the message reported by the responder's handler.
type RemoteError struct {
	Topic   string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "ipc: " + e.Topic + " failed remotely"
	}
	return e.Message
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// TransportError wraps a local publish failure.
type TransportError struct {
	Topic string
	Err   error
}

func (e *TransportError) Error() string { return fmt.Sprintf("ipc: publish %s: %v", e.Topic, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
