package glimesh

import (
	"errors"
	"fmt"
)

var (
	ErrNoCredentials    = errors.New("glimesh: no token or client id configured")
	ErrNotConnected     = errors.New("glimesh: not connected")
	ErrAlreadyConnected = errors.New("glimesh: already connected")
	ErrNotReady         = errors.New("glimesh: chat channel not joined")
	ErrClosed           = errors.New("glimesh: connection closed")
	ErrJoinTimeout      = errors.New("glimesh: channel join timed out")
	ErrChannelNotFound  = errors.New("glimesh: channel not found")
	ErrLookupFailed     = errors.New("glimesh: lookup failed")
)

// TransportError reports a socket-level failure on a specific operation.
type TransportError struct {
	Op  string // "dial", "join", "send", "close"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("glimesh: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
