package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by any Client call made after the transport has been closed.
	// you can check for this error with errors.Is
	ErrClosed = errors.New("transport is closed")

	// ErrFrameTooLarge is returned when a frame or line exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// TransportError wraps socket level failures (dial, read, write, closed transport).
type TransportError struct {
	Op      string
	Address string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s [%s]: %v", e.Op, e.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is an error reported by the node itself; the transport stays usable.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("node rejected %s: %s", e.Op, e.Message)
}
