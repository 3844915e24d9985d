package ringpool

import (
	"errors"
	"fmt"
	"net"

	"github.com/houseofcat/ringpool/pkg/wire"
)

var (
	// ErrPoolClosed is returned by any borrow attempted after Close.
	// you can check for this error with errors.Is
	ErrPoolClosed = errors.New("connection pool closed")

	// ErrPoolExhausted is returned when no connection became available within the wait budget.
	ErrPoolExhausted = errors.New("timeout waiting for a connection")

	// ErrPoolEmptyNoWait is returned when the pool is at capacity, idle is empty and the caller asked not to wait.
	ErrPoolEmptyNoWait = errors.New("pool empty, unable to fetch a connection without waiting")

	// ErrWaitInterrupted is returned when the caller's context ends while waiting for a connection.
	ErrWaitInterrupted = errors.New("wait for a connection was interrupted")

	// ErrNoHostsAvailable is returned when every candidate host failed or the failover budget ran out.
	ErrNoHostsAvailable = errors.New("could not connect to any host")

	// ErrConnectionReleased is returned when connecting a connection that has been released.
	ErrConnectionReleased = errors.New("released connection cannot reconnect")

	// ErrValidationFailed is returned when a borrowed connection fails validation and the rescue attempt fails too.
	ErrValidationFailed = errors.New("connection failed validation")

	// ErrUnknownConnection is returned when releasing a client handle this pool never handed out.
	ErrUnknownConnection = errors.New("client handle does not belong to this pool")

	// ErrNoUserKeyspace is returned by a ring refresh when the node only reports system keyspaces.
	ErrNoUserKeyspace = errors.New("no non-system keyspace found")

	// ErrPoolNotCreated is returned by a DataSource used before its pool exists.
	ErrPoolNotCreated = errors.New("connection pool not created")
)

// PoolError decorates a pool level failure with the operation and busy count at the time.
type PoolError struct {
	Op   string
	Busy int
	Err  error
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("connection pool %s failed (busy: %d): %v", e.Op, e.Busy, e.Err)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err came from the socket layer rather than the node.
func IsTransportError(err error) bool {
	var transportErr *wire.TransportError
	if errors.As(err, &transportErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
