package ringpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ValidateAction names the lifecycle phase a validation runs in.
type ValidateAction int

const (
	// ValidateOnBorrow runs when an idle connection is handed out (TestOnBorrow).
	ValidateOnBorrow ValidateAction = iota + 1
	// ValidateOnReturn runs when a connection comes back (TestOnReturn).
	ValidateOnReturn
	// ValidateOnIdle runs from the idle sweep (TestWhileIdle).
	ValidateOnIdle
	// ValidateOnInit runs right after connecting (TestOnConnect) and is never debounced.
	ValidateOnInit
)

// connectionParent is what a PooledConnection needs from its pool.
type connectionParent interface {
	hostRing() *HostRing
	dial(host string, port int) (Client, error)
	now() time.Time
	disconnectEvent(pc *PooledConnection, client Client, finalize bool)
	notify(kind NotificationKind, connectionID uint64, message string)
}

type clientHandle struct {
	client Client
	host   *Host
}

// PooledConnection owns one Client and tracks where it is in its lifecycle.
type PooledConnection struct {
	ID     uint64
	config *PoolConfig
	parent connectionParent
	logger *slog.Logger
	locker sync.Locker

	handle        atomic.Pointer[clientHandle]
	stackTrace    atomic.Pointer[string]
	timestamp     atomic.Int64 // unix ms of the last borrow/return
	lastConnected atomic.Int64 // unix ms, -1 when not connected
	lastValidated atomic.Int64 // unix ms
	discarded     atomic.Bool
	released      atomic.Bool
	suspect       atomic.Bool
}

func newPooledConnection(id uint64, config *PoolConfig, parent connectionParent, logger *slog.Logger) *PooledConnection {

	pc := &PooledConnection{
		ID:     id,
		config: config,
		parent: parent,
		logger: logger.With("connectionID", id),
		locker: newConnLocker(config),
	}
	pc.lastConnected.Store(-1)
	pc.lastValidated.Store(parent.now().UnixMilli())

	return pc
}

// Lock takes the connection's lifecycle lock (a no-op without a sweeper or UseLock).
func (pc *PooledConnection) Lock() {
	pc.locker.Lock()
}

// Unlock releases the lifecycle lock.
func (pc *PooledConnection) Unlock() {
	pc.locker.Unlock()
}

// Connect opens a Client to the first reachable ring host.
func (pc *PooledConnection) Connect() error {
	pc.Lock()
	defer pc.Unlock()

	return pc.connectLocked()
}

func (pc *PooledConnection) connectLocked() error {

	if pc.released.Load() {
		return ErrConnectionReleased
	}

	if pc.handle.Load() != nil {
		pc.disconnectLocked(false)
	}

	retries := pc.config.FailoverPolicy.Retries()
	retryInterval := pc.config.hostRetryInterval()
	tried := 0
	var lastErr error

	for _, host := range pc.parent.hostRing().Hosts() {
		if tried > retries {
			break
		}

		if !host.retryable(pc.parent.now(), retryInterval) {
			continue
		}

		hostname, port := splitHostPort(host.Address(), pc.config.Port)
		client, err := pc.parent.dial(hostname, port)
		if err != nil {
			host.markBad(pc.parent.now())
			pc.logger.Warn("failed connection to host", "host", host.Address(), "error", err)
			lastErr = err
			tried++
			continue
		}

		host.markGood(pc.parent.now())
		pc.handle.Store(&clientHandle{client: client, host: host})
		pc.discarded.Store(false)
		pc.lastConnected.Store(pc.parent.now().UnixMilli())

		return nil
	}

	err := ErrNoHostsAvailable
	if lastErr != nil {
		err = fmt.Errorf("%w: %w", ErrNoHostsAvailable, lastErr)
	}

	pc.parent.notify(ConnectFailure, pc.ID, err.Error())

	return err
}

// Reconnect drops the current Client and connects again.
func (pc *PooledConnection) Reconnect() error {
	pc.Lock()
	defer pc.Unlock()

	return pc.reconnectLocked()
}

func (pc *PooledConnection) reconnectLocked() error {
	pc.disconnectLocked(false)
	return pc.connectLocked()
}

// disconnectLocked is a no-op once discarded. Close errors are only logged.
func (pc *PooledConnection) disconnectLocked(finalize bool) {

	if pc.discarded.Load() {
		return
	}

	pc.setDiscarded(true)

	if handle := pc.handle.Swap(nil); handle != nil {
		pc.parent.disconnectEvent(pc, handle.client, finalize)

		if err := handle.client.Close(); err != nil {
			pc.logger.Debug("unable to close client", "error", err)
		}
	}

	pc.lastConnected.Store(-1)
}

// setDiscarded only moves forward; clearing the flag is a bug in the caller.
func (pc *PooledConnection) setDiscarded(discarded bool) {
	if !discarded && pc.discarded.Load() {
		panic("ringpool: unable to change the state once the connection has been discarded")
	}

	pc.discarded.Store(discarded)
}

func (pc *PooledConnection) validationEnabled(action ValidateAction) bool {
	switch action {
	case ValidateOnBorrow:
		return pc.config.TestOnBorrow
	case ValidateOnReturn:
		return pc.config.TestOnReturn
	case ValidateOnIdle:
		return pc.config.TestWhileIdle
	case ValidateOnInit:
		return pc.config.TestOnConnect
	default:
		return false
	}
}

// Validate checks the connection for the given phase by refreshing the ring through it.
func (pc *PooledConnection) Validate(action ValidateAction) bool {

	if pc.discarded.Load() {
		return false
	}

	if !pc.validationEnabled(action) {
		return true
	}

	now := pc.parent.now().UnixMilli()
	interval := pc.config.validationInterval().Milliseconds()
	if action != ValidateOnInit && interval > 0 && now-pc.lastValidated.Load() < interval {
		return true
	}

	handle := pc.handle.Load()
	if handle == nil {
		return false
	}

	// a node without user keyspaces answered, so the connection itself is alive
	if err := pc.parent.hostRing().Refresh(handle.client); err != nil && !errors.Is(err, ErrNoUserKeyspace) {
		pc.logger.Debug("unable to validate connection", "error", err)
		return false
	}

	pc.lastValidated.Store(now)

	return true
}

// releaseLocked retires the connection for good. Only the call that flips released returns true.
func (pc *PooledConnection) releaseLocked() bool {
	pc.disconnectLocked(true)
	return pc.released.CompareAndSwap(false, true)
}

func (pc *PooledConnection) setTimestamp(now time.Time) {
	pc.timestamp.Store(now.UnixMilli())
	pc.suspect.Store(false)
}

func (pc *PooledConnection) setStackTrace(trace string) {
	if trace == "" {
		pc.stackTrace.Store(nil)
		return
	}

	pc.stackTrace.Store(&trace)
}

// StackTrace returns the borrow site recorded when LogAbandoned is set.
func (pc *PooledConnection) StackTrace() string {
	if trace := pc.stackTrace.Load(); trace != nil {
		return *trace
	}

	return ""
}

// Client returns the raw handle, nil when not connected.
func (pc *PooledConnection) Client() Client {
	if handle := pc.handle.Load(); handle != nil {
		return handle.client
	}

	return nil
}

// Host returns the host the connection is attached to, nil when not connected.
func (pc *PooledConnection) Host() *Host {
	if handle := pc.handle.Load(); handle != nil {
		return handle.host
	}

	return nil
}

// IsInitialized reports whether the connection holds a Client.
func (pc *PooledConnection) IsInitialized() bool {
	return pc.handle.Load() != nil
}

// IsDiscarded reports whether the Client has been torn down.
func (pc *PooledConnection) IsDiscarded() bool {
	return pc.discarded.Load()
}

// IsReleased reports whether the connection is retired for good.
func (pc *PooledConnection) IsReleased() bool {
	return pc.released.Load()
}

// IsSuspect reports whether the suspect timeout has passed since the last borrow.
func (pc *PooledConnection) IsSuspect() bool {
	return pc.suspect.Load()
}

// Timestamp returns when the pool last handed out or took back this connection.
func (pc *PooledConnection) Timestamp() time.Time {
	return time.UnixMilli(pc.timestamp.Load())
}

// LastConnected returns when the current Client was opened, zero when not connected.
func (pc *PooledConnection) LastConnected() time.Time {
	ms := pc.lastConnected.Load()
	if ms < 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms)
}

// LastValidated returns when the connection last passed a real validation.
func (pc *PooledConnection) LastValidated() time.Time {
	return time.UnixMilli(pc.lastValidated.Load())
}

func (pc *PooledConnection) String() string {
	if host := pc.Host(); host != nil {
		return fmt.Sprintf("PooledConnection[id=%d,host=%s]", pc.ID, host.Address())
	}

	return fmt.Sprintf("PooledConnection[id=%d,host=none]", pc.ID)
}
