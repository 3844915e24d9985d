package ringpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/google/uuid"
)

// waitSlice bounds a single blocking poll so context cancellation is noticed.
const waitSlice = 250 * time.Millisecond

// Option customizes a ConnectionPool at construction.
type Option func(*ConnectionPool)

// WithLogger sets the logger, slog.Default() otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(cp *ConnectionPool) {
		if logger != nil {
			cp.logger = logger
		}
	}
}

// WithDialer replaces the wire protocol dialer.
func WithDialer(dialer Dialer) Option {
	return func(cp *ConnectionPool) {
		if dialer != nil {
			cp.dialer = dialer
		}
	}
}

// WithNotificationSink receives InitFailure, ConnectFailure, Abandoned and SuspectAbandoned events.
func WithNotificationSink(sink NotificationSink) Option {
	return func(cp *ConnectionPool) {
		cp.sink = sink
	}
}

func withClock(clock func() time.Time) Option {
	return func(cp *ConnectionPool) {
		if clock != nil {
			cp.clock = clock
		}
	}
}

// ConnectionPool houses the pool of ring connections.
type ConnectionPool struct {
	Config       PoolConfig
	logger       *slog.Logger
	ring         *HostRing
	dialer       Dialer
	sink         NotificationSink
	clock        func() time.Time
	busy         *busySet
	idle         *idleQueue
	handles      *sync.Map // Client -> *PooledConnection
	size         atomic.Int32
	waitCount    atomic.Int32
	closed       atomic.Bool
	connectionID atomic.Uint64
	maintenance  *poolMaintenance
}

// PoolStats is a point in time view of the pool counters.
type PoolStats struct {
	Name      string
	Size      int
	Active    int
	Idle      int
	WaitCount int
	Closed    bool
}

// NewConnectionPool validates the config, fills the pool with InitialSize connections and
// starts the maintenance loop when a sweeper is configured.
func NewConnectionPool(config *PoolConfig, options ...Option) (*ConnectionPool, error) {

	if config == nil {
		return nil, errors.New("connectionpool config can't be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	cp := &ConnectionPool{
		Config:  *config,
		logger:  slog.Default(),
		clock:   time.Now,
		busy:    newBusySet(),
		handles: &sync.Map{},
	}

	for _, option := range options {
		option(cp)
	}

	if cp.Config.PoolName == "" {
		cp.Config.PoolName = "ringpool-" + uuid.New().String()
	}

	cp.logger = cp.logger.With("pool", cp.Config.PoolName)
	cp.Config.clamp(cp.logger)

	if cp.dialer == nil {
		cp.dialer = NewWireDialer(cp.Config.Compressed)
	}

	capacity := 0
	if !cp.Config.FairQueue {
		capacity = cp.Config.MaxActive
	}

	cp.idle = newIdleQueue(cp.Config.MaxActive, capacity)
	cp.ring = NewHostRing(cp.Config.ConfiguredHosts(), cp.Config.HostCyclePolicy)

	if err := cp.initializeConnections(); err != nil {
		cp.notify(InitFailure, 0, err.Error())
		cp.Close(true)
		return nil, fmt.Errorf("initialization failed during connection creation: %w", err)
	}

	if cp.Config.PoolSweeperEnabled() {
		cp.logger.Debug("starting pool maintenance")
		cp.maintenance = newPoolMaintenance(cp, &cp.Config, cp.logger)
		cp.maintenance.start()
	}

	cp.logger.Info("connection pool initialized", "size", cp.Size(), "idle", cp.Idle(), "ring", cp.ring.String())

	return cp, nil
}

func (cp *ConnectionPool) initializeConnections() error {

	initial := make([]*PooledConnection, 0, cp.Config.InitialSize)
	defer func() {
		for _, pc := range initial {
			cp.ReturnConnection(pc)
		}
	}()

	for i := 0; i < cp.Config.InitialSize; i++ {
		pc, err := cp.borrowConnection(context.Background(), 0)
		if err != nil {
			return err
		}

		initial = append(initial, pc)
	}

	return nil
}

// Borrow hands out a connection, waiting up to MaxWait (forever when MaxWait <= 0).
func (cp *ConnectionPool) Borrow(ctx context.Context) (*PooledConnection, error) {
	return cp.borrowConnection(ctx, -1)
}

// BorrowWithWait overrides MaxWait. A zero wait fails at once with ErrPoolEmptyNoWait when nothing is available;
// a negative wait uses MaxWait.
func (cp *ConnectionPool) BorrowWithWait(ctx context.Context, wait time.Duration) (*PooledConnection, error) {
	return cp.borrowConnection(ctx, wait)
}

// GetConnection borrows and returns the raw Client. Give it back with Release.
func (cp *ConnectionPool) GetConnection(ctx context.Context) (Client, error) {

	pc, err := cp.Borrow(ctx)
	if err != nil {
		return nil, err
	}

	return pc.Client(), nil
}

// Release returns a Client obtained from GetConnection.
func (cp *ConnectionPool) Release(client Client) error {

	if client == nil {
		return nil
	}

	value, ok := cp.handles.Load(client)
	if !ok {
		return ErrUnknownConnection
	}

	cp.ReturnConnection(value.(*PooledConnection))

	return nil
}

func (cp *ConnectionPool) borrowConnection(ctx context.Context, wait time.Duration) (*PooledConnection, error) {

	if cp.IsClosed() {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	now := cp.now()

	maxWait := wait
	forever := false
	if wait < 0 {
		maxWait = cp.Config.maxWait()
		forever = maxWait <= 0
	}

	pc, _ := cp.idle.TryPoll()

	for {
		if pc != nil {
			result, err := cp.activate(pc, now)
			if err != nil {
				return nil, err
			}

			if result != nil {
				return result, nil
			}
		}

		if cp.IsClosed() {
			return nil, ErrPoolClosed
		}

		// Reserve capacity first, roll back when another borrower got there too.
		maxActive := int32(cp.Config.MaxActive)
		if cp.size.Load() < maxActive {
			if cp.size.Add(1) > maxActive {
				cp.size.Add(-1)
			} else {
				return cp.createConnection(now)
			}
		}

		timeToWait := maxWait - time.Since(start)
		if timeToWait < 0 {
			timeToWait = 0
		}

		var err error
		cp.waitCount.Add(1)
		pc, err = cp.pollIdle(ctx, timeToWait, forever)
		cp.waitCount.Add(-1)

		if err != nil {
			return nil, err
		}

		if pc != nil {
			continue
		}

		if maxWait == 0 && !forever {
			return nil, &PoolError{Op: "borrow", Busy: cp.busy.Len(), Err: ErrPoolEmptyNoWait}
		}

		if !forever && time.Since(start) >= maxWait {
			cp.logBusyConnections()
			return nil, &PoolError{Op: "borrow", Busy: cp.busy.Len(), Err: ErrPoolExhausted}
		}
	}
}

// pollIdle waits at most one waitSlice for an idle connection. A nil connection with a nil
// error sends the borrower back around its loop, where capacity freed by a release is picked up.
func (cp *ConnectionPool) pollIdle(ctx context.Context, timeout time.Duration, forever bool) (*PooledConnection, error) {

	if !forever && timeout <= 0 {
		pc, _ := cp.idle.TryPoll()
		return pc, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWaitInterrupted, err)
	}

	if cp.idle.Disposed() {
		return nil, ErrPoolClosed
	}

	slice := waitSlice
	if !forever && timeout < slice {
		slice = timeout
	}

	pc, err := cp.idle.Poll(slice)
	if err == nil {
		return pc, nil
	}

	if errors.Is(err, queue.ErrDisposed) {
		return nil, ErrPoolClosed
	}

	return nil, nil
}

// activate readies an idle connection for a borrower. A nil connection with a nil
// error means the sweeper released it first and the borrower should look again.
func (cp *ConnectionPool) activate(pc *PooledConnection, now time.Time) (*PooledConnection, error) {
	pc.Lock()
	defer pc.Unlock()

	if pc.IsReleased() {
		return nil, nil
	}

	if !pc.IsDiscarded() && !pc.IsInitialized() {
		if err := pc.connectLocked(); err != nil {
			cp.releaseLocked(pc)
			return nil, err
		}
	}

	if !pc.IsDiscarded() && pc.IsInitialized() && pc.Validate(ValidateOnBorrow) {
		cp.markBusyLocked(pc, now)
		return pc, nil
	}

	// one rescue attempt before failing the borrower
	if err := pc.reconnectLocked(); err != nil {
		cp.releaseLocked(pc)
		return nil, err
	}

	if !pc.Validate(ValidateOnInit) {
		cp.releaseLocked(pc)
		return nil, &PoolError{Op: "borrow", Busy: cp.busy.Len(), Err: ErrValidationFailed}
	}

	cp.markBusyLocked(pc, now)

	return pc, nil
}

// createConnection builds a connection for capacity the caller already reserved.
func (cp *ConnectionPool) createConnection(now time.Time) (*PooledConnection, error) {

	pc := newPooledConnection(cp.connectionID.Add(1), &cp.Config, cp, cp.logger)

	pc.Lock()
	defer pc.Unlock()

	if err := pc.connectLocked(); err != nil {
		cp.logger.Debug("unable to create a new connection", "error", err)
		cp.releaseLocked(pc)
		return nil, err
	}

	if !pc.Validate(ValidateOnInit) {
		cp.releaseLocked(pc)
		return nil, &PoolError{Op: "create", Busy: cp.busy.Len(), Err: ErrValidationFailed}
	}

	cp.markBusyLocked(pc, now)

	return pc, nil
}

func (cp *ConnectionPool) markBusyLocked(pc *PooledConnection, now time.Time) {

	pc.setTimestamp(now)
	if cp.Config.LogAbandoned {
		pc.setStackTrace(captureStack())
	}

	if !cp.busy.Offer(pc) {
		cp.logger.Debug("connection already tracked as busy", "connection", pc.String())
	}

	if client := pc.Client(); client != nil {
		cp.handles.Store(client, pc)
	}
}

// ReturnConnection gives a borrowed connection back. Connections that are broken,
// too old, not tracked as busy or over MaxIdle are released instead of pooled.
func (cp *ConnectionPool) ReturnConnection(pc *PooledConnection) {

	if pc == nil {
		return
	}

	pc.Lock()
	defer pc.Unlock()

	if cp.IsClosed() {
		cp.busy.Remove(pc)
		cp.releaseLocked(pc)
		return
	}

	if !cp.busy.Remove(pc) {
		cp.logger.Debug("connection will be closed and not returned to the pool, not busy", "connection", pc.String())
		cp.idle.Remove(pc)
		cp.releaseLocked(pc)
		return
	}

	if cp.shouldClose(pc, ValidateOnReturn) {
		cp.logger.Debug("connection will be closed and not returned to the pool", "connection", pc.String())
		cp.releaseLocked(pc)
		return
	}

	pc.setStackTrace("")
	pc.setTimestamp(cp.now())

	if (cp.idle.Len() >= cp.Config.MaxIdle && !cp.Config.PoolSweeperEnabled()) || !cp.idle.Offer(pc) {
		cp.logger.Debug("connection will be closed and not returned to the pool, idle full", "connection", pc.String(), "idle", cp.idle.Len())
		cp.releaseLocked(pc)
		return
	}

	// Close may have drained idle between the closed check and the offer.
	if cp.IsClosed() && cp.idle.Remove(pc) {
		cp.releaseLocked(pc)
	}
}

func (cp *ConnectionPool) shouldClose(pc *PooledConnection, action ValidateAction) bool {

	if pc.IsDiscarded() || cp.IsClosed() {
		return true
	}

	if !pc.Validate(action) {
		return true
	}

	if maxAge := cp.Config.maxAge(); maxAge > 0 {
		return cp.now().UnixMilli()-pc.lastConnected.Load() > maxAge.Milliseconds()
	}

	return false
}

func (cp *ConnectionPool) release(pc *PooledConnection) {
	pc.Lock()
	defer pc.Unlock()

	cp.releaseLocked(pc)
}

// releaseLocked decrements size exactly once per connection.
func (cp *ConnectionPool) releaseLocked(pc *PooledConnection) {
	if pc.releaseLocked() {
		cp.size.Add(-1)
	}
}

func (cp *ConnectionPool) abandon(pc *PooledConnection) {
	pc.Lock()
	defer pc.Unlock()

	cp.abandonLocked(pc)
}

func (cp *ConnectionPool) abandonLocked(pc *PooledConnection) {

	trace := pc.StackTrace()
	if cp.Config.LogAbandoned {
		cp.logger.Warn("connection has been abandoned", "connection", pc.String(), "trace", trace)
	}

	message := trace
	if message == "" {
		message = "connection " + pc.String() + " abandoned"
	}
	cp.notify(Abandoned, pc.ID, message)

	cp.releaseLocked(pc)

	// Blocked borrowers would otherwise wait out a full poll for capacity that just freed up.
	if cp.waitCount.Load() > 0 && !cp.IsClosed() {
		cp.offerPlaceholder()
	}
}

// offerPlaceholder puts an unconnected connection into idle; the borrower that takes it connects it.
func (cp *ConnectionPool) offerPlaceholder() {

	if cp.size.Add(1) > int32(cp.Config.MaxActive) {
		cp.size.Add(-1)
		return
	}

	placeholder := newPooledConnection(cp.connectionID.Add(1), &cp.Config, cp, cp.logger)
	if !cp.idle.Offer(placeholder) {
		cp.size.Add(-1)
	}
}

func (cp *ConnectionPool) suspectLocked(pc *PooledConnection) {

	if pc.IsSuspect() {
		return
	}

	trace := pc.StackTrace()
	held := cp.now().Sub(pc.Timestamp())
	if cp.Config.LogAbandoned {
		cp.logger.Warn("connection has been marked suspect, possibly abandoned", "connection", pc.String(), "held", held, "trace", trace)
	}

	message := trace
	if message == "" {
		message = fmt.Sprintf("connection %s held for %s", pc.String(), held)
	}
	cp.notify(SuspectAbandoned, pc.ID, message)

	pc.suspect.Store(true)
}

func (cp *ConnectionPool) shouldAbandon() bool {

	percentage := cp.Config.AbandonWhenPercentageFull
	if percentage == 0 {
		return true
	}

	used := float64(cp.busy.Len())
	maxActive := float64(cp.Config.MaxActive)

	return used/maxActive*100 >= float64(percentage)
}

func (cp *ConnectionPool) logBusyConnections() {

	if !cp.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	for i, pc := range cp.busy.Snapshot() {
		cp.logger.Debug("busy connection", "index", i, "connection", pc.String(), "borrowedAt", pc.StackTrace())
	}
}

// Close stops the pool. Idle connections are released; busy ones are abandoned only when force is set,
// otherwise they are released as they come back. Safe to call more than once.
func (cp *ConnectionPool) Close(force bool) {

	if !cp.closed.CompareAndSwap(false, true) {
		return
	}

	if cp.maintenance != nil {
		cp.maintenance.stop()
	}

	for {
		pc, ok := cp.idle.TryPoll()
		if !ok {
			break
		}

		cp.release(pc)
	}

	if force {
		for _, pc := range cp.busy.Snapshot() {
			if cp.busy.Remove(pc) {
				cp.abandon(pc)
			}
		}
	}

	cp.idle.Dispose()

	cp.logger.Info("connection pool closed", "size", cp.Size(), "active", cp.Active())
}

// Shutdown closes the pool without abandoning busy connections.
func (cp *ConnectionPool) Shutdown() {
	cp.Close(false)
}

// Name returns the configured pool name.
func (cp *ConnectionPool) Name() string {
	return cp.Config.PoolName
}

// Size is the number of live connections, busy plus idle, at quiescence.
func (cp *ConnectionPool) Size() int {
	return int(cp.size.Load())
}

// Active is the number of borrowed connections.
func (cp *ConnectionPool) Active() int {
	return cp.busy.Len()
}

// Idle is the number of connections ready to borrow.
func (cp *ConnectionPool) Idle() int {
	return cp.idle.Len()
}

// WaitCount is the number of borrowers blocked waiting.
func (cp *ConnectionPool) WaitCount() int {
	return int(cp.waitCount.Load())
}

// IsClosed reports whether Close has been called.
func (cp *ConnectionPool) IsClosed() bool {
	return cp.closed.Load()
}

// Ring returns the pool's host ring.
func (cp *ConnectionPool) Ring() *HostRing {
	return cp.ring
}

// Stats returns the pool counters.
func (cp *ConnectionPool) Stats() PoolStats {
	return PoolStats{
		Name:      cp.Name(),
		Size:      cp.Size(),
		Active:    cp.Active(),
		Idle:      cp.Idle(),
		WaitCount: cp.WaitCount(),
		Closed:    cp.IsClosed(),
	}
}

func (cp *ConnectionPool) hostRing() *HostRing {
	return cp.ring
}

func (cp *ConnectionPool) dial(host string, port int) (Client, error) {
	return cp.dialer.Dial(host, port, cp.Config.socketTimeout(), cp.Config.Framed)
}

func (cp *ConnectionPool) now() time.Time {
	return cp.clock()
}

func (cp *ConnectionPool) disconnectEvent(pc *PooledConnection, client Client, finalize bool) {
	cp.handles.CompareAndDelete(client, pc)
}

// notify never lets a sink failure reach the pool operation.
func (cp *ConnectionPool) notify(kind NotificationKind, connectionID uint64, message string) {

	if cp.sink == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			cp.logger.Warn("notification sink panicked", "kind", kind.String(), "panic", r)
		}
	}()

	cp.sink.Notify(&Notification{
		Kind:         kind,
		Pool:         cp.Config.PoolName,
		ConnectionID: connectionID,
		Message:      message,
		Time:         cp.now(),
	})
}
