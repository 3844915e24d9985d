package ringpool

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/houseofcat/ringpool/pkg/wire"
	"github.com/stretchr/testify/require"
)

var errRefused = errors.New("connection refused")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testClock struct {
	offset atomic.Int64
}

func (tc *testClock) Now() time.Time {
	return time.Now().Add(time.Duration(tc.offset.Load()))
}

func (tc *testClock) Advance(d time.Duration) {
	tc.offset.Add(int64(d))
}

type fakeClient struct {
	address       string
	keyspaces     []string
	endpoints     []string
	broken        atomic.Bool
	closed        atomic.Bool
	describeCalls atomic.Int32
}

func (fc *fakeClient) DescribeKeyspaces() ([]string, error) {
	fc.describeCalls.Add(1)

	if fc.closed.Load() {
		return nil, &wire.TransportError{Op: "describe_keyspaces", Address: fc.address, Err: wire.ErrClosed}
	}

	if fc.broken.Load() {
		return nil, &wire.TransportError{Op: "describe_keyspaces", Address: fc.address, Err: io.EOF}
	}

	return fc.keyspaces, nil
}

func (fc *fakeClient) DescribeRingEndpoints(keyspace string) ([]string, error) {
	if fc.closed.Load() {
		return nil, &wire.TransportError{Op: "describe_ring", Address: fc.address, Err: wire.ErrClosed}
	}

	return fc.endpoints, nil
}

func (fc *fakeClient) Close() error {
	fc.closed.Store(true)
	return nil
}

// fakeDialer hands out fakeClients, refusing hosts marked dead.
type fakeDialer struct {
	lock      *sync.Mutex
	dead      map[string]bool
	attempts  []string
	clients   []*fakeClient
	keyspaces []string
	endpoints []string
	onDial    func(client *fakeClient)
}

func newFakeDialer(endpoints ...string) *fakeDialer {
	return &fakeDialer{
		lock:      &sync.Mutex{},
		dead:      make(map[string]bool),
		keyspaces: []string{"system", "Keyspace1"},
		endpoints: endpoints,
	}
}

func (fd *fakeDialer) Dial(host string, port int, timeout time.Duration, framed bool) (Client, error) {
	fd.lock.Lock()
	defer fd.lock.Unlock()

	fd.attempts = append(fd.attempts, host)
	if fd.dead[host] {
		return nil, &wire.TransportError{Op: "dial", Address: host, Err: errRefused}
	}

	client := &fakeClient{address: host, keyspaces: fd.keyspaces, endpoints: fd.endpoints}
	if fd.onDial != nil {
		fd.onDial(client)
	}
	fd.clients = append(fd.clients, client)

	return client, nil
}

func (fd *fakeDialer) setDead(host string, dead bool) {
	fd.lock.Lock()
	defer fd.lock.Unlock()

	fd.dead[host] = dead
}

func (fd *fakeDialer) attemptCount() int {
	fd.lock.Lock()
	defer fd.lock.Unlock()

	return len(fd.attempts)
}

func (fd *fakeDialer) client(i int) *fakeClient {
	fd.lock.Lock()
	defer fd.lock.Unlock()

	return fd.clients[i]
}

func (fd *fakeDialer) clientCount() int {
	fd.lock.Lock()
	defer fd.lock.Unlock()

	return len(fd.clients)
}

// testConfig has no maintenance loop; tests drive the sweeps directly.
func testConfig(hosts ...string) *PoolConfig {
	config := NewPoolConfig()
	config.PoolName = "TestPool"
	config.Hosts = hosts
	config.InitialSize = 2
	config.MinIdle = 1
	config.MaxIdle = 4
	config.MaxActive = 4
	config.MaxWait = 1000
	config.SocketTimeout = 1000
	config.TimeBetweenEvictionRuns = 0
	config.UseLock = true
	return config
}

func newFakePool(t *testing.T, config *PoolConfig, dialer Dialer, options ...Option) *ConnectionPool {
	t.Helper()

	options = append([]Option{WithDialer(dialer), WithLogger(quietLogger())}, options...)
	pool, err := NewConnectionPool(config, options...)
	require.NoError(t, err)

	return pool
}

// startNode runs a wire.Node that reports itself as the only ring endpoint.
func startNode(t *testing.T, options wire.Options) *wire.Node {
	t.Helper()

	node := wire.NewNode(wire.Topology{}, options)
	require.NoError(t, node.Listen("127.0.0.1:0"))
	node.SetTopology(wire.SingleRangeTopology("TestCluster", []string{"system", "Keyspace1"}, node.Addr()))

	return node
}
