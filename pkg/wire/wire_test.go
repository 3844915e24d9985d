package wire

import (
	"bytes"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startNode(t *testing.T, topology Topology, options Options) (*Node, string, int) {
	t.Helper()

	node := NewNode(topology, options)
	require.NoError(t, node.Listen("127.0.0.1:0"))

	host, portText, err := net.SplitHostPort(node.Addr())
	require.NoError(t, err)

	port, err := strconv.Atoi(portText)
	require.NoError(t, err)

	return node, host, port
}

func TestDescribeCalls(t *testing.T) {
	defer leaktest.Check(t)() // Fail on leaked goroutines.

	for _, options := range []Options{
		{},
		{Framed: true},
		{Framed: true, Compressed: true},
	} {
		topology := SingleRangeTopology("TestCluster", []string{"system", "Keyspace1"}, "10.0.0.1", "10.0.0.2")
		topology.Ring["Keyspace1"] = append(topology.Ring["Keyspace1"], TokenRange{
			StartToken: "1",
			EndToken:   "2",
			Endpoints:  []string{"10.0.0.2", "10.0.0.3"},
		})

		node, host, port := startNode(t, topology, options)

		client, err := Dial(host, port, time.Second, options)
		require.NoError(t, err)

		keyspaces, err := client.DescribeKeyspaces()
		assert.NoError(t, err)
		assert.Equal(t, []string{"system", "Keyspace1"}, keyspaces)

		name, err := client.DescribeClusterName()
		assert.NoError(t, err)
		assert.Equal(t, "TestCluster", name)

		endpoints, err := client.DescribeRingEndpoints("Keyspace1")
		assert.NoError(t, err)
		assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, endpoints)

		assert.NoError(t, client.Close())
		assert.NoError(t, node.Close())
	}
}

func TestRemoteErrorKeepsClientOpen(t *testing.T) {
	defer leaktest.Check(t)() // Fail on leaked goroutines.

	node, host, port := startNode(t, SingleRangeTopology("c", []string{"Keyspace1"}, "a"), Options{})
	defer node.Close()

	client, err := Dial(host, port, time.Second, Options{})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.DescribeRing("Missing")
	var remote *RemoteError
	assert.True(t, errors.As(err, &remote))
	assert.True(t, client.IsOpen())

	_, err = client.DescribeKeyspaces()
	assert.NoError(t, err)
}

func TestSetTopology(t *testing.T) {
	defer leaktest.Check(t)() // Fail on leaked goroutines.

	node, host, port := startNode(t, SingleRangeTopology("c", []string{"Keyspace1"}, "a", "b"), Options{Framed: true})
	defer node.Close()

	client, err := Dial(host, port, time.Second, Options{Framed: true})
	require.NoError(t, err)
	defer client.Close()

	node.SetTopology(SingleRangeTopology("c", []string{"Keyspace1"}, "b", "c"))

	endpoints, err := client.DescribeRingEndpoints("Keyspace1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, endpoints)
}

func TestClosedClient(t *testing.T) {
	defer leaktest.Check(t)() // Fail on leaked goroutines.

	node, host, port := startNode(t, SingleRangeTopology("c", []string{"Keyspace1"}, "a"), Options{})
	defer node.Close()

	client, err := Dial(host, port, time.Second, Options{})
	require.NoError(t, err)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
	assert.False(t, client.IsOpen())

	_, err = client.DescribeKeyspaces()
	var transport *TransportError
	assert.True(t, errors.As(err, &transport))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDroppedConnection(t *testing.T) {
	defer leaktest.Check(t)() // Fail on leaked goroutines.

	node, host, port := startNode(t, SingleRangeTopology("c", []string{"Keyspace1"}, "a"), Options{})
	defer node.Close()

	client, err := Dial(host, port, time.Second, Options{})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.DescribeKeyspaces()
	require.NoError(t, err)

	node.DropConnections()

	_, err = client.DescribeKeyspaces()
	var transport *TransportError
	assert.True(t, errors.As(err, &transport))
	assert.False(t, client.IsOpen())
}

func TestDialRefused(t *testing.T) {
	node, host, port := startNode(t, Topology{}, Options{})
	assert.NoError(t, node.Close())

	_, err := Dial(host, port, 500*time.Millisecond, Options{})
	var transport *TransportError
	assert.True(t, errors.As(err, &transport))
	assert.Equal(t, "dial", transport.Op)
}

func TestUnframedLineLimit(t *testing.T) {
	var buf bytes.Buffer

	codec := newCodec(&buf, Options{})
	require.NoError(t, codec.write(&request{Op: opDescribeRing, Keyspace: "Keyspace1"}))

	req := &request{}
	require.NoError(t, codec.read(req))
	assert.Equal(t, opDescribeRing, req.Op)
	assert.Equal(t, "Keyspace1", req.Keyspace)

	buf.Write(bytes.Repeat([]byte("a"), MaxFrameSize))
	buf.WriteByte('\n')
	assert.ErrorIs(t, codec.read(&request{}), ErrFrameTooLarge)

	assert.ErrorIs(t, codec.write(&request{Keyspace: string(bytes.Repeat([]byte("a"), MaxFrameSize))}), ErrFrameTooLarge)
}

func TestNodeDropsOversizedLine(t *testing.T) {
	defer leaktest.Check(t)() // Fail on leaked goroutines.

	node, _, _ := startNode(t, SingleRangeTopology("c", []string{"Keyspace1"}, "a"), Options{})
	defer node.Close()

	conn, err := net.DialTimeout("tcp", node.Addr(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	// the node hangs up once the line passes the limit, so the write may fail part way
	_, _ = conn.Write(bytes.Repeat([]byte("a"), MaxFrameSize+64*1024))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrDeadlineExceeded))
}
