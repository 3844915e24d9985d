package wire

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
)

// Node is an in-process ring node answering describe calls from a Topology.
// It is what local tooling and tests dial instead of a real cluster.
type Node struct {
	options  Options
	topology atomic.Pointer[Topology]
	listener net.Listener
	connLock *sync.Mutex
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// NewNode creates a Node that is not yet listening.
func NewNode(topology Topology, options Options) *Node {

	node := &Node{
		options:  options,
		connLock: &sync.Mutex{},
		conns:    make(map[net.Conn]struct{}),
	}
	node.topology.Store(&topology)

	return node
}

// Listen binds address (use "127.0.0.1:0" for an ephemeral port) and starts accepting.
func (n *Node) Listen(address string) error {

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	n.listener = listener

	n.wg.Add(1)
	go n.acceptLoop()

	return nil
}

// Addr returns the bound host:port.
func (n *Node) Addr() string {
	if n.listener == nil {
		return ""
	}

	return n.listener.Addr().String()
}

// SetTopology swaps what the Node reports. Open connections see the change on their next call.
func (n *Node) SetTopology(topology Topology) {
	n.topology.Store(&topology)
}

// DropConnections closes every accepted connection but keeps listening.
func (n *Node) DropConnections() {
	n.connLock.Lock()
	defer n.connLock.Unlock()

	for conn := range n.conns {
		_ = conn.Close()
		delete(n.conns, conn)
	}
}

// Close stops listening, drops every connection and waits for the handlers to exit.
func (n *Node) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if n.listener != nil {
		err = n.listener.Close()
	}

	n.DropConnections()
	n.wg.Wait()

	return err
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()

	for {
		conn, err := n.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || n.closed.Load() {
				return
			}

			continue
		}

		n.connLock.Lock()
		if n.closed.Load() {
			n.connLock.Unlock()
			_ = conn.Close()
			return
		}
		n.conns[conn] = struct{}{}
		n.connLock.Unlock()

		n.wg.Add(1)
		go n.serve(conn)
	}
}

func (n *Node) serve(conn net.Conn) {
	defer n.wg.Done()
	defer n.forget(conn)

	codec := newCodec(conn, n.options)

	for {
		req := &request{}
		if err := codec.read(req); err != nil {
			return
		}

		if err := codec.write(n.answer(req)); err != nil {
			return
		}
	}
}

func (n *Node) forget(conn net.Conn) {
	n.connLock.Lock()
	delete(n.conns, conn)
	n.connLock.Unlock()

	_ = conn.Close()
}

func (n *Node) answer(req *request) *response {

	topology := n.topology.Load()

	switch req.Op {
	case opDescribeKeyspaces:
		return &response{Keyspaces: append([]string{}, topology.Keyspaces...)}
	case opDescribeClusterName:
		return &response{ClusterName: topology.ClusterName}
	case opDescribeRing:
		ranges, ok := topology.Ring[req.Keyspace]
		if !ok {
			return &response{Error: "unknown keyspace " + req.Keyspace}
		}

		return &response{Ring: ranges}
	default:
		return &response{Error: "unsupported operation " + req.Op}
	}
}
