package wire

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Client is a single socket to one ring node. Calls are serialized.
type Client struct {
	address  string
	timeout  time.Duration
	conn     net.Conn
	codec    *codec
	callLock *sync.Mutex
	closed   atomic.Bool
}

// Dial opens a Client to host:port. A zero timeout means no connect or call deadline.
func Dial(host string, port int, timeout time.Duration, options Options) (*Client, error) {

	address := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, &TransportError{Op: "dial", Address: address, Err: err}
	}

	return &Client{
		address:  address,
		timeout:  timeout,
		conn:     conn,
		codec:    newCodec(conn, options),
		callLock: &sync.Mutex{},
	}, nil
}

// Address returns the host:port this Client is connected to.
func (c *Client) Address() string {
	return c.address
}

// IsOpen reports whether Close has not been called and no transport error has occurred.
func (c *Client) IsOpen() bool {
	return !c.closed.Load()
}

// Close closes the socket. Safe to call more than once.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	return c.conn.Close()
}

// DescribeKeyspaces lists the keyspaces known to the node.
func (c *Client) DescribeKeyspaces() ([]string, error) {

	resp, err := c.call(&request{Op: opDescribeKeyspaces})
	if err != nil {
		return nil, err
	}

	return resp.Keyspaces, nil
}

// DescribeRing returns the token ranges of a keyspace.
func (c *Client) DescribeRing(keyspace string) ([]TokenRange, error) {

	resp, err := c.call(&request{Op: opDescribeRing, Keyspace: keyspace})
	if err != nil {
		return nil, err
	}

	return resp.Ring, nil
}

// DescribeRingEndpoints returns every endpoint of a keyspace's token ranges, first occurrence order, no duplicates.
func (c *Client) DescribeRingEndpoints(keyspace string) ([]string, error) {

	ranges, err := c.DescribeRing(keyspace)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	endpoints := make([]string, 0, len(ranges))
	for _, tokenRange := range ranges {
		for _, endpoint := range tokenRange.Endpoints {
			if _, ok := seen[endpoint]; ok {
				continue
			}

			seen[endpoint] = struct{}{}
			endpoints = append(endpoints, endpoint)
		}
	}

	return endpoints, nil
}

// DescribeClusterName returns the cluster name reported by the node.
func (c *Client) DescribeClusterName() (string, error) {

	resp, err := c.call(&request{Op: opDescribeClusterName})
	if err != nil {
		return "", err
	}

	return resp.ClusterName, nil
}

func (c *Client) call(req *request) (*response, error) {
	c.callLock.Lock()
	defer c.callLock.Unlock()

	if !c.IsOpen() {
		return nil, &TransportError{Op: req.Op, Address: c.address, Err: ErrClosed}
	}

	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}

	resp := &response{}
	err := c.codec.write(req)
	if err == nil {
		err = c.codec.read(resp)
	}

	if err != nil {
		// The stream position is unknown after a failed exchange.
		_ = c.Close()
		return nil, &TransportError{Op: req.Op, Address: c.address, Err: err}
	}

	if resp.Error != "" {
		return nil, &RemoteError{Op: req.Op, Message: resp.Error}
	}

	return resp, nil
}
