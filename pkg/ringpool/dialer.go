package ringpool

import (
	"net"
	"strconv"
	"time"

	"github.com/houseofcat/ringpool/pkg/wire"
)

// Client is the raw handle a pooled connection owns. The pool only closes it
// and uses it to ask the ring for its current topology.
type Client interface {
	DescribeKeyspaces() ([]string, error)
	DescribeRingEndpoints(keyspace string) ([]string, error)
	Close() error
}

// Dialer opens Clients to ring nodes.
type Dialer interface {
	Dial(host string, port int, timeout time.Duration, framed bool) (Client, error)
}

// DialerFunc adapts a function to a Dialer.
type DialerFunc func(host string, port int, timeout time.Duration, framed bool) (Client, error)

// Dial calls f.
func (f DialerFunc) Dial(host string, port int, timeout time.Duration, framed bool) (Client, error) {
	return f(host, port, timeout, framed)
}

// wireDialer opens wire.Clients.
type wireDialer struct {
	compressed bool
}

// NewWireDialer returns the default Dialer speaking the wire protocol.
func NewWireDialer(compressed bool) Dialer {
	return &wireDialer{compressed: compressed}
}

func (wd *wireDialer) Dial(host string, port int, timeout time.Duration, framed bool) (Client, error) {

	client, err := wire.Dial(host, port, timeout, wire.Options{Framed: framed, Compressed: framed && wd.compressed})
	if err != nil {
		return nil, err // never a typed nil inside the interface
	}

	return client, nil
}

// splitHostPort lets a ring address carry its own port ("10.0.0.1:9161").
func splitHostPort(address string, defaultPort int) (string, int) {

	host, portText, err := net.SplitHostPort(address)
	if err != nil {
		return address, defaultPort
	}

	port, err := strconv.Atoi(portText)
	if err != nil || port <= 0 {
		return host, defaultPort
	}

	return host, port
}
