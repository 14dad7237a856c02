// Package transport defines the narrow capability set the server sink and
// client source use to talk SRT: listen, dial, accept, byte-oriented read
// and write, close, and readiness waiting. The SRT backend is the production
// implementation; the Memory backend provides the same semantics in-process
// for tests.
package transport

import (
	"errors"
	"net"

	"github.com/cyberinferno/srtcast/poll"
)

var (
	// ErrClosed is returned by operations on a closed listener or conn.
	ErrClosed = errors.New("transport: handle closed")

	// ErrAddrInUse is returned by Listen when the address already has a
	// listener.
	ErrAddrInUse = errors.New("transport: address already in use")

	// ErrConnRefused is returned by Dial when no listener is reachable at
	// the address.
	ErrConnRefused = errors.New("transport: connection refused")
)

// Conn is one established session. Once accepted or dialed it behaves like
// a reliable ordered message stream until it errors. A zero-length Read
// result is reported as io.EOF and signals a clean end of stream. Conns are
// poll.Sources so they can be registered with a readiness multiplexer.
type Conn interface {
	poll.Source

	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Listener accepts inbound sessions. Its read readiness, observed through
// the poll.Source side, means a peer is waiting to be accepted. Closing the
// listener unblocks pending Accept and WaitReady calls with ErrClosed.
type Listener interface {
	poll.Source

	Accept() (Conn, error)
	Close() error
	Addr() net.Addr
}

// Transport creates listeners and outbound connections for host:port
// endpoints whose addresses were already validated by srturi.
type Transport interface {
	Listen(endpoint string) (Listener, error)
	Dial(endpoint string) (Conn, error)
}
