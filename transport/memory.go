package transport

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/srtcast/poll"
	"github.com/cyberinferno/srtcast/safemap"
)

// Memory is an in-process Transport with the same observable semantics as
// the SRT backend: message-preserving ordered delivery, ErrClosed on writes
// to a dead peer, and io.EOF when the peer has closed cleanly (the
// equivalent of a zero-length SRT receive). Used by tests.
type Memory struct {
	mu        sync.Mutex
	listeners *safemap.SafeMap[string, *memListener]
}

// NewMemory returns an empty in-process transport.
func NewMemory() *Memory {
	return &Memory{listeners: safemap.NewSafeMap[string, *memListener]()}
}

// Listen registers a listener for endpoint.
func (m *Memory) Listen(endpoint string) (Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listeners.Has(endpoint) {
		return nil, fmt.Errorf("transport: listen %s: %w", endpoint, ErrAddrInUse)
	}

	l := &memListener{
		transport: m,
		addr:      memAddr(endpoint),
		pending:   make(chan *memConn, 16),
		done:      make(chan struct{}),
	}
	m.listeners.Store(endpoint, l)

	return l, nil
}

// Dial connects to the listener registered at endpoint.
func (m *Memory) Dial(endpoint string) (Conn, error) {
	l, ok := m.listeners.Load(endpoint)
	if !ok {
		return nil, fmt.Errorf("transport: dial %s: %w", endpoint, ErrConnRefused)
	}

	client, server := newMemPair(endpoint)
	select {
	case l.pending <- server:
		return client, nil
	case <-l.done:
		return nil, fmt.Errorf("transport: dial %s: %w", endpoint, ErrConnRefused)
	}
}

type memListener struct {
	transport *Memory
	addr      memAddr
	pending   chan *memConn
	done      chan struct{}
	once      sync.Once

	mu    sync.Mutex
	stash []*memConn
}

// WaitReady implements poll.Source. Read readiness means a dialed peer is
// waiting to be accepted.
func (l *memListener) WaitReady(i poll.Interest) error {
	if i&poll.Read == 0 {
		return nil
	}

	l.mu.Lock()
	stashed := len(l.stash) > 0
	l.mu.Unlock()
	if stashed {
		return nil
	}

	select {
	case c := <-l.pending:
		l.mu.Lock()
		l.stash = append(l.stash, c)
		l.mu.Unlock()
		return nil
	case <-l.done:
		return ErrClosed
	}
}

func (l *memListener) Accept() (Conn, error) {
	l.mu.Lock()
	if len(l.stash) > 0 {
		c := l.stash[0]
		l.stash = l.stash[1:]
		l.mu.Unlock()
		return c, nil
	}
	l.mu.Unlock()

	select {
	case c := <-l.pending:
		return c, nil
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *memListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.transport.mu.Lock()
		l.transport.listeners.Delete(string(l.addr))
		l.transport.mu.Unlock()
	})
	return nil
}

func (l *memListener) Addr() net.Addr {
	return l.addr
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

var memPeerSeq atomic.Uint64

// newMemPair builds a connected full-duplex pair. Each direction buffers up
// to 64 messages so a broadcast write does not require a concurrent reader.
func newMemPair(endpoint string) (client, server *memConn) {
	peerAddr := memAddr(fmt.Sprintf("peer-%d", memPeerSeq.Add(1)))

	client = &memConn{
		local:  peerAddr,
		remote: memAddr(endpoint),
		in:     make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	server = &memConn{
		local:  memAddr(endpoint),
		remote: peerAddr,
		in:     make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	client.peer, server.peer = server, client

	return client, server
}

type memConn struct {
	local, remote net.Addr
	peer          *memConn
	in            chan []byte
	done          chan struct{}
	once          sync.Once

	mu    sync.Mutex
	stash []byte
}

// WaitReady implements poll.Source. Read readiness blocks until inbound
// data or closure; write readiness reflects only whether the conn is open,
// matching the SRT backend.
func (c *memConn) WaitReady(i poll.Interest) error {
	if i&poll.Read != 0 {
		c.mu.Lock()
		stashed := len(c.stash) > 0
		c.mu.Unlock()
		if stashed {
			return nil
		}

		select {
		case b := <-c.in:
			c.mu.Lock()
			c.stash = append(c.stash, b...)
			c.mu.Unlock()
			return nil
		case <-c.done:
			return ErrClosed
		case <-c.peer.done:
			// Peer gone: the next Read drains buffered data or reports EOF.
			return nil
		}
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
		return nil
	}
}

func (c *memConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if len(c.stash) > 0 {
		n := copy(p, c.stash)
		c.stash = c.stash[n:]
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()

	// Buffered data wins over closure so nothing in flight is lost.
	select {
	case b := <-c.in:
		return c.deliver(p, b), nil
	default:
	}

	select {
	case b := <-c.in:
		return c.deliver(p, b), nil
	case <-c.done:
		return 0, ErrClosed
	case <-c.peer.done:
		select {
		case b := <-c.in:
			return c.deliver(p, b), nil
		default:
			return 0, io.EOF
		}
	}
}

func (c *memConn) deliver(p, b []byte) int {
	n := copy(p, b)
	if n < len(b) {
		c.mu.Lock()
		c.stash = append(c.stash, b[n:]...)
		c.mu.Unlock()
	}
	return n
}

func (c *memConn) Write(p []byte) (int, error) {
	select {
	case <-c.done:
		return 0, ErrClosed
	case <-c.peer.done:
		return 0, ErrClosed
	default:
	}

	cp := make([]byte, len(p))
	copy(cp, p)

	select {
	case c.peer.in <- cp:
		return len(p), nil
	case <-c.done:
		return 0, ErrClosed
	case <-c.peer.done:
		return 0, ErrClosed
	}
}

// Close closes the conn exactly once. Idempotent.
func (c *memConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *memConn) LocalAddr() net.Addr  { return c.local }
func (c *memConn) RemoteAddr() net.Addr { return c.remote }
