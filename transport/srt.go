package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	gosrt "github.com/datarhei/gosrt"

	"github.com/cyberinferno/srtcast/poll"
)

// SRTOptions configures the SRT transport. The zero value is usable: live
// transmission mode with the library's defaults.
type SRTOptions struct {
	// StreamID is sent during the handshake and may be used by the remote
	// end for routing or access control.
	StreamID string

	// Passphrase enables AES encryption when non-empty.
	Passphrase string

	// Latency sets the SRT latency window; 0 keeps the library default.
	Latency time.Duration

	// ConnectTimeout bounds the outbound handshake; 0 keeps the library
	// default.
	ConnectTimeout time.Duration
}

// SRT is the production Transport backed by github.com/datarhei/gosrt.
type SRT struct {
	opts SRTOptions
}

// NewSRT returns an SRT transport with the given options.
func NewSRT(opts SRTOptions) *SRT {
	return &SRT{opts: opts}
}

func (t *SRT) config() gosrt.Config {
	config := gosrt.DefaultConfig()
	config.TransmissionType = "live"
	if t.opts.StreamID != "" {
		config.StreamId = t.opts.StreamID
	}
	if t.opts.Passphrase != "" {
		config.Passphrase = t.opts.Passphrase
	}
	if t.opts.Latency > 0 {
		config.Latency = t.opts.Latency
	}
	if t.opts.ConnectTimeout > 0 {
		config.ConnectionTimeout = t.opts.ConnectTimeout
	}
	return config
}

// Listen binds and listens on endpoint.
//
// Parameters:
//   - endpoint: host:port to bind, e.g. "127.0.0.1:7001"
//
// Returns:
//   - A Listener, or the bind/listen error from the SRT library
func (t *SRT) Listen(endpoint string) (Listener, error) {
	ln, err := gosrt.Listen("srt", endpoint, t.config())
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", endpoint, err)
	}

	l := &srtListener{
		ln:      ln,
		pending: make(chan gosrt.ConnRequest, 8),
		done:    make(chan struct{}),
	}
	go l.pump()

	return l, nil
}

// Dial connects to endpoint and blocks until the SRT handshake completes.
//
// Parameters:
//   - endpoint: host:port to connect to
//
// Returns:
//   - An established Conn, or the connect error from the SRT library
func (t *SRT) Dial(endpoint string) (Conn, error) {
	conn, err := gosrt.Dial("srt", endpoint, t.config())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", endpoint, err)
	}

	return &srtConn{conn: conn, done: make(chan struct{})}, nil
}

// srtListener decouples the library's blocking Accept2 from readiness
// waiting: a pump goroutine queues connection requests, WaitReady observes
// the queue, and Accept completes the handshake.
type srtListener struct {
	ln      gosrt.Listener
	pending chan gosrt.ConnRequest
	done    chan struct{}
	once    sync.Once

	mu    sync.Mutex
	stash []gosrt.ConnRequest
}

func (l *srtListener) pump() {
	defer close(l.pending)
	for {
		req, err := l.ln.Accept2()
		if err != nil {
			// Listener closed or fatal; receivers observe the closed
			// pending channel.
			return
		}
		select {
		case l.pending <- req:
		case <-l.done:
			return
		}
	}
}

// WaitReady implements poll.Source. Read readiness means a connection
// request is waiting.
func (l *srtListener) WaitReady(i poll.Interest) error {
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
	case req, ok := <-l.pending:
		if !ok {
			return ErrClosed
		}
		l.mu.Lock()
		l.stash = append(l.stash, req)
		l.mu.Unlock()
		return nil
	case <-l.done:
		return ErrClosed
	}
}

// Accept completes the handshake for the next pending connection request.
func (l *srtListener) Accept() (Conn, error) {
	req, err := l.next()
	if err != nil {
		return nil, err
	}

	conn, err := req.Accept()
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}

	return &srtConn{conn: conn, done: make(chan struct{})}, nil
}

func (l *srtListener) next() (gosrt.ConnRequest, error) {
	l.mu.Lock()
	if len(l.stash) > 0 {
		req := l.stash[0]
		l.stash = l.stash[1:]
		l.mu.Unlock()
		return req, nil
	}
	l.mu.Unlock()

	select {
	case req, ok := <-l.pending:
		if !ok {
			return nil, ErrClosed
		}
		return req, nil
	case <-l.done:
		return nil, ErrClosed
	}
}

// Close shuts the listener down and unblocks pending Accept and WaitReady
// calls. Idempotent.
func (l *srtListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.ln.Close()
	})
	return nil
}

// Addr returns the bound address.
func (l *srtListener) Addr() net.Addr {
	return l.ln.Addr()
}

type srtConn struct {
	conn gosrt.Conn
	done chan struct{}
	once sync.Once
}

// WaitReady implements poll.Source. gosrt exposes blocking net.Conn
// semantics rather than an epoll surface, so an established session is
// always reported ready and the real suspension point is the blocking read
// or write; only closure is observed here.
func (c *srtConn) WaitReady(poll.Interest) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
		return nil
	}
}

func (c *srtConn) Read(p []byte) (int, error) {
	return c.conn.Read(p)
}

func (c *srtConn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

// Close closes the session exactly once. Idempotent.
func (c *srtConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *srtConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *srtConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
