// Package client implements the SRT client source: a single outbound
// connection that fills caller-provided buffers from the stream and stamps
// each one with a running-time presentation timestamp.
package client

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/srtcast/logger"
	"github.com/cyberinferno/srtcast/media"
	"github.com/cyberinferno/srtcast/poll"
	"github.com/cyberinferno/srtcast/srturi"
	"github.com/cyberinferno/srtcast/transport"
)

// DefaultURI is the address the source connects to when none is configured.
const DefaultURI = "srt://127.0.0.1:7000"

var (
	// ErrAlreadyStarted is returned by Start while a connection attempt or
	// an established connection exists.
	ErrAlreadyStarted = errors.New("client: already started")

	// ErrNotEstablished is returned by Fill when the source has no live
	// connection.
	ErrNotEstablished = errors.New("client: not established")
)

// State is the source's connection state.
type State int32

const (
	// StateIdle means no connection exists and none is being attempted.
	StateIdle State = iota

	// StateConnecting means Start is dialing the remote endpoint.
	StateConnecting

	// StateEstablished means the connection is live and Fill may be called.
	StateEstablished

	// StateFailed means the last Start attempt did not produce a
	// connection. Start may be called again; the source does not retry on
	// its own.
	StateFailed
)

// String returns a human readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateEstablished:
		return "Established"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Config configures a Source. Zero values fall back to defaults.
type Config struct {
	// URI is the srt://host:port remote address. Defaults to DefaultURI.
	URI string

	// Transport supplies the SRT capability set. Defaults to the gosrt
	// backend with default options.
	Transport transport.Transport

	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger logger.Logger

	// Clock stamps presentation timestamps. Defaults to the system clock.
	Clock media.Clock
}

// Source is the client-side element. One goroutine drives Start, Fill and
// Stop; State is safe to read from anywhere. Fill blocks until data arrives,
// the stream ends, or Stop tears the connection down under it.
type Source struct {
	cfg   Config
	log   logger.Logger
	tr    transport.Transport
	clock media.Clock

	state atomic.Int32

	mu     sync.Mutex
	conn   transport.Conn
	poller *poll.Poller
	base   time.Time
}

// New builds a Source from cfg. Call Start to connect.
func New(cfg Config) *Source {
	if cfg.URI == "" {
		cfg.URI = DefaultURI
	}
	if cfg.Transport == nil {
		cfg.Transport = transport.NewSRT(transport.SRTOptions{})
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Clock == nil {
		cfg.Clock = media.SystemClock{}
	}

	return &Source{
		cfg:   cfg,
		log:   cfg.Logger.With(logger.F("component", "client")),
		tr:    cfg.Transport,
		clock: cfg.Clock,
	}
}

// State returns the current connection state.
func (s *Source) State() State {
	return State(s.state.Load())
}

func (s *Source) setState(st State) {
	s.state.Store(int32(st))
	s.log.Debug("state changed", logger.F("state", st.String()))
}

// Start resolves the remote address, dials it, and records the base time
// used for presentation timestamps. A failed attempt leaves the source in
// StateFailed; the caller decides whether to try again. Not safe to call
// concurrently with Stop.
//
// Returns:
//   - ErrAlreadyStarted if a connection exists or is being attempted, or an
//     error wrapping the srturi validation error or the dial failure
func (s *Source) Start() error {
	switch s.State() {
	case StateConnecting, StateEstablished:
		s.log.Error("client already started")
		return ErrAlreadyStarted
	}
	s.setState(StateConnecting)

	addr, err := srturi.Parse(s.cfg.URI)
	if err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("client: %w", err)
	}

	conn, err := s.tr.Dial(addr.Endpoint())
	if err != nil {
		s.setState(StateFailed)
		s.log.Error("connect failed",
			logger.F("uri", addr.String()),
			logger.F("err", err))
		return fmt.Errorf("client: %w", err)
	}

	poller := poll.New()
	if err := poller.Register(conn, poll.Write); err != nil {
		_ = conn.Close()
		poller.Close()
		s.setState(StateFailed)
		return fmt.Errorf("client: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.poller = poller
	s.base = s.clock.Now()
	s.mu.Unlock()

	s.setState(StateEstablished)
	s.log.Info("connected", logger.F("uri", addr.String()))
	return nil
}

// Fill blocks until the connection is ready, receives one message into
// buf's payload, trims buf to the received length, and stamps its PTS with
// the running time (now minus the base time recorded at Start).
//
// Parameters:
//   - buf: The buffer to fill; its current length bounds the receive
//
// Returns:
//   - io.EOF when the remote closed the stream (a zero-length receive),
//     ErrNotEstablished if the source is not connected, or a wrapped
//     transfer error
func (s *Source) Fill(buf *media.Buffer) error {
	if s.State() != StateEstablished {
		return ErrNotEstablished
	}

	s.mu.Lock()
	conn, poller, base := s.conn, s.poller, s.base
	s.mu.Unlock()
	if conn == nil {
		// Stop won the race after the state check.
		return ErrNotEstablished
	}

	if _, err := poller.Wait(-1); err != nil {
		return fmt.Errorf("client: poll: %w", err)
	}

	n, err := conn.Read(buf.Bytes())
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.log.Info("stream ended")
			return io.EOF
		}
		return fmt.Errorf("client: recv: %w", err)
	}
	if n == 0 {
		s.log.Info("stream ended")
		return io.EOF
	}

	buf.SetPTS(s.clock.Now().Sub(base))
	buf.Trim(n)
	return nil
}

// Stop closes the connection and releases the poller, returning the source
// to StateIdle. Idempotent; a blocked Fill unblocks with an error.
func (s *Source) Stop() {
	if s.State() == StateIdle {
		s.log.Info("client not running")
		return
	}
	s.setState(StateIdle)

	s.mu.Lock()
	conn, poller := s.conn, s.poller
	s.conn, s.poller = nil, nil
	s.mu.Unlock()

	if poller != nil {
		if conn != nil {
			poller.Unregister(conn)
		}
		poller.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}

	s.log.Info("client stopped")
}
