// Package server implements the SRT broadcast sink: it accepts an unbounded
// number of inbound sessions on a background loop and fans every submitted
// buffer out to all of them, evicting only the peers whose writes fail.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/srtcast/idgenerator"
	"github.com/cyberinferno/srtcast/logger"
	"github.com/cyberinferno/srtcast/media"
	"github.com/cyberinferno/srtcast/poll"
	"github.com/cyberinferno/srtcast/session"
	"github.com/cyberinferno/srtcast/srturi"
	"github.com/cyberinferno/srtcast/transport"
)

// DefaultURI is the address the sink binds when none is configured.
const DefaultURI = "srt://127.0.0.1:7001"

var (
	// ErrAlreadyRunning is returned by Start when the sink is running.
	ErrAlreadyRunning = errors.New("server: already running")

	// ErrNotRunning is returned by Submit when the sink is stopped.
	ErrNotRunning = errors.New("server: not running")
)

// ClientCallback observes a peer joining or leaving. Callbacks run on the
// sink's background goroutines (or on the Stop caller's goroutine during
// shutdown) and must not block.
type ClientCallback func(id uint32, addr net.Addr)

// Config configures a Sink. Zero values fall back to defaults.
type Config struct {
	// URI is the srt://host:port bind address. Defaults to DefaultURI.
	URI string

	// PollTimeout bounds each accept-readiness wait. Zero or negative
	// waits forever, matching the element's poll-timeout default of -1.
	PollTimeout time.Duration

	// Transport supplies the SRT capability set. Defaults to the gosrt
	// backend with default options.
	Transport transport.Transport

	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger logger.Logger

	// OnClientAdded fires after a peer is accepted and registered.
	OnClientAdded ClientCallback

	// OnClientRemoved fires exactly once per departed peer, whether it
	// left by write failure or by shutdown.
	OnClientRemoved ClientCallback
}

// Sink is the broadcast server. A producer calls Submit from any goroutine;
// two background goroutines, joined at Stop, accept peers and drain the
// pending queue to every registered session.
//
// There is no backpressure: if the producer submits faster than buffers can
// be broadcast to slow peers, the pending queue grows without bound.
type Sink struct {
	cfg Config
	log logger.Logger
	tr  transport.Transport

	running  atomic.Bool
	ln       transport.Listener
	poller   *poll.Poller
	registry *session.Registry
	ids      *idgenerator.IdGenerator

	queueMu sync.Mutex
	pending []*media.Buffer

	dispatch chan struct{}
	stop     chan struct{}
	group    *errgroup.Group
}

// New builds a Sink from cfg. Call Start to bind and begin accepting.
func New(cfg Config) *Sink {
	if cfg.URI == "" {
		cfg.URI = DefaultURI
	}
	if cfg.Transport == nil {
		cfg.Transport = transport.NewSRT(transport.SRTOptions{})
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Sink{
		cfg:      cfg,
		log:      cfg.Logger.With(logger.F("component", "server")),
		tr:       cfg.Transport,
		registry: session.NewRegistry(),
		ids:      idgenerator.NewIdGenerator(0),
	}
}

// Start resolves the bind address, listens, and spawns the background
// accept and dispatch loops. It fails synchronously on a malformed URI or a
// transport setup error, releasing anything partially created. Not safe to
// call concurrently with Stop.
//
// Returns:
//   - An error wrapping the srturi validation error or the listen failure,
//     or ErrAlreadyRunning
func (s *Sink) Start() error {
	if s.running.Load() {
		s.log.Error("server already running")
		return ErrAlreadyRunning
	}

	addr, err := srturi.Parse(s.cfg.URI)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	ln, err := s.tr.Listen(addr.Endpoint())
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	poller := poll.New()
	if err := poller.Register(ln, poll.Read); err != nil {
		_ = ln.Close()
		poller.Close()
		return fmt.Errorf("server: %w", err)
	}

	s.ln = ln
	s.poller = poller
	s.pending = nil
	s.dispatch = make(chan struct{}, 1)
	s.stop = make(chan struct{})
	s.running.Store(true)

	s.group = new(errgroup.Group)
	s.group.Go(s.acceptLoop)
	s.group.Go(s.dispatchLoop)

	s.log.Info("server started", logger.F("uri", addr.String()))
	return nil
}

// Stop notifies removal for every live session, closes the listener, and
// joins both background loops before returning. Idempotent; calling Stop on
// a stopped sink is a no-op.
func (s *Sink) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		s.log.Info("server not running")
		return
	}

	for _, sess := range s.registry.Drain() {
		s.notifyRemoved(sess)
		sess.Unref()
	}

	s.poller.Unregister(s.ln)
	_ = s.ln.Close()
	s.poller.Close()

	close(s.stop)
	if err := s.group.Wait(); err != nil {
		s.log.Error("background loop failed", logger.F("err", err))
	}

	s.log.Info("server stopped")
}

// Submit queues buf for broadcast to every currently registered session.
// It never blocks on network I/O and never fails the producer while the
// sink is running, even if no peers are connected. Buffers submitted while
// a dispatch pass is outstanding coalesce into that pass, preserving
// submission order.
//
// Parameters:
//   - buf: The buffer to broadcast; treated as read-only from here on
//
// Returns:
//   - ErrNotRunning if the sink is stopped, nil otherwise
func (s *Sink) Submit(buf *media.Buffer) error {
	if !s.running.Load() {
		return ErrNotRunning
	}

	s.queueMu.Lock()
	wasEmpty := len(s.pending) == 0
	s.pending = append(s.pending, buf)
	s.queueMu.Unlock()

	if wasEmpty {
		select {
		case s.dispatch <- struct{}{}:
		default:
		}
	}

	return nil
}

// ClientCount returns the number of live sessions.
func (s *Sink) ClientCount() int {
	return s.registry.Len()
}

// acceptLoop waits for listener readiness bounded by the poll timeout and
// accepts one peer per readiness event. A wait timeout is normal and
// re-arms the wait; a single failed accept is logged and skipped; a wait
// error ends the loop (the unit is not re-armed on a dead listener).
func (s *Sink) acceptLoop() error {
	timeout := s.cfg.PollTimeout
	if timeout <= 0 {
		timeout = -1
	}

	for {
		select {
		case <-s.stop:
			return nil
		default:
		}

		ready, err := s.poller.Wait(timeout)
		if err != nil {
			if !s.running.Load() {
				return nil
			}
			s.log.Error("readiness wait failed", logger.F("err", err))
			return fmt.Errorf("server: poll: %w", err)
		}
		if len(ready) == 0 {
			// Poll timeout; not an error.
			continue
		}

		conn, err := s.ln.Accept()
		if err != nil {
			if !s.running.Load() {
				return nil
			}
			s.log.Warn("accept failed", logger.F("err", err))
			continue
		}

		sess := session.New(s.ids.Id(), conn, conn.RemoteAddr())
		s.registry.Add(sess)
		s.log.Debug("client added",
			logger.F("id", sess.ID()),
			logger.F("addr", sess.Addr().String()))
		if cb := s.cfg.OnClientAdded; cb != nil {
			cb(sess.ID(), sess.Addr())
		}
	}
}

// dispatchLoop runs one broadcast pass per dispatch signal. The signal
// channel holds at most one entry, so any number of submissions while a
// pass is outstanding schedule exactly one more.
func (s *Sink) dispatchLoop() error {
	for {
		select {
		case <-s.stop:
			return nil
		case <-s.dispatch:
			s.broadcast()
		}
	}
}

// broadcast swaps out the pending queue and writes each buffer, in
// submission order, to a fresh registry snapshot. The queue lock is never
// held across sends. A failed write evicts only that session; remaining
// sessions still receive the buffer.
func (s *Sink) broadcast() {
	s.queueMu.Lock()
	buffers := s.pending
	s.pending = nil
	s.queueMu.Unlock()

	for _, buf := range buffers {
		for _, sess := range s.registry.Snapshot() {
			if err := sess.Send(buf.Bytes()); err != nil {
				s.log.Warn("send to client failed",
					logger.F("id", sess.ID()),
					logger.F("addr", sess.Addr().String()),
					logger.F("err", err))
				s.evict(sess)
			}
			sess.Unref()
		}
	}
}

// evict removes sess from the registry and, if this call did the removal,
// emits the removal notification and releases the registry reference.
func (s *Sink) evict(sess *session.Session) {
	if !s.registry.Remove(sess) {
		return
	}
	s.notifyRemoved(sess)
	sess.Unref()
}

func (s *Sink) notifyRemoved(sess *session.Session) {
	s.log.Debug("client removed",
		logger.F("id", sess.ID()),
		logger.F("addr", sess.Addr().String()))
	if cb := s.cfg.OnClientRemoved; cb != nil {
		cb(sess.ID(), sess.Addr())
	}
}
