// Package poll provides a readiness multiplexer over transport handles.
// Callers register a handle with a direction of interest and then block in
// Wait until some registered handle is ready, a timeout elapses, or the
// poller is closed. A timeout is an expected outcome, not an error: Wait
// returns an empty set so the caller can re-arm and continue its loop.
package poll

import (
	"errors"
	"sync"
	"time"
)

// Interest selects the readiness direction a registration waits for.
type Interest uint8

const (
	// Read readiness: the handle has inbound data or a pending connection.
	Read Interest = 1 << iota
	// Write readiness: the handle can accept outbound data.
	Write
)

// String returns a human-readable name for the interest set.
func (i Interest) String() string {
	switch {
	case i&Read != 0 && i&Write != 0:
		return "read|write"
	case i&Read != 0:
		return "read"
	case i&Write != 0:
		return "write"
	default:
		return "none"
	}
}

var (
	// ErrRegistered is returned by Register when the source is already
	// registered with a different interest.
	ErrRegistered = errors.New("poll: source already registered with different interest")

	// ErrClosed is returned by Register and Wait after Close.
	ErrClosed = errors.New("poll: poller is closed")
)

// Source is a pollable transport handle. WaitReady blocks until the source
// is ready for the requested direction and returns nil, or returns an error
// once the source can never become ready again (typically because its
// underlying handle was closed). Closing the handle must unblock a pending
// WaitReady call.
type Source interface {
	WaitReady(i Interest) error
}

type entry struct {
	interest Interest
	stop     chan struct{}
}

// Poller multiplexes readiness across registered Sources. Each registration
// runs one watcher goroutine that blocks in the source's WaitReady and hands
// the source to Wait through an unbuffered channel, so a ready source is
// reported at most once per Wait call and watchers never spin.
type Poller struct {
	mu      sync.Mutex
	entries map[Source]*entry
	closed  bool

	ready chan Source
	errs  chan error
	done  chan struct{}
}

// New returns an empty Poller ready for registrations.
func New() *Poller {
	return &Poller{
		entries: make(map[Source]*entry),
		ready:   make(chan Source),
		errs:    make(chan error, 4),
		done:    make(chan struct{}),
	}
}

// Register associates s with the given interest and starts watching it.
// Registering the same source with the same interest again is a no-op;
// registering it with a different interest fails with ErrRegistered.
//
// Parameters:
//   - s: The source to watch
//   - i: The readiness direction(s) to wait for
//
// Returns:
//   - ErrRegistered on an incompatible duplicate, ErrClosed after Close,
//     nil otherwise
func (p *Poller) Register(s Source, i Interest) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if e, ok := p.entries[s]; ok {
		if e.interest == i {
			return nil
		}
		return ErrRegistered
	}

	e := &entry{interest: i, stop: make(chan struct{})}
	p.entries[s] = e
	go p.watch(s, e)

	return nil
}

// Unregister stops watching s. It is idempotent and a no-op for sources
// that were never registered. A watcher blocked inside WaitReady is released
// when the source's underlying handle is closed.
func (p *Poller) Unregister(s Source) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[s]; ok {
		close(e.stop)
		delete(p.entries, s)
	}
}

// Wait blocks until at least one registered source is ready, the timeout
// elapses, or the poller is closed. A negative timeout waits forever.
//
// Parameters:
//   - timeout: Maximum time to wait; < 0 means no limit
//
// Returns:
//   - The ready sources, in no particular order; an empty slice and nil
//     error on timeout
//   - ErrClosed after Close, or the first watcher error otherwise
func (p *Poller) Wait(timeout time.Duration) ([]Source, error) {
	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case s := <-p.ready:
		sources := []Source{s}
		// Pick up anything else that became ready in the meantime.
		for {
			select {
			case more := <-p.ready:
				sources = append(sources, more)
			default:
				return sources, nil
			}
		}
	case err := <-p.errs:
		return nil, err
	case <-expired:
		return nil, nil
	case <-p.done:
		return nil, ErrClosed
	}
}

// Close stops all watchers and releases the poller. Subsequent Register and
// Wait calls fail with ErrClosed. Idempotent.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.done)
	for _, e := range p.entries {
		close(e.stop)
	}
	p.entries = nil
}

// watch runs on its own goroutine for the lifetime of one registration.
func (p *Poller) watch(s Source, e *entry) {
	for {
		select {
		case <-e.stop:
			return
		case <-p.done:
			return
		default:
		}

		if err := s.WaitReady(e.interest); err != nil {
			select {
			case p.errs <- err:
			default:
			}
			return
		}

		select {
		case p.ready <- s:
		case <-e.stop:
			return
		case <-p.done:
			return
		}
	}
}
