// Package session holds the server side's per-peer state: a reference
// counted Session wrapping one accepted transport conn, and the ordered
// Registry of live sessions the broadcast path iterates.
package session

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/srtcast/transport"
)

// Session is one accepted peer connection. It is reference counted because
// it is held both by the Registry and transiently by in-flight sends: the
// conn is closed exactly once, by whichever holder releases the last
// reference. A new Session starts with one reference, owned by whoever
// inserts it into the Registry.
type Session struct {
	id   uint32
	conn transport.Conn
	addr net.Addr
	refs atomic.Int32
}

// New wraps an accepted conn in a Session with reference count 1.
//
// Parameters:
//   - id: Stable identifier assigned by the server
//   - conn: The accepted transport conn; the session takes ownership
//   - addr: The peer address (an owned copy, valid after the conn dies)
//
// Returns:
//   - A new *Session holding one reference
func New(id uint32, conn transport.Conn, addr net.Addr) *Session {
	s := &Session{id: id, conn: conn, addr: addr}
	s.refs.Store(1)
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() uint32 {
	return s.id
}

// Addr returns the peer address.
func (s *Session) Addr() net.Addr {
	return s.addr
}

// Ref takes an additional reference and returns the session for chaining.
func (s *Session) Ref() *Session {
	s.refs.Add(1)
	return s
}

// Unref releases one reference. The last release closes the transport conn.
func (s *Session) Unref() {
	if s.refs.Add(-1) == 0 {
		_ = s.conn.Close()
	}
}

// Send writes p to the peer. The payload is not modified.
//
// Parameters:
//   - p: The bytes to send
//
// Returns:
//   - The write error, if any; a failed send marks the peer for eviction
func (s *Session) Send(p []byte) error {
	_, err := s.conn.Write(p)
	return err
}

// Registry is the ordered collection of live sessions. Insertion order is
// acceptance order. All membership changes and snapshots happen under one
// lock, which is never held across network I/O.
type Registry struct {
	mu       sync.Mutex
	sessions []*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends s, transferring the caller's reference to the registry.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
}

// Remove takes s out of the registry. It does not release the registry's
// reference; the caller does that after emitting its removal notification,
// so the notification and the release happen exactly once.
//
// Returns:
//   - true if s was present and removed, false if it was already gone
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, cur := range r.sessions {
		if cur == s {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			return true
		}
	}

	return false
}

// Snapshot returns the current sessions in acceptance order, taking a
// reference on each so a racing removal cannot close a conn mid-send. The
// caller must Unref every returned session.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, len(r.sessions))
	for i, s := range r.sessions {
		out[i] = s.Ref()
	}

	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Drain removes and returns all sessions, used at shutdown. As with Remove,
// the registry references travel to the caller for notification and release.
func (r *Registry) Drain() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.sessions
	r.sessions = nil
	return out
}
