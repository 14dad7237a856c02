// Package media holds the buffer type that flows between producer, server
// sink, and client source, plus the clock used to stamp presentation
// timestamps.
package media

import "time"

// Buffer is one opaque unit of stream data with an optional presentation
// timestamp. Buffers handed to the server sink are shared read-only across
// all peer sends and must not be mutated after submission.
type Buffer struct {
	data []byte
	pts  time.Duration
}

// Alloc returns a Buffer with a zeroed payload of the given size, intended
// to be filled by a receive call and then trimmed to the received length.
//
// Parameters:
//   - size: The payload capacity in bytes
//
// Returns:
//   - A new *Buffer whose Bytes() has length size
func Alloc(size int) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// FromBytes returns a Buffer wrapping b. The buffer takes ownership of b;
// the caller must not modify it afterwards.
//
// Parameters:
//   - b: The payload bytes
//
// Returns:
//   - A new *Buffer backed by b
func FromBytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Bytes returns the payload. Callers must treat it as read-only once the
// buffer has been submitted for broadcast.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the payload length in bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// PTS returns the presentation timestamp relative to the element's base time.
func (b *Buffer) PTS() time.Duration {
	return b.pts
}

// SetPTS stamps the presentation timestamp.
func (b *Buffer) SetPTS(pts time.Duration) {
	b.pts = pts
}

// Trim shortens the payload to exactly n bytes with no padding. It panics if
// n exceeds the current length.
func (b *Buffer) Trim(n int) {
	b.data = b.data[:n]
}

// Clock supplies the current time for presentation timestamps. The client
// source stamps each filled buffer with clock.Now() minus its base time,
// mirroring a pipeline running-time clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock backed by time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}
