// Package idgenerator issues the stable numeric identifiers attached to
// accepted peer sessions.
package idgenerator

import "sync/atomic"

// IdGenerator generates monotonically increasing uint32 IDs in a
// concurrency-safe manner. IDs are never reused within one generator, so a
// departed session's ID stays unambiguous in log output and observer
// callbacks.
type IdGenerator struct {
	id atomic.Uint32
}

// NewIdGenerator creates an IdGenerator whose first Id() returns
// startValue+1. Starting from 0 reserves the zero ID as "invalid".
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint32) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next unique ID by atomically incrementing the internal
// counter. Safe for concurrent use.
//
// Returns:
//   - The next uint32 ID
func (l *IdGenerator) Id() uint32 {
	return l.id.Add(1)
}
