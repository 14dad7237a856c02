package poll

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateSource becomes ready each time a value is sent on gate.
type gateSource struct {
	gate chan error
}

func newGateSource() *gateSource {
	return &gateSource{gate: make(chan error)}
}

func (g *gateSource) WaitReady(Interest) error {
	return <-g.gate
}

func TestInterest_String(t *testing.T) {
	assert.Equal(t, "read", Read.String())
	assert.Equal(t, "write", Write.String())
	assert.Equal(t, "read|write", (Read | Write).String())
	assert.Equal(t, "none", Interest(0).String())
}

func TestPoller_WaitTimeoutIsNotAnError(t *testing.T) {
	p := New()
	defer p.Close()

	src := newGateSource()
	require.NoError(t, p.Register(src, Read))

	start := time.Now()
	ready, err := p.Wait(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, ready)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPoller_WaitZeroTimeout(t *testing.T) {
	p := New()
	defer p.Close()

	ready, err := p.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestPoller_ReadySourceReturned(t *testing.T) {
	p := New()
	defer p.Close()

	src := newGateSource()
	require.NoError(t, p.Register(src, Read))

	go func() { src.gate <- nil }()

	ready, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Same(t, src, ready[0].(*gateSource))
}

func TestPoller_ReadyOncePerWait(t *testing.T) {
	p := New()
	defer p.Close()

	src := newGateSource()
	require.NoError(t, p.Register(src, Read))

	go func() { src.gate <- nil }()

	ready, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, ready, 1)

	// Not re-armed until the source reports readiness again.
	ready, err = p.Wait(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestPoller_Register(t *testing.T) {
	p := New()
	defer p.Close()

	src := newGateSource()

	t.Run("same interest twice is a no-op", func(t *testing.T) {
		require.NoError(t, p.Register(src, Read))
		assert.NoError(t, p.Register(src, Read))
	})

	t.Run("different interest fails", func(t *testing.T) {
		assert.ErrorIs(t, p.Register(src, Write), ErrRegistered)
	})
}

func TestPoller_UnregisterIsIdempotent(t *testing.T) {
	p := New()
	defer p.Close()

	src := newGateSource()
	require.NoError(t, p.Register(src, Read))

	p.Unregister(src)
	p.Unregister(src)

	// A fresh registration with a different interest now succeeds.
	assert.NoError(t, p.Register(src, Write))
}

func TestPoller_WatcherErrorSurfaces(t *testing.T) {
	p := New()
	defer p.Close()

	src := newGateSource()
	require.NoError(t, p.Register(src, Read))

	wantErr := errors.New("handle closed")
	go func() { src.gate <- wantErr }()

	_, err := p.Wait(time.Second)
	assert.ErrorIs(t, err, wantErr)
}

func TestPoller_Close(t *testing.T) {
	p := New()
	src := newGateSource()
	require.NoError(t, p.Register(src, Read))

	p.Close()
	p.Close() // idempotent

	_, err := p.Wait(time.Second)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Register(newGateSource(), Read), ErrClosed)
}

func TestPoller_MultipleSources(t *testing.T) {
	p := New()
	defer p.Close()

	a := newGateSource()
	b := newGateSource()
	require.NoError(t, p.Register(a, Read))
	require.NoError(t, p.Register(b, Read))

	go func() { a.gate <- nil }()
	go func() { b.gate <- nil }()

	seen := make(map[Source]bool)
	deadline := time.Now().Add(2 * time.Second)
	for len(seen) < 2 && time.Now().Before(deadline) {
		ready, err := p.Wait(time.Second)
		require.NoError(t, err)
		for _, s := range ready {
			seen[s] = true
		}
	}
	assert.Len(t, seen, 2)
}
