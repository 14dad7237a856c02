package client

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/srtcast/media"
	"github.com/cyberinferno/srtcast/srturi"
	"github.com/cyberinferno/srtcast/transport"
)

const testEndpoint = "127.0.0.1:7000"

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testServer is a memory-transport listener feeding one accepted peer.
type testServer struct {
	ln   transport.Listener
	conn transport.Conn
}

func startTestServer(t *testing.T, tr *transport.Memory) *testServer {
	t.Helper()
	ln, err := tr.Listen(testEndpoint)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return &testServer{ln: ln}
}

// accept picks up the connection dialed by Source.Start.
func (s *testServer) accept(t *testing.T) {
	t.Helper()
	conn, err := s.ln.Accept()
	require.NoError(t, err)
	s.conn = conn
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Idle", StateIdle.String())
	assert.Equal(t, "Connecting", StateConnecting.String())
	assert.Equal(t, "Established", StateEstablished.String())
	assert.Equal(t, "Failed", StateFailed.String())
	assert.Equal(t, "Unknown", State(42).String())
}

func TestSource_StartErrors(t *testing.T) {
	t.Run("invalid scheme fails the source", func(t *testing.T) {
		s := New(Config{URI: "udp://127.0.0.1:7000", Transport: transport.NewMemory()})
		assert.ErrorIs(t, s.Start(), srturi.ErrInvalidScheme)
		assert.Equal(t, StateFailed, s.State())
	})

	t.Run("connection refused fails the source", func(t *testing.T) {
		s := New(Config{Transport: transport.NewMemory()})
		assert.ErrorIs(t, s.Start(), transport.ErrConnRefused)
		assert.Equal(t, StateFailed, s.State())
	})

	t.Run("start while established", func(t *testing.T) {
		tr := transport.NewMemory()
		startTestServer(t, tr)

		s := New(Config{Transport: tr})
		require.NoError(t, s.Start())
		defer s.Stop()

		assert.ErrorIs(t, s.Start(), ErrAlreadyStarted)
		assert.Equal(t, StateEstablished, s.State())
	})

	t.Run("failed source may start again", func(t *testing.T) {
		tr := transport.NewMemory()

		s := New(Config{Transport: tr})
		require.Error(t, s.Start())
		require.Equal(t, StateFailed, s.State())

		startTestServer(t, tr)
		require.NoError(t, s.Start())
		defer s.Stop()
		assert.Equal(t, StateEstablished, s.State())
	})
}

func TestSource_FillReceivesAndStamps(t *testing.T) {
	tr := transport.NewMemory()
	srv := startTestServer(t, tr)
	clock := newFakeClock()

	s := New(Config{Transport: tr, Clock: clock})
	require.NoError(t, s.Start())
	defer s.Stop()
	srv.accept(t)

	_, err := srv.conn.Write([]byte("stream payload"))
	require.NoError(t, err)

	clock.advance(250 * time.Millisecond)

	buf := media.Alloc(1316)
	require.NoError(t, s.Fill(buf))
	assert.Equal(t, []byte("stream payload"), buf.Bytes())
	assert.Equal(t, len("stream payload"), buf.Len())
	assert.Equal(t, 250*time.Millisecond, buf.PTS())
}

func TestSource_FillSequence(t *testing.T) {
	tr := transport.NewMemory()
	srv := startTestServer(t, tr)

	s := New(Config{Transport: tr})
	require.NoError(t, s.Start())
	defer s.Stop()
	srv.accept(t)

	for _, msg := range []string{"one", "two", "three"} {
		_, err := srv.conn.Write([]byte(msg))
		require.NoError(t, err)
	}

	var got []byte
	for len(got) < len("onetwothree") {
		buf := media.Alloc(1316)
		require.NoError(t, s.Fill(buf))
		got = append(got, buf.Bytes()...)
	}
	assert.Equal(t, "onetwothree", string(got))
}

func TestSource_FillEndOfStream(t *testing.T) {
	tr := transport.NewMemory()
	srv := startTestServer(t, tr)

	s := New(Config{Transport: tr})
	require.NoError(t, s.Start())
	defer s.Stop()
	srv.accept(t)

	_, err := srv.conn.Write([]byte("final"))
	require.NoError(t, err)
	require.NoError(t, srv.conn.Close())

	// Data in flight is still delivered before end of stream.
	buf := media.Alloc(1316)
	require.NoError(t, s.Fill(buf))
	assert.Equal(t, "final", string(buf.Bytes()))

	assert.ErrorIs(t, s.Fill(media.Alloc(1316)), io.EOF)
}

func TestSource_FillWhileIdle(t *testing.T) {
	s := New(Config{Transport: transport.NewMemory()})
	assert.ErrorIs(t, s.Fill(media.Alloc(16)), ErrNotEstablished)
}

func TestSource_StopUnblocksFill(t *testing.T) {
	tr := transport.NewMemory()
	srv := startTestServer(t, tr)

	s := New(Config{Transport: tr})
	require.NoError(t, s.Start())
	srv.accept(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Fill(media.Alloc(1316))
	}()

	time.Sleep(50 * time.Millisecond)
	s.Stop()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Fill did not unblock on Stop")
	}
	assert.Equal(t, StateIdle, s.State())
}

func TestSource_StopIsIdempotent(t *testing.T) {
	tr := transport.NewMemory()
	startTestServer(t, tr)

	s := New(Config{Transport: tr})
	require.NoError(t, s.Start())

	s.Stop()
	s.Stop()
	assert.Equal(t, StateIdle, s.State())
}

func TestSource_RestartAfterStop(t *testing.T) {
	tr := transport.NewMemory()
	srv := startTestServer(t, tr)

	s := New(Config{Transport: tr})
	require.NoError(t, s.Start())
	srv.accept(t)
	s.Stop()

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Equal(t, StateEstablished, s.State())
}
