package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastLine(buf *bytes.Buffer) map[string]any {
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var m map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &m); err != nil {
		return nil
	}
	return m
}

func TestNew_WritesStructuredEntries(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "srtcast", zerolog.InfoLevel)

	log.Info("server started", F("addr", "127.0.0.1:7001"))

	entry := lastLine(&buf)
	require.NotNil(t, entry)
	assert.Equal(t, "server started", entry["message"])
	assert.Equal(t, "srtcast", entry["service"])
	assert.Equal(t, "127.0.0.1:7001", entry["addr"])
	assert.Equal(t, "info", entry["level"])
}

func TestNew_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "srtcast", zerolog.WarnLevel)

	log.Debug("dropped")
	log.Info("dropped too")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestWith_DerivesScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "srtcast", zerolog.DebugLevel)

	scoped := log.With(F("component", "server"))
	scoped.Error("accept failed", F("err", "boom"))

	entry := lastLine(&buf)
	require.NotNil(t, entry)
	assert.Equal(t, "server", entry["component"])
	assert.Equal(t, "boom", entry["err"])

	// Original logger is unchanged.
	buf.Reset()
	log.Info("plain")
	entry = lastLine(&buf)
	require.NotNil(t, entry)
	assert.NotContains(t, entry, "component")
}

func TestNop_DiscardsEverything(t *testing.T) {
	log := Nop()
	assert.NotPanics(t, func() {
		log.Debug("a")
		log.Info("b")
		log.Warn("c")
		log.Error("d")
		log.With(F("k", "v")).Info("e")
	})
}
