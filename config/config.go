// Package config loads the relay's YAML configuration: defaults first, then
// the file overlaid on top, then validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/cyberinferno/srtcast/server"
	"github.com/cyberinferno/srtcast/srturi"
	"github.com/cyberinferno/srtcast/transport"
)

// Config is the full relay configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	SRT     SRTConfig     `yaml:"srt"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the broadcast sink.
type ServerConfig struct {
	// URI is the srt://host:port bind address.
	URI string `yaml:"uri"`

	// PollTimeoutMs bounds each accept-readiness wait in milliseconds.
	// Zero or negative waits forever.
	PollTimeoutMs int `yaml:"poll_timeout_ms"`
}

// ClientConfig configures the client source. An empty URI disables the
// source; the relay then runs the sink alone.
type ClientConfig struct {
	URI string `yaml:"uri"`

	// FillSize is the receive buffer size in bytes per filled buffer.
	FillSize int `yaml:"fill_size"`
}

// SRTConfig carries the transport options shared by sink and source.
type SRTConfig struct {
	LatencyMs        int    `yaml:"latency_ms"`
	StreamID         string `yaml:"stream_id"`
	Passphrase       string `yaml:"passphrase"`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// Defaults returns the configuration used when no file overrides it: sink
// bound to its default URI, source disabled, library-default SRT options.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			URI:           server.DefaultURI,
			PollTimeoutMs: -1,
		},
		Client: ClientConfig{
			URI:      "",
			FillSize: 1316,
		},
		SRT: SRTConfig{
			LatencyMs: 120,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path, overlays it on Defaults, and validates the result. A
// missing file is not an error; the defaults are returned as-is.
//
// Parameters:
//   - path: The YAML file to read
//
// Returns:
//   - The merged configuration, or a read/parse/validation error
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the relay cannot run with.
func (c *Config) Validate() error {
	if _, err := srturi.Parse(c.Server.URI); err != nil {
		return fmt.Errorf("server uri: %w", err)
	}

	if c.Client.URI != "" {
		if _, err := srturi.Parse(c.Client.URI); err != nil {
			return fmt.Errorf("client uri: %w", err)
		}
	}

	if c.Client.FillSize <= 0 {
		return fmt.Errorf("invalid fill_size: %d (must be positive)", c.Client.FillSize)
	}

	if c.SRT.LatencyMs < 0 {
		return fmt.Errorf("invalid latency_ms: %d (must be non-negative)", c.SRT.LatencyMs)
	}

	if c.SRT.ConnectTimeoutMs < 0 {
		return fmt.Errorf("invalid connect_timeout_ms: %d (must be non-negative)", c.SRT.ConnectTimeoutMs)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn or error)", c.Logging.Level)
	}

	return nil
}

// PollTimeout converts the configured accept-wait bound to a duration, with
// zero or negative meaning wait forever.
func (c *Config) PollTimeout() time.Duration {
	if c.Server.PollTimeoutMs <= 0 {
		return -1
	}
	return time.Duration(c.Server.PollTimeoutMs) * time.Millisecond
}

// SRTOptions maps the SRT section onto transport options.
func (c *Config) SRTOptions() transport.SRTOptions {
	return transport.SRTOptions{
		StreamID:       c.SRT.StreamID,
		Passphrase:     c.SRT.Passphrase,
		Latency:        time.Duration(c.SRT.LatencyMs) * time.Millisecond,
		ConnectTimeout: time.Duration(c.SRT.ConnectTimeoutMs) * time.Millisecond,
	}
}

// ZerologLevel maps the configured level onto a zerolog level, defaulting
// to info.
func (c *Config) ZerologLevel() zerolog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
