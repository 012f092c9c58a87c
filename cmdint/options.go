package cmdint

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/John-MustangGT/osplink/transcript"
)

// Config holds the connection configuration.
type Config struct {
	// Dialer opens the transport. Defaults to OpenSerial.
	Dialer Dialer

	// BaudRate of the serial link.
	BaudRate int

	// ReadTimeout bounds a single transport read. Kept short so Exec can
	// check its own deadline often.
	ReadTimeout time.Duration

	// ExecTimeout is the budget Do gives each command.
	ExecTimeout time.Duration

	// HandshakeTimeout is the budget for each handshake exchange in Open.
	// The firmware may still be booting, so it is separate from ExecTimeout.
	HandshakeTimeout time.Duration

	// Logger receives diagnostics (not the transcript).
	Logger zerolog.Logger

	// Transcript, if set, records every exchange.
	Transcript *transcript.Logger
}

func defaultConfig() Config {
	return Config{
		Dialer:           OpenSerial,
		BaudRate:         115200,
		ReadTimeout:      10 * time.Millisecond,
		ExecTimeout:      1500 * time.Millisecond,
		HandshakeTimeout: 1500 * time.Millisecond,
		Logger:           zerolog.Nop(),
	}
}

// Option configures a Conn.
type Option func(*Config)

// WithDialer replaces the serial dialer, e.g. with a fake in tests.
func WithDialer(d Dialer) Option {
	return func(c *Config) {
		if d != nil {
			c.Dialer = d
		}
	}
}

// WithBaudRate sets the baud rate used by Open.
func WithBaudRate(baud int) Option {
	return func(c *Config) {
		if baud > 0 {
			c.BaudRate = baud
		}
	}
}

// WithReadTimeout sets the per-read transport timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ReadTimeout = d
		}
	}
}

// WithExecTimeout sets the timeout used by Do.
func WithExecTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ExecTimeout = d
		}
	}
}

// WithHandshakeTimeout sets the timeout of each handshake exchange.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.HandshakeTimeout = d
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithTranscript attaches a transcript logger.
func WithTranscript(t *transcript.Logger) Option {
	return func(c *Config) {
		c.Transcript = t
	}
}
