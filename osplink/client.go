package osplink

import (
	"github.com/rs/zerolog"

	"github.com/John-MustangGT/osplink/cmdint"
)

// FirmwareName is the application name OSPlink firmware reports.
const FirmwareName = "OSPlink"

// Client speaks the OSPlink command set over a cmdint connection.
//
// Like the connection it wraps, a Client is not safe for concurrent use.
type Client struct {
	conn *cmdint.Conn
	log  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the diagnostics logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// New returns a client that issues its commands on conn. conn may be open
// or closed; Open opens it.
func New(conn *cmdint.Conn, opts ...Option) *Client {
	c := &Client{conn: conn, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Conn returns the underlying connection, e.g. to send raw commands.
func (c *Client) Conn() *cmdint.Conn {
	return c.conn
}

// Open opens path and checks that the device runs OSPlink firmware.
//
// When the firmware is something else Open fails with a FirmwareMismatch
// error but leaves the connection open; the caller decides whether to Close
// it or use it as a plain interpreter.
func (c *Client) Open(path string) error {
	if err := c.conn.Open(path); err != nil {
		return err
	}
	info, err := c.VersionInfo()
	if err != nil {
		return err
	}
	if info.AppName != FirmwareName {
		return &Error{
			Kind:     FirmwareMismatch,
			Command:  VersionCommand,
			Expected: FirmwareName,
			Actual:   info.AppName,
			Response: info.Raw,
		}
	}
	c.log.Debug().Str("port", path).Str("version", info.AppVersion).Str("runtime", info.Runtime).Msg("OSPlink firmware found")
	return nil
}

// Close closes the connection; see cmdint.Conn.Close.
func (c *Client) Close(graceful bool) error {
	return c.conn.Close(graceful)
}

// VersionInfo queries and decodes the firmware version.
func (c *Client) VersionInfo() (VersionInfo, error) {
	resp, err := c.conn.Do(VersionCommand)
	if err != nil {
		return VersionInfo{}, err
	}
	return ParseVersion(resp)
}

// Version queries the firmware version and renders it with format (see
// VersionInfo.Format). An empty format means DefaultVersionFormat.
func (c *Client) Version(format string) (string, error) {
	if format == "" {
		format = DefaultVersionFormat
	}
	info, err := c.VersionInfo()
	if err != nil {
		return "", err
	}
	return info.Format(format), nil
}
