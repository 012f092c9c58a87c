package cmdint

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/John-MustangGT/osplink/transcript"
)

const (
	// Prompt is printed by the interpreter after every completed command.
	Prompt = ">> "

	// EchoDisabled is the interpreter's full reply to "echo disable",
	// including the prompt that follows it.
	EchoDisabled = "echo: echoing disabled\r\n>> "

	// readChunk bounds a single transport read.
	readChunk = 1000
)

// Conn is a connection to a command interpreter.
//
// Conn is not safe for concurrent use. Every Exec blocks until its marker
// arrives or its timeout passes; callers that share a Conn between
// goroutines must serialise the calls themselves.
type Conn struct {
	cfg   Config
	port  Port
	path  string
	rxbuf []byte
}

// New creates a closed connection.
//
// Example:
//
//	c := cmdint.New(cmdint.WithExecTimeout(3 * time.Second))
//	if err := c.Open("/dev/ttyUSB0"); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close(true)
func New(opts ...Option) *Conn {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Conn{cfg: cfg}
}

// SetTranscript attaches t, or detaches the current transcript when t is nil.
// It may be called at any time, open or not.
func (c *Conn) SetTranscript(t *transcript.Logger) {
	c.cfg.Transcript = t
}

// IsOpen reports whether the port is open.
func (c *Conn) IsOpen() bool {
	return c.port != nil
}

// Path is the device path of the open port.
func (c *Conn) Path() string {
	return c.path
}

// Open opens the port at path and synchronises with the interpreter (see
// Resync). If the handshake fails the port stays open and the caller decides
// whether to retry Resync or Close.
func (c *Conn) Open(path string) error {
	if c.port != nil {
		return &Error{Kind: AlreadyOpen, Op: "open", Path: path}
	}
	c.note("open port " + path)

	port, err := c.cfg.Dialer(path, c.cfg.BaudRate)
	if err != nil {
		return err
	}
	if err := port.SetReadTimeout(c.cfg.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("cmdint: set read timeout on %s: %w", path, err)
	}

	c.port = port
	c.path = path
	c.rxbuf = c.rxbuf[:0]
	c.cfg.Logger.Debug().Str("port", path).Int("baud", c.cfg.BaudRate).Msg("port opened")

	return c.Resync()
}

// Resync runs the echo-suppression handshake: an empty command flushes
// whatever the interpreter still had pending (its reply is discarded and a
// missing prompt is tolerated), then "echo disable" must be confirmed with
// EchoDisabled. Afterwards replies never contain echoed input.
func (c *Conn) Resync() error {
	stale, err := c.Exec("", Prompt, c.cfg.HandshakeTimeout)
	switch {
	case errors.Is(err, ErrSyncTimeout):
		c.cfg.Logger.Debug().Str("port", c.path).Msg("no prompt while draining, continuing")
	case err != nil:
		return err
	default:
		c.cfg.Logger.Debug().Str("port", c.path).Int("bytes", len(stale)).Msg("drained stale input")
	}

	_, err = c.Exec("echo disable", EchoDisabled, c.cfg.HandshakeTimeout)
	return err
}

// Do sends cmd and waits for the prompt, using the configured exec timeout.
func (c *Conn) Do(cmd string) (string, error) {
	return c.Exec(cmd, Prompt, c.cfg.ExecTimeout)
}

// Exec sends cmd followed by a newline and collects input until sync appears.
// It returns everything received before sync; bytes after sync stay buffered
// for the next exchange.
//
// On timeout the error is a *Error of kind SyncTimeout holding a copy of
// what was received, and the buffer is left as it was. sync is matched as a
// plain substring: a reply that contains it early is cut short there.
func (c *Conn) Exec(cmd, sync string, timeout time.Duration) (string, error) {
	if c.port == nil {
		return "", &Error{Kind: NotOpen, Op: "exec", Command: cmd}
	}

	c.record(transcript.TagSend, cmd+"\n")
	if _, err := c.port.Write([]byte(cmd + "\n")); err != nil {
		return "", fmt.Errorf("cmdint: write %q: %w", cmd, err)
	}

	marker := []byte(sync)
	chunk := make([]byte, readChunk)
	start := time.Now()
	for {
		n, err := c.port.Read(chunk)
		if n > 0 {
			c.rxbuf = append(c.rxbuf, chunk[:n]...)
		}
		if err != nil {
			return "", fmt.Errorf("cmdint: read after %q: %w", cmd, err)
		}

		if pos := bytes.Index(c.rxbuf, marker); pos >= 0 {
			end := pos + len(marker)
			c.record(transcript.TagRecv, string(c.rxbuf[:end]))
			res := string(c.rxbuf[:pos])
			c.rxbuf = append(c.rxbuf[:0], c.rxbuf[end:]...)
			c.cfg.Logger.Trace().
				Str("cmd", cmd).
				Int("bytes", len(res)).
				Int("pending", len(c.rxbuf)).
				Dur("elapsed", time.Since(start)).
				Msg("exec")
			return res, nil
		}

		if time.Since(start) >= timeout {
			return "", &Error{
				Kind:    SyncTimeout,
				Op:      "exec",
				Path:    c.path,
				Command: cmd,
				Marker:  sync,
				Partial: append([]byte(nil), c.rxbuf...),
			}
		}
	}
}

// Close closes the port. When graceful, echo is switched back on first; a
// failure there is logged and does not stop the close. Closing a closed
// connection returns a NotOpen error.
func (c *Conn) Close(graceful bool) error {
	if c.port == nil {
		return &Error{Kind: NotOpen, Op: "close"}
	}
	if graceful {
		if _, err := c.Do("echo enable"); err != nil {
			c.cfg.Logger.Debug().Err(err).Str("port", c.path).Msg("re-enabling echo failed")
		}
	}
	c.note("close port")

	path := c.path
	err := c.port.Close()
	c.port = nil
	c.path = ""
	c.rxbuf = nil
	if err != nil {
		return fmt.Errorf("cmdint: close %s: %w", path, err)
	}
	c.cfg.Logger.Debug().Str("port", path).Msg("port closed")
	return nil
}

func (c *Conn) note(msg string) {
	c.record(transcript.TagNote, msg)
}

func (c *Conn) record(tag transcript.Tag, msg string) {
	if !c.cfg.Transcript.Active() {
		return
	}
	if err := c.cfg.Transcript.Append(msg, tag); err != nil {
		c.cfg.Logger.Warn().Err(err).Msg("transcript write failed")
	}
}
