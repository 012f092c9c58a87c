// Package cmdint talks to a line-oriented command interpreter running on a
// microcontroller behind a serial port.
//
// # Exchanges
//
// Every exchange sends one command line and collects input until a sync
// marker arrives, usually the interpreter's prompt:
//
//	c := cmdint.New()
//	if err := c.Open("/dev/ttyUSB0"); err != nil {
//	    return err
//	}
//	defer c.Close(true)
//
//	reply, err := c.Do("version")
//
// Input that arrives after the marker is kept for the next exchange, so a
// read that carries two replies, or half of one, loses nothing.
//
// # Handshake
//
// Open drains whatever the board printed while booting and then turns off
// command echo, so replies never contain the command itself. A graceful
// Close turns echo back on for interactive users.
//
// # Errors
//
// Failures are *Error values with a Kind. Use errors.Is with ErrNotOpen,
// ErrAlreadyOpen or ErrSyncTimeout:
//
//	if errors.Is(err, cmdint.ErrSyncTimeout) {
//	    var e *cmdint.Error
//	    errors.As(err, &e)
//	    log.Printf("got so far: %q", e.Partial)
//	}
//
// A SyncTimeout leaves the receive buffer untouched; it is the one error a
// caller may reasonably retry.
package cmdint
