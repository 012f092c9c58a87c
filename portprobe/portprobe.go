// Package portprobe finds serial ports that have a command interpreter
// attached.
//
//	paths, err := portprobe.Scan(portprobe.Candidates(), func() portprobe.Session {
//	    return osplink.New(cmdint.New())
//	}, portprobe.IsExpected)
package portprobe

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/John-MustangGT/osplink/cmdint"
	"github.com/John-MustangGT/osplink/osplink"
)

// Session is anything that can open and close a port, such as a
// *cmdint.Conn or an *osplink.Client.
type Session interface {
	Open(path string) error
	Close(graceful bool) error
}

// Hooks for tests.
var (
	listPorts = serial.GetPortsList
	glob      = filepath.Glob
	goos      = runtime.GOOS
)

// Candidates lists the device paths worth probing. It asks the OS for its
// serial ports and falls back to well-known device names when that fails or
// finds nothing.
func Candidates() []string {
	if ports, err := listPorts(); err == nil && len(ports) > 0 {
		return ports
	}
	return fallbackCandidates()
}

func fallbackCandidates() []string {
	switch goos {
	case "windows":
		ports := make([]string, 0, 255)
		for i := 1; i <= 255; i++ {
			ports = append(ports, fmt.Sprintf("COM%d", i))
		}
		return ports
	case "darwin":
		return globSorted("/dev/tty.*")
	default:
		// Leaves out /dev/tty, the controlling terminal.
		return globSorted("/dev/tty[A-Za-z]*")
	}
}

func globSorted(pattern string) []string {
	ports, err := glob(pattern)
	if err != nil {
		return nil
	}
	sort.Strings(ports)
	return ports
}

// Scan opens and gracefully closes a fresh session on every path and returns,
// in order, the paths where both succeeded.
//
// A failure for which expected returns true just means "no interpreter
// here"; any other failure stops the scan and is returned. A nil expected
// treats every failure as expected. A session whose Open failed is closed
// abruptly, so a port that opened but failed verification is not leaked.
func Scan(paths []string, newSession func() Session, expected func(error) bool) ([]string, error) {
	if expected == nil {
		expected = func(error) bool { return true }
	}
	var found []string
	for _, path := range paths {
		s := newSession()
		err := s.Open(path)
		if err == nil {
			err = s.Close(true)
		} else {
			// Returns NotOpen when Open never got a port; the Open error is
			// the one that classifies the path.
			_ = s.Close(false)
		}
		if err == nil {
			found = append(found, path)
			continue
		}
		if !expected(err) {
			return found, fmt.Errorf("portprobe: %s: %w", path, err)
		}
	}
	return found, nil
}

// IsExpected reports whether err is what a port without a (matching)
// interpreter produces: the device cannot be opened, does not answer, or
// answers with the wrong thing.
func IsExpected(err error) bool {
	switch {
	case cmdint.IsPortError(err),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, cmdint.ErrSyncTimeout),
		errors.Is(err, osplink.ErrFirmwareMismatch),
		errors.Is(err, osplink.ErrMalformedResponse):
		return true
	}
	return false
}

// Describe returns the USB identity of path, e.g. "USB 10C4:EA60 serial
// 0001 (CP2102)", or "" when the OS reports nothing for it.
func Describe(path string) string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return ""
	}
	for _, p := range ports {
		if p.Name != path || !p.IsUSB {
			continue
		}
		s := fmt.Sprintf("USB %s:%s", p.VID, p.PID)
		if p.SerialNumber != "" {
			s += " serial " + p.SerialNumber
		}
		if p.Product != "" {
			s += " (" + p.Product + ")"
		}
		return s
	}
	return ""
}
