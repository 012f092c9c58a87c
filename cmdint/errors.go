package cmdint

import (
	"fmt"
)

// Kind identifies the class of an Error.
type Kind int

const (
	// AlreadyOpen: Open was called on an open connection.
	AlreadyOpen Kind = iota + 1
	// NotOpen: Exec or Close was called on a closed connection.
	NotOpen
	// SyncTimeout: the sync marker did not arrive in time.
	SyncTimeout
)

func (k Kind) String() string {
	switch k {
	case AlreadyOpen:
		return "already open"
	case NotOpen:
		return "not open"
	case SyncTimeout:
		return "sync timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by Conn operations. Kind says what went wrong; the other
// fields carry context for that kind.
type Error struct {
	Kind Kind
	Op   string // "open", "exec", "close"
	Path string

	// Command and Marker are set for SyncTimeout.
	Command string
	Marker  string
	// Partial holds the receive buffer at the moment of a SyncTimeout.
	Partial []byte
}

func (e *Error) Error() string {
	switch e.Kind {
	case SyncTimeout:
		return fmt.Sprintf("cmdint: %s %q: sync %q not received [%s]", e.Op, e.Command, e.Marker, e.Partial)
	case AlreadyOpen:
		return fmt.Sprintf("cmdint: %s %s: port already open", e.Op, e.Path)
	default:
		return fmt.Sprintf("cmdint: %s: %s", e.Op, e.Kind)
	}
}

// Is matches any *Error of the same Kind, so the Err* values below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrAlreadyOpen = &Error{Kind: AlreadyOpen}
	ErrNotOpen     = &Error{Kind: NotOpen}
	ErrSyncTimeout = &Error{Kind: SyncTimeout}
)
