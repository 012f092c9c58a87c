package osplink

import "fmt"

// Kind identifies the class of an Error.
type Kind int

const (
	// FirmwareMismatch: the device runs an application other than OSPlink.
	FirmwareMismatch Kind = iota + 1
	// MalformedResponse: a reply lacks a label or anchor the decoder needs.
	MalformedResponse
	// CommandFailed: the firmware reported a status other than "ok".
	CommandFailed
)

func (k Kind) String() string {
	switch k {
	case FirmwareMismatch:
		return "firmware mismatch"
	case MalformedResponse:
		return "malformed response"
	case CommandFailed:
		return "command failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by Client operations that reached the firmware but did
// not get the reply they needed. Transport and framing failures are passed
// through from cmdint unchanged.
type Error struct {
	Kind    Kind
	Command string

	// Expected and Actual are set for FirmwareMismatch.
	Expected string
	Actual   string

	// Label is the missing label or anchor for MalformedResponse.
	Label string

	// Status is the failure token for CommandFailed.
	Status string

	// Response is the raw reply, for diagnostics.
	Response string
}

func (e *Error) Error() string {
	switch e.Kind {
	case FirmwareMismatch:
		return fmt.Sprintf("osplink: wrong firmware (expected %q, is %q)", e.Expected, e.Actual)
	case MalformedResponse:
		return fmt.Sprintf("osplink: %s: %q missing in reply", e.Command, e.Label)
	case CommandFailed:
		return fmt.Sprintf("osplink: %s failed: %s", e.Command, e.Status)
	default:
		return fmt.Sprintf("osplink: %s: %s", e.Command, e.Kind)
	}
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrFirmwareMismatch  = &Error{Kind: FirmwareMismatch}
	ErrMalformedResponse = &Error{Kind: MalformedResponse}
	ErrCommandFailed     = &Error{Kind: CommandFailed}
)
