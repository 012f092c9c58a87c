package cmdint

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.bug.st/serial"
)

func TestErrorIs(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same kind", &Error{Kind: SyncTimeout, Command: "version"}, ErrSyncTimeout, true},
		{"other kind", &Error{Kind: NotOpen}, ErrSyncTimeout, false},
		{"wrapped", fmt.Errorf("probe: %w", &Error{Kind: AlreadyOpen}), ErrAlreadyOpen, true},
		{"plain error", errors.New("boom"), ErrNotOpen, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSyncTimeoutMessage(t *testing.T) {
	err := &Error{Kind: SyncTimeout, Op: "exec", Command: "version", Marker: ">> ", Partial: []byte("app     : OSP")}
	msg := err.Error()
	for _, want := range []string{"sync timeout", `"version"`, `">> "`, "app     : OSP"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q should contain %q", msg, want)
		}
	}
}

func TestKindString(t *testing.T) {
	if NotOpen.String() != "not open" {
		t.Errorf("NotOpen.String() = %q", NotOpen.String())
	}
	if Kind(99).String() != "kind(99)" {
		t.Errorf("unknown kind = %q", Kind(99).String())
	}
}

func TestIsPortError(t *testing.T) {
	perr := &serial.PortError{}
	if !IsPortError(fmt.Errorf("open serial port x: %w", perr)) {
		t.Error("wrapped *serial.PortError not recognised")
	}
	if IsPortError(ErrSyncTimeout) {
		t.Error("SyncTimeout reported as port error")
	}
}
