package osplink

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/John-MustangGT/osplink/cmdint"
	"github.com/John-MustangGT/osplink/internal/sim"
)

func newTestClient(dev *sim.Device) *Client {
	conn := cmdint.New(
		cmdint.WithDialer(func(string, int) (cmdint.Port, error) { return dev, nil }),
		cmdint.WithReadTimeout(time.Millisecond),
		cmdint.WithExecTimeout(500*time.Millisecond),
		cmdint.WithHandshakeTimeout(500*time.Millisecond),
	)
	return New(conn)
}

func openTestClient(t *testing.T, fw sim.Firmware) (*Client, *sim.Device) {
	t.Helper()
	dev := sim.New(fw, "")
	cl := newTestClient(dev)
	if err := cl.Open("sim"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return cl, dev
}

func lastLine(dev *sim.Device) string {
	lines := dev.Lines()
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

func TestOpenFirmwareMismatch(t *testing.T) {
	fw := sim.DefaultFirmware()
	fw.AppName = "Other"
	dev := sim.New(fw, "")
	cl := newTestClient(dev)

	err := cl.Open("sim")
	if !errors.Is(err, ErrFirmwareMismatch) {
		t.Fatalf("Open: got %v, want FirmwareMismatch", err)
	}
	var oerr *Error
	if !errors.As(err, &oerr) {
		t.Fatalf("error is %T, want *Error", err)
	}
	if oerr.Expected != "OSPlink" || oerr.Actual != "Other" {
		t.Errorf("mismatch = (%q, %q), want (OSPlink, Other)", oerr.Expected, oerr.Actual)
	}
	if got, want := dev.Lines(), []string{"", "echo disable", "version"}; strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}
	if !cl.Conn().IsOpen() {
		t.Error("connection should stay open after a firmware mismatch")
	}
}

func TestVersion(t *testing.T) {
	cl, _ := openTestClient(t, sim.DefaultFirmware())

	tests := []struct {
		format string
		want   string
	}{
		{"", "OSPlink 1.1"},
		{"%a built %t", "OSPlink 1.1 built Nov  2 2022, 14:01:11"},
		{"%r/%c/%i", "Arduino ESP32 2_0_14/8.4.0/10816"},
	}
	for _, tt := range tests {
		got, err := cl.Version(tt.format)
		if err != nil {
			t.Fatalf("Version(%q): %v", tt.format, err)
		}
		if got != tt.want {
			t.Errorf("Version(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestResetInit(t *testing.T) {
	cl, dev := openTestClient(t, sim.DefaultFirmware())

	dirmux, last, err := cl.ResetInit()
	if err != nil {
		t.Fatalf("ResetInit: %v", err)
	}
	if dirmux != "loop" || last != 0x001 {
		t.Errorf("ResetInit = (%q, %#x), want (loop, 0x1)", dirmux, last)
	}
	if lastLine(dev) != "osp resetinit" {
		t.Errorf("sent %q", lastLine(dev))
	}
}

func TestResetInitFailed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"error line", "ERROR: resetinit failed (nochain)\n"},
		{"status in result line", "resetinit: loop 001 (nochain)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl, dev := openTestClient(t, sim.DefaultFirmware())
			dev.Handle("osp", func([]string) string { return tt.reply })

			_, _, err := cl.ResetInit()
			var oerr *Error
			if !errors.As(err, &oerr) || oerr.Kind != CommandFailed {
				t.Fatalf("ResetInit: got %v, want CommandFailed", err)
			}
			if oerr.Status != "nochain" || oerr.Command != "osp resetinit" {
				t.Errorf("error = %+v", oerr)
			}
		})
	}
}

func TestResetInitFailedFromFirmwareStatus(t *testing.T) {
	fw := sim.DefaultFirmware()
	fw.Status = map[string]string{"resetinit": "nochain"}
	cl, _ := openTestClient(t, fw)

	_, _, err := cl.ResetInit()
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("ResetInit: got %v, want ErrCommandFailed", err)
	}
}

func TestTelegramCommandLines(t *testing.T) {
	cl, dev := openTestClient(t, sim.DefaultFirmware())

	tests := []struct {
		name string
		call func() error
		want string
	}{
		{"clrerror", func() error { return cl.ClearError(0x000) }, "osp send 000 clrerror"},
		{"goactive", func() error { return cl.GoActive(0x000) }, "osp send 000 goactive"},
		{"red", func() error { return cl.SetPwmChannel(0x001, 0, 0x3333, 0, 0) }, "osp send 001 setpwmchn 0 ff 33 33 00 00 00 00"},
		{"blue", func() error { return cl.SetPwmChannel(0x3FF, 2, 0, 0, 0xABCD) }, "osp send 3FF setpwmchn 2 ff 00 00 00 00 AB CD"},
		{"wide channel", func() error { return cl.SetPwmChannel(0x001, 10, 0x0100, 0x00FF, 0xFFFF) }, "osp send 001 setpwmchn A ff 01 00 00 FF FF FF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); err != nil {
				t.Fatalf("command: %v", err)
			}
			if got := lastLine(dev); got != tt.want {
				t.Errorf("sent %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTelegramFailed(t *testing.T) {
	fw := sim.DefaultFirmware()
	fw.Status = map[string]string{"goactive": "nack"}
	cl, _ := openTestClient(t, fw)

	err := cl.GoActive(0x001)
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("GoActive: got %v, want CommandFailed", err)
	}
	var oerr *Error
	errors.As(err, &oerr)
	if oerr.Status != "nack" || oerr.Command != "osp send 001 goactive" {
		t.Errorf("error = %+v", oerr)
	}
	if !strings.Contains(err.Error(), "nack") {
		t.Errorf("message %q should name the status", err)
	}
}

func TestTelegramMissingStatus(t *testing.T) {
	cl, dev := openTestClient(t, sim.DefaultFirmware())
	dev.Handle("osp", func([]string) string { return "ERROR: osp chain not initialised\n" })

	err := cl.ClearError(0)
	var oerr *Error
	if !errors.As(err, &oerr) || oerr.Kind != MalformedResponse {
		t.Fatalf("ClearError: got %v, want MalformedResponse", err)
	}
	if oerr.Label != "rx none" {
		t.Errorf("Label = %q, want rx none", oerr.Label)
	}
}

func TestBoardReboot(t *testing.T) {
	cl, dev := openTestClient(t, sim.DefaultFirmware())

	if err := cl.BoardReboot(); err != nil {
		t.Fatalf("BoardReboot: %v", err)
	}
	if dev.Echo() {
		t.Error("echo should be disabled again after reboot")
	}
	// The connection is in sync: the next reply is the version, not stale
	// reboot output.
	v, err := cl.Version("%La")
	if err != nil || v != "OSPlink" {
		t.Errorf("Version after reboot = %q, %v", v, err)
	}
}

func TestEndToEnd(t *testing.T) {
	dev := sim.New(sim.DefaultFirmware(), "\r\nrst:0x1 (POWERON_RESET)\r\nOSPlink 1.1\r\n>> ")
	cl := newTestClient(dev)

	if err := cl.Open("sim"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	dirmux, last, err := cl.ResetInit()
	if err != nil {
		t.Fatalf("ResetInit: %v", err)
	}
	if dirmux != "loop" || last != 1 {
		t.Errorf("ResetInit = (%q, %d)", dirmux, last)
	}
	if err := cl.ClearError(0x000); err != nil {
		t.Fatalf("ClearError: %v", err)
	}
	if err := cl.GoActive(0x000); err != nil {
		t.Fatalf("GoActive: %v", err)
	}
	if err := cl.Close(true); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []string{
		"", "echo disable", "version",
		"osp resetinit", "osp send 000 clrerror", "osp send 000 goactive",
		"echo enable",
	}
	if got := dev.Lines(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}
	if !dev.Echo() || !dev.Closed() {
		t.Error("close should re-enable echo and release the transport")
	}
}
