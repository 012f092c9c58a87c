package portprobe

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/John-MustangGT/osplink/cmdint"
	"github.com/John-MustangGT/osplink/internal/sim"
	"github.com/John-MustangGT/osplink/osplink"
)

type fakeSession struct {
	openErr  map[string]error
	closeErr error
	log      *[]string
	open     bool
}

func (f *fakeSession) Open(path string) error {
	*f.log = append(*f.log, "open "+path)
	if err := f.openErr[path]; err != nil {
		if errors.Is(err, osplink.ErrFirmwareMismatch) {
			f.open = true
		}
		return err
	}
	f.open = true
	return nil
}

func (f *fakeSession) Close(graceful bool) error {
	if !f.open {
		return cmdint.ErrNotOpen
	}
	f.open = false
	*f.log = append(*f.log, fmt.Sprintf("close %v", graceful))
	return f.closeErr
}

func TestScan(t *testing.T) {
	openErr := map[string]error{
		"/dev/ttyS0":   fmt.Errorf("open: %w", &cmdint.Error{Kind: cmdint.SyncTimeout}),
		"/dev/ttyACM0": &osplink.Error{Kind: osplink.FirmwareMismatch, Expected: "OSPlink", Actual: "Other"},
	}
	var log []string
	newSession := func() Session { return &fakeSession{openErr: openErr, log: &log} }

	got, err := Scan([]string{"/dev/ttyS0", "/dev/ttyUSB0", "/dev/ttyACM0", "/dev/ttyUSB1"}, newSession, IsExpected)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if want := []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}; strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Scan = %v, want %v", got, want)
	}
	want := []string{
		"open /dev/ttyS0",
		"open /dev/ttyUSB0", "close true",
		"open /dev/ttyACM0", "close false",
		"open /dev/ttyUSB1", "close true",
	}
	if strings.Join(log, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %q, want %q", log, want)
	}
}

func TestScanUnexpectedErrorStops(t *testing.T) {
	boom := errors.New("boom")
	var log []string
	newSession := func() Session {
		return &fakeSession{openErr: map[string]error{"b": boom}, log: &log}
	}
	got, err := Scan([]string{"a", "b", "c"}, newSession, IsExpected)
	if !errors.Is(err, boom) {
		t.Fatalf("Scan err = %v, want boom", err)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("found before abort = %v, want [a]", got)
	}
}

func TestScanNilExpectedSkipsAll(t *testing.T) {
	var log []string
	newSession := func() Session {
		return &fakeSession{openErr: map[string]error{"b": errors.New("boom")}, log: &log}
	}
	got, err := Scan([]string{"a", "b", "c"}, newSession, nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "a,c" {
		t.Errorf("Scan = %v", got)
	}
}

func TestScanCloseFailureDropsPath(t *testing.T) {
	var log []string
	newSession := func() Session {
		return &fakeSession{log: &log, closeErr: &cmdint.Error{Kind: cmdint.SyncTimeout}}
	}
	got, err := Scan([]string{"a"}, newSession, IsExpected)
	if err != nil || len(got) != 0 {
		t.Errorf("Scan = %v, %v; want none found", got, err)
	}
}

func TestScanWithEmulatedFirmware(t *testing.T) {
	devices := map[string]*sim.Device{
		"/dev/ttyUSB0": sim.New(sim.DefaultFirmware(), ""),
	}
	other := sim.DefaultFirmware()
	other.AppName = "Other"
	devices["/dev/ttyUSB1"] = sim.New(other, "")

	dial := func(path string, baud int) (cmdint.Port, error) {
		if d, ok := devices[path]; ok {
			return d, nil
		}
		return nil, fmt.Errorf("open serial port %s: %w", path, errors.New("no such device"))
	}
	newSession := func() Session {
		return osplink.New(cmdint.New(
			cmdint.WithDialer(dial),
			cmdint.WithReadTimeout(time.Millisecond),
			cmdint.WithExecTimeout(200*time.Millisecond),
			cmdint.WithHandshakeTimeout(200*time.Millisecond),
		))
	}

	got, err := Scan([]string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, newSession, IsExpected)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 1 || got[0] != "/dev/ttyUSB0" {
		t.Errorf("Scan = %v, want [/dev/ttyUSB0]", got)
	}
	if !devices["/dev/ttyUSB1"].Closed() {
		t.Error("port with wrong firmware was left open")
	}
	if !devices["/dev/ttyUSB0"].Echo() {
		t.Error("matching port should be closed gracefully")
	}
}

func TestCandidates(t *testing.T) {
	defer func(l func() ([]string, error), g func(string) ([]string, error), o string) {
		listPorts, glob, goos = l, g, o
	}(listPorts, glob, goos)

	glob = func(pattern string) ([]string, error) {
		switch pattern {
		case "/dev/tty[A-Za-z]*":
			return []string{"/dev/ttyUSB0", "/dev/ttyACM0"}, nil
		case "/dev/tty.*":
			return []string{"/dev/tty.usbserial-1"}, nil
		}
		return nil, nil
	}

	tests := []struct {
		name  string
		list  func() ([]string, error)
		goos  string
		first string
		count int
	}{
		{"os list", func() ([]string, error) { return []string{"/dev/ttyUSB3"}, nil }, "linux", "/dev/ttyUSB3", 1},
		{"linux fallback", func() ([]string, error) { return nil, errors.New("no sysfs") }, "linux", "/dev/ttyACM0", 2},
		{"empty list falls back", func() ([]string, error) { return nil, nil }, "darwin", "/dev/tty.usbserial-1", 1},
		{"windows", func() ([]string, error) { return nil, errors.New("x") }, "windows", "COM1", 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listPorts, goos = tt.list, tt.goos
			got := Candidates()
			if len(got) != tt.count || got[0] != tt.first {
				t.Errorf("Candidates = %v (len %d), want first %q len %d", got, len(got), tt.first, tt.count)
			}
		})
	}
}

func TestIsExpected(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{cmdint.ErrSyncTimeout, true},
		{&osplink.Error{Kind: osplink.FirmwareMismatch}, true},
		{&osplink.Error{Kind: osplink.CommandFailed}, false},
		{cmdint.ErrAlreadyOpen, false},
		{errors.New("other"), false},
	}
	for _, tt := range tests {
		if got := IsExpected(tt.err); got != tt.want {
			t.Errorf("IsExpected(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
