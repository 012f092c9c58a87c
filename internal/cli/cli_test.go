package cli

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-MustangGT/osplink/cmdint"
	"github.com/John-MustangGT/osplink/osplink"
	"github.com/John-MustangGT/osplink/portprobe"
	"github.com/John-MustangGT/osplink/transcript"
)

func parse(t *testing.T, args ...string) *Flags {
	t.Helper()
	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f.Register(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	return &f
}

func TestSetupFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "c.xml")
	logPath := filepath.Join(dir, "run.log")
	if err := os.WriteFile(cfgPath, []byte(`<config><serial device="/dev/ttyUSB0" baud="9600"/></config>`), 0o644); err != nil {
		t.Fatal(err)
	}

	env, err := parse(t, "-config", cfgPath, "-port", "/dev/ttyACM1", "-transcript", logPath, "-log-level", "none").Setup()
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if env.Config.Serial.Device != "/dev/ttyACM1" || env.Config.Serial.Baud != 9600 {
		t.Errorf("serial = %+v", env.Config.Serial)
	}
	if !env.Transcript.Active() {
		t.Fatal("transcript should be started")
	}
	env.Close()

	entries, err := readLog(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[1].Message != "Log stop" {
		t.Errorf("transcript = %+v", entries)
	}
}

func TestSimulatedSession(t *testing.T) {
	env, err := parse(t, "-sim", "-log-level", "none").Setup()
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()

	port, err := env.ResolvePort(func() portprobe.Session {
		return osplink.New(cmdint.New(env.ScanOptions(true)...))
	})
	if err != nil || port != SimPort {
		t.Fatalf("ResolvePort = %q, %v", port, err)
	}

	cl := osplink.New(cmdint.New(env.ConnOptions(true)...))
	if err := cl.Open(port); err != nil {
		t.Fatalf("Open: %v", err)
	}
	v, err := cl.Version("")
	if err != nil || v != "OSPlink 1.1" {
		t.Errorf("Version = %q, %v", v, err)
	}
	if err := cl.Close(true); err != nil {
		t.Fatal(err)
	}

	if err := cmdint.New(env.ConnOptions(true)...).Open("/dev/ttyUSB9"); err == nil || !strings.Contains(err.Error(), SimPort) {
		t.Errorf("opening a non-sim path should fail, got %v", err)
	}
}

func readLog(path string) ([]transcript.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return transcript.ReadRecords(f)
}

func TestTeeTranscript(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run.log")
	var live strings.Builder

	f := parse(t, "-transcript", logPath, "-log-level", "none")
	f.Tee = &live
	env, err := f.Setup()
	if err != nil {
		t.Fatal(err)
	}
	env.Transcript.Append("version\n", transcript.TagSend)
	env.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != live.String() {
		t.Errorf("file and tee differ:\n%s\n---\n%s", data, live.String())
	}
	if !strings.Contains(live.String(), "> version«") {
		t.Errorf("tee missing record: %q", live.String())
	}
}

func TestTeeWithoutFile(t *testing.T) {
	var live strings.Builder
	f := parse(t, "-log-level", "none")
	f.Tee = &live
	env, err := f.Setup()
	if err != nil {
		t.Fatal(err)
	}
	if !env.Transcript.Active() || env.Transcript.Name() != "live" {
		t.Fatalf("transcript should run on the tee alone")
	}
	env.Close()
	if !strings.Contains(live.String(), "Log start live") {
		t.Errorf("tee = %q", live.String())
	}
}
