// Package sim emulates the OSPlink firmware's command interpreter on an
// in-memory port. Tests use it in place of a serial device, and the tools
// accept -sim to run without hardware.
package sim

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Firmware describes what the emulated device reports.
type Firmware struct {
	AppName    string
	AppVersion string
	Runtime    string
	Compiler   string
	Arduino    string
	Compiled   string

	Dirmux   string
	LastAddr uint16

	// Status maps a telegram name (e.g. "goactive") or "resetinit" to the
	// status it reports. Missing entries report "ok".
	Status map[string]string
}

// DefaultFirmware is an OSPlink 1.1 build with one node in loop mode.
func DefaultFirmware() Firmware {
	return Firmware{
		AppName:    "OSPlink",
		AppVersion: "1.1",
		Runtime:    "Arduino ESP32 2_0_14",
		Compiler:   "8.4.0",
		Arduino:    "10816",
		Compiled:   "Nov  2 2022, 14:01:11",
		Dirmux:     "loop",
		LastAddr:   0x001,
	}
}

// Device is an in-memory port running the emulated interpreter. It
// implements the Read/Write/Close/SetReadTimeout methods of cmdint.Port.
type Device struct {
	mu       sync.Mutex
	fw       Firmware
	echo     bool
	queue    [][]byte
	pending  []byte
	lines    []string
	closed   bool
	idle     time.Duration
	chunk    int
	mute     bool
	handlers map[string]func(args []string) string
}

// New returns a device with echo enabled and bootNoise waiting to be read,
// like a board that was just reset.
func New(fw Firmware, bootNoise string) *Device {
	d := &Device{fw: fw, echo: true, idle: time.Millisecond}
	if bootNoise != "" {
		d.queue = append(d.queue, []byte(bootNoise))
	}
	return d
}

// SplitReplies makes every reply arrive in reads of at most n bytes.
func (d *Device) SplitReplies(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunk = n
}

// Mute stops the device from answering, as if it hung.
func (d *Device) Mute(m bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mute = m
}

// Handle overrides the reply for a command word. fn gets all words of the
// line and returns the output printed before the prompt.
func (d *Device) Handle(word string, fn func(args []string) string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = make(map[string]func([]string) string)
	}
	d.handlers[word] = fn
}

// Inject queues raw bytes as if the device printed them spontaneously.
func (d *Device) Inject(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, []byte(s))
}

// Lines returns every command line received so far.
func (d *Device) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

// Echo reports whether the interpreter currently echoes input.
func (d *Device) Echo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.echo
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t > 0 {
		d.idle = t
	}
	return nil
}

func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	if len(d.queue) == 0 {
		idle := d.idle
		d.mu.Unlock()
		time.Sleep(idle)
		return 0, nil
	}
	defer d.mu.Unlock()
	n := copy(p, d.queue[0])
	if n < len(d.queue[0]) {
		d.queue[0] = d.queue[0][n:]
	} else {
		d.queue = d.queue[1:]
	}
	return n, nil
}

func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, fmt.Errorf("sim: write on closed device")
	}
	d.pending = append(d.pending, p...)
	for {
		i := strings.IndexByte(string(d.pending), '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(d.pending[:i]), "\r")
		d.pending = d.pending[i+1:]
		d.lines = append(d.lines, line)
		if d.mute {
			continue
		}
		d.emit(d.execute(line))
	}
	return len(p), nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Device) emit(out string) {
	if d.chunk <= 0 {
		d.queue = append(d.queue, []byte(out))
		return
	}
	for len(out) > 0 {
		n := d.chunk
		if n > len(out) {
			n = len(out)
		}
		d.queue = append(d.queue, []byte(out[:n]))
		out = out[n:]
	}
}

// execute runs one line and returns everything the firmware prints for it,
// including echoed input and the trailing prompt.
func (d *Device) execute(line string) string {
	var b strings.Builder
	if d.echo {
		b.WriteString(line + "\r\n")
	}
	b.WriteString(d.run(line))
	b.WriteString(">> ")
	return b.String()
}

func (d *Device) run(line string) string {
	args := strings.Fields(line)
	if len(args) == 0 {
		return ""
	}
	quiet := strings.HasPrefix(args[0], "@")
	word := strings.TrimPrefix(args[0], "@")
	if fn, ok := d.handlers[word]; ok {
		return fn(args)
	}

	switch word {
	case "echo":
		return d.runEcho(args, quiet)
	case "version":
		return fmt.Sprintf("app     : %s %s\nruntime : %s\ncompiler: %s\narduino : %s\ncompiled: %s\naolibs  : result 0.4.1 spi 0.5.0 osp 0.4.1 cmd 0.5.3\n",
			d.fw.AppName, d.fw.AppVersion, d.fw.Runtime, d.fw.Compiler, d.fw.Arduino, d.fw.Compiled)
	case "osp":
		return d.runOSP(args, quiet)
	case "board":
		if len(args) == 2 && strings.HasPrefix("reboot", args[1]) {
			d.echo = true
			return "\r\nOSPlink " + d.fw.AppVersion + "\r\n"
		}
		return "ERROR: unknown argument\n"
	case "help":
		return "SYNTAX: echo [line] <word>...\n- prints all words (useful in scripts)\n"
	default:
		return fmt.Sprintf("ERROR: command '%s' not found (try help)\r\n", word)
	}
}

func (d *Device) runEcho(args []string, quiet bool) string {
	state := func() string {
		if d.echo {
			return "echo: echoing enabled\r\n"
		}
		return "echo: echoing disabled\r\n"
	}
	if len(args) == 1 {
		return state()
	}
	if len(args) == 2 && strings.HasPrefix("enabled", args[1]) {
		d.echo = true
		if quiet {
			return ""
		}
		return state()
	}
	if len(args) == 2 && strings.HasPrefix("disabled", args[1]) {
		d.echo = false
		if quiet {
			return ""
		}
		return state()
	}
	if len(args) == 2 && strings.HasPrefix("faults", args[1]) {
		return "echo: faults: 0\r\n"
	}
	start := 1
	if strings.HasPrefix("line", args[1]) {
		start = 2
	}
	return strings.Join(args[start:], " ") + "\r\n"
}

func (d *Device) runOSP(args []string, quiet bool) string {
	if len(args) < 2 {
		return fmt.Sprintf("dirmux: %s\n", d.fw.Dirmux)
	}
	switch args[1] {
	case "resetinit":
		status := d.status("resetinit")
		if status != "ok" {
			return fmt.Sprintf("ERROR: resetinit failed (%s)\n", status)
		}
		if quiet {
			return ""
		}
		return fmt.Sprintf("resetinit: %s %03X (%s)\n", d.fw.Dirmux, d.fw.LastAddr, status)
	case "send":
		if len(args) < 4 {
			return "ERROR: expected <addr> <tele> <args>...\n"
		}
		var b strings.Builder
		if !quiet {
			fmt.Fprintf(&b, "tx %s %s\n", args[2], strings.Join(args[3:], " "))
		}
		fmt.Fprintf(&b, "rx none %s\n", d.status(args[3]))
		return b.String()
	default:
		return fmt.Sprintf("ERROR: unknown argument ('%s')\n", args[1])
	}
}

func (d *Device) status(name string) string {
	if s, ok := d.fw.Status[name]; ok {
		return s
	}
	return "ok"
}
