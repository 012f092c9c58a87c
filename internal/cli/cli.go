// Package cli holds the flags and setup the osplink tools share.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/John-MustangGT/osplink/cmdint"
	"github.com/John-MustangGT/osplink/internal/config"
	"github.com/John-MustangGT/osplink/internal/logx"
	"github.com/John-MustangGT/osplink/internal/sim"
	"github.com/John-MustangGT/osplink/portprobe"
	"github.com/John-MustangGT/osplink/transcript"
)

// SimPort is the device path reported in -sim mode.
const SimPort = "sim0"

// simBootNoise is what the emulated board prints before the first prompt.
const simBootNoise = "\r\nets Jun  8 2016 00:22:57\r\n\r\nrst:0x1 (POWERON_RESET),boot:0x13 (SPI_FAST_FLASH_BOOT)\r\n\r\nOSPlink 1.1\r\n>> "

// Flags are the command line options common to all tools.
type Flags struct {
	ConfigFile  string
	Port        string
	Transcript  string
	Append      bool
	Sim         bool
	LogLevel    string
	NoTimestamp bool

	// Tee, if set, receives every transcript record as well, and a
	// transcript is kept even without a file.
	Tee io.Writer
}

// Register adds the common flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.ConfigFile, "config", "", "XML configuration file")
	fs.StringVar(&f.Port, "port", "", "serial device (default: scan for one)")
	fs.StringVar(&f.Transcript, "transcript", "", "write a transcript of all exchanges to this file")
	fs.BoolVar(&f.Append, "append", false, "append to the transcript instead of truncating it")
	fs.BoolVar(&f.Sim, "sim", false, "talk to an emulated OSPlink board instead of a serial port")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error); default $"+logx.EnvLevel)
	fs.BoolVar(&f.NoTimestamp, "no-timestamp", false, "disable timestamps in log output")
}

// Env is the result of Setup.
type Env struct {
	Config     *config.Config
	Transcript *transcript.Logger
	Log        zerolog.Logger
}

// Setup configures logging, loads the configuration file (if any) and lets
// flags override it. It starts the transcript when one is configured; the
// caller must call Close.
func (f *Flags) Setup() (*Env, error) {
	logx.Configure(f.LogLevel, f.NoTimestamp)

	cfg := config.Default()
	if f.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(f.ConfigFile); err != nil {
			return nil, err
		}
		logx.Log.Debug().Str("file", f.ConfigFile).Msg("configuration loaded")
	}
	if f.Port != "" {
		cfg.Serial.Device = f.Port
	}
	if f.Transcript != "" {
		cfg.Transcript.File = f.Transcript
		if f.Append {
			cfg.Transcript.Mode = "append"
		}
	}

	env := &Env{Config: cfg, Transcript: transcript.New(), Log: logx.Log}
	if err := env.startTranscript(f.Tee); err != nil {
		return nil, err
	}
	if f.Sim {
		env.Config.Serial.Device = SimPort
	}
	return env, nil
}

type sink struct {
	io.Writer
	io.Closer
}

func (e *Env) startTranscript(tee io.Writer) error {
	file := e.Config.Transcript.File
	switch {
	case file == "" && tee == nil:
		return nil
	case file == "":
		return e.Transcript.StartWriter("live", tee)
	}

	mode, err := e.Config.Transcript.OpenMode()
	if err != nil {
		return err
	}
	if tee == nil {
		err = e.Transcript.Start(file, mode)
	} else {
		var fh *os.File
		if fh, err = transcript.OpenFile(file, mode); err != nil {
			return err
		}
		err = e.Transcript.StartWriter(file, sink{io.MultiWriter(fh, tee), fh})
	}
	if err != nil {
		return err
	}
	e.Log.Info().Str("file", file).Msg("transcript started")
	return nil
}

// Close stops the transcript, if one was started.
func (e *Env) Close() {
	if !e.Transcript.Active() {
		return
	}
	name := e.Transcript.Name()
	if err := e.Transcript.Stop(); err != nil {
		e.Log.Warn().Err(err).Msg("stopping transcript")
		return
	}
	e.Log.Info().Str("file", name).Msg("transcript written")
}

// ConnOptions are the cmdint options for the configured link. With sim set,
// every dial returns a freshly booted emulated board.
func (e *Env) ConnOptions(simulate bool) []cmdint.Option {
	opts := []cmdint.Option{
		cmdint.WithBaudRate(e.Config.Serial.Baud),
		cmdint.WithReadTimeout(e.Config.Serial.ReadTimeout()),
		cmdint.WithExecTimeout(e.Config.Serial.ExecTimeout()),
		cmdint.WithLogger(e.Log.With().Str("component", "cmdint").Logger()),
		cmdint.WithTranscript(e.Transcript),
	}
	if simulate {
		opts = append(opts, cmdint.WithDialer(func(path string, baud int) (cmdint.Port, error) {
			if path != SimPort {
				return nil, fmt.Errorf("open %s: only %s exists in simulation", path, SimPort)
			}
			return sim.New(sim.DefaultFirmware(), simBootNoise), nil
		}))
	}
	return opts
}

// ResolvePort returns the configured device, or scans the candidate ports
// with sessions from newSession and returns the first that answers.
func (e *Env) ResolvePort(newSession func() portprobe.Session) (string, error) {
	if dev := e.Config.Serial.Device; dev != "" {
		return dev, nil
	}
	candidates := portprobe.Candidates()
	e.Log.Info().Int("candidates", len(candidates)).Msg("scanning for ports")
	found, err := portprobe.Scan(candidates, newSession, portprobe.IsExpected)
	if err != nil {
		return "", err
	}
	for _, p := range found {
		ev := e.Log.Info().Str("port", p)
		if d := portprobe.Describe(p); d != "" {
			ev = ev.Str("usb", d)
		}
		ev.Msg("found")
	}
	if len(found) == 0 {
		return "", fmt.Errorf("no port with a command interpreter found")
	}
	return found[0], nil
}

// ScanOptions are ConnOptions without the transcript, for probe sessions.
func (e *Env) ScanOptions(simulate bool) []cmdint.Option {
	return append(e.ConnOptions(simulate), cmdint.WithTranscript(nil))
}
