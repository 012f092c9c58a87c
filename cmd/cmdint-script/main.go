package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/John-MustangGT/osplink/cmdint"
	"github.com/John-MustangGT/osplink/internal/cli"
	"github.com/John-MustangGT/osplink/portprobe"
)

func main() {
	var flags cli.Flags
	flags.Register(flag.CommandLine)
	dryRun := flag.String("dry-run", "", "Dry run mode: specify text file with captured serial input")
	timeout := flag.Duration("timeout", 0, "timeout per exec (default: execTimeoutMs from the config)")
	flag.Parse()

	if flags.ConfigFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -config <xml-file> [-port <device>] [-no-timestamp] [-dry-run <input-file>]\n", os.Args[0])
		os.Exit(1)
	}

	env, err := flags.Setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer env.Close()
	log := env.Log

	steps, err := parseScript(env.Config.Script)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse script")
	}
	if len(steps) == 0 {
		log.Fatal().Msg("script is empty")
	}

	opts := env.ConnOptions(flags.Sim)
	port := env.Config.Serial.Device
	if *dryRun != "" {
		capture, err := os.ReadFile(*dryRun)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read input file")
		}
		log.Info().Str("file", *dryRun).Msg("=== DRY RUN MODE ===")
		rp := newReplayPort(capture)
		opts = append(opts, cmdint.WithDialer(func(string, int) (cmdint.Port, error) { return rp, nil }))
		port = "dry-run"
	} else {
		port, err = env.ResolvePort(func() portprobe.Session {
			return cmdint.New(env.ScanOptions(flags.Sim)...)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to find serial port")
		}
	}

	conn := cmdint.New(opts...)
	if err := conn.Open(port); err != nil {
		log.Fatal().Err(err).Str("port", port).Msg("Failed to open serial port")
	}
	log.Info().Str("port", port).Int("baud", env.Config.Serial.Baud).Msg("Connected")

	r := &Runner{conn: conn, log: log, timeout: env.Config.Serial.ExecTimeout()}
	if *timeout > 0 {
		r.timeout = *timeout
	}
	runErr := r.Run(steps)
	if err := conn.Close(*dryRun == ""); err != nil {
		log.Warn().Err(err).Msg("close")
	}
	if runErr != nil {
		env.Close()
		log.Fatal().Err(runErr).Msg("Script execution failed")
	}
	log.Info().Dur("timeout", r.timeout.Round(time.Millisecond)).Msg("Script completed successfully")
}
