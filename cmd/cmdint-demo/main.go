package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/John-MustangGT/osplink/cmdint"
	"github.com/John-MustangGT/osplink/internal/cli"
	"github.com/John-MustangGT/osplink/portprobe"
)

func main() {
	var flags cli.Flags
	flags.Register(flag.CommandLine)
	flag.Parse()

	// The transcript only covers the "help echo" exchange below.
	transcriptFile := flags.Transcript
	if transcriptFile == "" {
		transcriptFile = "cmdint.log"
	}
	flags.Transcript = ""

	env, err := flags.Setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer env.Close()
	log := env.Log

	port, err := env.ResolvePort(func() portprobe.Session {
		return cmdint.New(env.ScanOptions(flags.Sim)...)
	})
	if err != nil {
		log.Error().Err(err).Msg("no command interpreter")
		return
	}

	c := cmdint.New(env.ConnOptions(flags.Sim)...)
	log.Info().Str("port", port).Msg("opening")
	if err := c.Open(port); err != nil {
		log.Error().Err(err).Msg("open failed")
		return
	}
	defer c.Close(true)

	for _, cmd := range []string{"echo line Hello, world!", "echo faults"} {
		fmt.Printf("exec('%s')\n", cmd)
		res, err := c.Do(cmd)
		if err != nil {
			log.Error().Err(err).Str("cmd", cmd).Msg("exec failed")
			return
		}
		fmt.Printf("-> %s\n", res)
	}

	mode := env.Config.Transcript.Mode
	if flags.Append {
		mode = "append"
	}
	env.Config.Transcript.File, env.Config.Transcript.Mode = transcriptFile, mode
	m, err := env.Config.Transcript.OpenMode()
	if err != nil {
		log.Error().Err(err).Msg("transcript")
		return
	}
	fmt.Println("logging")
	if err := env.Transcript.Start(transcriptFile, m); err != nil {
		log.Error().Err(err).Msg("transcript")
		return
	}
	if _, err := c.Do("help echo"); err != nil {
		log.Error().Err(err).Msg("help echo")
	}
	if err := env.Transcript.Stop(); err != nil {
		log.Warn().Err(err).Msg("stopping transcript")
	}
	fmt.Printf("see %s\n", transcriptFile)
}
