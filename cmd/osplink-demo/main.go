package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/John-MustangGT/osplink/cmdint"
	"github.com/John-MustangGT/osplink/internal/cli"
	"github.com/John-MustangGT/osplink/osplink"
	"github.com/John-MustangGT/osplink/portprobe"
)

type color struct {
	name             string
	red, green, blue uint16
}

var colors = []color{
	{"red", 0x3333, 0x0000, 0x0000},
	{"grn", 0x0000, 0x3333, 0x0000},
	{"blue", 0x0000, 0x0000, 0x3333},
}

// maxAddr is the highest node address an OSP chain can use.
const maxAddr = 0x3FF

func main() {
	os.Exit(demo())
}

func nodeAddr(v uint) (uint16, error) {
	if v > maxAddr {
		return 0, fmt.Errorf("node address 0x%X out of range (0x000..0x%03X)", v, maxAddr)
	}
	return uint16(v), nil
}

// demo runs the program and returns its exit status, so deferred cleanup
// happens before the process exits.
func demo() int {
	var flags cli.Flags
	flags.Register(flag.CommandLine)
	rounds := flag.Int("rounds", 5, "number of red/green/blue rounds")
	addrFlag := flag.Uint("addr", 0x001, "address of the node to light (0x000..0x3FF)")
	pause := flag.Duration("pause", 100*time.Millisecond, "pause between colors")
	reboot := flag.Bool("reboot", false, "reboot the board before the demo")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-port <device> | -sim] [-transcript <file>] [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Runs resetinit, clrerror, goactive and a few PWM rounds on an OSPlink board.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	addr, err := nodeAddr(*addrFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	env, err := flags.Setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer env.Close()
	log := env.Log

	port, err := env.ResolvePort(func() portprobe.Session {
		return osplink.New(cmdint.New(env.ScanOptions(flags.Sim)...))
	})
	if err != nil {
		log.Error().Err(err).Msg("no OSPlink board")
		return 1
	}

	cl := osplink.New(cmdint.New(env.ConnOptions(flags.Sim)...), osplink.WithLogger(log))
	log.Info().Str("port", port).Msg("opening")
	if err := cl.Open(port); err != nil {
		log.Error().Err(err).Str("port", port).Msg("open failed")
		if cl.Conn().IsOpen() {
			cl.Close(false)
		}
		return 1
	}
	defer func() {
		if err := cl.Close(true); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}()

	if *reboot {
		if err := cl.BoardReboot(); err != nil {
			log.Error().Err(err).Msg("board reboot")
			return 1
		}
		v, err := cl.Version(osplink.DefaultVersionFormat)
		if err != nil {
			log.Error().Err(err).Msg("version")
			return 1
		}
		log.Info().Str("version", v).Msg("rebooted")
	}

	if err := run(cl, addr, *rounds, *pause); err != nil {
		log.Error().Err(err).Msg("demo failed")
		return 1
	}
	return 0
}

func run(cl *osplink.Client, addr uint16, rounds int, pause time.Duration) error {
	dirmux, last, err := cl.ResetInit()
	if err != nil {
		return err
	}
	fmt.Printf("resetinit() -> dirmux=%s last=%d\n", dirmux, last)

	if err := cl.ClearError(0x000); err != nil {
		return err
	}
	fmt.Println("clrerror(0x000)")

	if err := cl.GoActive(0x000); err != nil {
		return err
	}
	fmt.Println("goactive(0x000)")

	for i := 0; i < rounds; i++ {
		fmt.Printf("round %d\n", i)
		for _, c := range colors {
			if err := cl.SetPwmChannel(addr, 0, c.red, c.green, c.blue); err != nil {
				return err
			}
			fmt.Printf(" setpwmchn(0x%03X,%s)\n", addr, c.name)
			time.Sleep(pause)
		}
	}
	return nil
}
