package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/John-MustangGT/osplink/cmdint"
)

// Executor is the part of *cmdint.Conn a script needs.
type Executor interface {
	Exec(cmd, sync string, timeout time.Duration) (string, error)
}

// Runner executes script steps on a connection.
type Runner struct {
	conn    Executor
	log     zerolog.Logger
	timeout time.Duration
}

// Run executes steps in order. An exec waits for the current marker (the
// prompt unless a sync step changed it) and its reply is what the following
// expect steps check.
func (r *Runner) Run(steps []Step) error {
	marker := cmdint.Prompt
	var reply string
	for _, s := range steps {
		switch s.Type {
		case StepSync:
			marker = s.Value
			r.log.Debug().Int("line", s.Line).Str("marker", marker).Msg("SYNC")

		case StepExec:
			r.log.Info().Int("line", s.Line).Msgf("TX: %q", s.Value)
			res, err := r.conn.Exec(s.Value, marker, r.timeout)
			if err != nil {
				var cerr *cmdint.Error
				if errors.As(err, &cerr) && cerr.Kind == cmdint.SyncTimeout {
					r.log.Warn().Msgf("RX so far: %q", cerr.Partial)
				}
				return fmt.Errorf("line %d: %w", s.Line, err)
			}
			reply = res
			r.log.Info().Msgf("RX: %q", reply)

		case StepExpect:
			ep, err := parseExpectPattern(s.Value)
			if err != nil {
				return fmt.Errorf("line %d: %w", s.Line, err)
			}
			r.log.Info().Int("line", s.Line).Msgf("EXPECT: %s", s.Value)
			if !ep.Match(reply) {
				return fmt.Errorf("line %d: pattern %s not found in reply %q", s.Line, s.Value, reply)
			}
			r.log.Info().Msgf("MATCHED: %s", s.Value)
		}
	}
	return nil
}

// replayPort plays back a captured serial stream. The handshake Open runs is
// answered locally. The first script command releases the whole capture and
// later commands consume what the engine kept buffered.
type replayPort struct {
	mu      sync.Mutex
	capture []byte
	queue   []byte
	idle    time.Duration
}

func newReplayPort(capture []byte) *replayPort {
	return &replayPort{capture: capture, idle: 10 * time.Millisecond}
}

func (p *replayPort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = t
	return nil
}

func (p *replayPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch string(b) {
	case "\n":
		p.queue = append(p.queue, cmdint.Prompt...)
	case "echo disable\n":
		p.queue = append(p.queue, cmdint.EchoDisabled...)
	case "echo enable\n":
		p.queue = append(p.queue, cmdint.Prompt...)
	default:
		p.queue = append(p.queue, p.capture...)
		p.capture = nil
	}
	return len(b), nil
}

func (p *replayPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.queue) == 0 {
		idle := p.idle
		p.mu.Unlock()
		time.Sleep(idle)
		return 0, nil
	}
	defer p.mu.Unlock()
	// Small reads exercise the engine's reassembly like a real UART.
	n := copy(b[:min(len(b), 64)], p.queue)
	p.queue = p.queue[n:]
	return n, nil
}

func (p *replayPort) Close() error { return nil }
