package logx

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigureLogLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Configure("all", false)
	if zerolog.GlobalLevel() != zerolog.TraceLevel {
		t.Fatalf("expected trace level, got %s", zerolog.GlobalLevel())
	}

	Configure("WARNING", false)
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", zerolog.GlobalLevel())
	}

	Configure("none", false)
	if zerolog.GlobalLevel() != zerolog.Disabled {
		t.Fatalf("expected disabled level, got %s", zerolog.GlobalLevel())
	}

	Configure("bogus", false)
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", zerolog.GlobalLevel())
	}
}

func TestConfigureFromEnv(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)
	t.Setenv(EnvLevel, "debug")

	Configure("", false)
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level from env, got %s", zerolog.GlobalLevel())
	}
	Configure("error", false)
	if zerolog.GlobalLevel() != zerolog.ErrorLevel {
		t.Fatalf("explicit level should win over env, got %s", zerolog.GlobalLevel())
	}
}

func TestNoTimestamp(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	configure(&buf, "info", true)
	Log.Info().Str("port", "/dev/ttyUSB0").Msg("opened")

	out := buf.String()
	if regexp.MustCompile(`\d\d:\d\d:\d\d`).MatchString(out) || strings.Contains(out, "<nil>") {
		t.Errorf("line should carry no timestamp: %q", out)
	}
	if !strings.Contains(out, "opened") || !strings.Contains(out, "port=") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"all":     zerolog.TraceLevel,
		" Debug ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
		"loud":    zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
