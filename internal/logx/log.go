package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLevel names the environment variable read when no level is given.
const EnvLevel = "OSPLINK_LOG_LEVEL"

// Log is the shared logger of the tools.
var Log = log.Logger

// Configure sets the global log level and a console writer on stderr. An
// empty level falls back to $OSPLINK_LOG_LEVEL, then to info.
func Configure(level string, noTimestamp bool) {
	configure(os.Stderr, level, noTimestamp)
}

func configure(out io.Writer, level string, noTimestamp bool) {
	if strings.TrimSpace(level) == "" {
		level = os.Getenv(EnvLevel)
	}
	zerolog.SetGlobalLevel(parseLevel(level))

	cw := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	if noTimestamp {
		cw.PartsExclude = []string{zerolog.TimestampFieldName}
		Log = zerolog.New(cw)
		return
	}
	Log = zerolog.New(cw).With().Timestamp().Logger()
}

// parseLevel maps the -log-level flag and OSPLINK_LOG_LEVEL to a level.
// "all" also shows trace output such as raw reads, "off" silences the
// tools; anything unrecognised logs at info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "all", "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "none", "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
