package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/ubuntu/insights-inventory/internal/constants"
)

// logOutput is where JSON records are written.
var logOutput io.Writer = os.Stderr

// SetSlog configures the default logger of the service daemon.
//
// verbosity is the count of -v flags, or the verbosity configuration key: see Level.
// With jsonLogs, records are written as JSON on stderr and carry a "service" attribute so that collectors
// gathering the output of both daemons can tell them apart. Otherwise the standard logger output is kept.
func SetSlog(service string, verbosity int, jsonLogs bool) {
	level := Level(verbosity)
	if jsonLogs {
		h := slog.NewJSONHandler(logOutput, &slog.HandlerOptions{Level: level})
		slog.SetDefault(slog.New(h).With("service", service))
		return
	}

	slog.SetLogLoggerLevel(level)
}

// Level returns the minimum level logged at verbosity: warnings by default, info at 1 and debug from 2.
// Negative values, which only a configuration file can set, keep the default.
func Level(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return constants.DefaultLogLevel
	case verbosity == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
