// Package log provides structured, component-scoped logging for the
// node daemon, built on zerolog.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Init reconfigures it at
// startup; until then it logs at info level to stderr.
var Logger zerolog.Logger

// Component child loggers, one per subsystem, each tagged with a
// "component" field so log aggregation can filter by subsystem.
var (
	Chain      zerolog.Logger
	Consensus  zerolog.Logger
	Mempool    zerolog.Logger
	Storage    zerolog.Logger
	Sync       zerolog.Logger
	Mining     zerolog.Logger
	P2P        zerolog.Logger
)

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	Logger = NewConsoleLogger(os.Stderr)
	initComponentLoggers()
}

// NewConsoleLogger builds a human-readable, timestamped logger over w.
func NewConsoleLogger(w io.Writer) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(cw).With().Timestamp().Logger()
}

// NewJSONLogger builds a structured JSON logger over w, for production
// log shipping.
func NewJSONLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// Init reconfigures the global logger and all component loggers. level
// is one of trace/debug/info/warn/error/fatal ("warning" is accepted for
// warn, "" means info; "panic" is rejected). If file is
// non-empty, output also goes to that path (truncated on open, not
// appended) in addition to stderr.
func Init(level string, jsonOutput bool, file string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stderr
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		out = io.MultiWriter(os.Stderr, f)
	}

	if jsonOutput {
		Logger = NewJSONLogger(out)
	} else {
		Logger = NewConsoleLogger(out)
	}
	initComponentLoggers()
	return nil
}

func initComponentLoggers() {
	Chain = WithComponent("chain")
	Consensus = WithComponent("consensus")
	Mempool = WithComponent("mempool")
	Storage = WithComponent("storage")
	Sync = WithComponent("sync")
	Mining = WithComponent("mining")
	P2P = WithComponent("p2p")
}

// WithComponent returns a child logger tagged with the given
// component name.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithChainID returns a child logger additionally tagged with a
// chain id, used where a process may track more than one network.
func WithChainID(l zerolog.Logger, chainID string) zerolog.Logger {
	return l.With().Str("chain_id", chainID).Logger()
}

func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "fatal":
		return zerolog.FatalLevel, nil
	default:
		return zerolog.NoLevel, &badLevelError{level}
	}
}

type badLevelError struct{ level string }

func (e *badLevelError) Error() string {
	return "log: unknown level " + e.level
}

// Benchmark logs the elapsed time of the caller's scope when invoked
// as: defer log.Benchmark("name")().
func Benchmark(name string) func() {
	start := time.Now()
	return func() {
		Logger.Debug().Str("op", name).Dur("elapsed", time.Since(start)).Msg("benchmark")
	}
}
