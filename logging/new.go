package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvVar is the environment variable consulted for a log spec.
const EnvVar = "XDPFWD_LOG"

// Format represents the log output format.
type Format string

const (
	// FormatText outputs logs in human-readable text format.
	FormatText Format = "text"
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = "json"
)

// ParseFormat parses a format string into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %q", s)
	}
}

// Options configures the logger factory.
type Options struct {
	// CLISpec is the log spec from the command line (highest precedence).
	CLISpec string
	// EnvSpec is the log spec from the XDPFWD_LOG environment variable.
	EnvSpec string
	// Verbosity is the repeated -v count, used when no spec is given.
	Verbosity int
	// Format is the output format (text or json).
	Format Format
	// Output is the writer for log output. Defaults to os.Stdout.
	Output io.Writer
}

// New creates a new slog.Logger with component-level filtering.
// Precedence: CLISpec > EnvSpec > Verbosity > defaults.
func New(opts Options) (*slog.Logger, error) {
	// CLI flags override env vars (Unix convention).
	specStr := ""
	switch {
	case opts.CLISpec != "":
		specStr = opts.CLISpec
	case opts.EnvSpec != "":
		specStr = opts.EnvSpec
	}

	spec, err := ParseSpec(specStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log spec: %w", err)
	}
	if specStr == "" && opts.Verbosity > 0 {
		spec.BaseLevel = LevelForVerbosity(opts.Verbosity)
	}

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		// Lowest possible level so the filtering handler decides.
		Level: LevelTrace.ToSlog(),
	}

	var innerHandler slog.Handler
	switch opts.Format {
	case FormatJSON:
		innerHandler = slog.NewJSONHandler(output, handlerOpts)
	default:
		innerHandler = slog.NewTextHandler(output, handlerOpts)
	}

	return slog.New(NewFilteringHandler(innerHandler, &spec)), nil
}

// Default creates a logger with default settings (info level, text format, stdout).
func Default() *slog.Logger {
	logger, _ := New(Options{})
	return logger
}

// FromEnv creates a logger using the XDPFWD_LOG environment variable.
func FromEnv() (*slog.Logger, error) {
	return New(Options{
		EnvSpec: os.Getenv(EnvVar),
	})
}
