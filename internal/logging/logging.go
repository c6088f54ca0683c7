package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}

// ParseLevel converts a config log level to a zerolog.Level, defaulting to
// info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ContextProvider adds dynamic fields to every log event.
type ContextProvider func(e *zerolog.Event)

// Options configures Setup.
type Options struct {
	Level string

	// Console receives colored output. Nil disables it.
	Console io.Writer

	// File receives uncolored console-format output. Nil disables it.
	File io.Writer

	// Extra writers receive raw JSON events, e.g. a GELF writer.
	Extra []io.Writer

	Context ContextProvider
}

// Setup builds the process logger.
func Setup(opts Options) zerolog.Logger {
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	var writers []io.Writer
	if opts.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        opts.Console,
			TimeFormat: time.RFC3339,
		})
	}
	if opts.File != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        opts.File,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	}
	for _, w := range opts.Extra {
		if w != nil {
			writers = append(writers, w)
		}
	}
	if len(writers) == 0 {
		return zerolog.Nop()
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(opts.Level)).
		With().Timestamp().Logger()
	if opts.Context != nil {
		provider := opts.Context
		logger = logger.Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
			provider(e)
		}))
	}

	logger.Info().Str("loglevel", logger.GetLevel().String()).Msg("Logging set up")
	return logger
}

// Sampled returns a logger for high-rate paths: 5 entries per 10 seconds,
// then 1 in 100.
func Sampled(logger zerolog.Logger) zerolog.Logger {
	return logger.With().Bool("sampled", true).Logger().Sample(&zerolog.BurstSampler{
		Burst:       5,
		Period:      10 * time.Second,
		NextSampler: &zerolog.BasicSampler{N: 100},
	})
}
