/*
Package logx provides a structured logging wrapper based on zerolog.

It initializes the global logger, selects console or JSON output, and offers
key-value helpers plus per-component child loggers.
*/
package logx

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog instance. An unknown level falls back to info.
func Init(w io.Writer, level string, pretty bool) {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	log.Logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Disable silences all logging. Used by tests and headless commands.
func Disable() {
	log.Logger = zerolog.Nop()
}

// Logger returns the global logger
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child logger tagged with the component name
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

// checkFields drops a field list with an odd count instead of letting zerolog misalign it.
func checkFields(level string, fields []any) []any {
	if len(fields)%2 != 0 {
		Logger().Warn().
			Int("fields_count", len(fields)).
			Str("log_level", level).
			Msg("odd number of log fields, fields ignored")
		return nil
	}
	return fields
}

// Debug records a message at debug level
func Debug(msg string, fields ...any) {
	Logger().Debug().Fields(checkFields("debug", fields)).Msg(msg)
}

// Info records a message at info level
func Info(msg string, fields ...any) {
	Logger().Info().Fields(checkFields("info", fields)).Msg(msg)
}

// Warn records a message at warn level
func Warn(msg string, fields ...any) {
	Logger().Warn().Fields(checkFields("warn", fields)).Msg(msg)
}

// Error records a message with its error at error level
func Error(err error, msg string, fields ...any) {
	Logger().Error().Err(err).Fields(checkFields("error", fields)).Msg(msg)
}
