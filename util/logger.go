// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled messages through zerolog.  It keeps the -v
// counting model of the CLI: each extra -v unlocks one more level.
type Logger struct {
	level      LogLevel
	output     io.Writer
	timestamps bool // if true, prepend timestamps
	json       bool // if true, emit raw zerolog JSON
	fields     map[string]string
	zl         zerolog.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) { l.timestamps = on; l.rebuild() }

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) { l.output = w; l.rebuild() }

// SetJSON switches between console and JSON output.
func (l *Logger) SetJSON(on bool) { l.json = on; l.rebuild() }

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that tags every message with key=value.
// The parent is not modified.
func (l *Logger) With(key, value string) *Logger {
	child := &Logger{
		level:      l.level,
		output:     l.output,
		timestamps: l.timestamps,
		json:       l.json,
		fields:     make(map[string]string, len(l.fields)+1),
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	child.fields[key] = value
	child.rebuild()
	return child
}

// Zerolog exposes the underlying logger for libraries that want one.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

// Info prints when verbosity ≥ 1.  Tagged [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info().Msg(fmt.Sprintf(format, args...))
}

// Warn prints when verbosity ≥ 1.  Tagged [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	l.zl.Warn().Msg(fmt.Sprintf(format, args...))
}

// Verbose prints when verbosity ≥ 2.  Tagged [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.zl.Debug().Msg(fmt.Sprintf(format, args...))
}

// Debug prints when verbosity ≥ 3.  Tagged [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	l.zl.Trace().Msg(fmt.Sprintf(format, args...))
}

// Error always prints regardless of verbosity.  Tagged [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, args...))
}

// rebuild recreates the zerolog logger after a setting changed.
func (l *Logger) rebuild() {
	out := zerolog.SyncWriter(l.output)
	if !l.json {
		parts := []string{zerolog.LevelFieldName, zerolog.MessageFieldName}
		if l.timestamps {
			parts = append([]string{zerolog.TimestampFieldName}, parts...)
		}
		out = zerolog.ConsoleWriter{
			Out:         out,
			NoColor:     true,
			TimeFormat:  "15:04:05.000",
			PartsOrder:  parts,
			FormatLevel: formatLevel,
		}
	}

	ctx := zerolog.New(out).Level(zerologLevel(l.level)).With()
	if l.timestamps || l.json {
		ctx = ctx.Timestamp()
	}
	for k, v := range l.fields {
		ctx = ctx.Str(k, v)
	}
	l.zl = ctx.Logger()
}

func init() {
	// Per-logger levels do the filtering; the global gate stays open.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}

func zerologLevel(level LogLevel) zerolog.Level {
	switch {
	case level <= LogQuiet:
		return zerolog.ErrorLevel
	case level == LogNormal:
		return zerolog.InfoLevel
	case level == LogVerbose:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// formatLevel renders zerolog levels with the short tags used
// throughout the CLI output.
func formatLevel(i interface{}) string {
	s, _ := i.(string)
	switch s {
	case zerolog.LevelTraceValue:
		return "[DBG]"
	case zerolog.LevelDebugValue:
		return "[VRB]"
	case zerolog.LevelInfoValue:
		return "[INF]"
	case zerolog.LevelWarnValue:
		return "[WRN]"
	case zerolog.LevelErrorValue:
		return "[ERR]"
	default:
		return "[???]"
	}
}
