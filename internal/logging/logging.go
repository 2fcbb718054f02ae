package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Log levels.
const (
	LevelError = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// Config represents the configuration for the logger.
type Config struct {
	Level  int
	Format string
	Output io.Writer
}

// Logger is a thin wrapper around zerolog that carries the level it was
// configured with, so callers can cheaply skip expensive debug payloads.
type Logger struct {
	logger zerolog.Logger
	level  int
}

// Formats supported for log output.
const (
	FormatJSON = "json"
	FormatText = "text"
)

func NewLogger(c Config) *Logger {
	out := c.Output
	if out == nil {
		out = os.Stderr
	}
	if c.Format == FormatText {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).Level(zerologLevel(c.Level)).With().Timestamp().Logger()
	return &Logger{logger: logger, level: c.Level}
}

func zerologLevel(level int) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (l *Logger) Level() int {
	return l.level
}

// WithFields returns a copy of the logger that attaches the given fields to
// every record it emits.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{
		logger: l.logger.With().Fields(fields).Logger(),
		level:  l.level,
	}
}

func (l *Logger) Debugf(f string, a ...any) {
	l.logger.Debug().Msgf(f, a...)
}

func (l *Logger) Infof(f string, a ...any) {
	l.logger.Info().Msgf(f, a...)
}

func (l *Logger) Warnf(f string, a ...any) {
	l.logger.Warn().Msgf(f, a...)
}

func (l *Logger) Errorf(f string, a ...any) {
	l.logger.Error().Msgf(f, a...)
}
