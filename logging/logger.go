// Package logging builds the process logger: a zerolog logger writing to
// the console and, optionally, a log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const appName = "sunday"

type Config struct {
	Level   string
	File    string
	Console bool
	FileSys afero.Fs
	// Out receives console output; defaults to stderr.
	Out io.Writer
}

// Logger is the root logger plus whatever file it writes to.
type Logger struct {
	zerolog.Logger
	SessionID string
	file      afero.File
}

func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	var writers []io.Writer

	if cfg.Console {
		out := cfg.Out
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		})
	}

	var file afero.File
	if cfg.File != "" {
		fs := cfg.FileSys
		if fs == nil {
			fs = afero.NewOsFs()
		}

		if err := fs.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := fs.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	sessionID := uuid.NewString()

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("app", appName).
		Str("session", sessionID).
		Logger()

	return &Logger{Logger: logger, SessionID: sessionID, file: file}, nil
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
