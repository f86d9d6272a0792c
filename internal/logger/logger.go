// Package logger installs the process-wide slog logger.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type Options struct {
	Level  string
	File   string
	Format string
}

// Configure installs a slog default logger writing to stdout and, when File is
// set, appending to that file too. An invalid level or an unusable file is
// reported but still leaves a working logger at the remaining settings.
// The returned function closes the log file.
func Configure(opts Options) (func() error, error) {
	level := slog.LevelInfo
	var levelErr error
	if strings.TrimSpace(opts.Level) != "" {
		level, levelErr = ParseLevel(opts.Level)
	}

	writer := io.Writer(os.Stdout)
	closeFn := func() error { return nil }
	var fileErr error
	if strings.TrimSpace(opts.File) != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			fileErr = err
		} else {
			file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				fileErr = err
			} else {
				writer = io.MultiWriter(os.Stdout, file)
				closeFn = file.Close
			}
		}
	}

	slog.SetDefault(slog.New(NewHandler(writer, opts.Format, level)))

	if levelErr != nil || fileErr != nil {
		return closeFn, errors.Join(levelErr, fileErr)
	}
	return closeFn, nil
}

// NewHandler returns a JSON handler for format "json" and a text handler otherwise.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, hopts)
	}
	return slog.NewTextHandler(w, hopts)
}

func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", value)
	}
}
