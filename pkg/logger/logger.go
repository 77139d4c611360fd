package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Audit       AuditConfig
}

// AuditConfig controls the transaction audit log output.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu          sync.Mutex
	baseLogger  *slog.Logger
	auditLogger *slog.Logger
	closers     []io.Closer
)

// Init configures the global logger instances. Calling it again replaces the
// previous configuration after closing file-backed outputs.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	_ = closeOutputsLocked()

	handler, err := newHandler(cfg.Format, cfg.OutputPaths, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	if err != nil {
		return err
	}
	baseLogger = slog.New(handler)
	auditLogger = baseLogger

	if cfg.Audit.Enabled {
		if strings.TrimSpace(cfg.Audit.Path) == "" {
			return errors.New("audit log path cannot be empty when enabled")
		}
		writer, err := newRotateFile(cfg.Audit.Path, cfg.Audit.MaxSizeMB, cfg.Audit.MaxBackups, cfg.Audit.MaxAgeDays)
		if err != nil {
			return err
		}
		closers = append(closers, writer)
		auditLogger = slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return nil
}

func newHandler(format string, outputs []string, opts *slog.HandlerOptions) (slog.Handler, error) {
	var writers []io.Writer
	for _, out := range outputs {
		switch strings.ToLower(out) {
		case "", "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			file, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", out, err)
			}
			closers = append(closers, file)
			writers = append(writers, file)
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(writer, opts), nil
	}
	return slog.NewJSONHandler(writer, opts), nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the structured logger instance.
func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	ensureLocked()
	return baseLogger
}

// Audit returns the logger that records submitted transactions.
func Audit() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	ensureLocked()
	return auditLogger
}

// Named returns a child logger scoped to the given component name.
func Named(name string) *slog.Logger {
	return L().WithGroup(name)
}

// Sync closes file-backed outputs.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	return closeOutputsLocked()
}

func ensureLocked() {
	if baseLogger == nil {
		baseLogger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if auditLogger == nil {
		auditLogger = baseLogger
	}
}

func closeOutputsLocked() error {
	var err error
	for _, closer := range closers {
		err = errors.Join(err, closer.Close())
	}
	closers = nil
	return err
}
