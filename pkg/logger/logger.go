package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var Log *slog.Logger

// Audit is an optional dedicated audit logger for authentication decisions.
// When nil, audit events fall back to the main logger.
var Audit *slog.Logger

const (
	envLevel  = "DAVBRIDGE_LOG_LEVEL"
	envSink   = "DAVBRIDGE_LOG_SINK" // e.g. "file:/var/log/davbridge.log"
	envFormat = "DAVBRIDGE_LOG_FORMAT"
)

// Init initializes the global slog logger from the environment, at Info level
// unless DAVBRIDGE_LOG_LEVEL says otherwise.
func Init() {
	InitWith("", "")
}

// InitWithLevel initializes the global logger honoring level ("debug",
// "info", "warn", "error"). An empty level falls back to the environment.
func InitWithLevel(level string) {
	InitWith(level, "")
}

// InitWith initializes the global logger with an explicit level and format
// ("text" or "json"). Empty arguments fall back to the environment.
func InitWith(level, format string) {
	lvl := strings.TrimSpace(level)
	if lvl == "" {
		lvl = os.Getenv(envLevel)
	}
	f := strings.TrimSpace(format)
	if f == "" {
		f = os.Getenv(envFormat)
	}
	Log = slog.New(newHandler(openSink(os.Getenv(envSink)), f, ParseLevel(lvl)))
}

// ParseLevel maps a level name to a slog level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func openSink(sink string) io.Writer {
	if !strings.HasPrefix(sink, "file:") {
		return os.Stdout
	}
	path := strings.TrimPrefix(sink, "file:")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		// fallback to stdout
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		return os.Stdout
	}
	return f
}

// AttachAuditFileSink configures a JSON audit logger writing to
// <auditDir>/audit.log. On failure Audit is left unchanged.
func AttachAuditFileSink(auditDir string) error {
	if auditDir == "" {
		return fmt.Errorf("empty audit dir")
	}
	// refuse symlinks to avoid writing outside the configured tree
	if fi, err := os.Lstat(auditDir); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("audit path is a symlink: %s", auditDir)
		}
		if !fi.IsDir() {
			return fmt.Errorf("audit path exists and is not a directory: %s", auditDir)
		}
	}
	if err := os.MkdirAll(auditDir, 0o700); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	fname := filepath.Join(auditDir, "audit.log")
	// rotate once the file grows past 10MB
	if fi, err := os.Stat(fname); err == nil {
		const maxSize = 10 * 1024 * 1024
		if fi.Size() > maxSize {
			bak := fname + "." + fi.ModTime().UTC().Format("20060102T150405Z")
			_ = os.Rename(fname, bak)
		}
	}
	f, err := os.OpenFile(fname, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	Audit = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo}))
	Audit.Info("audit_sink_attached", "path", fname)
	return nil
}

// AuditEvent records msg on the audit logger, or on the main logger when no
// audit sink is attached.
func AuditEvent(msg string, args ...any) {
	if Audit != nil {
		Audit.Info(msg, args...)
		return
	}
	Info(msg, args...)
}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}
