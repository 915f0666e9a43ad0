package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"davbridge/pkg/logger"
)

// Abort logs a fatal startup error, writes a crash dump under dir and exits
// with status 2 after delay seconds.
func Abort(contextMsg string, err error, dir string, delay int) {
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	dumpPath, derr := WriteCrashDump(dir, contextMsg, err)
	if derr != nil {
		logger.Error("crash_dump_failed", "error", derr)
		fmt.Fprintf(os.Stderr, "FAILED TO WRITE CRASH DUMP: %v\n", derr)
	} else {
		logger.Info("wrote_crash_dump", "path", dumpPath)
		fmt.Fprintf(os.Stderr, "CRASH DUMP WRITTEN: %s\n", dumpPath)
	}
	for i := delay; i > 0; i-- {
		logger.Info("exiting_in_seconds", "seconds", i)
		time.Sleep(time.Second)
	}
	os.Exit(2)
}

// WriteCrashDump writes reason, err, and all goroutine stacks to a new file
// in dir ("./crash" when empty) and returns its path.
func WriteCrashDump(dir, reason string, err error) (string, error) {
	if dir == "" {
		dir = "./crash"
	}
	if e := os.MkdirAll(dir, 0o700); e != nil {
		return "", fmt.Errorf("failed to create crash dir: %w", e)
	}

	f, ferr := os.CreateTemp(dir, ".crash-*.tmp")
	if ferr != nil {
		return "", fmt.Errorf("failed to create temp crash file: %w", ferr)
	}
	tmpName := f.Name()
	defer func() { _ = os.Remove(tmpName) }()

	fmt.Fprintf(f, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(f, "reason: %s\n", reason)
	fmt.Fprintf(f, "error: %v\n", err)
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	_, _ = f.Write(buf[:n])
	_ = f.Sync()
	if err := f.Close(); err != nil {
		return "", err
	}

	dumpPath := filepath.Join(dir, fmt.Sprintf("crash-%d.log", time.Now().UnixNano()))
	if err := os.Rename(tmpName, dumpPath); err != nil {
		return "", fmt.Errorf("failed to move crash dump into place: %w", err)
	}
	_ = os.Chmod(dumpPath, 0o600)
	return dumpPath, nil
}

// Graceful calls stop with a context bounded by timeout. A stop that runs
// out of time is reported but not treated as fatal.
func Graceful(name string, timeout time.Duration, stop func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	start := time.Now()
	err := stop(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("shutdown_timeout", "component", name, "timeout", timeout.String())
		return nil
	case err != nil:
		return fmt.Errorf("shutdown %s: %w", name, err)
	}
	logger.Info("shutdown_complete", "component", name, "took", time.Since(start).String())
	return nil
}

// SetupSignalHandler returns a context cancelled by SIGINT or SIGTERM.
// SIGUSR1 logs every goroutine stack and keeps running. SIGPIPE is left
// alone: with a listener for it, every client that drops a connection
// mid-transfer would be delivered here. The returned func stops watching.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, unix.SIGINT, unix.SIGTERM)
	dump := make(chan os.Signal, 1)
	signal.Notify(dump, unix.SIGUSR1)

	go func() {
		for {
			select {
			case s := <-sigc:
				logger.Info("signal_received", "signal", s.String(), "action", "shutdown")
				cancel()
				return
			case <-dump:
				buf := make([]byte, 1<<20)
				n := runtime.Stack(buf, true)
				logger.Info("goroutine_stack_dump", "dump", string(buf[:n]))
			case <-ctx.Done():
				return
			}
		}
	}()

	return ctx, func() {
		signal.Stop(sigc)
		signal.Stop(dump)
		cancel()
	}
}
