package telemetry

import (
	"strconv"
	"sync/atomic"
	"time"

	"davbridge/pkg/logger"
)

// Requests slower than slowThreshold get a single warning line; everything
// else only shows up in the prometheus collectors.

var (
	requestCtr    uint64
	slowThreshold atomic.Int64
)

func init() {
	slowThreshold.Store(int64(2 * time.Second))
}

// SetSlowThreshold sets the duration above which a request is logged as
// slow. Zero disables slow logging.
func SetSlowThreshold(d time.Duration) {
	if d < 0 {
		d = 0
	}
	slowThreshold.Store(int64(d))
}

// SlowThreshold returns the current threshold.
func SlowThreshold() time.Duration {
	return time.Duration(slowThreshold.Load())
}

// NewRequestID returns a process-unique request id.
func NewRequestID() string {
	n := atomic.AddUint64(&requestCtr, 1)
	return "r-" + time.Now().UTC().Format("20060102T150405") + "-" + strconv.FormatUint(n, 10)
}

// Finish records a completed request and logs it when it was slow.
func Finish(runtime, method, path string, status int, start time.Time) {
	dur := time.Since(start)
	ObserveRequest(runtime, method, status, dur)
	if IsSlow(dur) {
		logger.Warn("slow_request",
			"request_id", NewRequestID(),
			"runtime", runtime,
			"method", method,
			"path", path,
			"status", status,
			"duration_ms", dur.Milliseconds(),
		)
	}
}

// IsSlow reports whether d crosses the slow threshold.
func IsSlow(d time.Duration) bool {
	t := SlowThreshold()
	return t > 0 && d > t
}
