package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"davbridge/pkg/dav"
)

func TestObserveRequestCounts(t *testing.T) {
	c := requestsTotal.WithLabelValues("test", "PROPFIND", "207")
	before := testutil.ToFloat64(c)
	ObserveRequest("test", "PROPFIND", 207, time.Millisecond)
	ObserveRequest("test", "PROPFIND", 207, time.Millisecond)
	if got := testutil.ToFloat64(c) - before; got != 2 {
		t.Fatalf("expected 2 observations, got %v", got)
	}
}

func TestPayloadErrorLabelsByKind(t *testing.T) {
	c := payloadErrors.WithLabelValues("test", dav.PayloadIncomplete.String())
	before := testutil.ToFloat64(c)
	PayloadError("test", dav.PayloadIncomplete)
	if testutil.ToFloat64(c)-before != 1 {
		t.Fatalf("incomplete payload error not counted")
	}
}

func TestSlowThreshold(t *testing.T) {
	old := SlowThreshold()
	t.Cleanup(func() { SetSlowThreshold(old) })

	SetSlowThreshold(10 * time.Millisecond)
	if !IsSlow(20 * time.Millisecond) {
		t.Fatalf("expected 20ms to be slow")
	}
	if IsSlow(5 * time.Millisecond) {
		t.Fatalf("expected 5ms to be fast")
	}
	SetSlowThreshold(-1)
	if IsSlow(time.Hour) {
		t.Fatalf("zero threshold must disable slow logging")
	}
}

func TestNewRequestIDUnique(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if a == b || !strings.HasPrefix(a, "r-") {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
}

func TestBodyFrameCountsBytes(t *testing.T) {
	frames := bodyFrames.WithLabelValues("test")
	bytes := bodyBytes.WithLabelValues("test")
	f0, b0 := testutil.ToFloat64(frames), testutil.ToFloat64(bytes)
	BodyFrame("test", 10)
	BodyFrame("test", 5)
	if got := testutil.ToFloat64(frames) - f0; got != 2 {
		t.Fatalf("frames: got %v", got)
	}
	if got := testutil.ToFloat64(bytes) - b0; got != 15 {
		t.Fatalf("bytes: got %v", got)
	}
}
