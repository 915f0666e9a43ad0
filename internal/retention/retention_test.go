package retention

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/webdav"

	"davbridge/pkg/davfs"
)

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) Sweep(time.Time) int {
	c.calls.Add(1)
	return 0
}

func TestStartRejectsInvalidCron(t *testing.T) {
	if _, err := Start(context.Background(), "not a cron", &countingSweeper{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStartAndCancel(t *testing.T) {
	cancel, err := Start(context.Background(), "", &countingSweeper{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
}

func TestRunOnceExpiresFakeLocks(t *testing.T) {
	ls := davfs.NewFakeLS()
	now := time.Now()
	if _, err := ls.Create(now, webdav.LockDetails{Root: "/a", Duration: time.Second}); err != nil {
		t.Fatal(err)
	}
	if _, err := ls.Create(now, webdav.LockDetails{Root: "/b", Duration: time.Hour}); err != nil {
		t.Fatal(err)
	}
	sw := ls.(davfs.Sweeper)
	if n := RunOnce(sw, now.Add(time.Minute)); n != 1 {
		t.Fatalf("expected 1 expired lock, got %d", n)
	}
	if n := RunOnce(sw, now.Add(time.Minute)); n != 0 {
		t.Fatalf("second sweep should find nothing, got %d", n)
	}
}
