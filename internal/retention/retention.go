// Package retention expires lock records that their owners abandoned.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"davbridge/pkg/davfs"
	"davbridge/pkg/logger"
)

// DefaultCron sweeps every ten minutes.
const DefaultCron = "*/10 * * * *"

// Start runs s.Sweep on the cron schedule until ctx is done or the returned
// cancel func is called. An empty expression means DefaultCron.
func Start(ctx context.Context, cronExpr string, s davfs.Sweeper) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = DefaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("lock_sweep_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid lock sweep cron expression: %s", cronExpr)
	}

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, s)
	logger.Info("lock_sweep_scheduler_started", "cron", cronExpr)
	return cancel, nil
}

// RunOnce sweeps immediately and returns the number of records dropped.
func RunOnce(s davfs.Sweeper, now time.Time) int {
	n := s.Sweep(now)
	if n > 0 {
		logger.AuditEvent("lock_sweep", "expired", n)
	}
	logger.Debug("lock_sweep_done", "expired", n)
	return n
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time.
func runScheduler(ctx context.Context, cronExpr string, s davfs.Sweeper) {
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("lock_sweep_nexttick_failed", "cron", cronExpr, "error", err)
			// fallback sleep then retry
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				logger.Info("lock_sweep_scheduler_stopping")
				return
			}
		}

		select {
		case <-time.After(time.Until(next)):
			RunOnce(s, time.Now())
		case <-ctx.Done():
			logger.Info("lock_sweep_scheduler_stopping")
			return
		}
	}
}
