package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/escrowlabs/escrowd/pkg/chainmonitor"
	"github.com/escrowlabs/escrowd/pkg/lifecycle"
	"github.com/escrowlabs/escrowd/pkg/walletlock"
)

// LifecycleJob wraps one ActionSpec's handler tick (4.7, 4.9) as a JobFunc.
func LifecycleJob(engine *lifecycle.Engine, spec lifecycle.ActionSpec, maxBatchSize int, logger *log.Logger) JobFunc {
	if logger == nil {
		logger = log.New(log.Writer(), "[scheduler.lifecycle] ", log.LstdFlags)
	}
	return func(ctx context.Context, now time.Time) error {
		n, err := engine.Run(ctx, spec, maxBatchSize, now)
		if err != nil {
			return fmt.Errorf("lifecycle tick %s: %w", spec.Action, err)
		}
		if n > 0 {
			logger.Printf("lifecycle tick %s: processed %d", spec.Action, n)
		}
		return nil
	}
}

// ChainMonitorJob wraps Monitor.Run (4.8) as a JobFunc.
func ChainMonitorJob(mon *chainmonitor.Monitor) JobFunc {
	return func(ctx context.Context, now time.Time) error {
		return mon.Run(ctx, now)
	}
}

// WalletReaperJob wraps walletlock.Reaper.Run (4.4) as a JobFunc — a safety
// net for leases ChainMonitor's own release-on-confirm/release-on-drop paths
// missed, e.g. because the process crashed between settling the transaction
// and releasing the wallet.
func WalletReaperJob(reaper *walletlock.Reaper) JobFunc {
	return func(ctx context.Context, now time.Time) error {
		_, err := reaper.Run(ctx, now)
		return err
	}
}
