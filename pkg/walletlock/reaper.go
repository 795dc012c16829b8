package walletlock

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/escrowlabs/escrowd/pkg/database"
	"github.com/escrowlabs/escrowd/pkg/domain"
)

// Reaper reclaims hot wallet leases abandoned by a crashed or stalled
// worker: a lease older than MaxLeaseAge is released so the Selector can
// reuse the wallet when it names no transaction, or when its transaction
// has settled or has sat Pending past the stuck timeout.
type Reaper struct {
	db      *database.Client
	wallets *database.HotWalletRepository
	txs     *database.TransactionRepository

	maxLeaseAge    time.Duration
	stuckTxTimeout time.Duration
	txTimeout      time.Duration
	logger         *log.Logger
}

// NewReaper builds a Reaper over the given repositories.
func NewReaper(db *database.Client, wallets *database.HotWalletRepository, txs *database.TransactionRepository, maxLeaseAge, stuckTxTimeout, txTimeout time.Duration, logger *log.Logger) *Reaper {
	if logger == nil {
		logger = log.New(log.Writer(), "[walletlock.Reaper] ", log.LstdFlags)
	}
	return &Reaper{
		db:             db,
		wallets:        wallets,
		txs:            txs,
		maxLeaseAge:    maxLeaseAge,
		stuckTxTimeout: stuckTxTimeout,
		txTimeout:      txTimeout,
		logger:         logger,
	}
}

// Run reclaims every lease older than maxLeaseAge whose pending transaction
// has settled (Confirmed/Failed) or has been stuck in Pending past
// stuckTxTimeout. It returns the number of wallets released.
func (r *Reaper) Run(ctx context.Context, now time.Time) (int, error) {
	var released int

	err := r.db.RunSerializable(ctx, r.txTimeout, func(ctx context.Context, tx *database.Tx) error {
		stale, err := r.wallets.FindStaleLeases(ctx, tx.SQLTx(), now.Add(-r.maxLeaseAge))
		if err != nil {
			return fmt.Errorf("walletlock: find stale leases: %w", err)
		}

		for _, w := range stale {
			if !w.PendingTransactionID.Valid {
				if err := r.wallets.Release(ctx, tx.SQLTx(), w.ID); err != nil {
					return fmt.Errorf("walletlock: release orphaned lease %s: %w", w.ID, err)
				}
				released++
				continue
			}

			txn, err := r.txs.Get(ctx, tx.SQLTx(), w.PendingTransactionID.UUID)
			if err != nil {
				return fmt.Errorf("walletlock: load pending transaction for wallet %s: %w", w.ID, err)
			}

			settled := txn.Status == domain.TransactionConfirmed || txn.Status == domain.TransactionFailed
			stuck := txn.Status == domain.TransactionPending && now.Sub(txn.CreatedAt) > r.stuckTxTimeout
			if !settled && !stuck {
				continue
			}
			if stuck && txn.Status == domain.TransactionPending {
				if err := r.txs.SetStatus(ctx, tx.SQLTx(), txn.ID, domain.TransactionFailed); err != nil {
					return fmt.Errorf("walletlock: fail stuck transaction %s: %w", txn.ID, err)
				}
			}
			if err := r.wallets.Release(ctx, tx.SQLTx(), w.ID); err != nil {
				return fmt.Errorf("walletlock: release lease %s: %w", w.ID, err)
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if released > 0 {
		r.logger.Printf("reaped %d stale wallet lease(s)", released)
	}
	return released, nil
}
