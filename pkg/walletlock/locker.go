// Package walletlock implements the WalletLocker contract (4.4): leasing a
// hot wallet to a single in-flight transaction at a time, and releasing it
// once that transaction settles.
package walletlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/escrowlabs/escrowd/pkg/database"
	"github.com/escrowlabs/escrowd/pkg/domain"
)

// ErrNoWalletAvailable is returned when a payment source has no unleased
// wallet of the requested type, signalling the caller to park and retry
// next tick rather than fail the request outright.
var ErrNoWalletAvailable = errors.New("walletlock: no unleased wallet available")

// Locker leases and releases hot wallets. All methods must run inside the
// caller's serializable transaction — Acquire's conditional UPDATE is only
// race-free when composed with the Selector's candidate query in the same
// transaction.
type Locker struct {
	wallets *database.HotWalletRepository
}

// New builds a Locker over the given repository.
func New(wallets *database.HotWalletRepository) *Locker {
	return &Locker{wallets: wallets}
}

// Acquire leases walletID for the caller. Returns database.ErrWalletNotAvailable
// if another transaction already holds or just took the lease.
func (l *Locker) Acquire(ctx context.Context, tx *database.Tx, walletID uuid.UUID, now time.Time) error {
	return l.wallets.Acquire(ctx, tx.SQLTx(), walletID, now)
}

// PickAndAcquire selects the first unleased wallet of walletType for
// sourceID and leases it in one step, returning ErrNoWalletAvailable when
// the candidate pool is empty or every candidate lost the race.
func (l *Locker) PickAndAcquire(ctx context.Context, tx *database.Tx, sourceID uuid.UUID, walletType domain.WalletType, now time.Time) (*domain.HotWallet, error) {
	candidates, err := l.wallets.FindUnleased(ctx, tx.SQLTx(), sourceID, walletType)
	if err != nil {
		return nil, fmt.Errorf("walletlock: list candidates: %w", err)
	}
	return acquireFirst(candidates, func(w *domain.HotWallet) error {
		return l.wallets.Acquire(ctx, tx.SQLTx(), w.ID, now)
	})
}

// acquireFirst implements PickAndAcquire's contention logic in isolation
// from the database: try tells whether a candidate is still available,
// returning database.ErrWalletNotAvailable when a concurrent transaction
// already took it. Candidates are tried in order, so the first to win the
// race is returned; losing the race for one candidate just moves on to the
// next rather than failing outright.
func acquireFirst(candidates []*domain.HotWallet, try func(*domain.HotWallet) error) (*domain.HotWallet, error) {
	if len(candidates) == 0 {
		return nil, ErrNoWalletAvailable
	}
	for _, w := range candidates {
		err := try(w)
		if err == nil {
			return w, nil
		}
		if err != database.ErrWalletNotAvailable {
			return nil, fmt.Errorf("walletlock: acquire candidate: %w", err)
		}
	}
	return nil, ErrNoWalletAvailable
}

// AttachPendingTransaction records the transaction a leased wallet is
// funding, inside the same transaction that created it.
func (l *Locker) AttachPendingTransaction(ctx context.Context, tx *database.Tx, walletID, txID uuid.UUID) error {
	return l.wallets.AttachPendingTransaction(ctx, tx.SQLTx(), walletID, txID)
}

// Release clears a wallet's lease once its referenced transaction has
// settled.
func (l *Locker) Release(ctx context.Context, tx *database.Tx, walletID uuid.UUID) error {
	return l.wallets.Release(ctx, tx.SQLTx(), walletID)
}
