// Package selector implements the "lock-and-query" Selector (4.5): inside
// one serializable transaction, find eligible requests, lease a wallet for
// each, and hand the caller a batch it alone owns for this tick.
package selector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/escrowlabs/escrowd/pkg/database"
	"github.com/escrowlabs/escrowd/pkg/domain"
	"github.com/escrowlabs/escrowd/pkg/walletlock"
)

// Filter parameterizes one selection pass.
type Filter struct {
	Action       domain.RequestedAction
	WalletType   domain.WalletType
	ActingParty  domain.WalletType
	MaxBatchSize int
}

// Batch is one request paired with the wallet leased to act on it.
type Batch struct {
	Request *domain.Request
	Wallet  *domain.HotWallet
}

// Selector runs lock-and-query passes over active payment sources.
type Selector struct {
	db       *database.Client
	sources  *database.PaymentSourceRepository
	wallets  *database.HotWalletRepository
	requests *database.RequestRepository
	locker   *walletlock.Locker
	timeout  time.Duration
}

// New builds a Selector over the given repositories.
func New(db *database.Client, repos *database.Repositories, timeout time.Duration) *Selector {
	return &Selector{
		db:       db,
		sources:  repos.PaymentSources,
		wallets:  repos.Wallets,
		requests: repos.Requests,
		locker:   walletlock.New(repos.Wallets),
		timeout:  timeout,
	}
}

// Select runs one full lock-and-query pass for f across every active
// payment source, returning every (request, wallet) pair it managed to
// lease before exhausting maxBatchSize. The entire pass runs inside a
// single serializable transaction (4.5): either every lease and wallet
// attachment in the returned batch commits, or none does.
func (s *Selector) Select(ctx context.Context, f Filter, now time.Time) ([]Batch, error) {
	var batches []Batch

	err := s.db.RunSerializable(ctx, s.timeout, func(ctx context.Context, tx *database.Tx) error {
		sources, err := s.sources.FindActive(ctx)
		if err != nil {
			return fmt.Errorf("selector: list active sources: %w", err)
		}

		for _, source := range sources {
			if !source.IsActive(now) {
				continue
			}
			if len(batches) >= f.MaxBatchSize {
				return nil
			}

			candidateWallets, err := s.wallets.FindUnleased(ctx, tx.SQLTx(), source.ID, f.WalletType)
			if err != nil {
				return fmt.Errorf("selector: list unleased wallets for source %s: %w", source.ID, err)
			}

			for _, wallet := range candidateWallets {
				if len(batches) >= f.MaxBatchSize {
					return nil
				}

				remaining := f.MaxBatchSize - len(batches)
				eligible, err := s.eligibleRequests(ctx, tx, source, wallet.ID, f, now, remaining)
				if err != nil {
					return err
				}
				if len(eligible) == 0 {
					continue
				}

				if err := s.locker.Acquire(ctx, tx, wallet.ID, now); err != nil {
					if err == database.ErrWalletNotAvailable {
						continue
					}
					return fmt.Errorf("selector: acquire wallet %s: %w", wallet.ID, err)
				}
				wallet.LockedAt = sql.NullTime{Time: now, Valid: true}

				for _, req := range eligible {
					if len(batches) >= f.MaxBatchSize {
						break
					}
					if f.Action == domain.ActionFundsLockingRequested {
						if err := s.requests.AttachWallet(ctx, tx.SQLTx(), req.ID, wallet.ID); err != nil {
							return fmt.Errorf("selector: attach wallet to request %s: %w", req.ID, err)
						}
						req.SmartContractWalletID = nullUUID(wallet.ID)
					}
					batches = append(batches, Batch{Request: req, Wallet: wallet})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// eligibleRequests finds and cooldown-filters candidate requests for one
// wallet. FundsLockingRequested requests have no wallet attached yet, so
// they're matched unassigned; every other action is matched against the
// wallet already recorded on the request.
func (s *Selector) eligibleRequests(ctx context.Context, tx *database.Tx, source *domain.PaymentSource, walletID uuid.UUID, f Filter, now time.Time, limit int) ([]*domain.Request, error) {
	var candidates []*domain.Request
	var err error
	if f.Action == domain.ActionFundsLockingRequested {
		candidates, err = s.requests.FindEligibleUnassigned(ctx, tx.SQLTx(), source.ID, f.Action, limit)
	} else {
		candidates, err = s.requests.FindEligible(ctx, tx.SQLTx(), source.ID, walletID, f.Action, now, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("selector: find eligible requests: %w", err)
	}

	out := make([]*domain.Request, 0, len(candidates))
	nowMs := now.UnixMilli()
	for _, req := range candidates {
		cooldown := req.CounterpartyCooldown(f.ActingParty)
		if cooldown >= nowMs-source.CooldownTimeMs {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}
