// Package lifecycle implements the LifecycleEngine (4.7): one handler per
// NextAction.requestedAction, each deriving a transaction from a Selector
// batch, submitting it, and recording the result — or parking the request
// on failure.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/escrowlabs/escrowd/pkg/chainclient"
	"github.com/escrowlabs/escrowd/pkg/database"
	"github.com/escrowlabs/escrowd/pkg/domain"
	"github.com/escrowlabs/escrowd/pkg/observer"
	"github.com/escrowlabs/escrowd/pkg/scriptcodec"
	"github.com/escrowlabs/escrowd/pkg/selector"
	"github.com/escrowlabs/escrowd/pkg/txbuilder"
	"github.com/escrowlabs/escrowd/pkg/walletlock"
)

// Engine ties together Selector, ChainClient, ScriptCodec, TxBuilder,
// WalletLocker and the Observer bus to drive requests through their
// handler-specific state transitions (4.7).
type Engine struct {
	db       *database.Client
	repos    *database.Repositories
	chain    chainclient.Client
	locker   *walletlock.Locker
	selector *selector.Selector
	signer   Signer
	bus      *observer.Bus

	slot               txbuilder.Slotter
	validitySlotBuffer int64
	cooldownPadMs      int64
	txTimeout          time.Duration
	logger             *log.Logger
}

// New builds an Engine over the given collaborators. cooldownPadMs is the
// operator-configured pad added to every cooldown instant this Engine
// writes (spec §9).
func New(
	db *database.Client,
	repos *database.Repositories,
	chain chainclient.Client,
	sel *selector.Selector,
	signer Signer,
	bus *observer.Bus,
	slot txbuilder.Slotter,
	validitySlotBuffer int64,
	cooldownPadMs int64,
	txTimeout time.Duration,
	logger *log.Logger,
) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[lifecycle.Engine] ", log.LstdFlags)
	}
	return &Engine{
		db:                 db,
		repos:              repos,
		chain:              chain,
		locker:             walletlock.New(repos.Wallets),
		selector:           sel,
		signer:             signer,
		bus:                bus,
		slot:               slot,
		validitySlotBuffer: validitySlotBuffer,
		cooldownPadMs:      cooldownPadMs,
		txTimeout:          txTimeout,
		logger:             logger,
	}
}

// Run executes one handler tick for spec: selects a batch of eligible
// (request, wallet) pairs and processes each concurrently. The count is the
// number of pairs whose processing ended without a permanent error; it
// includes pairs that processOne parked itself (no matching UTXO, a failed
// submit). Request failures are parked, not returned — the only error
// returned is a Selector-level failure.
func (e *Engine) Run(ctx context.Context, spec ActionSpec, maxBatchSize int, now time.Time) (int, error) {
	batches, err := e.selector.Select(ctx, selector.Filter{
		Action:       spec.Action,
		WalletType:   spec.LeaseWalletType,
		ActingParty:  spec.ActingParty,
		MaxBatchSize: maxBatchSize,
	}, now)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: select batch for %s: %w", spec.Action, err)
	}
	if len(batches) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for _, b := range batches {
		wg.Add(1)
		go func(b selector.Batch) {
			defer wg.Done()
			err := withRetry(ctx, func() error {
				return e.processOne(ctx, spec, b, now)
			})
			if err != nil {
				e.logger.Printf("request %s (%s) failed permanently: %v", b.Request.ID, spec.Action, err)
				e.park(ctx, b.Request.ID, b.Wallet.ID, domain.ErrorInvalidState, err.Error())
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}(b)
	}
	wg.Wait()

	return succeeded, nil
}

// processOne drives a single (request, wallet) pair through the shared
// handler shape of 4.7: derive script, fetch+match UTXO, build new datum,
// compute validity window, build->evaluate->rebuild, sign, commit, submit.
func (e *Engine) processOne(ctx context.Context, spec ActionSpec, b selector.Batch, now time.Time) error {
	req := b.Request
	wallet := b.Wallet

	source, err := e.repos.PaymentSources.Get(ctx, req.PaymentSourceID)
	if err != nil {
		return fmt.Errorf("load payment source: %w", err)
	}

	buyerVkey, sellerVkey, err := e.counterpartyVkeys(ctx, req)
	if err != nil {
		return fmt.Errorf("load counterparty vkeys: %w", err)
	}

	newCooldown := scriptcodec.NewCooldownTime(now, source.CooldownTimeMs, e.cooldownPadMs)
	validFrom, validTo := txbuilder.ValidityWindow(now, e.slot, e.validitySlotBuffer)

	var built *txbuilder.BuiltTx
	var sourceUTxO chainclient.UTxO

	if spec.Action == domain.ActionFundsLockingRequested {
		built, err = e.buildLock(ctx, source, wallet, req, buyerVkey, sellerVkey, newCooldown, validFrom, validTo)
	} else {
		utxos, ferr := e.chain.FetchUTxOs(ctx, source.SmartContractAddress)
		if ferr != nil {
			return fmt.Errorf("fetch script utxos: %w", ferr)
		}
		matched, datum, ok := FindMatchingUTxO(req, buyerVkey, sellerVkey, utxos)
		if !ok {
			e.park(ctx, req.ID, wallet.ID, domain.ErrorUTxONotFound, "no utxo at script address matched this request")
			return nil
		}
		sourceUTxO = *matched

		if spec.IsWithdraw {
			built, err = e.buildWithdraw(ctx, spec, source, wallet, sourceUTxO, validFrom, validTo)
		} else {
			built, err = e.buildInteract(ctx, spec, wallet, sourceUTxO, *datum, newCooldown, validFrom, validTo)
		}
	}
	if err != nil {
		return err
	}

	sig, err := e.signer.Sign(ctx, wallet, built.Raw)
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	built, err = built.AttachWitness(sig)
	if err != nil {
		return fmt.Errorf("attach witness: %w", err)
	}

	var txID uuid.UUID
	err = e.db.RunSerializable(ctx, e.txTimeout, func(ctx context.Context, tx *database.Tx) error {
		newTx, cerr := e.repos.Transactions.Create(ctx, tx.SQLTx(), uuid.NullUUID{UUID: wallet.ID, Valid: true})
		if cerr != nil {
			return cerr
		}
		txID = newTx.ID

		if cerr := e.repos.Requests.BeginTransition(ctx, tx.SQLTx(), req.ID, domain.ActionWaitingForExternalAction, txID); cerr != nil {
			return cerr
		}
		if cerr := e.locker.AttachPendingTransaction(ctx, tx, wallet.ID, txID); cerr != nil {
			return cerr
		}
		if spec.CooldownParty != "" {
			if cerr := e.repos.Requests.SetCooldown(ctx, tx.SQLTx(), req.ID, spec.CooldownParty, newCooldown); cerr != nil {
				return cerr
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	e.bus.Publish(observer.Event{
		EntityType:      observer.EntityNextAction,
		EntityID:        req.ID,
		OldState:        string(req.RequestedAction),
		NewState:        string(domain.ActionWaitingForExternalAction),
		PaymentSourceID: req.PaymentSourceID,
		Timestamp:       now,
	})

	txHash, err := e.chain.Submit(ctx, built.Raw)
	if err != nil {
		_ = e.repos.Transactions.SetStatus(ctx, e.db, txID, domain.TransactionFailed)
		e.park(ctx, req.ID, wallet.ID, domain.ErrorScriptEvaluationFailed, fmt.Sprintf("submit failed: %v", err))
		return nil
	}
	if err := e.repos.Transactions.SetTxHash(ctx, e.db, txID, txHash); err != nil {
		return fmt.Errorf("record tx hash: %w", err)
	}
	e.bus.Publish(observer.Event{
		EntityType:      observer.EntityTransaction,
		EntityID:        txID,
		OldState:        string(domain.TransactionPending),
		NewState:        string(domain.TransactionPending),
		PaymentSourceID: req.PaymentSourceID,
		Timestamp:       now,
	})
	return nil
}

// counterpartyVkeys resolves the buyer and seller vkey hex strings a
// request's datum must carry, from its attached WalletBase references.
func (e *Engine) counterpartyVkeys(ctx context.Context, req *domain.Request) (buyerVkey, sellerVkey string, err error) {
	if req.BuyerWalletID.Valid {
		wb, err := e.repos.WalletBases.Get(ctx, e.db, req.BuyerWalletID.UUID)
		if err != nil {
			return "", "", fmt.Errorf("load buyer wallet base: %w", err)
		}
		buyerVkey = wb.Vkey
	}
	if req.SellerWalletID.Valid {
		wb, err := e.repos.WalletBases.Get(ctx, e.db, req.SellerWalletID.UUID)
		if err != nil {
			return "", "", fmt.Errorf("load seller wallet base: %w", err)
		}
		sellerVkey = wb.Vkey
	}
	return buyerVkey, sellerVkey, nil
}

// park releases the wallet lease and records why the request can no longer
// be picked up by the Selector until an operator clears it (7, invariant 5).
func (e *Engine) park(ctx context.Context, requestID, walletID uuid.UUID, errType domain.ErrorType, note string) {
	if perr := e.repos.Requests.Park(ctx, e.db, requestID, errType, note); perr != nil {
		e.logger.Printf("park request %s: %v", requestID, perr)
	}
	if rerr := e.repos.Wallets.Release(ctx, e.db, walletID); rerr != nil {
		e.logger.Printf("release wallet %s after park: %v", walletID, rerr)
	}
}
