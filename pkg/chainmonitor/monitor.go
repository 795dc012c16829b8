// Package chainmonitor implements the ChainMonitor (4.8): periodic
// reconciliation of on-chain state against the Store, releasing wallet
// leases on confirmation and parking requests whose transaction never
// landed.
package chainmonitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/escrowlabs/escrowd/pkg/chainclient"
	"github.com/escrowlabs/escrowd/pkg/database"
	"github.com/escrowlabs/escrowd/pkg/domain"
	"github.com/escrowlabs/escrowd/pkg/observer"
	"github.com/escrowlabs/escrowd/pkg/scriptcodec"
)

// Monitor reconciles each active payment source's on-chain UTXOs against
// the Store once per tick.
type Monitor struct {
	db    *database.Client
	repos *database.Repositories
	chain chainclient.Client
	bus   *observer.Bus

	stuckTxTimeout time.Duration
	logger         *log.Logger
}

// New builds a Monitor over the given collaborators.
func New(db *database.Client, repos *database.Repositories, chain chainclient.Client, bus *observer.Bus, stuckTxTimeout time.Duration, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(log.Writer(), "[chainmonitor.Monitor] ", log.LstdFlags)
	}
	return &Monitor{
		db:             db,
		repos:          repos,
		chain:          chain,
		bus:            bus,
		stuckTxTimeout: stuckTxTimeout,
		logger:         logger,
	}
}

// Run reconciles every active payment source, then sweeps for stuck
// transactions process-wide (4.8 steps 1-3).
func (m *Monitor) Run(ctx context.Context, now time.Time) error {
	sources, err := m.repos.PaymentSources.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("chainmonitor: list active sources: %w", err)
	}
	for _, source := range sources {
		if err := m.reconcileSource(ctx, source, now); err != nil {
			m.logger.Printf("reconcile source %s: %v", source.ID, err)
		}
	}
	return m.sweepStuckTransactions(ctx, now)
}

// reconcileSource implements 4.8 steps 1 and 2 for one payment source: fetch
// and decode the script address's UTXOs, then check every request with an
// in-flight current transaction for confirmation.
func (m *Monitor) reconcileSource(ctx context.Context, source *domain.PaymentSource, now time.Time) error {
	utxos, err := m.chain.FetchUTxOs(ctx, source.SmartContractAddress)
	if err != nil {
		return fmt.Errorf("fetch script utxos: %w", err)
	}
	decoded := decodeAll(utxos)

	pending, err := m.repos.Requests.FindPendingWithCurrentTx(ctx, m.db, source.ID)
	if err != nil {
		return fmt.Errorf("list requests with current transaction: %w", err)
	}

	for _, req := range pending {
		if err := m.reconcileRequest(ctx, req, decoded, now); err != nil {
			m.logger.Printf("reconcile request %s: %v", req.ID, err)
		}
	}
	return nil
}

// reconcileRequest checks one request's current transaction for
// confirmation and, if confirmed, advances onChainState and NextAction
// (4.8 step 2).
func (m *Monitor) reconcileRequest(ctx context.Context, req *domain.Request, decoded []decodedUTxO, now time.Time) error {
	tx, err := m.repos.Transactions.Get(ctx, m.db, req.CurrentTransactionID.UUID)
	if err != nil {
		return fmt.Errorf("load current transaction: %w", err)
	}
	if tx.Status != domain.TransactionPending || tx.TxHash == "" {
		return nil
	}

	confirmed, err := m.isConfirmed(ctx, tx.TxHash)
	if err != nil {
		return fmt.Errorf("check confirmation: %w", err)
	}
	if !confirmed {
		return nil // handled by sweepStuckTransactions once past the timeout
	}

	if err := m.repos.Transactions.SetStatus(ctx, m.db, tx.ID, domain.TransactionConfirmed); err != nil {
		return fmt.Errorf("mark transaction confirmed: %w", err)
	}
	m.bus.Publish(observer.Event{
		EntityType:      observer.EntityTransaction,
		EntityID:        tx.ID,
		OldState:        string(domain.TransactionPending),
		NewState:        string(domain.TransactionConfirmed),
		PaymentSourceID: req.PaymentSourceID,
		Timestamp:       now,
	})
	if tx.BlocksWalletID.Valid {
		if err := m.repos.Wallets.Release(ctx, m.db, tx.BlocksWalletID.UUID); err != nil {
			m.logger.Printf("release wallet %s after confirmation: %v", tx.BlocksWalletID.UUID, err)
		}
	}

	previousState := req.OnChainState
	buyerVkey, sellerVkey, err := m.counterpartyVkeys(ctx, req)
	if err != nil {
		return fmt.Errorf("load counterparty vkeys: %w", err)
	}
	match, ok := findByIdentity(req, buyerVkey, sellerVkey, decoded)
	if !ok {
		return m.settleWithdrawal(ctx, req, previousState, now)
	}

	newState := constructorToState(match.datum.State)
	if err := m.repos.Requests.SetOnChainState(ctx, m.db, req.ID, newState); err != nil {
		return fmt.Errorf("set on-chain state: %w", err)
	}
	m.bus.Publish(observer.Event{
		EntityType:      observer.EntityOnChainState,
		EntityID:        req.ID,
		OldState:        string(previousState),
		NewState:        string(newState),
		PaymentSourceID: req.PaymentSourceID,
		Timestamp:       now,
	})

	nextAction := nextActionForOnChainState(newState, req.UnlockTime, req.ExternalDisputeUnlockTime, now)
	return m.setNextAction(ctx, req, nextAction, now)
}

// settleWithdrawal handles the case where the confirmed transaction's script
// UTXO no longer exists at the script address: the handler that submitted
// it was a terminal withdraw, so there is nothing left to match (4.8,
// "requests without a matching UTXO ... become candidates for withdrawal
// bookkeeping"). Which terminal state it settled to is inferred from the
// state the request carried before this transaction, since the two withdraw
// redeemers apply to disjoint source states (4.7.1): a normal collection
// spends from ResultSubmitted, a refund collection from RefundRequested or
// Disputed.
func (m *Monitor) settleWithdrawal(ctx context.Context, req *domain.Request, previousState domain.OnChainState, now time.Time) error {
	newState := domain.StateWithdrawn
	if previousState == domain.StateRefundRequested || previousState == domain.StateDisputed {
		newState = domain.StateRefundWithdrawn
	}
	if err := m.repos.Requests.SetOnChainState(ctx, m.db, req.ID, newState); err != nil {
		return fmt.Errorf("set on-chain state: %w", err)
	}
	m.bus.Publish(observer.Event{
		EntityType:      observer.EntityOnChainState,
		EntityID:        req.ID,
		OldState:        string(previousState),
		NewState:        string(newState),
		PaymentSourceID: req.PaymentSourceID,
		Timestamp:       now,
	})
	return m.setNextAction(ctx, req, domain.ActionWaitingForManualAction, now)
}

func (m *Monitor) setNextAction(ctx context.Context, req *domain.Request, action domain.RequestedAction, now time.Time) error {
	if action == req.RequestedAction {
		return nil
	}
	if err := m.repos.Requests.SetNextAction(ctx, m.db, req.ID, action); err != nil {
		return fmt.Errorf("set next action: %w", err)
	}
	m.bus.Publish(observer.Event{
		EntityType:      observer.EntityNextAction,
		EntityID:        req.ID,
		OldState:        string(req.RequestedAction),
		NewState:        string(action),
		PaymentSourceID: req.PaymentSourceID,
		Timestamp:       now,
	})
	return nil
}

// sweepStuckTransactions implements 4.8 step 3 process-wide: Pending
// transactions older than stuckTxTimeout whose hash never confirmed are
// dropped, and the request referencing them is parked.
func (m *Monitor) sweepStuckTransactions(ctx context.Context, now time.Time) error {
	stuck, err := m.repos.Transactions.FindStuckPending(ctx, m.db, now.Add(-m.stuckTxTimeout))
	if err != nil {
		return fmt.Errorf("find stuck pending transactions: %w", err)
	}
	for _, tx := range stuck {
		confirmed, err := m.isConfirmed(ctx, tx.TxHash)
		if err != nil {
			m.logger.Printf("check confirmation for stuck tx %s: %v", tx.ID, err)
			continue
		}
		if confirmed {
			continue // the next reconcileSource pass will pick this up
		}
		if err := m.dropTransaction(ctx, tx, now); err != nil {
			m.logger.Printf("drop stuck tx %s: %v", tx.ID, err)
		}
	}
	return nil
}

func (m *Monitor) dropTransaction(ctx context.Context, tx *domain.Transaction, now time.Time) error {
	if err := m.repos.Transactions.SetStatus(ctx, m.db, tx.ID, domain.TransactionFailed); err != nil {
		return fmt.Errorf("mark transaction failed: %w", err)
	}

	req, err := m.repos.Requests.FindByCurrentTransaction(ctx, m.db, tx.ID)
	if err != nil {
		return fmt.Errorf("find request for stuck transaction: %w", err)
	}
	if err := m.repos.Requests.Park(ctx, m.db, req.ID, domain.ErrorTxDropped, fmt.Sprintf("transaction %s never confirmed", tx.TxHash)); err != nil {
		return fmt.Errorf("park request: %w", err)
	}
	if tx.BlocksWalletID.Valid {
		if err := m.repos.Wallets.Release(ctx, m.db, tx.BlocksWalletID.UUID); err != nil {
			m.logger.Printf("release wallet %s after dropped tx: %v", tx.BlocksWalletID.UUID, err)
		}
	}
	m.bus.Publish(observer.Event{
		EntityType:      observer.EntityTransaction,
		EntityID:        tx.ID,
		OldState:        string(domain.TransactionPending),
		NewState:        string(domain.TransactionFailed),
		PaymentSourceID: req.PaymentSourceID,
		Timestamp:       now,
	})
	return nil
}

// isConfirmed reports whether txHash has landed on-chain: FetchUTxOsOfTx
// returning its outputs means the transaction is in a confirmed block;
// ErrNotFound means it has not (yet).
func (m *Monitor) isConfirmed(ctx context.Context, txHash string) (bool, error) {
	_, err := m.chain.FetchUTxOsOfTx(ctx, txHash)
	if err == nil {
		return true, nil
	}
	if chainclient.Classify(err) == chainclient.CategoryNotFound {
		return false, nil
	}
	return false, err
}

func (m *Monitor) counterpartyVkeys(ctx context.Context, req *domain.Request) (buyerVkey, sellerVkey string, err error) {
	if req.BuyerWalletID.Valid {
		wb, err := m.repos.WalletBases.Get(ctx, m.db, req.BuyerWalletID.UUID)
		if err != nil {
			return "", "", fmt.Errorf("load buyer wallet base: %w", err)
		}
		buyerVkey = wb.Vkey
	}
	if req.SellerWalletID.Valid {
		wb, err := m.repos.WalletBases.Get(ctx, m.db, req.SellerWalletID.UUID)
		if err != nil {
			return "", "", fmt.Errorf("load seller wallet base: %w", err)
		}
		sellerVkey = wb.Vkey
	}
	return buyerVkey, sellerVkey, nil
}

// decodedUTxO pairs a raw UTXO with its successfully decoded datum.
type decodedUTxO struct {
	utxo  chainclient.UTxO
	datum scriptcodec.Datum
}

// decodeAll decodes every utxo carrying a datum, silently skipping ones that
// fail (6.f): a malformed or foreign datum is not this service's concern.
func decodeAll(utxos []chainclient.UTxO) []decodedUTxO {
	out := make([]decodedUTxO, 0, len(utxos))
	for _, u := range utxos {
		if u.Datum == nil {
			continue
		}
		d, err := scriptcodec.Decode(u.Datum)
		if err != nil {
			continue
		}
		out = append(out, decodedUTxO{utxo: u, datum: d})
	}
	return out
}

// findByIdentity locates the decoded UTXO belonging to req by its stable
// identity fields alone (4.7.2), independent of the state field — unlike
// lifecycle.MatchesRequest, the monitor does not yet know what state to
// expect; finding the new state is the point of the lookup.
func findByIdentity(req *domain.Request, buyerVkey, sellerVkey string, decoded []decodedUTxO) (*decodedUTxO, bool) {
	for i := range decoded {
		d := decoded[i].datum
		if d.BuyerVkey == buyerVkey &&
			d.SellerVkey == sellerVkey &&
			d.BlockchainIdentifier == req.BlockchainIdentifier &&
			d.InputHash == req.InputHash &&
			d.SubmitResultTime == req.SubmitResultTime &&
			d.UnlockTime == req.UnlockTime &&
			d.ExternalDisputeUnlockTime == req.ExternalDisputeUnlockTime &&
			d.CollateralReturnLovelace == req.CollateralReturnLovelace &&
			d.PayByTime == req.PayByTime {
			return &decoded[i], true
		}
	}
	return nil, false
}

// constructorToState maps a decoded datum's state constructor back to the
// request-facing OnChainState it represents.
func constructorToState(c domain.DatumConstructor) domain.OnChainState {
	switch c {
	case domain.ConstructorFundsLocked:
		return domain.StateFundsLocked
	case domain.ConstructorResultSubmitted:
		return domain.StateResultSubmitted
	case domain.ConstructorRefundRequested:
		return domain.StateRefundRequested
	case domain.ConstructorDisputed:
		return domain.StateDisputed
	default:
		return domain.StateNone
	}
}

// nextActionForOnChainState implements 4.8 step 2c: the engine-internal
// intent implied by a freshly observed on-chain state and the time windows
// it crosses. The two withdraw gates key off different instants: a normal
// collection is gated on unlockTime, a refund collection on
// externalDisputeUnlockTime — invariant 4 requires unlockTime strictly
// precede externalDisputeUnlockTime by at least five minutes, so collapsing
// both gates onto unlockTime would let a refund withdraw fire before its own
// dispute window closes.
func nextActionForOnChainState(state domain.OnChainState, unlockTime, externalDisputeUnlockTime int64, now time.Time) domain.RequestedAction {
	nowMs := now.UnixMilli()
	switch state {
	case domain.StateFundsLocked:
		return domain.ActionWaitingForExternalAction
	case domain.StateResultSubmitted:
		if nowMs >= unlockTime {
			return domain.ActionWithdrawRequested
		}
		return domain.ActionWaitingForExternalAction
	case domain.StateRefundRequested:
		if nowMs >= externalDisputeUnlockTime {
			return domain.ActionWithdrawRefundRequested
		}
		return domain.ActionWaitingForExternalAction
	case domain.StateDisputed:
		return domain.ActionWaitingForManualAction
	default:
		return domain.ActionWaitingForManualAction
	}
}
