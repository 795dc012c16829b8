package lifecycle

import (
	"context"
	"fmt"

	"github.com/escrowlabs/escrowd/pkg/chainclient"
	"github.com/escrowlabs/escrowd/pkg/domain"
	"github.com/escrowlabs/escrowd/pkg/scriptcodec"
	"github.com/escrowlabs/escrowd/pkg/txbuilder"
)

// ActionSpec parameterizes one handler of the 4.7.1 table: which wallet
// type the Selector leases, whose cooldown gates eligibility, whose
// cooldown the handler updates on success, and which transaction shape it
// builds.
type ActionSpec struct {
	Action          domain.RequestedAction
	LeaseWalletType domain.WalletType
	ActingParty     domain.WalletType
	CooldownParty   domain.WalletType // zero value means no cooldown is updated
	IsWithdraw      bool
}

// The seven handlers of 4.7.1. FundsLockingRequested is handled specially
// in Engine.processOne (no script input to match), so it carries no
// IsWithdraw/interact distinction here.
var (
	FundsLockingSpec = ActionSpec{
		Action:          domain.ActionFundsLockingRequested,
		LeaseWalletType: domain.WalletPurchasing,
		ActingParty:     domain.WalletPurchasing,
		CooldownParty:   domain.WalletPurchasing,
	}
	SetRefundSpec = ActionSpec{
		Action:          domain.ActionSetRefundRequested,
		LeaseWalletType: domain.WalletPurchasing,
		ActingParty:     domain.WalletPurchasing,
		CooldownParty:   domain.WalletPurchasing,
	}
	UnsetRefundSpec = ActionSpec{
		Action:          domain.ActionUnSetRefundRequestedRequested,
		LeaseWalletType: domain.WalletPurchasing,
		ActingParty:     domain.WalletPurchasing,
		CooldownParty:   domain.WalletPurchasing,
	}
	SubmitResultSpec = ActionSpec{
		Action:          domain.ActionSubmitResultRequested,
		LeaseWalletType: domain.WalletSelling,
		ActingParty:     domain.WalletSelling,
		CooldownParty:   domain.WalletSelling,
	}
	AuthorizeRefundSpec = ActionSpec{
		Action:          domain.ActionAuthorizeRefundRequested,
		LeaseWalletType: domain.WalletSelling,
		ActingParty:     domain.WalletSelling,
	}
	WithdrawSpec = ActionSpec{
		Action:          domain.ActionWithdrawRequested,
		LeaseWalletType: domain.WalletCollection,
		ActingParty:     domain.WalletSelling,
		IsWithdraw:      true,
	}
	WithdrawRefundSpec = ActionSpec{
		Action:          domain.ActionWithdrawRefundRequested,
		LeaseWalletType: domain.WalletCollection,
		ActingParty:     domain.WalletPurchasing,
		IsWithdraw:      true,
	}
)

// Specs lists every handler, in the order the scheduler ticks them.
var Specs = []ActionSpec{
	FundsLockingSpec,
	SetRefundSpec,
	UnsetRefundSpec,
	SubmitResultSpec,
	AuthorizeRefundSpec,
	WithdrawSpec,
	WithdrawRefundSpec,
}

// nextDatumState implements the state column of the 4.7.1 table: the new
// constructor a handler's re-lock datum must carry, given the datum state
// observed on the matched UTXO. AuthorizeRefundRequested leaves the visible
// state untouched — it authorizes a subsequent withdrawal rather than
// advancing the datum's own state machine.
func nextDatumState(action domain.RequestedAction, current domain.DatumConstructor) (domain.DatumConstructor, error) {
	switch action {
	case domain.ActionSetRefundRequested:
		switch current {
		case domain.ConstructorFundsLocked:
			return domain.ConstructorRefundRequested, nil
		case domain.ConstructorResultSubmitted:
			return domain.ConstructorDisputed, nil
		}
	case domain.ActionUnSetRefundRequestedRequested:
		switch current {
		case domain.ConstructorRefundRequested:
			return domain.ConstructorFundsLocked, nil
		case domain.ConstructorDisputed:
			return domain.ConstructorResultSubmitted, nil
		}
	case domain.ActionSubmitResultRequested:
		switch current {
		case domain.ConstructorFundsLocked:
			return domain.ConstructorResultSubmitted, nil
		case domain.ConstructorRefundRequested:
			return domain.ConstructorDisputed, nil
		}
	case domain.ActionAuthorizeRefundRequested:
		return current, nil
	}
	return 0, fmt.Errorf("lifecycle: no state transition defined for %s from state %d", action, current)
}

// walletInputs picks the wallet UTXOs that fund a transaction's fees and the
// one standing in for its fixed collateral. A production wallet would
// reserve a dedicated collateral UTXO rather than reuse the top fee input;
// the simulated ledger's UTXOs are fungible enough that this is safe here.
func (e *Engine) walletInputs(ctx context.Context, wallet *domain.HotWallet) ([]chainclient.UTxO, chainclient.UTxO, error) {
	available, err := e.chain.FetchUTxOs(ctx, wallet.Address)
	if err != nil {
		return nil, chainclient.UTxO{}, fmt.Errorf("fetch wallet utxos: %w", err)
	}
	feeUTxOs, err := txbuilder.SelectFeeUTxOs(available)
	if err != nil {
		return nil, chainclient.UTxO{}, fmt.Errorf("select fee utxos: %w", err)
	}
	return feeUTxOs, feeUTxOs[0], nil
}

// evaluate asks ChainClient for the real ex-units of the first build pass,
// falling back to the worst-case budget if the simulated evaluator reports
// nothing (it never should, but a build must never panic on it).
func (e *Engine) evaluate(ctx context.Context, rawTx []byte) (chainclient.ExUnits, error) {
	units, err := e.chain.Evaluate(ctx, rawTx)
	if err != nil {
		return chainclient.ExUnits{}, fmt.Errorf("evaluate script: %w", err)
	}
	if len(units) == 0 {
		return txbuilder.WorstCaseBudget, nil
	}
	return units[0], nil
}

// buildLock renders the FundsLockingRequested transaction: no script input,
// a fresh script output under the initial datum (4.7.1).
func (e *Engine) buildLock(ctx context.Context, source *domain.PaymentSource, wallet *domain.HotWallet, req *domain.Request, buyerVkey, sellerVkey string, newCooldown, validFrom, validTo int64) (*txbuilder.BuiltTx, error) {
	feeUTxOs, _, err := e.walletInputs(ctx, wallet)
	if err != nil {
		return nil, err
	}

	lockedValue := map[string]int64{"lovelace": req.CollateralReturnLovelace}
	for _, f := range req.Funds {
		lockedValue[f.Unit] += f.Amount
	}

	newDatum := scriptcodec.Datum{
		BuyerVkey:                 buyerVkey,
		SellerVkey:                sellerVkey,
		BlockchainIdentifier:      req.BlockchainIdentifier,
		InputHash:                 req.InputHash,
		PayByTime:                 req.PayByTime,
		SubmitResultTime:          req.SubmitResultTime,
		UnlockTime:                req.UnlockTime,
		ExternalDisputeUnlockTime: req.ExternalDisputeUnlockTime,
		CollateralReturnLovelace:  req.CollateralReturnLovelace,
		State:                     domain.ConstructorFundsLocked,
		Cooldown:                  scriptcodec.Cooldown{NewCooldownTimeBuyer: newCooldown},
	}

	built, err := txbuilder.BuildLock(txbuilder.LockInput{
		WalletUTxOs:    feeUTxOs,
		ScriptAddress:  source.SmartContractAddress,
		NewDatum:       newDatum,
		OutputValue:    lockedValue,
		ValidFrom:      validFrom,
		ValidTo:        validTo,
		RequiredSigner: wallet.Vkey,
	})
	if err != nil {
		return nil, fmt.Errorf("build lock: %w", err)
	}
	return built, nil
}

// buildInteract renders the re-lock transaction shape shared by
// SetRefundRequested, UnSetRefundRequestedRequested, SubmitResultRequested
// and AuthorizeRefundRequested: spend the matched script UTXO with the
// handler's redeemer, re-lock the same value under an updated datum.
func (e *Engine) buildInteract(ctx context.Context, spec ActionSpec, wallet *domain.HotWallet, sourceUTxO chainclient.UTxO, datum scriptcodec.Datum, newCooldown, validFrom, validTo int64) (*txbuilder.BuiltTx, error) {
	redeemerConstructor, err := scriptcodec.RedeemerForAction(spec.Action)
	if err != nil {
		return nil, fmt.Errorf("resolve redeemer: %w", err)
	}
	newState, err := nextDatumState(spec.Action, datum.State)
	if err != nil {
		return nil, err
	}

	newDatum := datum
	newDatum.State = newState
	switch spec.CooldownParty {
	case domain.WalletSelling:
		newDatum.Cooldown.NewCooldownTimeSeller = newCooldown
	case domain.WalletPurchasing:
		newDatum.Cooldown.NewCooldownTimeBuyer = newCooldown
	}

	feeUTxOs, collateral, err := e.walletInputs(ctx, wallet)
	if err != nil {
		return nil, err
	}

	in := txbuilder.InteractInput{
		RedeemerType:   scriptcodec.Redeemer{Constructor: redeemerConstructor},
		SourceUTxO:     sourceUTxO,
		CollateralUTxO: collateral,
		WalletUTxOs:    feeUTxOs,
		NewDatum:       newDatum,
		ValidFrom:      validFrom,
		ValidTo:        validTo,
		Budget:         txbuilder.WorstCaseBudget,
		RequiredSigner: wallet.Vkey,
	}
	built, err := txbuilder.BuildInteract(in)
	if err != nil {
		return nil, fmt.Errorf("build interact (pass 1): %w", err)
	}

	budget, err := e.evaluate(ctx, built.Raw)
	if err != nil {
		return nil, err
	}
	in.Budget = budget
	built, err = txbuilder.BuildInteract(in)
	if err != nil {
		return nil, fmt.Errorf("build interact (pass 2): %w", err)
	}
	return built, nil
}

// buildWithdraw renders the terminal transaction shape shared by
// WithdrawRequested and WithdrawRefundRequested: spend the matched script
// UTXO with CollectCompleted/CollectRefund, pay out to the leased
// collection wallet, return collateral, and skim the source's fee.
func (e *Engine) buildWithdraw(ctx context.Context, spec ActionSpec, source *domain.PaymentSource, wallet *domain.HotWallet, sourceUTxO chainclient.UTxO, validFrom, validTo int64) (*txbuilder.BuiltTx, error) {
	redeemerConstructor, err := scriptcodec.RedeemerForAction(spec.Action)
	if err != nil {
		return nil, fmt.Errorf("resolve redeemer: %w", err)
	}

	feeUTxOs, collateral, err := e.walletInputs(ctx, wallet)
	if err != nil {
		return nil, err
	}

	feeAmount := sourceUTxO.Value["lovelace"] * int64(source.FeeRatePermille) / 1000

	in := txbuilder.WithdrawInput{
		RedeemerType:     scriptcodec.Redeemer{Constructor: redeemerConstructor},
		SourceUTxO:       sourceUTxO,
		CollateralUTxO:   collateral,
		WalletUTxOs:      feeUTxOs,
		CollectionAddr:   wallet.Address,
		CollectionAssets: sourceUTxO.Value,
		FeeAddr:          source.FeeReceiverAddress,
		FeeAssets:        map[string]int64{"lovelace": feeAmount},
		FeeOutputRef:     &txbuilder.OutputReference{TxHash: sourceUTxO.TxHash, Index: sourceUTxO.Index},
		CollateralReturn: txbuilder.TotalCollateral,
		ValidFrom:        validFrom,
		ValidTo:          validTo,
		Budget:           txbuilder.WorstCaseBudget,
		RequiredSigner:   wallet.Vkey,
	}
	built, err := txbuilder.BuildWithdraw(in)
	if err != nil {
		return nil, fmt.Errorf("build withdraw (pass 1): %w", err)
	}

	budget, err := e.evaluate(ctx, built.Raw)
	if err != nil {
		return nil, err
	}
	in.Budget = budget
	built, err = txbuilder.BuildWithdraw(in)
	if err != nil {
		return nil, fmt.Errorf("build withdraw (pass 2): %w", err)
	}
	return built, nil
}
