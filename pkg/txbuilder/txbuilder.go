// Package txbuilder constructs the escrow transaction shapes (4.6):
// interact, which spends and re-locks the script UTXO under a new datum,
// and withdraw, which terminally spends it out to the collection address.
// Both follow a two-pass build: construct once against a worst-case ex-unit
// budget, ask ChainClient.Evaluate for the real cost, then rebuild. A third
// shape, lock, creates the first script output; it spends no script UTXO
// and is built in a single pass.
package txbuilder

import (
	"encoding/json"
	"fmt"

	"github.com/escrowlabs/escrowd/pkg/chainclient"
	"github.com/escrowlabs/escrowd/pkg/domain"
	"github.com/escrowlabs/escrowd/pkg/scriptcodec"
)

// WorstCaseBudget is the pessimistic ex-units assumed for the first build
// pass, before ChainClient.Evaluate reports the real cost.
var WorstCaseBudget = chainclient.ExUnits{Mem: 7_000_000, Steps: 3_000_000_000}

// TotalCollateral is fixed at the protocol level; every interact tx locks
// exactly this much as collateral.
const TotalCollateral = 3_000_000

// minWalletUTxOLovelace is the floor below which a wallet UTXO is not worth
// spending toward fees.
const minWalletUTxOLovelace = 5_000_000

// maxWalletInputs bounds how many wallet UTXOs a single tx will consume for
// fees, keeping transaction size and ex-unit cost predictable.
const maxWalletInputs = 4

// ErrNoUsableUTxO is returned when a wallet has no UTXO at or above the
// minimum fee floor.
var ErrNoUsableUTxO = fmt.Errorf("txbuilder: no wallet UTXO meets the %d lovelace floor", minWalletUTxOLovelace)

// SelectFeeUTxOs picks up to maxWalletInputs UTXOs from available,
// preferring the highest-lovelace ones, for paying transaction fees (4.6).
func SelectFeeUTxOs(available []chainclient.UTxO) ([]chainclient.UTxO, error) {
	usable := make([]chainclient.UTxO, 0, len(available))
	for _, u := range available {
		if u.Value["lovelace"] >= minWalletUTxOLovelace {
			usable = append(usable, u)
		}
	}
	if len(usable) == 0 {
		return nil, ErrNoUsableUTxO
	}

	sortByLovelaceDesc(usable)
	if len(usable) > maxWalletInputs {
		usable = usable[:maxWalletInputs]
	}
	return usable, nil
}

func sortByLovelaceDesc(utxos []chainclient.UTxO) {
	for i := 1; i < len(utxos); i++ {
		for j := i; j > 0 && utxos[j].Value["lovelace"] > utxos[j-1].Value["lovelace"]; j-- {
			utxos[j], utxos[j-1] = utxos[j-1], utxos[j]
		}
	}
}

// InteractInput is the fully-resolved input to the interact transaction
// shape: spend the script UTXO with a redeemer, re-lock the same value
// under a new datum.
type InteractInput struct {
	RedeemerType   scriptcodec.Redeemer
	SourceUTxO     chainclient.UTxO
	CollateralUTxO chainclient.UTxO
	WalletUTxOs    []chainclient.UTxO
	NewDatum       scriptcodec.Datum
	ValidFrom      int64
	ValidTo        int64
	Budget         chainclient.ExUnits
	RequiredSigner string
}

// BuiltTx is the serialized transaction handed to ChainClient.Submit,
// along with the ex-units it was built against — the caller re-invokes
// BuildInteract with the real evaluated budget for the second pass. Witness
// is nil until AttachWitness embeds the wallet's signature over Raw; Submit
// must never be called before that.
type BuiltTx struct {
	Raw     []byte
	Budget  chainclient.ExUnits
	Witness []byte
}

// AttachWitness embeds sig (the wallet's signature over b.Raw, per 4.7's
// "sign with wallet" step) into the wire-format transaction and returns the
// signed copy. The wire format is a generic JSON object, so this works
// uniformly across the interact/lock/withdraw shapes without needing to know
// which raw*Tx struct produced Raw.
func (b *BuiltTx) AttachWitness(sig []byte) (*BuiltTx, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b.Raw, &fields); err != nil {
		return nil, fmt.Errorf("txbuilder: decode tx for witness attachment: %w", err)
	}
	witness, err := json.Marshal(sig)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: encode witness: %w", err)
	}
	fields["witness"] = witness

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: re-encode signed tx: %w", err)
	}
	return &BuiltTx{Raw: raw, Budget: b.Budget, Witness: sig}, nil
}

type rawInteractTx struct {
	Redeemer       []byte           `json:"redeemer"`
	SourceTxHash   string           `json:"sourceTxHash"`
	SourceIndex    int              `json:"sourceIndex"`
	CollateralHash string           `json:"collateralTxHash"`
	CollateralIdx  int              `json:"collateralIndex"`
	WalletInputs   []string         `json:"walletInputs"`
	NewDatum       []byte           `json:"newDatum"`
	OutputValue    map[string]int64 `json:"outputValue"`
	ValidFrom      int64            `json:"validFrom"`
	ValidTo        int64            `json:"validTo"`
	Mem            int64            `json:"mem"`
	Steps          int64            `json:"steps"`
	RequiredSigner string           `json:"requiredSigner"`
	Collateral     int64            `json:"collateral"`
	Witness        []byte           `json:"witness,omitempty"`
}

// BuildInteract renders an interact transaction: spend the single script
// UTXO with in.RedeemerType's redeemer, emit a new script output carrying
// in.NewDatum and the same value as the input, consume wallet UTXOs for
// fees.
func BuildInteract(in InteractInput) (*BuiltTx, error) {
	redeemerBytes, err := scriptcodec.EncodeRedeemer(in.RedeemerType)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: encode redeemer: %w", err)
	}
	datumBytes, err := scriptcodec.Encode(in.NewDatum)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: encode datum: %w", err)
	}

	walletInputs := make([]string, len(in.WalletUTxOs))
	for i, u := range in.WalletUTxOs {
		walletInputs[i] = fmt.Sprintf("%s#%d", u.TxHash, u.Index)
	}

	raw := rawInteractTx{
		Redeemer:       redeemerBytes,
		SourceTxHash:   in.SourceUTxO.TxHash,
		SourceIndex:    in.SourceUTxO.Index,
		CollateralHash: in.CollateralUTxO.TxHash,
		CollateralIdx:  in.CollateralUTxO.Index,
		WalletInputs:   walletInputs,
		NewDatum:       datumBytes,
		OutputValue:    in.SourceUTxO.Value,
		ValidFrom:      in.ValidFrom,
		ValidTo:        in.ValidTo,
		Mem:            in.Budget.Mem,
		Steps:          in.Budget.Steps,
		RequiredSigner: in.RequiredSigner,
		Collateral:     TotalCollateral,
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: marshal interact tx: %w", err)
	}
	return &BuiltTx{Raw: encoded, Budget: in.Budget}, nil
}

// LockInput is the fully-resolved input to the lock transaction shape: the
// initial FundsLockingRequested handler has no script input to spend, only
// wallet UTXOs paying for a brand-new script output (4.7.1).
type LockInput struct {
	WalletUTxOs    []chainclient.UTxO
	ScriptAddress  string
	NewDatum       scriptcodec.Datum
	OutputValue    map[string]int64
	ValidFrom      int64
	ValidTo        int64
	RequiredSigner string
}

type rawLockTx struct {
	WalletInputs   []string         `json:"walletInputs"`
	ScriptAddress  string           `json:"scriptAddress"`
	NewDatum       []byte           `json:"newDatum"`
	OutputValue    map[string]int64 `json:"outputValue"`
	ValidFrom      int64            `json:"validFrom"`
	ValidTo        int64            `json:"validTo"`
	RequiredSigner string           `json:"requiredSigner"`
	Witness        []byte           `json:"witness,omitempty"`
}

// BuildLock renders a lock transaction: no script UTXO is spent, so there is
// no redeemer and no ex-unit budget to evaluate — the single build pass is
// final.
func BuildLock(in LockInput) (*BuiltTx, error) {
	datumBytes, err := scriptcodec.Encode(in.NewDatum)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: encode datum: %w", err)
	}

	walletInputs := make([]string, len(in.WalletUTxOs))
	for i, u := range in.WalletUTxOs {
		walletInputs[i] = fmt.Sprintf("%s#%d", u.TxHash, u.Index)
	}

	raw := rawLockTx{
		WalletInputs:   walletInputs,
		ScriptAddress:  in.ScriptAddress,
		NewDatum:       datumBytes,
		OutputValue:    in.OutputValue,
		ValidFrom:      in.ValidFrom,
		ValidTo:        in.ValidTo,
		RequiredSigner: in.RequiredSigner,
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: marshal lock tx: %w", err)
	}
	return &BuiltTx{Raw: encoded}, nil
}

// OutputReference identifies the originating transaction's outpoint,
// carried as an inline datum on an optional fee output to prove
// provenance on-chain.
type OutputReference struct {
	TxHash string `json:"txHash"`
	Index  int    `json:"index"`
}

// WithdrawInput is the fully-resolved input to the withdraw transaction
// shape: terminally spend the script UTXO, paying out to the collection
// address and optionally a fee address and a collateral return.
type WithdrawInput struct {
	RedeemerType     scriptcodec.Redeemer
	SourceUTxO       chainclient.UTxO
	CollateralUTxO   chainclient.UTxO
	WalletUTxOs      []chainclient.UTxO
	CollectionAddr   string
	CollectionAssets map[string]int64
	FeeAddr          string
	FeeAssets        map[string]int64
	FeeOutputRef     *OutputReference
	CollateralReturn int64
	ValidFrom        int64
	ValidTo          int64
	Budget           chainclient.ExUnits
	RequiredSigner   string
}

type rawWithdrawTx struct {
	Redeemer         []byte           `json:"redeemer"`
	SourceTxHash     string           `json:"sourceTxHash"`
	SourceIndex      int              `json:"sourceIndex"`
	CollateralHash   string           `json:"collateralTxHash"`
	CollateralIdx    int              `json:"collateralIndex"`
	WalletInputs     []string         `json:"walletInputs"`
	CollectionAddr   string           `json:"collectionAddr"`
	CollectionAssets map[string]int64 `json:"collectionAssets"`
	FeeAddr          string           `json:"feeAddr,omitempty"`
	FeeAssets        map[string]int64 `json:"feeAssets,omitempty"`
	FeeOutputRef     *OutputReference `json:"feeOutputRef,omitempty"`
	CollateralReturn int64            `json:"collateralReturn,omitempty"`
	ValidFrom        int64            `json:"validFrom"`
	ValidTo          int64            `json:"validTo"`
	Mem              int64            `json:"mem"`
	Steps            int64            `json:"steps"`
	RequiredSigner   string           `json:"requiredSigner"`
	Witness          []byte           `json:"witness,omitempty"`
}

// BuildWithdraw renders a withdraw transaction: consume the script UTXO
// with CollectCompleted or CollectRefund, output to the collection
// address, and optionally a fee output and collateral return.
func BuildWithdraw(in WithdrawInput) (*BuiltTx, error) {
	if in.RedeemerType.Constructor != domain.RedeemerCollectCompleted && in.RedeemerType.Constructor != domain.RedeemerCollectRefund {
		return nil, fmt.Errorf("txbuilder: withdraw requires CollectCompleted or CollectRefund, got %d", in.RedeemerType.Constructor)
	}
	redeemerBytes, err := scriptcodec.EncodeRedeemer(in.RedeemerType)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: encode redeemer: %w", err)
	}

	walletInputs := make([]string, len(in.WalletUTxOs))
	for i, u := range in.WalletUTxOs {
		walletInputs[i] = fmt.Sprintf("%s#%d", u.TxHash, u.Index)
	}

	raw := rawWithdrawTx{
		Redeemer:         redeemerBytes,
		SourceTxHash:     in.SourceUTxO.TxHash,
		SourceIndex:      in.SourceUTxO.Index,
		CollateralHash:   in.CollateralUTxO.TxHash,
		CollateralIdx:    in.CollateralUTxO.Index,
		WalletInputs:     walletInputs,
		CollectionAddr:   in.CollectionAddr,
		CollectionAssets: in.CollectionAssets,
		FeeAddr:          in.FeeAddr,
		FeeAssets:        in.FeeAssets,
		FeeOutputRef:     in.FeeOutputRef,
		CollateralReturn: in.CollateralReturn,
		ValidFrom:        in.ValidFrom,
		ValidTo:          in.ValidTo,
		Mem:              in.Budget.Mem,
		Steps:            in.Budget.Steps,
		RequiredSigner:   in.RequiredSigner,
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: marshal withdraw tx: %w", err)
	}
	return &BuiltTx{Raw: encoded, Budget: in.Budget}, nil
}
