package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowlabs/escrowd/pkg/chainclient"
	"github.com/escrowlabs/escrowd/pkg/domain"
	"github.com/escrowlabs/escrowd/pkg/scriptcodec"
)

// These tests exercise Engine's transaction-building methods directly.
// buildLock, buildInteract, buildWithdraw, walletInputs and evaluate only
// touch the chain collaborator, so a *chainclient.MemClient (the same fake
// the rest of the repository tests against, plus an error-injecting fake
// for the failure paths) stands in for the database-backed fields an
// Engine built by New would otherwise carry.

func newTestWallet(addr string, lovelace int64) (*domain.HotWallet, chainclient.UTxO) {
	wallet := &domain.HotWallet{ID: uuid.New(), Address: addr, Vkey: strings.Repeat("c", 56)}
	utxo := chainclient.UTxO{TxHash: "funding-" + addr, Index: 0, Address: addr, Value: map[string]int64{"lovelace": lovelace}}
	return wallet, utxo
}

func TestEngineBuildLockLocksRequestedFundsUnderInitialDatum(t *testing.T) {
	chain := chainclient.NewMemClient()
	wallet, feeUTxO := newTestWallet("addr_test1wallet", 10_000_000)
	chain.Seed(feeUTxO)

	e := &Engine{chain: chain}
	source := &domain.PaymentSource{SmartContractAddress: "addr_test1script"}
	req := &domain.Request{
		BlockchainIdentifier: "order-1",
		InputHash:            "hash-1",
		RequestTimes: domain.RequestTimes{
			PayByTime: 100, SubmitResultTime: 200, UnlockTime: 300, ExternalDisputeUnlockTime: 400,
		},
		CollateralReturnLovelace: 3_000_000,
		Funds:                    []domain.Fund{{Unit: "lovelace", Amount: 5_000_000}},
	}
	buyer, seller := strings.Repeat("a", 56), strings.Repeat("b", 56)

	built, err := e.buildLock(context.Background(), source, wallet, req, buyer, seller, 999, 10, 20)
	require.NoError(t, err)
	assert.NotEmpty(t, built.Raw)

	// The raw wire format is the txbuilder's generic JSON object; decoding
	// it back lets this test assert on the embedded datum the same way
	// scriptcodec round-trips it elsewhere.
	assert.Contains(t, string(built.Raw), "addr_test1script")

	var wire struct {
		NewDatum    []byte           `json:"newDatum"`
		OutputValue map[string]int64 `json:"outputValue"`
	}
	require.NoError(t, json.Unmarshal(built.Raw, &wire))
	assert.EqualValues(t, 8_000_000, wire.OutputValue["lovelace"])
	locked, err := scriptcodec.Decode(wire.NewDatum)
	require.NoError(t, err)
	assert.Equal(t, domain.ConstructorFundsLocked, locked.State)
	assert.EqualValues(t, 999, locked.Cooldown.NewCooldownTimeBuyer)
}

func TestEngineBuildLockPropagatesNoUsableWalletUTxOError(t *testing.T) {
	chain := chainclient.NewMemClient() // no seeded wallet UTXOs at all
	wallet := &domain.HotWallet{ID: uuid.New(), Address: "addr_test1empty"}
	e := &Engine{chain: chain}

	_, err := e.buildLock(context.Background(), &domain.PaymentSource{}, wallet, &domain.Request{}, "", "", 0, 0, 0)
	assert.Error(t, err)
}

func TestEngineBuildInteractAdvancesDatumStateAndCooldownParty(t *testing.T) {
	chain := chainclient.NewMemClient()
	wallet, feeUTxO := newTestWallet("addr_test1seller", 10_000_000)
	chain.Seed(feeUTxO)

	e := &Engine{chain: chain}
	source := chainclient.UTxO{TxHash: "script-utxo", Index: 0, Value: map[string]int64{"lovelace": 5_000_000}}
	datum := scriptcodec.Datum{
		BuyerVkey:  strings.Repeat("a", 56),
		SellerVkey: strings.Repeat("b", 56),
		State:      domain.ConstructorFundsLocked,
	}

	built, err := e.buildInteract(context.Background(), SubmitResultSpec, wallet, source, datum, 555, 10, 20)
	require.NoError(t, err)
	assert.NotEmpty(t, built.Raw)

	var wire struct {
		NewDatum []byte `json:"newDatum"`
	}
	require.NoError(t, json.Unmarshal(built.Raw, &wire))
	relocked, err := scriptcodec.Decode(wire.NewDatum)
	require.NoError(t, err)
	assert.Equal(t, domain.ConstructorResultSubmitted, relocked.State)
	assert.EqualValues(t, 555, relocked.Cooldown.NewCooldownTimeSeller)
	assert.EqualValues(t, 0, relocked.Cooldown.NewCooldownTimeBuyer)
}

func TestEngineBuildInteractRejectsUndefinedStateTransition(t *testing.T) {
	chain := chainclient.NewMemClient()
	wallet, feeUTxO := newTestWallet("addr_test1seller", 10_000_000)
	chain.Seed(feeUTxO)

	e := &Engine{chain: chain}
	source := chainclient.UTxO{TxHash: "script-utxo", Index: 0}
	datum := scriptcodec.Datum{State: domain.ConstructorDisputed}

	_, err := e.buildInteract(context.Background(), SetRefundSpec, wallet, source, datum, 0, 0, 0)
	assert.Error(t, err)
}

func TestEngineBuildWithdrawSkimsConfiguredFeeRate(t *testing.T) {
	chain := chainclient.NewMemClient()
	wallet, feeUTxO := newTestWallet("addr_test1collection", 10_000_000)
	chain.Seed(feeUTxO)

	e := &Engine{chain: chain}
	source := &domain.PaymentSource{FeeReceiverAddress: "addr_test1fee", FeeRatePermille: 50}
	sourceUTxO := chainclient.UTxO{TxHash: "script-utxo", Index: 0, Value: map[string]int64{"lovelace": 100_000_000}}

	built, err := e.buildWithdraw(context.Background(), WithdrawSpec, source, wallet, sourceUTxO, 10, 20)
	require.NoError(t, err)
	assert.NotEmpty(t, built.Raw)

	var wire struct {
		FeeAddr   string           `json:"feeAddr"`
		FeeAssets map[string]int64 `json:"feeAssets"`
	}
	require.NoError(t, json.Unmarshal(built.Raw, &wire))
	assert.Equal(t, "addr_test1fee", wire.FeeAddr)
	assert.EqualValues(t, 5_000_000, wire.FeeAssets["lovelace"]) // 100_000_000 * 50 / 1000
}

// fakeChainClient lets the failure paths of walletInputs/evaluate be
// exercised deterministically, which MemClient's always-succeeds behavior
// cannot reach.
type fakeChainClient struct {
	chainclient.Client
	fetchUTxOs func(ctx context.Context, address string) ([]chainclient.UTxO, error)
	evaluate   func(ctx context.Context, rawTx []byte) ([]chainclient.ExUnits, error)
}

func (f *fakeChainClient) FetchUTxOs(ctx context.Context, address string) ([]chainclient.UTxO, error) {
	return f.fetchUTxOs(ctx, address)
}

func (f *fakeChainClient) Evaluate(ctx context.Context, rawTx []byte) ([]chainclient.ExUnits, error) {
	return f.evaluate(ctx, rawTx)
}

func TestEngineWalletInputsPropagatesFetchError(t *testing.T) {
	sentinel := errors.New("indexer unreachable")
	e := &Engine{chain: &fakeChainClient{
		fetchUTxOs: func(ctx context.Context, address string) ([]chainclient.UTxO, error) {
			return nil, sentinel
		},
	}}

	_, _, err := e.walletInputs(context.Background(), &domain.HotWallet{Address: "addr_test1x"})
	assert.ErrorIs(t, err, sentinel)
}

func TestEngineEvaluateFallsBackToWorstCaseBudgetWhenEvaluatorReportsNothing(t *testing.T) {
	e := &Engine{chain: &fakeChainClient{
		evaluate: func(ctx context.Context, rawTx []byte) ([]chainclient.ExUnits, error) {
			return nil, nil
		},
	}}

	budget, err := e.evaluate(context.Background(), []byte("tx"))
	require.NoError(t, err)
	assert.Equal(t, 7_000_000, int(budget.Mem))
}

func TestEngineEvaluateUsesReportedUnitsWhenPresent(t *testing.T) {
	e := &Engine{chain: &fakeChainClient{
		evaluate: func(ctx context.Context, rawTx []byte) ([]chainclient.ExUnits, error) {
			return []chainclient.ExUnits{{Mem: 123, Steps: 456}}, nil
		},
	}}

	budget, err := e.evaluate(context.Background(), []byte("tx"))
	require.NoError(t, err)
	assert.Equal(t, chainclient.ExUnits{Mem: 123, Steps: 456}, budget)
}
