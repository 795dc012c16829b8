package chainmonitor

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/escrowlabs/escrowd/pkg/chainclient"
	"github.com/escrowlabs/escrowd/pkg/domain"
	"github.com/escrowlabs/escrowd/pkg/scriptcodec"
)

func TestDecodeAllSkipsMalformedAndDatumlessUTxOs(t *testing.T) {
	good := scriptcodec.Datum{
		BuyerVkey:  strings.Repeat("a", 56),
		SellerVkey: strings.Repeat("b", 56),
		State:      domain.ConstructorFundsLocked,
	}
	encoded, err := scriptcodec.Encode(good)
	assert.NoError(t, err)

	utxos := []chainclient.UTxO{
		{TxHash: "no-datum"},
		{TxHash: "garbage", Datum: []byte("not-a-datum")},
		{TxHash: "good", Datum: encoded},
	}

	decoded := decodeAll(utxos)
	assert.Len(t, decoded, 1)
	assert.Equal(t, "good", decoded[0].utxo.TxHash)
}

func TestFindByIdentityMatchesOnKeyFieldsOnly(t *testing.T) {
	req := &domain.Request{
		BlockchainIdentifier: "order-1",
		InputHash:            "hash-1",
	}
	buyer := strings.Repeat("a", 56)
	seller := strings.Repeat("b", 56)

	matching := decodedUTxO{datum: scriptcodec.Datum{
		BuyerVkey:            buyer,
		SellerVkey:           seller,
		BlockchainIdentifier: req.BlockchainIdentifier,
		InputHash:            req.InputHash,
		State:                domain.ConstructorResultSubmitted, // state need not match
	}}
	other := decodedUTxO{datum: scriptcodec.Datum{
		BuyerVkey:            buyer,
		SellerVkey:           seller,
		BlockchainIdentifier: "order-2",
		InputHash:            "hash-2",
	}}

	found, ok := findByIdentity(req, buyer, seller, []decodedUTxO{other, matching})
	assert.True(t, ok)
	assert.Equal(t, domain.ConstructorResultSubmitted, found.datum.State)
}

func TestFindByIdentityReportsNoMatch(t *testing.T) {
	req := &domain.Request{BlockchainIdentifier: "order-1", InputHash: "hash-1"}
	_, ok := findByIdentity(req, "buyer", "seller", nil)
	assert.False(t, ok)
}

func TestConstructorToState(t *testing.T) {
	cases := []struct {
		c    domain.DatumConstructor
		want domain.OnChainState
	}{
		{domain.ConstructorFundsLocked, domain.StateFundsLocked},
		{domain.ConstructorResultSubmitted, domain.StateResultSubmitted},
		{domain.ConstructorRefundRequested, domain.StateRefundRequested},
		{domain.ConstructorDisputed, domain.StateDisputed},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, constructorToState(tc.c))
	}
}

func TestNextActionForOnChainState(t *testing.T) {
	now := time.UnixMilli(10_000)

	assert.Equal(t, domain.ActionWaitingForExternalAction, nextActionForOnChainState(domain.StateFundsLocked, 20_000, 30_000, now))
	assert.Equal(t, domain.ActionWaitingForExternalAction, nextActionForOnChainState(domain.StateResultSubmitted, 20_000, 30_000, now))
	assert.Equal(t, domain.ActionWithdrawRequested, nextActionForOnChainState(domain.StateResultSubmitted, 5_000, 30_000, now))
	assert.Equal(t, domain.ActionWaitingForManualAction, nextActionForOnChainState(domain.StateDisputed, 0, 0, now))

	// The refund withdraw gate keys off externalDisputeUnlockTime, not
	// unlockTime: past unlockTime alone must not trigger it.
	assert.Equal(t, domain.ActionWaitingForExternalAction, nextActionForOnChainState(domain.StateRefundRequested, 5_000, 20_000, now))
	assert.Equal(t, domain.ActionWithdrawRefundRequested, nextActionForOnChainState(domain.StateRefundRequested, 5_000, 10_000, now))
}
