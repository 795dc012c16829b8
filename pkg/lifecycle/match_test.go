package lifecycle

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/escrowlabs/escrowd/pkg/chainclient"
	"github.com/escrowlabs/escrowd/pkg/domain"
	"github.com/escrowlabs/escrowd/pkg/scriptcodec"
)

func sampleRequest() *domain.Request {
	return &domain.Request{
		ID:                   uuid.New(),
		BlockchainIdentifier: "order-123",
		InputHash:            "deadbeef",
		RequestTimes: domain.RequestTimes{
			PayByTime:                 1000,
			SubmitResultTime:          2000,
			UnlockTime:                3000,
			ExternalDisputeUnlockTime: 4000,
		},
		CollateralReturnLovelace: 5_000_000,
		OnChainState:             domain.StateFundsLocked,
	}
}

func sampleMatchingDatum(buyerVkey, sellerVkey string, req *domain.Request) scriptcodec.Datum {
	return scriptcodec.Datum{
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
	}
}

func TestMatchesRequestExactMatch(t *testing.T) {
	buyer := strings.Repeat("a", 56)
	seller := strings.Repeat("b", 56)
	req := sampleRequest()
	d := sampleMatchingDatum(buyer, seller, req)

	assert.True(t, MatchesRequest(req, buyer, seller, d))
}

func TestMatchesRequestRejectsFieldMismatch(t *testing.T) {
	buyer := strings.Repeat("a", 56)
	seller := strings.Repeat("b", 56)
	req := sampleRequest()
	d := sampleMatchingDatum(buyer, seller, req)
	d.InputHash = "different"

	assert.False(t, MatchesRequest(req, buyer, seller, d))
}

func TestMatchesRequestRejectsUnknownOnChainState(t *testing.T) {
	buyer := strings.Repeat("a", 56)
	seller := strings.Repeat("b", 56)
	req := sampleRequest()
	req.OnChainState = domain.StateWithdrawn
	d := sampleMatchingDatum(buyer, seller, req)

	assert.False(t, MatchesRequest(req, buyer, seller, d))
}

func TestFindMatchingUTxOSkipsUndecodableAndMismatched(t *testing.T) {
	buyer := strings.Repeat("a", 56)
	seller := strings.Repeat("b", 56)
	req := sampleRequest()
	d := sampleMatchingDatum(buyer, seller, req)
	encoded, err := scriptcodec.Encode(d)
	assert.NoError(t, err)

	mismatched := sampleMatchingDatum(buyer, seller, req)
	mismatched.InputHash = "foreign-request"
	mismatchedEncoded, err := scriptcodec.Encode(mismatched)
	assert.NoError(t, err)

	utxos := []chainclient.UTxO{
		{TxHash: "garbage", Datum: []byte("not-a-real-datum")},
		{TxHash: "foreign", Datum: mismatchedEncoded},
		{TxHash: "match", Datum: encoded},
	}

	matched, decoded, ok := FindMatchingUTxO(req, buyer, seller, utxos)
	assert.True(t, ok)
	assert.Equal(t, "match", matched.TxHash)
	assert.Equal(t, d.InputHash, decoded.InputHash)
}
