package lifecycle

import (
	"github.com/escrowlabs/escrowd/pkg/chainclient"
	"github.com/escrowlabs/escrowd/pkg/domain"
	"github.com/escrowlabs/escrowd/pkg/scriptcodec"
)

// datumStateFor maps a request's onChainState to the datum state
// constructor an honest UTXO for that request must carry.
func datumStateFor(state domain.OnChainState) (domain.DatumConstructor, bool) {
	switch state {
	case domain.StateFundsLocked:
		return domain.ConstructorFundsLocked, true
	case domain.StateResultSubmitted:
		return domain.ConstructorResultSubmitted, true
	case domain.StateRefundRequested:
		return domain.ConstructorRefundRequested, true
	case domain.StateDisputed:
		return domain.ConstructorDisputed, true
	default:
		return 0, false
	}
}

// MatchesRequest implements the 4.7.2 UTXO matching rule: a decoded datum
// is eligible for a request only if every key field matches exactly. Any
// mismatch means the UTXO belongs to a different request — possibly a
// double-submit race — and the caller must skip it rather than spend it.
func MatchesRequest(req *domain.Request, buyerVkey, sellerVkey string, d scriptcodec.Datum) bool {
	wantState, ok := datumStateFor(req.OnChainState)
	if !ok {
		return false
	}
	return d.BuyerVkey == buyerVkey &&
		d.SellerVkey == sellerVkey &&
		d.BlockchainIdentifier == req.BlockchainIdentifier &&
		d.InputHash == req.InputHash &&
		d.SubmitResultTime == req.SubmitResultTime &&
		d.UnlockTime == req.UnlockTime &&
		d.ExternalDisputeUnlockTime == req.ExternalDisputeUnlockTime &&
		d.CollateralReturnLovelace == req.CollateralReturnLovelace &&
		d.PayByTime == req.PayByTime &&
		d.State == wantState
}

// FindMatchingUTxO scans utxos at the script address for the one whose
// decoded datum matches req exactly, skipping any that fail to decode
// (6.f) or belong to a different request.
func FindMatchingUTxO(req *domain.Request, buyerVkey, sellerVkey string, utxos []chainclient.UTxO) (*chainclient.UTxO, *scriptcodec.Datum, bool) {
	for i := range utxos {
		if utxos[i].Datum == nil {
			continue
		}
		d, err := scriptcodec.Decode(utxos[i].Datum)
		if err != nil {
			continue
		}
		if MatchesRequest(req, buyerVkey, sellerVkey, d) {
			return &utxos[i], &d, true
		}
	}
	return nil, nil, false
}
