package scriptcodec

import (
	"fmt"

	"github.com/escrowlabs/escrowd/pkg/domain"
)

// Redeemer is the constructor-index selector a spending transaction
// supplies to the validator (4.3). Indices 4 and 7+ are reserved.
type Redeemer struct {
	Constructor domain.RedeemerConstructor
}

// EncodeRedeemer renders r as the raw bytes a Submit call would attach to
// the spending input.
func EncodeRedeemer(r Redeemer) ([]byte, error) {
	if !validRedeemer(r.Constructor) {
		return nil, fmt.Errorf("scriptcodec: reserved or unknown redeemer constructor %d", r.Constructor)
	}
	return []byte(fmt.Sprintf("redeemer:%d", r.Constructor)), nil
}

func validRedeemer(c domain.RedeemerConstructor) bool {
	switch c {
	case domain.RedeemerCollectCompleted,
		domain.RedeemerRequestRefund,
		domain.RedeemerCancelRefund,
		domain.RedeemerCollectRefund,
		domain.RedeemerSubmitResult,
		domain.RedeemerAuthorizeRefund:
		return true
	default:
		return false
	}
}

// RedeemerForAction returns the redeemer constructor for a handler
// transition, per the table in 4.7.1.
func RedeemerForAction(action domain.RequestedAction) (domain.RedeemerConstructor, error) {
	switch action {
	case domain.ActionSetRefundRequested:
		return domain.RedeemerRequestRefund, nil
	case domain.ActionUnSetRefundRequestedRequested:
		return domain.RedeemerCancelRefund, nil
	case domain.ActionAuthorizeRefundRequested:
		return domain.RedeemerAuthorizeRefund, nil
	case domain.ActionSubmitResultRequested:
		return domain.RedeemerSubmitResult, nil
	case domain.ActionWithdrawRequested:
		return domain.RedeemerCollectCompleted, nil
	case domain.ActionWithdrawRefundRequested:
		return domain.RedeemerCollectRefund, nil
	default:
		return 0, fmt.Errorf("scriptcodec: action %v has no associated redeemer", action)
	}
}
