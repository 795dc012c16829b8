package scriptcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowlabs/escrowd/pkg/domain"
)

func TestEncodeRedeemerRejectsReserved(t *testing.T) {
	_, err := EncodeRedeemer(Redeemer{Constructor: domain.RedeemerConstructor(4)})
	assert.Error(t, err)
}

func TestEncodeRedeemerAccepted(t *testing.T) {
	raw, err := EncodeRedeemer(Redeemer{Constructor: domain.RedeemerCollectCompleted})
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestRedeemerForAction(t *testing.T) {
	cases := map[domain.RequestedAction]domain.RedeemerConstructor{
		domain.ActionSetRefundRequested:            domain.RedeemerRequestRefund,
		domain.ActionUnSetRefundRequestedRequested:  domain.RedeemerCancelRefund,
		domain.ActionAuthorizeRefundRequested:       domain.RedeemerAuthorizeRefund,
		domain.ActionSubmitResultRequested:          domain.RedeemerSubmitResult,
		domain.ActionWithdrawRequested:              domain.RedeemerCollectCompleted,
		domain.ActionWithdrawRefundRequested:        domain.RedeemerCollectRefund,
	}
	for action, want := range cases {
		got, err := RedeemerForAction(action)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := RedeemerForAction(domain.ActionWaitingForExternalAction)
	assert.Error(t, err)
}
