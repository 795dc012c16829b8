package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowlabs/escrowd/pkg/domain"
)

func TestNextDatumStateTable(t *testing.T) {
	cases := []struct {
		name    string
		action  domain.RequestedAction
		current domain.DatumConstructor
		want    domain.DatumConstructor
	}{
		{"set refund from funds locked", domain.ActionSetRefundRequested, domain.ConstructorFundsLocked, domain.ConstructorRefundRequested},
		{"set refund from result submitted", domain.ActionSetRefundRequested, domain.ConstructorResultSubmitted, domain.ConstructorDisputed},
		{"unset refund from refund requested", domain.ActionUnSetRefundRequestedRequested, domain.ConstructorRefundRequested, domain.ConstructorFundsLocked},
		{"unset refund from disputed", domain.ActionUnSetRefundRequestedRequested, domain.ConstructorDisputed, domain.ConstructorResultSubmitted},
		{"submit result from funds locked", domain.ActionSubmitResultRequested, domain.ConstructorFundsLocked, domain.ConstructorResultSubmitted},
		{"submit result from refund requested", domain.ActionSubmitResultRequested, domain.ConstructorRefundRequested, domain.ConstructorDisputed},
		{"authorize refund keeps state", domain.ActionAuthorizeRefundRequested, domain.ConstructorDisputed, domain.ConstructorDisputed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := nextDatumState(tc.action, tc.current)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNextDatumStateRejectsUndefinedTransition(t *testing.T) {
	_, err := nextDatumState(domain.ActionSetRefundRequested, domain.ConstructorDisputed)
	assert.Error(t, err)
}

func TestSpecsCoverAllSevenHandlers(t *testing.T) {
	assert.Len(t, Specs, 7)
}
