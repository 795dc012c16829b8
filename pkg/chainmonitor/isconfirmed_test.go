package chainmonitor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowlabs/escrowd/pkg/chainclient"
)

// fakeChainClient is a minimal chainclient.Client double for exercising
// Monitor methods that need a ledger collaborator but not a database.
type fakeChainClient struct {
	chainclient.Client // nil embed: panics on any method this test doesn't override
	fetchUTxOsOfTx     func(ctx context.Context, txHash string) ([]chainclient.UTxO, error)
}

func (f *fakeChainClient) FetchUTxOsOfTx(ctx context.Context, txHash string) ([]chainclient.UTxO, error) {
	return f.fetchUTxOsOfTx(ctx, txHash)
}

func TestIsConfirmedReportsTrueWhenTxHasUTxOs(t *testing.T) {
	mon := &Monitor{chain: &fakeChainClient{
		fetchUTxOsOfTx: func(ctx context.Context, txHash string) ([]chainclient.UTxO, error) {
			return []chainclient.UTxO{{TxHash: txHash}}, nil
		},
	}}

	confirmed, err := mon.isConfirmed(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.True(t, confirmed)
}

func TestIsConfirmedReportsFalseWhenNotFound(t *testing.T) {
	mon := &Monitor{chain: &fakeChainClient{
		fetchUTxOsOfTx: func(ctx context.Context, txHash string) ([]chainclient.UTxO, error) {
			return nil, fmt.Errorf("no utxos: %w", chainclient.ErrNotFound)
		},
	}}

	confirmed, err := mon.isConfirmed(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.False(t, confirmed)
}

func TestIsConfirmedPropagatesUnclassifiedErrors(t *testing.T) {
	sentinel := errors.New("connection reset")
	mon := &Monitor{chain: &fakeChainClient{
		fetchUTxOsOfTx: func(ctx context.Context, txHash string) ([]chainclient.UTxO, error) {
			return nil, sentinel
		},
	}}

	_, err := mon.isConfirmed(context.Background(), "tx-1")
	assert.ErrorIs(t, err, sentinel)
}
