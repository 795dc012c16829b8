package chainclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemClientSeedAndFetch(t *testing.T) {
	c := NewMemClient()
	c.Seed(UTxO{TxHash: "abc", Index: 0, Address: "addr1xyz", Value: map[string]int64{"lovelace": 5_000_000}})

	got, err := c.FetchUTxOs(context.Background(), "addr1xyz")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.EqualValues(t, 5_000_000, got[0].Value["lovelace"])

	byTx, err := c.FetchUTxOsOfTx(context.Background(), "abc")
	require.NoError(t, err)
	assert.Len(t, byTx, 1)

	_, err = c.FetchUTxOsOfTx(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemClientSubmitAndConfirm(t *testing.T) {
	c := NewMemClient()
	txHash, err := c.Submit(context.Background(), []byte("raw-tx-bytes"))
	require.NoError(t, err)
	assert.NotEmpty(t, txHash)
	assert.True(t, c.IsConfirmed(txHash))

	tip, err := c.Tip(context.Background())
	require.NoError(t, err)
	assert.Greater(t, tip.Slot, int64(1))
}

func TestMemClientEvaluate(t *testing.T) {
	c := NewMemClient()
	units, err := c.Evaluate(context.Background(), []byte("raw-tx-bytes"))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Greater(t, units[0].Mem, int64(0))
}
